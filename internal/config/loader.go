package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for gpflash.
// Zero values mean "unspecified" and are replaced by Defaults via Merge.
type Config struct {
	FirmwareDir    string `json:"firmware_dir" yaml:"firmware_dir" toml:"firmware_dir"`
	Picotool       string `json:"picotool" yaml:"picotool" toml:"picotool"`
	EraseImage     string `json:"erase_image" yaml:"erase_image" toml:"erase_image"`
	Owner          string `json:"owner" yaml:"owner" toml:"owner"`
	Repo           string `json:"repo" yaml:"repo" toml:"repo"`
	GitHubToken    string `json:"github_token" yaml:"github_token" toml:"github_token"`
	Firmware       string `json:"firmware" yaml:"firmware" toml:"firmware"`
	Probe          string `json:"probe" yaml:"probe" toml:"probe"`
	VolumeLabel    string `json:"volume_label" yaml:"volume_label" toml:"volume_label"`
	MountPath      string `json:"mount_path" yaml:"mount_path" toml:"mount_path"`
	USBVendor      string `json:"usb_vendor" yaml:"usb_vendor" toml:"usb_vendor"`
	USBModel       string `json:"usb_model" yaml:"usb_model" toml:"usb_model"`
	PollIntervalMS int    `json:"poll_interval_ms" yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	CooldownMS     int    `json:"cooldown_ms" yaml:"cooldown_ms" toml:"cooldown_ms"`
	StatusAddr     string `json:"status_addr" yaml:"status_addr" toml:"status_addr"`
	LogLevel       string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile        string `json:"log_file" yaml:"log_file" toml:"log_file"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge returns base with every non-zero field of over applied on top.
func Merge(base, over Config) Config {
	out := base
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&out.FirmwareDir, over.FirmwareDir)
	setStr(&out.Picotool, over.Picotool)
	setStr(&out.EraseImage, over.EraseImage)
	setStr(&out.Owner, over.Owner)
	setStr(&out.Repo, over.Repo)
	setStr(&out.GitHubToken, over.GitHubToken)
	setStr(&out.Firmware, over.Firmware)
	setStr(&out.Probe, over.Probe)
	setStr(&out.VolumeLabel, over.VolumeLabel)
	setStr(&out.MountPath, over.MountPath)
	setStr(&out.USBVendor, over.USBVendor)
	setStr(&out.USBModel, over.USBModel)
	setStr(&out.StatusAddr, over.StatusAddr)
	setStr(&out.LogLevel, over.LogLevel)
	setStr(&out.LogFile, over.LogFile)
	if over.PollIntervalMS > 0 {
		out.PollIntervalMS = over.PollIntervalMS
	}
	if over.CooldownMS > 0 {
		out.CooldownMS = over.CooldownMS
	}
	return out
}
