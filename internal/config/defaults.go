package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding Config fields are unset.
const (
	DefaultFirmwareDir    = "firmware"
	DefaultPicotool       = "picotool"
	DefaultEraseImage     = "flash_nuke.uf2"
	DefaultOwner          = "OpenStickCommunity"
	DefaultRepo           = "GP2040-CE"
	DefaultProbe          = "auto"
	DefaultVolumeLabel    = "RPI-RP2"
	DefaultMountPath      = "/Volumes/RPI-RP2"
	DefaultUSBVendor      = "RPI"
	DefaultUSBModel       = "RP2"
	DefaultPollIntervalMS = 1000
	DefaultCooldownMS     = 2000
	DefaultLogLevel       = "info"
)

// EnvPrefix prefixes every environment override, e.g. GPFLASH_FIRMWARE_DIR.
const EnvPrefix = "GPFLASH_"

// ProbeModes lists the accepted values of Config.Probe.
var ProbeModes = []string{"auto", "mount", "volume", "label", "udev", "usb"}

// Defaults returns a Config with every field populated.
func Defaults() Config {
	return Config{
		FirmwareDir:    DefaultFirmwareDir,
		Picotool:       DefaultPicotool,
		EraseImage:     DefaultEraseImage,
		Owner:          DefaultOwner,
		Repo:           DefaultRepo,
		Probe:          DefaultProbe,
		VolumeLabel:    DefaultVolumeLabel,
		MountPath:      DefaultMountPath,
		USBVendor:      DefaultUSBVendor,
		USBModel:       DefaultUSBModel,
		PollIntervalMS: DefaultPollIntervalMS,
		CooldownMS:     DefaultCooldownMS,
		LogLevel:       DefaultLogLevel,
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv builds a Config from GPFLASH_* variables. GITHUB_TOKEN is honored
// as a fallback for the API token.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var cfg Config
	var errs error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
	str("FIRMWARE_DIR", &cfg.FirmwareDir)
	str("PICOTOOL", &cfg.Picotool)
	str("ERASE_IMAGE", &cfg.EraseImage)
	str("OWNER", &cfg.Owner)
	str("REPO", &cfg.Repo)
	str("GITHUB_TOKEN", &cfg.GitHubToken)
	if cfg.GitHubToken == "" {
		if v, ok := lookup("GITHUB_TOKEN"); ok {
			cfg.GitHubToken = v
		}
	}
	str("FIRMWARE", &cfg.Firmware)
	str("PROBE", &cfg.Probe)
	str("VOLUME_LABEL", &cfg.VolumeLabel)
	str("MOUNT_PATH", &cfg.MountPath)
	str("USB_VENDOR", &cfg.USBVendor)
	str("USB_MODEL", &cfg.USBModel)
	str("STATUS_ADDR", &cfg.StatusAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)
	num("POLL_INTERVAL_MS", &cfg.PollIntervalMS)
	num("COOLDOWN_MS", &cfg.CooldownMS)
	return cfg, errs
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	if strings.TrimSpace(c.FirmwareDir) == "" {
		errs = multierror.Append(errs, fmt.Errorf("firmware_dir is required"))
	}
	if strings.TrimSpace(c.Picotool) == "" {
		errs = multierror.Append(errs, fmt.Errorf("picotool is required"))
	}
	if strings.TrimSpace(c.EraseImage) == "" {
		errs = multierror.Append(errs, fmt.Errorf("erase_image is required"))
	}
	if !validProbe(c.Probe) {
		errs = multierror.Append(errs, fmt.Errorf("probe %q: must be one of %s", c.Probe, strings.Join(ProbeModes, "|")))
	}
	if c.PollIntervalMS <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("poll_interval_ms must be positive"))
	}
	if c.CooldownMS < 0 {
		errs = multierror.Append(errs, fmt.Errorf("cooldown_ms must not be negative"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = multierror.Append(errs, fmt.Errorf("log_level %q: must be debug|info|warn|error", c.LogLevel))
	}
	return errs
}

func validProbe(s string) bool {
	for _, m := range ProbeModes {
		if s == m {
			return true
		}
	}
	return false
}

// PollInterval is PollIntervalMS as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Cooldown is CooldownMS as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMS) * time.Millisecond
}
