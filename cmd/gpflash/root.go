package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gpflash/internal/common/fsutil"
	"gpflash/internal/config"
)

// app carries the resolved configuration into every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	headless    bool
	corsOrigins string
	flags       config.Config // raw flag values; only changed flags apply

	cfg     config.Config
	log     zerolog.Logger
	closeFn func() error
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, log: zerolog.Nop()}
	root := &cobra.Command{
		Use:   "gpflash",
		Short: "Flash GP2040-CE firmware onto RP2040 boards in BOOTSEL mode",
		Long: "gpflash lists the latest GP2040-CE release, lets you pick an image and\n" +
			"flashes every board plugged in BOOTSEL mode until you quit. Boards that\n" +
			"already carry a program are erased first.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSession(cmd.Context())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.StringVar(&a.flags.FirmwareDir, "firmware-dir", config.DefaultFirmwareDir, "Directory where images are cached")
	pf.StringVar(&a.flags.Picotool, "picotool", config.DefaultPicotool, "picotool binary name or path")
	pf.StringVar(&a.flags.EraseImage, "erase-image", config.DefaultEraseImage, "Erase image file name")
	pf.StringVar(&a.flags.Owner, "owner", config.DefaultOwner, "GitHub owner of the firmware repository")
	pf.StringVar(&a.flags.Repo, "repo", config.DefaultRepo, "GitHub firmware repository")
	pf.StringVar(&a.flags.Probe, "probe", config.DefaultProbe, "Presence mechanism: "+strings.Join(config.ProbeModes, "|"))
	pf.StringVar(&a.flags.VolumeLabel, "volume-label", config.DefaultVolumeLabel, "BOOTSEL volume label")
	pf.StringVar(&a.flags.MountPath, "mount-path", config.DefaultMountPath, "BOOTSEL mount path (mount probe)")
	pf.IntVar(&a.flags.PollIntervalMS, "poll-interval-ms", config.DefaultPollIntervalMS, "Presence poll interval in milliseconds")
	pf.IntVar(&a.flags.CooldownMS, "cooldown-ms", config.DefaultCooldownMS, "Settle time after a write or erase in milliseconds")
	pf.StringVar(&a.flags.LogLevel, "log-level", config.DefaultLogLevel, "Log level: debug|info|warn|error")
	pf.StringVar(&a.flags.LogFile, "log-file", "", "Log file (defaults to <firmware-dir>/gpflash.log in TUI mode)")

	f := root.Flags()
	f.StringVarP(&a.flags.Firmware, "firmware", "f", "", "Preselect an image by name and skip the picker")
	f.BoolVar(&a.headless, "headless", false, "Serve the HTTP API instead of the terminal UI")
	f.StringVar(&a.flags.StatusAddr, "status-addr", "", "HTTP listen address, e.g. 127.0.0.1:8321 (headless defaults to "+defaultHeadlessAddr+")")
	f.StringVar(&a.corsOrigins, "cors-origins", "", "Comma-separated origins allowed to call the HTTP API")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd, a.configPath, a.flags, nil)
		if err != nil {
			return err
		}
		a.cfg = cfg
		console := a.headless || cmd != root
		log, closeFn, err := newLogger(cfg, console, a.stderr)
		if err != nil {
			return err
		}
		a.log, a.closeFn = log, closeFn
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return a.close()
	}

	root.AddCommand(
		newReleasesCmd(a),
		newInfoCmd(a),
		newFlashCmd(a),
		newNukeCmd(a),
		newWatchCmd(a),
		newCompletionCmd(root, stdout),
	)
	return root
}

func (a *app) close() error {
	if a.closeFn == nil {
		return nil
	}
	err := a.closeFn()
	a.closeFn = nil
	return err
}

// resolveConfig layers defaults < config file < .env/environment < changed
// flags and validates the result.
func resolveConfig(cmd *cobra.Command, path string, flags config.Config, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Defaults()
	if path != "" {
		p, err := fsutil.ExpandHome(path)
		if err != nil {
			return cfg, err
		}
		file, err := config.Load(p)
		if err != nil {
			return cfg, err
		}
		cfg = config.Merge(cfg, file)
	}
	if lookup == nil {
		if err := config.LoadDotEnv(".env"); err != nil {
			return cfg, err
		}
	}
	env, err := config.FromEnv(lookup)
	if err != nil {
		return cfg, err
	}
	cfg = config.Merge(cfg, env)
	cfg = config.Merge(cfg, changedFlags(cmd, flags))
	if cfg.FirmwareDir, err = fsutil.ExpandHome(cfg.FirmwareDir); err != nil {
		return cfg, err
	}
	if cfg.LogFile != "" {
		if cfg.LogFile, err = fsutil.ExpandHome(cfg.LogFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// changedFlags keeps only the values of flags set on the command line.
func changedFlags(cmd *cobra.Command, v config.Config) config.Config {
	var out config.Config
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	str := func(name string, dst *string, val string) {
		if changed(name) {
			*dst = val
		}
	}
	str("firmware-dir", &out.FirmwareDir, v.FirmwareDir)
	str("picotool", &out.Picotool, v.Picotool)
	str("erase-image", &out.EraseImage, v.EraseImage)
	str("owner", &out.Owner, v.Owner)
	str("repo", &out.Repo, v.Repo)
	str("firmware", &out.Firmware, v.Firmware)
	str("probe", &out.Probe, v.Probe)
	str("volume-label", &out.VolumeLabel, v.VolumeLabel)
	str("mount-path", &out.MountPath, v.MountPath)
	str("status-addr", &out.StatusAddr, v.StatusAddr)
	str("log-level", &out.LogLevel, v.LogLevel)
	str("log-file", &out.LogFile, v.LogFile)
	if changed("poll-interval-ms") {
		out.PollIntervalMS = v.PollIntervalMS
	}
	if changed("cooldown-ms") {
		out.CooldownMS = v.CooldownMS
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
