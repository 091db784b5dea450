package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gpflash/internal/flasher"
	"gpflash/internal/probe"
	"gpflash/internal/release"
)

func newReleasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "releases",
		Aliases: []string{"ls"},
		Short:   "List the images of the latest stable release",
		Example: "  gpflash releases\n  GITHUB_TOKEN=... gpflash releases",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.imageDir()
			if err != nil {
				return err
			}
			svc := a.newReleases(dir)
			fw, err := svc.List(cmd.Context())
			if err != nil && !release.IsOffline(err) {
				return err
			}
			if err != nil {
				fmt.Fprintf(a.stderr, "warning: %v; showing cached images\n", err)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tBOARD\tCACHED")
			for _, f := range fw {
				cached := "no"
				if _, statErr := os.Stat(filepath.Join(dir, f.FileName())); statErr == nil {
					cached = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.Version, f.Board, cached)
			}
			return tw.Flush()
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show what picotool reports about the connected board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.imageDir()
			if err != nil {
				return err
			}
			fl := a.newExecutor(dir)
			if err := fl.Available(cmd.Context()); err != nil {
				return err
			}
			info, err := fl.Info(cmd.Context())
			if err != nil {
				return fmt.Errorf("picotool info: %w", err)
			}
			printInfo(a.stdout, info)
			return nil
		},
	}
}

func printInfo(w io.Writer, info map[string]string) {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%s\n", k, info[k])
	}
	_ = tw.Flush()
}

func newFlashCmd(a *app) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "flash <image>",
		Short: "Write one image to the connected board",
		Long: "flash writes a single image and exits. The image may be a local path,\n" +
			"the name of a cached image or a download URL.",
		Example: "  gpflash flash GP2040-CE_0.7.2_Stress.uf2\n  gpflash flash --wait ./build/custom.uf2",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, err := a.imageDir()
			if err != nil {
				return err
			}
			fl := a.newExecutor(dir)
			if err := fl.Available(ctx); err != nil {
				return err
			}
			image, err := a.resolveImage(ctx, dir, args[0])
			if err != nil {
				return err
			}
			if wait {
				if err := a.waitForBoard(ctx); err != nil {
					return err
				}
			}
			return reportResult(a.stdout, "flash", fl.Write(ctx, image))
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for a board to appear before writing")
	return cmd
}

func newNukeCmd(a *app) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "nuke",
		Short: "Erase the connected board with the erase image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, err := a.imageDir()
			if err != nil {
				return err
			}
			fl := a.newExecutor(dir)
			if err := fl.Available(ctx); err != nil {
				return err
			}
			if _, err := a.newReleases(dir).EnsureEraseImage(ctx); err != nil {
				return fmt.Errorf("erase image: %w", err)
			}
			if wait {
				if err := a.waitForBoard(ctx); err != nil {
					return err
				}
			}
			return reportResult(a.stdout, "nuke", fl.Erase(ctx))
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for a board to appear before erasing")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print a line each time a board appears in BOOTSEL mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.newWatcher()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			errc := make(chan error, 1)
			go func() { errc <- w.Run(ctx) }()
			fmt.Fprintf(a.stderr, "watching with %s, Ctrl+C to stop\n", w.Name())
			for {
				select {
				case p := <-w.Edges():
					fmt.Fprintln(a.stdout, describePresence(p))
				case err := <-errc:
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
			}
		},
	}
}

func newCompletionCmd(root *cobra.Command, out io.Writer) *cobra.Command {
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(out) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(out) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(out, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(out) }})
	return completionCmd
}

// resolveImage turns a command-line image argument into a local path:
// existing files are used as is, anything else goes through the cache.
func (a *app) resolveImage(ctx context.Context, dir, arg string) (string, error) {
	if !strings.Contains(arg, "://") {
		if st, err := os.Stat(arg); err == nil && !st.IsDir() {
			return filepath.Abs(arg)
		}
	}
	return a.newReleases(dir).Download(ctx, arg)
}

// waitForBoard blocks until the watcher reports a presence edge.
func (a *app) waitForBoard(ctx context.Context) error {
	w, err := a.newWatcher()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	fmt.Fprintln(a.stderr, "waiting for a board in BOOTSEL mode...")
	select {
	case p := <-w.Edges():
		fmt.Fprintln(a.stderr, describePresence(p))
		return nil
	case err := <-errc:
		return err
	}
}

func describePresence(p probe.Presence) string {
	var b strings.Builder
	b.WriteString(p.At.Format("15:04:05"))
	b.WriteString(" board present")
	var parts []string
	if name := strings.TrimSpace(p.Device.Vendor + " " + p.Device.Model); name != "" {
		parts = append(parts, name)
	}
	if p.Device.Node != "" {
		parts = append(parts, p.Device.Node)
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, " at "))
	}
	return b.String()
}

func reportResult(w io.Writer, op string, r flasher.Result) error {
	if !r.OK {
		if r.Detail != "" {
			return fmt.Errorf("%s %s: %s: %s", op, filepath.Base(r.Image), r.Reason, r.Detail)
		}
		return fmt.Errorf("%s %s: %s", op, filepath.Base(r.Image), r.Reason)
	}
	fmt.Fprintf(w, "%s %s: ok\n", op, filepath.Base(r.Image))
	return nil
}
