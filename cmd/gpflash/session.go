package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"gpflash/internal/common/fsutil"
	"gpflash/internal/flasher"
	"gpflash/internal/httpapi"
	"gpflash/internal/orchestrator"
	"gpflash/internal/probe"
	"gpflash/internal/release"
	"gpflash/internal/tui"
)

const (
	defaultHeadlessAddr = "127.0.0.1:8321"
	lastSelectionFile   = "last_selection.json"
	shutdownTimeout     = 5 * time.Second
)

func (a *app) imageDir() (string, error) {
	return fsutil.EnsureDir(a.cfg.FirmwareDir)
}

func (a *app) newExecutor(dir string) *flasher.Executor {
	return flasher.New(flasher.Config{
		Bin:        a.cfg.Picotool,
		ImageDir:   dir,
		EraseImage: a.cfg.EraseImage,
		Logger:     a.log,
	})
}

func (a *app) newReleases(dir string) *release.Service {
	return release.NewService(release.Config{
		Dir:        dir,
		Owner:      a.cfg.Owner,
		Repo:       a.cfg.Repo,
		Token:      a.cfg.GitHubToken,
		EraseImage: a.cfg.EraseImage,
		Logger:     a.log,
	})
}

func (a *app) newWatcher() (*probe.Watcher, error) {
	return probe.New(probe.Config{
		Mode:         a.cfg.Probe,
		VolumeLabel:  a.cfg.VolumeLabel,
		MountPath:    a.cfg.MountPath,
		USBVendor:    a.cfg.USBVendor,
		USBModel:     a.cfg.USBModel,
		PollInterval: a.cfg.PollInterval(),
		Logger:       a.log,
	})
}

// runSession runs one interactive flashing session: the orchestrator, the
// presence watcher and the terminal UI or the HTTP adapter.
func (a *app) runSession(ctx context.Context) error {
	dir, err := a.imageDir()
	if err != nil {
		return err
	}
	fl := a.newExecutor(dir)
	if err := fl.Available(ctx); err != nil {
		return err
	}
	w, err := a.newWatcher()
	if err != nil {
		return err
	}
	orch := orchestrator.New(orchestrator.Config{
		Flasher:   fl,
		Releases:  a.newReleases(dir),
		Edges:     w,
		Cooldown:  a.cfg.Cooldown(),
		Preselect: a.cfg.Firmware,
		StatePath: filepath.Join(dir, lastSelectionFile),
		Logger:    a.log,
	})
	a.log.Info().Str("probe", w.Name()).Str("dir", dir).Bool("headless", a.headless).Msg("session starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return orch.Run(gctx)
	})
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	addr := a.cfg.StatusAddr
	if a.headless && addr == "" {
		addr = defaultHeadlessAddr
	}
	if addr != "" {
		a.serveHTTP(gctx, g, addr, orch)
	}
	if !a.headless {
		g.Go(func() error {
			defer orch.Quit()
			return tui.Run(gctx, orch)
		})
	}
	return g.Wait()
}

// serveHTTP runs the HTTP adapter on addr until ctx is done.
func (a *app) serveHTTP(ctx context.Context, g *errgroup.Group, addr string, orch *orchestrator.Orchestrator) {
	httpapi.SetLogger(a.log)
	if origins := splitCSV(a.corsOrigins); len(origins) > 0 {
		httpapi.SetCORSOptions(true, origins, nil, nil)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewMux(orch),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		a.log.Info().Str("addr", addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			a.log.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})
}
