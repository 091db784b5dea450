package flasher

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"gpflash/internal/common/fsutil"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultBin         = "picotool"
	defaultEraseImage  = "flash_nuke.uf2"
	defaultInfoTimeout = 10 * time.Second
	defaultLoadTimeout = 2 * time.Minute
)

// Config encapsulates all tunables for Executor construction.
type Config struct {
	Bin         string // picotool binary name or path
	ImageDir    string // directory relative image names resolve against
	EraseImage  string // erase image file name inside ImageDir
	InfoTimeout time.Duration
	LoadTimeout time.Duration
	Runner      Runner
	Logger      zerolog.Logger
}

// Result is the outcome of a write or erase.
type Result struct {
	OK     bool
	Reason string // one of the Reason* constants when !OK
	Image  string // resolved image path
	Detail string // stderr tail or underlying error text
}

// Executor runs picotool on behalf of the orchestrator.
type Executor struct {
	bin         string
	imageDir    string
	eraseImage  string
	infoTimeout time.Duration
	loadTimeout time.Duration
	runner      Runner
	log         zerolog.Logger
}

// New constructs an Executor, applying defaults for unset fields.
func New(cfg Config) *Executor {
	e := &Executor{
		bin:         cfg.Bin,
		imageDir:    cfg.ImageDir,
		eraseImage:  cfg.EraseImage,
		infoTimeout: cfg.InfoTimeout,
		loadTimeout: cfg.LoadTimeout,
		runner:      cfg.Runner,
		log:         cfg.Logger.With().Str("component", "flasher").Logger(),
	}
	if e.bin == "" {
		e.bin = defaultBin
	}
	if e.eraseImage == "" {
		e.eraseImage = defaultEraseImage
	}
	if e.infoTimeout <= 0 {
		e.infoTimeout = defaultInfoTimeout
	}
	if e.loadTimeout <= 0 {
		e.loadTimeout = defaultLoadTimeout
	}
	if e.runner == nil {
		e.runner = ExecRunner{}
	}
	return e
}

// Available checks that picotool can be invoked. The returned error carries
// a platform-specific installation hint (see InstallHint).
func (e *Executor) Available(ctx context.Context) error {
	if _, err := e.runner.LookPath(e.bin); err != nil {
		return utilityMissingError{bin: e.bin, hint: hostHint(), err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, e.infoTimeout)
	defer cancel()
	_, _, err := e.runner.Run(ctx, e.bin, "version")
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// it never started; a non-zero exit still proves it can be invoked
		return utilityMissingError{bin: e.bin, hint: hostHint(), err: err}
	}
	return nil
}

// Info runs `picotool info` and returns the parsed key/value pairs.
func (e *Executor) Info(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.infoTimeout)
	defer cancel()
	out, stderr, err := e.runner.Run(ctx, e.bin, "info")
	if err != nil {
		e.log.Debug().Err(err).Str("stderr", tail(stderr, 512)).Msg("info failed")
		return nil, err
	}
	return ParseInfo(out), nil
}

// CurrentProgram reports the program name the board exposes. Any failure
// (non-zero exit, empty or malformed output) yields NoProgram: treating an
// unknown board as blank never triggers an unwanted erase.
func (e *Executor) CurrentProgram(ctx context.Context) Program {
	info, err := e.Info(ctx)
	if err != nil {
		return NoProgram
	}
	p := programFromInfo(info)
	e.log.Debug().Str("program", p.String()).Int("keys", len(info)).Msg("program state")
	return p
}

// Write loads image onto the board and reboots it. Relative image names
// resolve against the image directory. A missing file fails without
// running picotool.
func (e *Executor) Write(ctx context.Context, image string) Result {
	path := e.resolve(image)
	res := Result{Image: path}
	if !fsutil.IsFile(path) {
		res.Reason = ReasonImageNotFound
		e.log.Error().Str("image", path).Msg("image not found")
		return res
	}
	// loading is not safely interruptible; only the load timeout bounds it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.loadTimeout)
	defer cancel()
	start := time.Now()
	_, stderr, err := e.runner.Run(ctx, e.bin, "load", "-v", "-x", path)
	if err != nil {
		res.Reason = ReasonUtilityFailure
		res.Detail = tail(stderr, 1024)
		if res.Detail == "" {
			res.Detail = err.Error()
		}
		e.log.Error().Err(err).Str("image", path).Str("stderr", res.Detail).Dur("dur", time.Since(start)).Msg("load failed")
		return res
	}
	res.OK = true
	e.log.Info().Str("image", path).Dur("dur", time.Since(start)).Msg("load ok")
	return res
}

// Erase writes the erase image, wiping the board's program.
func (e *Executor) Erase(ctx context.Context) Result {
	return e.Write(ctx, e.eraseImage)
}

// EraseImagePath is the resolved location of the erase image.
func (e *Executor) EraseImagePath() string { return e.resolve(e.eraseImage) }

func (e *Executor) resolve(image string) string {
	if filepath.IsAbs(image) || e.imageDir == "" {
		return image
	}
	return filepath.Join(e.imageDir, image)
}
