package release

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"gpflash/internal/common/fsutil"
	"gpflash/pkg/types"
)

// Config configures a Service.
type Config struct {
	Dir        string // cache directory
	APIBase    string
	Owner      string
	Repo       string
	Token      string
	EraseImage string
	HTTP       *http.Client
	Logger     zerolog.Logger
}

// Service is the release adapter the orchestrator talks to.
type Service struct {
	client     *Client
	cache      *Cache
	eraseImage string
	log        zerolog.Logger

	mu          sync.Mutex
	eraseSource string
}

// NewService wires a Client and a Cache rooted at cfg.Dir.
func NewService(cfg Config) *Service {
	c := NewClient(ClientConfig{
		APIBase:    cfg.APIBase,
		Owner:      cfg.Owner,
		Repo:       cfg.Repo,
		Token:      cfg.Token,
		EraseImage: cfg.EraseImage,
		HTTP:       cfg.HTTP,
		Logger:     cfg.Logger,
	})
	return &Service{
		client:     c,
		cache:      NewCache(cfg.Dir, cfg.HTTP, cfg.Logger),
		eraseImage: c.eraseImage,
		log:        cfg.Logger.With().Str("component", "release").Logger(),
	}
}

// Latest exposes the raw listing of the newest stable release.
func (s *Service) Latest(ctx context.Context) (Listing, error) {
	return s.client.Latest(ctx)
}

// List returns the images of the latest stable release. If the feed cannot
// be read, the cached images are returned instead together with the feed
// error; the error is nil only when the feed was read.
func (s *Service) List(ctx context.Context) ([]types.Firmware, error) {
	l, err := s.client.Latest(ctx)
	if err == nil {
		s.mu.Lock()
		s.eraseSource = l.EraseSource
		s.mu.Unlock()
		return l.Firmware, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	cached, cerr := LoadDir(s.cache.Dir(), s.eraseImage)
	if cerr != nil {
		return nil, errors.Join(err, cerr)
	}
	s.log.Warn().Err(err).Int("cached", len(cached)).Msg("release feed unavailable, using cache")
	return cached, &OfflineError{Err: err, Cached: len(cached)}
}

// Download makes source available locally and returns its path. The erase
// image is fetched alongside on a best-effort basis.
func (s *Service) Download(ctx context.Context, source string) (string, error) {
	p, err := s.cache.Fetch(ctx, source)
	if err != nil {
		return "", err
	}
	if _, err := s.EnsureEraseImage(ctx); err != nil {
		s.log.Warn().Err(err).Msg("erase image not cached")
	}
	return p, nil
}

// EnsureEraseImage returns the local path of the erase image, downloading
// it from the latest release when it is not cached yet.
func (s *Service) EnsureEraseImage(ctx context.Context) (string, error) {
	local := s.cache.Path(s.eraseImage)
	if fsutil.IsFile(local) {
		return local, nil
	}
	s.mu.Lock()
	src := s.eraseSource
	s.mu.Unlock()
	if src == "" {
		l, err := s.client.Latest(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.eraseSource = l.EraseSource
		s.mu.Unlock()
		src = l.EraseSource
	}
	if src == "" {
		return "", fmt.Errorf("release does not publish %s", s.eraseImage)
	}
	return s.cache.Fetch(ctx, src)
}

// OfflineError reports a failed feed read that was answered from the cache.
type OfflineError struct {
	Err    error
	Cached int
}

func (e *OfflineError) Error() string { return "release feed unavailable: " + e.Err.Error() }

func (e *OfflineError) Unwrap() error { return e.Err }

// IsOffline reports whether err is an OfflineError.
func IsOffline(err error) bool {
	var e *OfflineError
	return errors.As(err, &e)
}
