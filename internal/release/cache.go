package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"gpflash/internal/common/fsutil"
)

// downloadTimeout bounds one shared download.
const downloadTimeout = 10 * time.Minute

// Cache stores downloaded images in a directory, keyed by file name. A
// cached file is never downloaded again and never evicted.
type Cache struct {
	dir   string
	http  *retryablehttp.Client
	group singleflight.Group
	log   zerolog.Logger
}

// NewCache returns a cache rooted at dir. hc may be nil.
func NewCache(dir string, hc *http.Client, log zerolog.Logger) *Cache {
	log = log.With().Str("component", "cache").Logger()
	return &Cache{dir: dir, http: newHTTP(hc, 3, log), log: log}
}

// Dir is the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path is where an image named name is cached.
func (c *Cache) Path(name string) string { return filepath.Join(c.dir, name) }

// Fetch returns the local path of source, downloading it first if the file
// is not cached yet. source is a URL or a bare file name; a bare name that
// is not in the cache is an error. Concurrent fetches of the same name share
// one download, which keeps running when a waiting caller gives up.
func (c *Cache) Fetch(ctx context.Context, source string) (string, error) {
	name, err := cacheName(source)
	if err != nil {
		return "", err
	}
	local := c.Path(name)
	if fsutil.IsFile(local) {
		downloadsTotal.WithLabelValues("cached").Inc()
		return local, nil
	}
	if !isURL(source) {
		downloadsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%s: not cached and no download URL", name)
	}
	// the flight outlives any one caller; each caller waits on its own ctx
	ch := c.group.DoChan(name, func() (interface{}, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), downloadTimeout)
		defer cancel()
		return c.download(dctx, source, local)
	})
	select {
	case <-ctx.Done():
		downloadsTotal.WithLabelValues("error").Inc()
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			downloadsTotal.WithLabelValues("error").Inc()
			return "", r.Err
		}
		if !r.Shared {
			downloadsTotal.WithLabelValues("ok").Inc()
		}
		return r.Val.(string), nil
	}
}

func (c *Cache) download(ctx context.Context, source, local string) (string, error) {
	// another caller may have finished between the check and the flight
	if fsutil.IsFile(local) {
		return local, nil
	}
	if _, err := fsutil.EnsureDir(c.dir); err != nil {
		return "", err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", filepath.Base(local), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("download %s: %s", filepath.Base(local), resp.Status)
	}
	n, err := fsutil.WriteFileAtomic(local, resp.Body)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", filepath.Base(local), err)
	}
	c.log.Info().Str("file", local).Int64("bytes", n).Msg("downloaded")
	return local, nil
}

// cacheName is the last path segment of source.
func cacheName(source string) (string, error) {
	s := source
	if i := strings.IndexAny(s, "?#"); i >= 0 && isURL(s) {
		s = s[:i]
	}
	name := path.Base(strings.ReplaceAll(s, "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("invalid image source %q", source)
	}
	return name, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
