package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"gpflash/pkg/types"
)

// DefaultAPIBase is the GitHub REST endpoint.
const DefaultAPIBase = "https://api.github.com"

// ErrNoRelease is returned when the feed holds no stable release.
var ErrNoRelease = errors.New("no stable release found")

// Listing is the image set of one release.
type Listing struct {
	Tag         string
	PublishedAt time.Time
	Firmware    []types.Firmware
	// EraseSource is the download URL of the erase image, if the release
	// publishes one.
	EraseSource string
}

type ghRelease struct {
	TagName     string    `json:"tag_name"`
	Prerelease  bool      `json:"prerelease"`
	Draft       bool      `json:"draft"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []ghAsset `json:"assets"`
}

type ghAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Client reads the releases of one GitHub repository.
type Client struct {
	base       string
	owner      string
	repo       string
	token      string
	eraseImage string
	http       *retryablehttp.Client
	log        zerolog.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIBase    string
	Owner      string
	Repo       string
	Token      string // optional; raises the API rate limit
	EraseImage string // asset excluded from listings, e.g. flash_nuke.uf2
	RetryMax   int
	HTTP       *http.Client
	Logger     zerolog.Logger
}

// newHTTP builds a retrying client that logs through zerolog.
func newHTTP(hc *http.Client, retryMax int, log zerolog.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if hc != nil {
		rc.HTTPClient = hc
	}
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = leveledLogger{log}
	return rc
}

// NewClient returns a Client with defaults for unset fields.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		base:       strings.TrimRight(cfg.APIBase, "/"),
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		token:      cfg.Token,
		eraseImage: cfg.EraseImage,
		log:        cfg.Logger.With().Str("component", "release").Logger(),
	}
	if c.base == "" {
		c.base = DefaultAPIBase
	}
	if c.owner == "" {
		c.owner = "OpenStickCommunity"
	}
	if c.repo == "" {
		c.repo = "GP2040-CE"
	}
	if c.eraseImage == "" {
		c.eraseImage = "flash_nuke.uf2"
	}
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = 3
	}
	c.http = newHTTP(cfg.HTTP, retryMax, c.log)
	return c
}

// Latest returns the images of the newest non-prerelease release. Assets
// that are not .uf2 images are skipped; the erase image is reported
// separately in EraseSource.
func (c *Client) Latest(ctx context.Context) (Listing, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases", c.base, c.owner, c.repo)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Listing{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Listing{}, fmt.Errorf("fetch releases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Listing{}, fmt.Errorf("fetch releases: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var releases []ghRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return Listing{}, fmt.Errorf("decode releases: %w", err)
	}
	for _, r := range releases {
		if r.Prerelease || r.Draft {
			continue
		}
		l := c.listing(r)
		c.log.Info().Str("tag", l.Tag).Int("images", len(l.Firmware)).Msg("release listed")
		return l, nil
	}
	return Listing{}, ErrNoRelease
}

func (c *Client) listing(r ghRelease) Listing {
	l := Listing{Tag: r.TagName, PublishedAt: r.PublishedAt}
	for _, a := range r.Assets {
		if !isImage(a.Name) {
			continue
		}
		if strings.EqualFold(a.Name, c.eraseImage) {
			l.EraseSource = a.BrowserDownloadURL
			continue
		}
		ver, board, ok := ParseAssetName(a.Name)
		if !ok {
			ver = strings.TrimPrefix(r.TagName, "v")
		}
		l.Firmware = append(l.Firmware, types.Firmware{
			Name:        displayName(a.Name),
			Version:     ver,
			Board:       board,
			Source:      a.BrowserDownloadURL,
			Release:     r.TagName,
			PublishedAt: r.PublishedAt,
			Size:        a.Size,
		})
	}
	sortFirmware(l.Firmware)
	return l
}

func sortFirmware(fw []types.Firmware) {
	sort.SliceStable(fw, func(i, j int) bool {
		bi, bj := strings.ToLower(fw[i].Board), strings.ToLower(fw[j].Board)
		if bi != bj {
			return bi < bj
		}
		return fw[i].Name < fw[j].Name
	})
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct{ log zerolog.Logger }

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.emit(l.log.Error(), msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.emit(l.log.Debug(), msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.emit(l.log.Debug(), msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.emit(l.log.Warn(), msg, kv) }

func (l leveledLogger) emit(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			e = e.Interface(k, kv[i+1])
		}
	}
	e.Msg(msg)
}
