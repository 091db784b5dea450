package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gpflash/internal/flasher"
	"gpflash/internal/httpapi"
	"gpflash/internal/orchestrator"
	"gpflash/internal/probe"
	"gpflash/internal/release"
	"gpflash/pkg/types"
)

const eraseImage = "flash_nuke.uf2"

// board simulates an RP2040 behind picotool: it answers `info`, accepts
// `load`, and reports BOOTSEL presence to the watcher.
type board struct {
	mu       sync.Mutex
	present  bool
	program  string
	loads    []string
	failLoad bool
}

// plug attaches a board in BOOTSEL mode carrying program ("" for blank).
func (b *board) plug(program string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.present = true
	b.program = program
}

func (b *board) Loads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.loads...)
}

func (b *board) Name() string { return "sim" }

func (b *board) Present(ctx context.Context) (probe.Presence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.present {
		return probe.Presence{}, nil
	}
	return probe.Presence{Present: true, Device: types.Device{Vendor: "RPI", Model: "RP2", Source: "sim"}}, nil
}

func (b *board) LookPath(name string) (string, error) { return "/usr/local/bin/" + name, nil }

func (b *board) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch args[0] {
	case "version":
		return []byte("picotool v2.0.0 (Linux, GNU-12.2.0, Release)\n"), nil, nil
	case "info":
		if !b.present {
			return nil, []byte("No accessible RP-series devices in BOOTSEL mode were found.\n"), errors.New("exit status 249")
		}
		var out strings.Builder
		out.WriteString("Program Information\n")
		if b.program != "" {
			fmt.Fprintf(&out, " name:          %s\n", b.program)
			out.WriteString(" version:       v0.7.2\n")
		}
		out.WriteString(" binary start:  0x10000000\n")
		return []byte(out.String()), nil, nil
	case "load":
		image := filepath.Base(args[len(args)-1])
		if !b.present {
			return nil, []byte("No accessible RP-series devices in BOOTSEL mode were found.\n"), errors.New("exit status 249")
		}
		if b.failLoad {
			return nil, []byte("ERROR: The device returned an error: write failed\n"), errors.New("exit status 250")
		}
		b.loads = append(b.loads, image)
		if image == eraseImage {
			// the erase image reboots straight back into BOOTSEL
			b.program = ""
			return []byte("Loading into Flash: [====] 100%\n"), nil, nil
		}
		b.program = "GP2040-CE"
		b.present = false
		return []byte("Loading into Flash: [====] 100%\nThe device was rebooted into application mode.\n"), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected picotool command %q", args[0])
}

// releaseFeed serves a GitHub releases document for GP2040-CE.
type releaseFeed struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newReleaseFeed(t *testing.T) *releaseFeed {
	t.Helper()
	f := &releaseFeed{hits: map[string]int{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *releaseFeed) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()
	switch {
	case r.URL.Path == "/repos/OpenStickCommunity/GP2040-CE/releases":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.document())
	case strings.HasPrefix(r.URL.Path, "/download/"):
		_, _ = io.WriteString(w, "UF2 "+filepath.Base(r.URL.Path))
	default:
		http.NotFound(w, r)
	}
}

func (f *releaseFeed) document() []map[string]any {
	asset := func(tag, name string) map[string]any {
		return map[string]any{
			"name":                 name,
			"size":                 len("UF2 " + name),
			"browser_download_url": f.URL + "/download/" + tag + "/" + name,
		}
	}
	return []map[string]any{
		{
			"tag_name":     "v0.7.3-beta",
			"prerelease":   true,
			"published_at": "2024-06-01T00:00:00Z",
			"assets":       []any{asset("v0.7.3-beta", "GP2040-CE_0.7.3_Stress.uf2")},
		},
		{
			"tag_name":     "v0.7.2",
			"published_at": "2024-05-01T00:00:00Z",
			"assets": []any{
				asset("v0.7.2", "GP2040-CE_0.7.2_Pico.uf2"),
				asset("v0.7.2", "GP2040-CE_0.7.2_Stress.uf2"),
				asset("v0.7.2", eraseImage),
			},
		},
	}
}

func (f *releaseFeed) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// station is a full flashing stack behind an HTTP server.
type station struct {
	t     *testing.T
	dir   string
	board *board
	feed  *releaseFeed
	orch  *orchestrator.Orchestrator
	srv   *httptest.Server
	runc  chan error
}

func newStation(t *testing.T) *station {
	t.Helper()
	s := &station{t: t, dir: t.TempDir(), board: &board{}, feed: newReleaseFeed(t)}
	log := zerolog.Nop()
	fl := flasher.New(flasher.Config{ImageDir: s.dir, EraseImage: eraseImage, Runner: s.board, Logger: log})
	rel := release.NewService(release.Config{Dir: s.dir, APIBase: s.feed.URL, EraseImage: eraseImage, Logger: log})
	w := probe.NewPollWatcher(s.board, probe.WatcherConfig{PollInterval: 5 * time.Millisecond, Logger: log})
	s.orch = orchestrator.New(orchestrator.Config{
		Flasher:   fl,
		Releases:  rel,
		Edges:     w,
		Cooldown:  30 * time.Millisecond,
		StatePath: filepath.Join(s.dir, "last_selection.json"),
		Logger:    log,
	})
	s.srv = httptest.NewServer(httpapi.NewMux(s.orch))
	t.Cleanup(s.srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	s.runc = make(chan error, 1)
	go func() { s.runc <- s.orch.Run(ctx) }()
	return s
}

func (s *station) status() types.StatusResponse {
	s.t.Helper()
	var st types.StatusResponse
	resp, body := httpGet(s.t, s.srv.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		s.t.Fatalf("GET /status: %d %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &st); err != nil {
		s.t.Fatalf("decode status: %v", err)
	}
	return st
}

// waitStatus polls /status until cond holds.
func (s *station) waitStatus(what string, cond func(types.StatusResponse) bool) types.StatusResponse {
	s.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var st types.StatusResponse
	for time.Now().Before(deadline) {
		st = s.status()
		if cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("timeout waiting for %s; last status %+v", what, st)
	return st
}

func (s *station) firmware() []types.Firmware {
	s.t.Helper()
	resp, body := httpGet(s.t, s.srv.URL+"/firmware")
	if resp.StatusCode != http.StatusOK {
		s.t.Fatalf("GET /firmware: %d %s", resp.StatusCode, body)
	}
	var out types.FirmwareResponse
	if err := json.Unmarshal(body, &out); err != nil {
		s.t.Fatalf("decode firmware: %v", err)
	}
	return out.Firmware
}

func (s *station) selectIndex(i int) int {
	s.t.Helper()
	resp, _ := httpPostJSON(s.t, s.srv.URL+"/select", []byte(fmt.Sprintf(`{"index":%d}`, i)))
	return resp.StatusCode
}

func (s *station) quit() {
	s.t.Helper()
	resp, body := httpPostJSON(s.t, s.srv.URL+"/quit", nil)
	if resp.StatusCode != http.StatusAccepted {
		s.t.Fatalf("POST /quit: %d %s", resp.StatusCode, body)
	}
}

func (s *station) runResult() error {
	s.t.Helper()
	select {
	case err := <-s.runc:
		return err
	case <-time.After(5 * time.Second):
		s.t.Fatal("session did not terminate")
		return nil
	}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
