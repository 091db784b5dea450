package flasher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeRunner records invocations and replays scripted results.
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	lookErr error
	stdout  map[string][]byte // keyed by first arg
	stderr  map[string][]byte
	errs    map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	key := ""
	if len(args) > 0 {
		key = args[0]
	}
	return f.stdout[key], f.stderr[key], f.errs[key]
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookErr != nil {
		return "", f.lookErr
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeRunner) countCalls(sub string) int {
	n := 0
	for _, c := range f.Calls() {
		if len(c) > 1 && c[1] == sub {
			n++
		}
	}
	return n
}

// writeImage creates an image file in dir and returns its path.
func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("UF2\n"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return p
}

var errExit = errors.New("exit status 1")

func joinCall(c []string) string { return strings.Join(c, " ") }
