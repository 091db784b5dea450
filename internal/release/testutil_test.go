package release

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// feedServer serves a releases document and the images it references.
type feedServer struct {
	*httptest.Server
	mu       sync.Mutex
	hits     map[string]int
	releases []ghRelease
	images   map[string]string
	status   int
	auth     string
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	f := &feedServer{hits: map[string]int{}, images: map[string]string{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *feedServer) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.auth = r.Header.Get("Authorization")
	status := f.status
	releases := f.releases
	body, isImage := f.images[r.URL.Path]
	f.mu.Unlock()
	if status != 0 {
		http.Error(w, "unavailable", status)
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, "/releases"):
		_ = json.NewEncoder(w).Encode(releases)
	case isImage:
		_, _ = w.Write([]byte(body))
	default:
		http.NotFound(w, r)
	}
}

func (f *feedServer) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *feedServer) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

// asset registers an image body and returns its asset record.
func (f *feedServer) asset(tag, name, body string) ghAsset {
	p := "/download/" + tag + "/" + name
	f.mu.Lock()
	f.images[p] = body
	f.mu.Unlock()
	return ghAsset{Name: name, Size: int64(len(body)), BrowserDownloadURL: f.URL + p}
}
