package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gpflash/internal/orchestrator"
	"gpflash/pkg/types"
)

type mockService struct {
	mu        sync.Mutex
	firmware  []types.Firmware
	status    types.StatusResponse
	ready     bool
	selectErr error
	selected  []int
	quits     int
}

func (m *mockService) Firmware() []types.Firmware   { return append([]types.Firmware(nil), m.firmware...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func (m *mockService) Select(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = append(m.selected, i)
	return m.selectErr
}

func (m *mockService) Quit() {
	m.mu.Lock()
	m.quits++
	m.mu.Unlock()
}

func do(t *testing.T, h http.Handler, method, path, ct, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestFirmwareHandler(t *testing.T) {
	svc := &mockService{firmware: []types.Firmware{{Name: "GP2040-CE_0.7.2_Pico"}, {Name: "GP2040-CE_0.7.2_Stress"}}}
	w := do(t, NewMux(svc), http.MethodGet, "/firmware", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.FirmwareResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Firmware) != 2 || body.Firmware[1].Name != "GP2040-CE_0.7.2_Stress" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestFirmwareHandlerEmptyList(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/firmware", "", "")
	if !strings.Contains(w.Body.String(), `"firmware":[]`) {
		t.Fatalf("empty list must encode as []: %s", w.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "awaiting_device", Flashed: 2}}
	w := do(t, NewMux(svc), http.MethodGet, "/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "awaiting_device" || body.Flashed != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestSelectHandler(t *testing.T) {
	svc := &mockService{}
	w := do(t, NewMux(svc), http.MethodPost, "/select", "application/json", `{"index":1}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(svc.selected) != 1 || svc.selected[0] != 1 {
		t.Fatalf("selected=%v", svc.selected)
	}
	var body types.AcceptedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || !body.Accepted {
		t.Fatalf("body=%s err=%v", w.Body.String(), err)
	}
}

func TestSelectHandlerValidation(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	if w := do(t, h, http.MethodPost, "/select", "text/plain", `{"index":1}`); w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("content-type: status=%d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/select", "application/json", `{"index":`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status=%d", w.Code)
	}
	big := `{"index":1,"pad":"` + strings.Repeat("x", int(maxBodyBytes)) + `"}`
	if w := do(t, h, http.MethodPost, "/select", "application/json", big); w.Code != http.StatusBadRequest {
		t.Fatalf("oversized: status=%d", w.Code)
	}
	if len(svc.selected) != 0 {
		t.Fatalf("invalid requests must not reach the service")
	}
}

func TestSelectErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"terminated", orchestrator.ErrTerminated, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc := &mockService{selectErr: c.err}
			w := do(t, NewMux(svc), http.MethodPost, "/select", "application/json", `{"index":0}`)
			if w.Code != c.want {
				t.Fatalf("status=%d want %d", w.Code, c.want)
			}
			var body types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != c.want || body.Error == "" {
				t.Fatalf("body=%s err=%v", w.Body.String(), err)
			}
		})
	}
}

func TestQuitHandler(t *testing.T) {
	svc := &mockService{}
	w := do(t, NewMux(svc), http.MethodPost, "/quit", "", "")
	if w.Code != http.StatusAccepted || svc.quits != 1 {
		t.Fatalf("status=%d quits=%d", w.Code, svc.quits)
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "flashing"}}
	h := NewMux(svc)
	if w := do(t, h, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz=%d", w.Code)
	}
	w := do(t, h, http.MethodGet, "/readyz", "", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "flashing") {
		t.Fatalf("readyz=%d body=%q", w.Code, w.Body.String())
	}
	svc.ready = true
	if w := do(t, h, http.MethodGet, "/readyz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("readyz ready=%d", w.Code)
	}
}

func TestSecurityHeader(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/status", "", "")
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestCORSPreflight(t *testing.T) {
	SetCORSOptions(true, []string{"http://dashboard.local"}, nil, nil)
	t.Cleanup(func() { SetCORSOptions(false, nil, nil, nil) })
	h := NewMux(&mockService{})

	req := httptest.NewRequest(http.MethodOptions, "/select", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Fatalf("allow-origin=%q status=%d", got, w.Code)
	}
}

func TestMetricsEndpointExposesRequests(t *testing.T) {
	h := NewMux(&mockService{})
	_ = do(t, h, http.MethodGet, "/status", "", "")
	w := do(t, h, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", w.Code)
	}
	body := w.Body.Bytes()
	if !bytes.Contains(body, []byte("gpflash_http_requests_total")) || !bytes.Contains(body, []byte(`path="/status"`)) {
		preview := body
		if len(preview) > 400 {
			preview = preview[:400]
		}
		t.Fatalf("expected request metrics labelled by route; got: %q", string(preview))
	}
}
