// Package httpapi exposes a flashing session over HTTP for headless
// stations: status polling, the firmware list, and the Select/Quit intents.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gpflash/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Firmware() []types.Firmware
	Status() types.StatusResponse
	Select(index int) error
	Quit()
	Ready() bool
}

// NewMux builds the router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/firmware", listFirmware(svc))
	r.Get("/status", getStatus(svc))
	r.Post("/select", postSelect(svc))
	r.Post("/quit", postQuit(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(svc.Status().State))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func corsOptions() cors.Options {
	methods := corsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := corsAllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type"}
	}
	return cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		MaxAge:         300,
	}
}

// listFirmware godoc
// @Summary      List firmware images
// @Description  Images of the latest release, in selection-index order.
// @Tags         firmware
// @Produce      json
// @Success      200  {object}  types.FirmwareResponse
// @Router       /firmware [get]
func listFirmware(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fw := svc.Firmware()
		if fw == nil {
			fw = []types.Firmware{}
		}
		writeJSON(w, http.StatusOK, types.FirmwareResponse{Firmware: fw})
	}
}

// getStatus godoc
// @Summary      Session status
// @Tags         session
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func getStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

// postSelect godoc
// @Summary      Select a firmware image
// @Description  Starts the download of the image at index. Progress is reported via /status.
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      types.SelectRequest  true  "selection"
// @Success      202   {object}  types.AcceptedResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse
// @Failure      415   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /select [post]
func postSelect(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.SelectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := svc.Select(req.Index); err != nil {
			intentsTotal.WithLabelValues("select", "rejected").Inc()
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		intentsTotal.WithLabelValues("select", "accepted").Inc()
		writeJSON(w, http.StatusAccepted, types.AcceptedResponse{Intent: "selection", Accepted: true})
	}
}

// postQuit godoc
// @Summary      End the session
// @Description  A write or erase in progress completes first.
// @Tags         session
// @Produce      json
// @Success      202  {object}  types.AcceptedResponse
// @Router       /quit [post]
func postQuit(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Quit()
		intentsTotal.WithLabelValues("quit", "accepted").Inc()
		writeJSON(w, http.StatusAccepted, types.AcceptedResponse{Intent: "quit", Accepted: true})
	}
}
