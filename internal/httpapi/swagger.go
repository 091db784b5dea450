//go:build swagger

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/swaggo/swag"
	httpSwagger "github.com/swaggo/http-swagger"
)

// MountSwagger serves the OpenAPI document registered with swag (see
// `swag init -g cmd/gpflash/docs.go`) and the Swagger UI. Without generated
// docs the document endpoint answers 404.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		doc, err := swag.ReadDoc()
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "swagger docs not generated")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
