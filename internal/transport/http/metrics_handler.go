package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/enrferaba/Grabadora-Intento4/internal/errors"
)

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler wraps the exporter handler. A nil handler falls back to
// the default Prometheus registry.
func NewMetricsHandler(h http.Handler) *MetricsHandler {
	if h == nil {
		h = promhttp.Handler()
	}
	return &MetricsHandler{handler: h}
}

// ServeHTTP handles GET /metrics.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		apierrors.WriteProblem(w, apierrors.NewProblemDetails(http.StatusMethodNotAllowed,
			apierrors.TypeMethodNotAllowed, "Method Not Allowed", "", r.URL.Path))
		return
	}
	h.handler.ServeHTTP(w, r)
}
