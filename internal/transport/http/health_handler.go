package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/enrferaba/Grabadora-Intento4/internal/license"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Uptime    string        `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
	License   LicenseHealth `json:"license"`
}

// LicenseHealth summarizes the decision without subject or token details.
type LicenseHealth struct {
	Active   bool   `json:"active"`
	InGrace  bool   `json:"in_grace"`
	Plan     string `json:"plan"`
	Source   string `json:"source"`
	DaysLeft int    `json:"days_left"`
}

// HealthHandler serves liveness. The service is healthy with or without a
// license; the license block is informational.
type HealthHandler struct {
	provider license.Provider
	version  string
	started  time.Time
	now      func() time.Time
	logger   *slog.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(provider license.Provider, version string, now func() time.Time, logger *slog.Logger) *HealthHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		provider: provider,
		version:  version,
		started:  now(),
		now:      now,
		logger:   logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.check(r.Context()))
}

func (h *HealthHandler) check(ctx context.Context) HealthResponse {
	now := h.now()
	d := h.provider(ctx)
	return HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Uptime:    now.Sub(h.started).Round(time.Second).String(),
		Timestamp: now.UTC(),
		License: LicenseHealth{
			Active:   d.Active,
			InGrace:  d.InGrace,
			Plan:     d.Plan,
			Source:   d.Source,
			DaysLeft: d.DaysLeft,
		},
	}
}
