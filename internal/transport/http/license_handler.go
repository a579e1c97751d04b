package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apierrors "github.com/enrferaba/Grabadora-Intento4/internal/errors"
	"github.com/enrferaba/Grabadora-Intento4/internal/infrastructure"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/middleware"
	"github.com/enrferaba/Grabadora-Intento4/internal/security"
)

// LicenseService is the part of license.Manager the handlers use.
type LicenseService interface {
	Status(ctx context.Context) license.Decision
	Revalidate(ctx context.Context) license.Decision
	Import(ctx context.Context, raw []byte) (license.Decision, error)
	Remove(ctx context.Context) error
	CacheStats() license.CacheStats
}

// Fingerprinter reports the device fingerprint.
type Fingerprinter interface {
	GenerateFingerprint(ctx context.Context) *security.DeviceFingerprint
	GetFingerprintComponents(ctx context.Context) map[string]string
	ClearCache()
}

// ImportRequest is the body of POST /api/license/import. License holds the
// license file object exactly as it would be stored on disk.
type ImportRequest struct {
	License json.RawMessage `json:"license" validate:"required"`
}

// StatusResponse is the decision plus derived presentation fields.
type StatusResponse struct {
	license.Decision
	RenewalUrgency string              `json:"renewal_urgency"`
	Available      []string            `json:"available_features"`
	Cache          *license.CacheStats `json:"cache,omitempty"`
}

// FeatureResponse answers a single feature check.
type FeatureResponse struct {
	Feature string `json:"feature"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// FingerprintResponse carries the digest only.
type FingerprintResponse struct {
	Fingerprint string    `json:"fingerprint"`
	Degraded    []string  `json:"degraded"`
	OS          string    `json:"os"`
	Platform    string    `json:"platform"`
	GeneratedAt time.Time `json:"generated_at"`
}

// LicenseHandler serves the /api/license routes.
type LicenseHandler struct {
	service      LicenseService
	fingerprints Fingerprinter
	gate         *license.Gate
	validation   *middleware.ValidationMiddleware
	errors       *apierrors.ErrorHandler
	logger       *slog.Logger
	diagnostics  bool
}

// NewLicenseHandler creates the handler.
func NewLicenseHandler(
	service LicenseService,
	fingerprints Fingerprinter,
	gate *license.Gate,
	validation *middleware.ValidationMiddleware,
	errorHandler *apierrors.ErrorHandler,
	logger *slog.Logger,
) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = license.NewGate()
	}
	return &LicenseHandler{
		service:      service,
		fingerprints: fingerprints,
		gate:         gate,
		validation:   validation,
		errors:       errorHandler,
		logger:       logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the router mounted at /api/license.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.GetStatus)
	r.Post("/revalidate", h.Revalidate)
	r.With(h.validation.ValidateRequest).Post("/import", h.Import)
	r.Delete("/", h.Remove)
	r.Get("/features", h.ListFeatures)
	r.Get("/features/{feature}", h.CheckFeature)
	r.Get("/fingerprint", h.GetFingerprint)
	if h.diagnostics {
		r.Get("/fingerprint/components", h.GetFingerprintComponents)
	}
	return r
}

// EnableDiagnostics exposes the raw fingerprint components. Only local
// development builds turn it on.
func (h *LicenseHandler) EnableDiagnostics() {
	h.diagnostics = true
}

// GetStatus handles GET /api/license/status. A missing or broken license is
// still a 200: the decision explains why it is inactive.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	d := h.service.Status(r.Context())
	stats := h.service.CacheStats()
	render.JSON(w, r, h.statusResponse(d, &stats))
}

// Revalidate handles POST /api/license/revalidate.
func (h *LicenseHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.fingerprints.ClearCache()
	d := h.service.Revalidate(ctx)
	h.logger.InfoContext(ctx, "license revalidated",
		slog.Bool("active", d.Active),
		slog.String("reason", d.Reason),
		slog.String("trace_id", infrastructure.GetTraceID(ctx)),
	)
	render.JSON(w, r, h.statusResponse(d, nil))
}

// Import handles POST /api/license/import. The installed license is only
// replaced when the candidate verifies and is active on this device.
func (h *LicenseHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(license.TracerName).Start(r.Context(), "license_handler.import")
	defer span.End()

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validation.ValidateStruct(req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	d, err := h.service.Import(ctx, req.License)
	span.SetAttributes(attribute.Bool("license.installed", err == nil))
	if err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}
	infrastructure.AddSpanEvent(ctx, "license.installed", map[string]interface{}{
		"source": d.Source,
		"plan":   d.Plan,
	})

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, h.statusResponse(d, nil))
}

// Remove handles DELETE /api/license.
func (h *LicenseHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Remove(r.Context()); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFeatures handles GET /api/license/features.
func (h *LicenseHandler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	d := h.service.Status(r.Context())
	out := make([]FeatureResponse, 0, len(license.AllFeatures))
	for _, f := range license.AllFeatures {
		out = append(out, h.featureResponse(d, f))
	}
	render.JSON(w, r, out)
}

// CheckFeature handles GET /api/license/features/{feature}.
func (h *LicenseHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	if err := h.validation.ValidateVar("feature", feature, "required,feature"); err != nil {
		h.errors.HandleError(w, r, apierrors.NotFoundError(fmt.Sprintf("feature %q", feature)))
		return
	}
	render.JSON(w, r, h.featureResponse(h.service.Status(r.Context()), feature))
}

// GetFingerprint handles GET /api/license/fingerprint. Users send the hash to
// the vendor to receive a device-bound license.
func (h *LicenseHandler) GetFingerprint(w http.ResponseWriter, r *http.Request) {
	fp := h.fingerprints.GenerateFingerprint(r.Context())
	degraded := fp.Degraded
	if degraded == nil {
		degraded = []string{}
	}
	render.JSON(w, r, FingerprintResponse{
		Fingerprint: fp.Fingerprint,
		Degraded:    degraded,
		OS:          fp.OS,
		Platform:    fp.Platform,
		GeneratedAt: fp.GeneratedAt,
	})
}

// GetFingerprintComponents handles GET /api/license/fingerprint/components,
// showing which inputs produced the hash when support debugs a mismatch.
func (h *LicenseHandler) GetFingerprintComponents(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.fingerprints.GetFingerprintComponents(r.Context()))
}

func (h *LicenseHandler) statusResponse(d license.Decision, stats *license.CacheStats) StatusResponse {
	return StatusResponse{
		Decision:       d,
		RenewalUrgency: d.RenewalUrgency(),
		Available:      h.gate.Available(d),
		Cache:          stats,
	}
}

func (h *LicenseHandler) featureResponse(d license.Decision, feature string) FeatureResponse {
	resp := FeatureResponse{Feature: feature, Allowed: true}
	if err := h.gate.Require(d, feature); err != nil {
		resp.Allowed = false
		var fe *license.FeatureError
		if errors.As(err, &fe) {
			resp.Reason = fe.Reason
		}
	}
	return resp
}
