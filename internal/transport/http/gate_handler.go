package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "github.com/enrferaba/Grabadora-Intento4/internal/errors"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/middleware"
)

// SummaryGateResponse tells the summarizer which mode it may run.
type SummaryGateResponse struct {
	Requested  string `json:"requested"`
	Mode       string `json:"mode"`
	Downgraded bool   `json:"downgraded"`
	Reason     string `json:"reason,omitempty"`
}

// ExportGateResponse confirms an export format is licensed.
type ExportGateResponse struct {
	Format  string `json:"format"`
	Plan    string `json:"plan"`
	InGrace bool   `json:"in_grace"`
}

// GateHandler serves /api/license/gate, the checks the summary and export
// collaborators make before starting work.
type GateHandler struct {
	provider   license.Provider
	gate       *license.Gate
	validation *middleware.ValidationMiddleware
	errors     *apierrors.ErrorHandler
	logger     *slog.Logger
}

// NewGateHandler creates the handler.
func NewGateHandler(
	provider license.Provider,
	gate *license.Gate,
	validation *middleware.ValidationMiddleware,
	errorHandler *apierrors.ErrorHandler,
	logger *slog.Logger,
) *GateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = license.NewGate()
	}
	return &GateHandler{
		provider:   provider,
		gate:       gate,
		validation: validation,
		errors:     errorHandler,
		logger:     logger.With(slog.String("handler", "gate")),
	}
}

// Routes returns the router mounted at /api/license/gate. Every export
// format gets its own route behind RequireFeature.
func (h *GateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/summary", h.Summary)
	for _, feature := range license.AllFeatures {
		format, ok := strings.CutPrefix(feature, "export:")
		if !ok {
			continue
		}
		r.With(middleware.RequireFeature(h.provider, h.gate, feature, h.logger)).
			Get("/export/"+format, h.export(format))
	}
	return r
}

// Summary handles GET /api/license/gate/summary?mode=redacted. A mode the
// license does not cover degrades to extractive instead of failing.
func (h *GateHandler) Summary(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("mode")
	if err := h.validation.ValidateVar("mode", requested, "required,oneof=extractive redacted"); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	d := h.provider(r.Context())
	mode, err := h.gate.SummaryMode(d, requested)
	resp := SummaryGateResponse{Requested: requested, Mode: mode, Downgraded: mode != requested}
	if err != nil {
		resp.Reason = err.Error()
		h.logger.InfoContext(r.Context(), "summary mode downgraded",
			slog.String("requested", requested),
			slog.String("mode", mode),
			slog.String("plan", d.Plan))
	}
	render.JSON(w, r, resp)
}

func (h *GateHandler) export(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := middleware.DecisionFromContext(r.Context())
		if !ok {
			d = h.provider(r.Context())
		}
		if err := h.gate.ExportFormat(d, format); err != nil {
			h.errors.HandleError(w, r, err)
			return
		}
		render.JSON(w, r, ExportGateResponse{Format: format, Plan: d.Plan, InGrace: d.InGrace})
	}
}
