package middleware

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/enrferaba/Grabadora-Intento4/internal/errors"
	"github.com/enrferaba/Grabadora-Intento4/internal/infrastructure"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
)

type decisionKey struct{}

// DecisionFromContext returns the decision RequireFeature evaluated for this
// request.
func DecisionFromContext(ctx context.Context) (license.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(license.Decision)
	return d, ok
}

// RequireFeature lets the request through only when gate allows feature under
// the current decision; otherwise it answers 403 with a problem naming the
// reason. Free-tier features always pass. The application keeps running
// without a license, only the gated routes close.
func RequireFeature(provider license.Provider, gate *license.Gate, feature string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "license_gate"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			d := provider(ctx)

			if err := gate.Require(d, feature); err != nil {
				logger.InfoContext(ctx, "feature denied",
					slog.String("feature", feature),
					slog.String("plan", d.Plan),
					slog.Bool("active", d.Active),
					slog.String("reason", d.Reason),
					slog.String("path", r.URL.Path),
					slog.String("request_id", GetRequestID(ctx)),
				)
				problem, _ := apierrors.LicenseProblem(err, r.URL.Path)
				problem.WithExtension("trace_id", infrastructure.GetTraceID(ctx)).
					WithExtension("plan", d.Plan).
					WithExtension("active", d.Active)
				apierrors.WriteProblem(w, problem)
				return
			}

			if d.InGrace {
				w.Header().Set("X-License-Grace", "true")
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, decisionKey{}, d)))
		})
	}
}
