package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/enrferaba/Grabadora-Intento4/internal/errors"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/shared/testutil"
)

func activeDecision(features ...string) license.Decision {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return license.Decision{
		Active:    true,
		Plan:      "pro",
		ExpiresAt: &exp,
		Features:  features,
		Source:    license.SourceSigned,
	}
}

func TestRequireFeature(t *testing.T) {
	gate := license.NewGate()

	tests := []struct {
		name       string
		decision   license.Decision
		feature    string
		wantStatus int
		wantReason string
	}{
		{
			name:       "licensed feature",
			decision:   activeDecision(license.FeatureExportDocx),
			feature:    license.FeatureExportDocx,
			wantStatus: http.StatusOK,
		},
		{
			name:       "wildcard plan",
			decision:   activeDecision(license.FeatureAll),
			feature:    license.FeatureSummaryRedacted,
			wantStatus: http.StatusOK,
		},
		{
			name:       "free tier without license",
			decision:   license.Inactive("no license installed"),
			feature:    license.FeatureExportMarkdown,
			wantStatus: http.StatusOK,
		},
		{
			name:       "premium without license",
			decision:   license.Inactive("no license installed"),
			feature:    license.FeatureExportDocx,
			wantStatus: http.StatusForbidden,
			wantReason: "no license installed",
		},
		{
			name:       "active plan lacking feature",
			decision:   activeDecision(license.FeatureSummaryRedacted),
			feature:    license.FeatureExportDocx,
			wantStatus: http.StatusForbidden,
			wantReason: "not included in plan pro",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			var reached bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				d, ok := DecisionFromContext(r.Context())
				assert.True(t, ok)
				assert.Equal(t, tt.decision.Plan, d.Plan)
			})

			h := RequireFeature(license.StaticProvider(tt.decision), gate, tt.feature, logger)(next)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/export/docx", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, reached)
			if tt.wantStatus != http.StatusForbidden {
				return
			}

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apierrors.TypeFeatureNotLicensed, body["type"])
			assert.Equal(t, tt.feature, body["feature"])
			assert.Contains(t, body["detail"], tt.wantReason)
		})
	}
}

func TestRequireFeatureGraceHeader(t *testing.T) {
	d := activeDecision(license.FeatureExportDocx)
	d.InGrace = true

	h := RequireFeature(license.StaticProvider(d), license.NewGate(), license.FeatureExportDocx, nil)(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-License-Grace"))
}
