package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/enrferaba/Grabadora-Intento4/internal/errors"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/middleware"
	"github.com/enrferaba/Grabadora-Intento4/internal/shared/testutil"
)

func newGateRouter(t *testing.T, d license.Decision) (http.Handler, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	errorHandler := apierrors.NewErrorHandler(logger, false)
	h := NewGateHandler(license.StaticProvider(d), nil,
		middleware.NewValidationMiddleware(logger, errorHandler), errorHandler, logger)
	return h.Routes(), logs
}

func getJSON(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestGateSummaryMode(t *testing.T) {
	tests := []struct {
		name           string
		decision       license.Decision
		requested      string
		wantMode       string
		wantDowngraded bool
	}{
		{"redacted licensed", activeWith(license.FeatureSummaryRedacted), "redacted", "redacted", false},
		{"redacted not in plan", activeWith(license.FeatureExportDocx), "redacted", "extractive", true},
		{"no license", license.Inactive(license.ReasonNoLicense), "redacted", "extractive", true},
		{"extractive is free", license.Inactive(license.ReasonExpired), "extractive", "extractive", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newGateRouter(t, tt.decision)
			rec, body := getJSON(t, router, "/summary?mode="+tt.requested)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.requested, body["requested"])
			assert.Equal(t, tt.wantMode, body["mode"])
			assert.Equal(t, tt.wantDowngraded, body["downgraded"])
			if tt.wantDowngraded {
				assert.NotEmpty(t, body["reason"])
			} else {
				assert.NotContains(t, body, "reason")
			}
		})
	}
}

func TestGateSummaryRejectsUnknownMode(t *testing.T) {
	router, _ := newGateRouter(t, activeWith(license.FeatureAll))
	for _, target := range []string{"/summary", "/summary?mode=abstractive"} {
		rec, body := getJSON(t, router, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, apierrors.TypeValidation, body["type"], target)
	}
}

func TestGateExport(t *testing.T) {
	t.Run("licensed format in grace", func(t *testing.T) {
		d := activeWith(license.FeatureExportDocx)
		d.InGrace = true
		router, _ := newGateRouter(t, d)

		rec, body := getJSON(t, router, "/export/docx")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "docx", body["format"])
		assert.Equal(t, "pro", body["plan"])
		assert.Equal(t, true, body["in_grace"])
		assert.Equal(t, "true", rec.Header().Get("X-License-Grace"))
	})

	t.Run("gated format without license", func(t *testing.T) {
		router, logs := newGateRouter(t, license.Inactive(license.ReasonExpired))

		rec, body := getJSON(t, router, "/export/docx")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, apierrors.TypeFeatureNotLicensed, body["type"])
		assert.Equal(t, license.FeatureExportDocx, body["feature"])
		assert.Equal(t, false, body["active"])
		assert.True(t, logs.ContainsMessage("feature denied"))
	})

	t.Run("free formats stay open", func(t *testing.T) {
		router, _ := newGateRouter(t, license.Inactive(license.ReasonNoLicense))
		for _, format := range []string{"markdown", "json"} {
			rec, body := getJSON(t, router, "/export/"+format)
			assert.Equal(t, http.StatusOK, rec.Code, format)
			assert.Equal(t, format, body["format"])
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		router, _ := newGateRouter(t, activeWith(license.FeatureAll))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export/pdf", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func activeWith(features ...string) license.Decision {
	d := activeDecision()
	d.Features = features
	return d
}
