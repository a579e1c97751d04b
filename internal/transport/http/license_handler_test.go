package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	apierrors "github.com/enrferaba/Grabadora-Intento4/internal/errors"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/middleware"
	"github.com/enrferaba/Grabadora-Intento4/internal/security"
	"github.com/enrferaba/Grabadora-Intento4/internal/shared/testutil"
)

// MockLicenseService implements LicenseService for testing
type MockLicenseService struct {
	mock.Mock
}

func (m *MockLicenseService) Status(ctx context.Context) license.Decision {
	return m.Called(ctx).Get(0).(license.Decision)
}

func (m *MockLicenseService) Revalidate(ctx context.Context) license.Decision {
	return m.Called(ctx).Get(0).(license.Decision)
}

func (m *MockLicenseService) Import(ctx context.Context, raw []byte) (license.Decision, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(license.Decision), args.Error(1)
}

func (m *MockLicenseService) Remove(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockLicenseService) CacheStats() license.CacheStats {
	return m.Called().Get(0).(license.CacheStats)
}

type staticFingerprinter struct {
	fp      security.DeviceFingerprint
	cleared int
}

func (s *staticFingerprinter) GenerateFingerprint(context.Context) *security.DeviceFingerprint {
	fp := s.fp
	return &fp
}

func (s *staticFingerprinter) GetFingerprintComponents(context.Context) map[string]string {
	return map[string]string{
		security.ComponentMachineID: "machine",
		security.ComponentMAC:       security.UnknownMAC,
		security.ComponentCPU:       "cpu",
	}
}

func (s *staticFingerprinter) ClearCache() { s.cleared++ }

func activeDecision() license.Decision {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return license.Decision{
		Active:    true,
		Plan:      "pro",
		ExpiresAt: &exp,
		Features:  []string{license.FeatureExportDocx},
		Source:    license.SourceSigned,
		DaysLeft:  90,
		Subject:   "ana@example.com",
		TokenID:   "jti-1",
	}
}

type LicenseHandlerSuite struct {
	suite.Suite
	service      *MockLicenseService
	fingerprints *staticFingerprinter
	handler      *LicenseHandler
	router       chi.Router
	logs         *testutil.BufferedSlogHandler
}

func (s *LicenseHandlerSuite) SetupTest() {
	logger, logs := testutil.NewTestLogger(s.T())
	s.logs = logs
	s.service = new(MockLicenseService)

	s.fingerprints = &staticFingerprinter{fp: security.DeviceFingerprint{
		Fingerprint: strings.Repeat("ab", 32),
		Degraded:    []string{security.ComponentMAC},
		OS:          "linux",
		Platform:    "amd64",
	}}

	errorHandler := apierrors.NewErrorHandler(logger, false)
	h := NewLicenseHandler(
		s.service,
		s.fingerprints,
		license.NewGate(),
		middleware.NewValidationMiddleware(logger, errorHandler),
		errorHandler,
		logger,
	)
	s.handler = h
	s.router = h.Routes()
}

func (s *LicenseHandlerSuite) TearDownTest() {
	s.service.AssertExpectations(s.T())
}

func (s *LicenseHandlerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *LicenseHandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *LicenseHandlerSuite) TestStatusActive() {
	s.service.On("Status", mock.Anything).Return(activeDecision())
	s.service.On("CacheStats").Return(license.CacheStats{Hits: 3, Misses: 1, TTL: time.Minute})

	rec := s.do(http.MethodGet, "/status", "")
	s.Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	s.Equal(true, body["active"])
	s.Equal("pro", body["plan"])
	s.Equal("none", body["renewal_urgency"])
	s.Contains(body, "reason", "the status shape always carries reason")
	s.Equal("", body["reason"])
	s.ElementsMatch([]any{"summary:extractive", "export:markdown", "export:json", "export:docx"}, body["available_features"])
	s.NotContains(body, "Subject")
	s.NotContains(rec.Body.String(), "ana@example.com")
	s.Equal(float64(3), body["cache"].(map[string]any)["hits"])
}

func (s *LicenseHandlerSuite) TestStatusInactiveIsStill200() {
	s.service.On("Status", mock.Anything).Return(license.Inactive("no license installed"))
	s.service.On("CacheStats").Return(license.CacheStats{})

	rec := s.do(http.MethodGet, "/status", "")
	s.Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	s.Equal(false, body["active"])
	s.Equal("no license installed", body["reason"])
	s.Equal("expired", body["renewal_urgency"])
	s.Equal([]any{}, body["features"])
}

func (s *LicenseHandlerSuite) TestRevalidate() {
	s.service.On("Revalidate", mock.Anything).Return(activeDecision())

	rec := s.do(http.MethodPost, "/revalidate", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(1, s.fingerprints.cleared)
	s.True(s.logs.ContainsMessage("license revalidated"))
}

func (s *LicenseHandlerSuite) TestImportInstalls() {
	raw := `{"token":"a.b.c"}`
	s.service.On("Import", mock.Anything, []byte(raw)).Return(activeDecision(), nil)

	rec := s.do(http.MethodPost, "/import", `{"license":`+raw+`}`)
	s.Equal(http.StatusCreated, rec.Code)
	s.Equal(true, s.decode(rec)["active"])
}

func (s *LicenseHandlerSuite) TestImportRejected() {
	rejected := license.Inactive("device mismatch")
	rejected.Source = license.SourceSigned
	s.service.On("Import", mock.Anything, mock.Anything).
		Return(rejected, &license.RejectedError{Decision: rejected})

	rec := s.do(http.MethodPost, "/import", `{"license":{"token":"a.b.c"}}`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	body := s.decode(rec)
	s.Equal(apierrors.TypeLicenseRejected, body["type"])
	s.Equal("device mismatch", body["reason"])
}

func (s *LicenseHandlerSuite) TestImportMalformed() {
	s.service.On("Import", mock.Anything, mock.Anything).
		Return(license.Inactive("malformed license"), fmt.Errorf("parse: %w", license.ErrMalformedToken))

	rec := s.do(http.MethodPost, "/import", `{"license":{"nothing":1}}`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal(apierrors.TypeLicenseMalformed, s.decode(rec)["type"])
}

func (s *LicenseHandlerSuite) TestImportValidation() {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{"missing license", `{}`, http.StatusBadRequest, apierrors.TypeValidation},
		{"broken json", `{"license":`, http.StatusBadRequest, apierrors.TypeInvalidRequest},
		{"huge body", `{"license":"` + strings.Repeat("x", middleware.DefaultMaxBodySize) + `"}`, http.StatusRequestEntityTooLarge, apierrors.TypePayloadTooLarge},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodPost, "/import", tt.body)
			s.Equal(tt.wantStatus, rec.Code)
			s.Equal(tt.wantType, s.decode(rec)["type"])
		})
	}
	s.service.AssertNotCalled(s.T(), "Import", mock.Anything, mock.Anything)
}

func (s *LicenseHandlerSuite) TestRemove() {
	s.service.On("Remove", mock.Anything).Return(nil).Once()
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/", "").Code)

	s.service.On("Remove", mock.Anything).Return(&license.IOError{Op: "remove", Path: "/x", Err: errors.New("denied")}).Once()
	rec := s.do(http.MethodDelete, "/", "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal(apierrors.TypeLicenseStorage, s.decode(rec)["type"])
}

func (s *LicenseHandlerSuite) TestFeatures() {
	s.service.On("Status", mock.Anything).Return(activeDecision())

	rec := s.do(http.MethodGet, "/features", "")
	s.Equal(http.StatusOK, rec.Code)
	var list []FeatureResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.Len(list, len(license.AllFeatures))
	for _, f := range list {
		if f.Feature == license.FeatureSummaryRedacted {
			s.False(f.Allowed)
			s.Equal("not included in plan pro", f.Reason)
		}
	}

	rec = s.do(http.MethodGet, "/features/export:docx", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(true, s.decode(rec)["allowed"])
}

func (s *LicenseHandlerSuite) TestUnknownFeature() {
	rec := s.do(http.MethodGet, "/features/export:pdf", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(apierrors.TypeNotFound, s.decode(rec)["type"])
}

func (s *LicenseHandlerSuite) TestFingerprint() {
	rec := s.do(http.MethodGet, "/fingerprint", "")
	s.Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	s.Equal(strings.Repeat("ab", 32), body["fingerprint"])
	s.Equal([]any{security.ComponentMAC}, body["degraded"])
	s.NotContains(body, "components")
}

func (s *LicenseHandlerSuite) TestFingerprintComponentsNeedDiagnostics() {
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/fingerprint/components", "").Code)

	s.handler.EnableDiagnostics()
	s.router = s.handler.Routes()
	rec := s.do(http.MethodGet, "/fingerprint/components", "")
	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(security.UnknownMAC, body[security.ComponentMAC])
	s.Equal("machine", body[security.ComponentMachineID])
}

func TestLicenseHandlerSuite(t *testing.T) {
	suite.Run(t, new(LicenseHandlerSuite))
}

// TestLicenseHandlerWithManager drives the handler against a real manager and
// store: import, status and rejection of a tampered replacement.
func TestLicenseHandlerWithManager(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	logger, logs := testutil.NewTestLogger(t)
	manager := fx.Manager(license.Options{Logger: logger})

	errorHandler := apierrors.NewErrorHandler(logger, false)
	h := NewLicenseHandler(manager, security.NewFingerprintManager(security.FingerprintOptions{Logger: logger}),
		nil, middleware.NewValidationMiddleware(logger, errorHandler), errorHandler, logger)
	router := h.Routes()

	post := func(body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/import",
			strings.NewReader(`{"license":`+string(body)+`}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	issued := fx.Issue(fx.Request())
	rec := post(fx.FileBytes(issued))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["active"])
	assert.Equal(t, "pro", status["plan"])

	tampered := fx.FileBytes(issued)
	tampered = []byte(strings.Replace(string(tampered), issued.Token, issued.Token[:len(issued.Token)-4]+"AAAA", 1))
	rec = post(tampered)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["active"], "a rejected import must leave the installed license alone")

	assert.False(t, logs.ContainsText(issued.Token))
}
