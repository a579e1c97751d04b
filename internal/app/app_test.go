package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrferaba/Grabadora-Intento4/internal/config"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/shared/testutil"
)

func testConfig(t *testing.T, fx *testutil.LicenseFixtures) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.License.File = filepath.Join(fx.Dir, "license.json")
	cfg.License.PublicKey = string(fx.PublicKeyPEM)
	cfg.License.Algorithms = []string{fx.Alg}
	cfg.License.LegacySecret = testutil.LegacySecret
	cfg.Security.RateLimit.Enabled = false
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) (string, *Application) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	a, err := New(cfg, logger)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("application did not shut down")
		}
	})
	return "http://" + ln.Addr().String(), a
}

func getJSON(t *testing.T, url string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp
}

func TestApplicationServesLicenseStatus(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	fx.Now = time.Now().UTC()
	fx.Install(fx.Request())

	base, a := startApp(t, testConfig(t, fx))
	assert.Equal(t, fx.LicensePath(), a.Licenses.Path())

	var status map[string]any
	resp := getJSON(t, base+"/api/license/status", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, status["active"])
	assert.Equal(t, "signed", status["source"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var health map[string]any
	resp = getJSON(t, base+"/api/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	var fp map[string]any
	getJSON(t, base+"/api/license/fingerprint", &fp)
	assert.Len(t, fp["fingerprint"], 64)
}

func TestApplicationStartsWithoutLicense(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	cfg := testConfig(t, fx)
	cfg.License.PublicKey = ""

	base, _ := startApp(t, cfg)

	var status map[string]any
	resp := getJSON(t, base+"/api/license/status", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, status["active"])
	assert.Equal(t, license.ReasonNoLicense, status["reason"])

	var gate map[string]any
	resp = getJSON(t, base+"/api/license/gate/summary?mode=redacted", &gate)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "extractive", gate["mode"])
	assert.Equal(t, true, gate["downgraded"])

	resp = getJSON(t, base+"/api/license/gate/export/docx", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = getJSON(t, base+"/api/license/gate/export/markdown", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getJSON(t, base+"/api/license/fingerprint/components", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApplicationImport(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	fx.Now = time.Now().UTC()
	base, _ := startApp(t, testConfig(t, fx))

	body := `{"license":` + string(fx.FileBytes(fx.Issue(fx.Request()))) + `}`
	resp, err := http.Post(base+"/api/license/import", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_, err = license.NewStore(fx.LicensePath()).Load()
	assert.NoError(t, err)

	resp, err = http.Post(base+"/api/license/import", "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestApplicationProblemResponses(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	base, _ := startApp(t, testConfig(t, fx))

	var problem map[string]any
	resp := getJSON(t, base+"/api/nope", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, problem["trace_id"])

	resp, err := http.Post(base+"/api/license/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestApplicationMetrics(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	base, _ := startApp(t, testConfig(t, fx))

	getJSON(t, base+"/api/license/status", nil)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "license_evaluations_total")
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestApplicationMetricsDisabled(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	cfg := testConfig(t, fx)
	cfg.Telemetry.Metrics = false
	base, _ := startApp(t, cfg)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewLicenseManagerWithoutKey(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	fx.Now = time.Now().UTC()
	fx.Install(fx.Request())

	cfg := testConfig(t, fx)
	cfg.License.PublicKey = ""
	logger, logs := testutil.NewTestLogger(t)

	m, err := NewLicenseManager(cfg, nil, nil, logger)
	require.NoError(t, err)
	assert.True(t, logs.ContainsMessage("no license public key configured"))

	d := m.Status(context.Background())
	assert.False(t, d.Active)
	assert.Equal(t, license.ReasonNoPublicKey, d.Reason)
	assert.Equal(t, license.SourceSigned, d.Source)
}

func TestNewLicenseManagerLegacyFallback(t *testing.T) {
	fx := testutil.NewLicenseFixtures(t)
	fx.Now = time.Now().UTC()
	require.NoError(t, os.WriteFile(fx.LicensePath(), fx.LegacyFile(10), 0o600))

	cfg := testConfig(t, fx)
	logger, _ := testutil.NewTestLogger(t)
	m, err := NewLicenseManager(cfg, nil, nil, logger)
	require.NoError(t, err)

	d := m.Status(context.Background())
	assert.True(t, d.Active)
	assert.Equal(t, license.SourceLegacy, d.Source)
	assert.ElementsMatch(t, cfg.License.LegacyFeatures, d.Features)
}
