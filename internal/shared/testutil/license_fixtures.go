package testutil

import (
	"crypto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/enrferaba/Grabadora-Intento4/internal/license"
)

// TestDeviceHash is a well-formed device fingerprint for fixtures.
var TestDeviceHash = strings.Repeat("5e", 32)

// LegacySecret signs the legacy fixtures.
const LegacySecret = "s3cret-compartido"

// LicenseFixtures holds a signing key pair and a directory for license files.
type LicenseFixtures struct {
	t   *testing.T
	Dir string
	Alg string

	Signer       crypto.Signer
	PublicKey    crypto.PublicKey
	PublicKeyPEM []byte
	PublicPath   string
	PrivatePath  string
	Now          time.Time
}

// NewLicenseFixtures generates an ES256 key pair and writes both halves into a
// fresh temporary directory.
func NewLicenseFixtures(t *testing.T) *LicenseFixtures {
	t.Helper()
	return NewLicenseFixturesWithAlg(t, "ES256")
}

// NewLicenseFixturesWithAlg is NewLicenseFixtures for a chosen algorithm.
func NewLicenseFixturesWithAlg(t *testing.T, alg string) *LicenseFixtures {
	t.Helper()

	privPEM, pubPEM, err := license.GenerateKeys(alg)
	require.NoError(t, err)
	signer, err := license.LoadPrivateKey(privPEM)
	require.NoError(t, err)
	pub, err := license.LoadPublicKey(pubPEM)
	require.NoError(t, err)

	dir := t.TempDir()
	f := &LicenseFixtures{
		t:            t,
		Dir:          dir,
		Alg:          alg,
		Signer:       signer,
		PublicKey:    pub,
		PublicKeyPEM: pubPEM,
		PublicPath:   filepath.Join(dir, "public.pem"),
		PrivatePath:  filepath.Join(dir, "private.pem"),
		Now:          time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, os.WriteFile(f.PublicPath, pubPEM, 0o644))
	require.NoError(t, os.WriteFile(f.PrivatePath, privPEM, 0o600))
	return f
}

// LicensePath is where fixtures install license files.
func (f *LicenseFixtures) LicensePath() string {
	return filepath.Join(f.Dir, "license.json")
}

// Verifier returns a verifier for the fixture key.
func (f *LicenseFixtures) Verifier() *license.Verifier {
	f.t.Helper()
	v, err := license.NewVerifier(f.PublicKey, f.Alg)
	require.NoError(f.t, err)
	return v
}

// Request returns a typical pro-plan issue request.
func (f *LicenseFixtures) Request() license.IssueRequest {
	return license.IssueRequest{
		Email:     "ana@example.com",
		Plan:      "pro",
		Features:  []string{license.FeatureSummaryRedacted, license.FeatureExportDocx},
		Days:      30,
		GraceDays: license.DefaultGraceDays,
		Algorithm: f.Alg,
	}
}

// Issue signs req at f.Now.
func (f *LicenseFixtures) Issue(req license.IssueRequest) license.Issued {
	f.t.Helper()
	issued, err := license.Issue(req, f.Signer, f.Now)
	require.NoError(f.t, err)
	return issued
}

// FileBytes renders issued as license file content.
func (f *LicenseFixtures) FileBytes(issued license.Issued) []byte {
	f.t.Helper()
	raw, err := issued.File().Encode()
	require.NoError(f.t, err)
	return raw
}

// Install writes a signed license issued from req to LicensePath.
func (f *LicenseFixtures) Install(req license.IssueRequest) license.Issued {
	f.t.Helper()
	issued := f.Issue(req)
	require.NoError(f.t, license.NewStore(f.LicensePath()).Save(issued.File()))
	return issued
}

// LegacyFile returns a flat shared-secret license valid for days from f.Now.
func (f *LicenseFixtures) LegacyFile(days int) []byte {
	f.t.Helper()
	lic, err := license.IssueLegacy(license.LegacyIssueRequest{
		Name:  "QA",
		Email: "qa@example.com",
		Days:  days,
	}, []byte(LegacySecret), f.Now)
	require.NoError(f.t, err)

	raw, err := (&license.File{Legacy: lic}).Encode()
	require.NoError(f.t, err)
	return raw
}

// Manager builds a manager over LicensePath with the fixture key, the legacy
// secret and a clock fixed at f.Now.
func (f *LicenseFixtures) Manager(opts license.Options) *license.Manager {
	f.t.Helper()
	if opts.Store == nil {
		opts.Store = license.NewStore(f.LicensePath())
	}
	if opts.Verifier == nil && opts.VerifierErr == nil {
		opts.Verifier = f.Verifier()
	}
	if opts.Legacy == nil {
		opts.Legacy = license.NewLegacyVerifier(LegacySecret, "")
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return f.Now }
	}
	m, err := license.NewManager(opts)
	require.NoError(f.t, err)
	return m
}
