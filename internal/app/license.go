package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/enrferaba/Grabadora-Intento4/internal/config"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/security"
)

// NewLicenseManager builds the manager described by cfg. Key problems are
// logged and carried into the manager so that signed licenses evaluate
// inactive with the reason; they never fail construction.
func NewLicenseManager(cfg *config.Config, device license.DeviceIdentifier, metrics *license.Metrics, logger *slog.Logger) (*license.Manager, error) {
	path, err := cfg.LicensePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve license path: %w", err)
	}

	lc := cfg.License
	verifier, verifierErr := license.NewVerifierFromConfig(lc.PublicKey, lc.PublicKeyPath, lc.Algorithms)
	switch {
	case errors.Is(verifierErr, license.ErrNoPublicKey):
		logger.Warn("no license public key configured, signed licenses will be inactive")
	case verifierErr != nil:
		logger.Error("license public key unusable", slog.String("error", verifierErr.Error()))
	}

	return license.NewManager(license.Options{
		Store:          license.NewStore(path),
		Verifier:       verifier,
		VerifierErr:    verifierErr,
		Legacy:         license.NewLegacyVerifier(lc.LegacySecret, lc.LegacyProduct),
		LegacyFeatures: lc.LegacyFeatures,
		Device:         device,
		CacheTTL:       lc.CacheTTL,
		Logger:         logger,
		Metrics:        metrics,
	})
}

// NewFingerprinter builds the fingerprint manager, counting degraded
// fingerprints on metrics when available.
func NewFingerprinter(metrics *license.Metrics, logger *slog.Logger) *security.FingerprintManager {
	opts := security.FingerprintOptions{Logger: logger}
	if metrics != nil {
		opts.Degraded = metrics.FingerprintDegraded
	}
	return security.NewFingerprintManager(opts)
}
