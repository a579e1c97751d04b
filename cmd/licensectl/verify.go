package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/enrferaba/Grabadora-Intento4/internal/app"
	"github.com/enrferaba/Grabadora-Intento4/internal/config"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/security"
)

const defaultSecretEnv = config.EnvPrefix + "_LICENSE_LEGACY_SECRET"

func runVerify(e *env, args []string) error {
	fs := newFlagSet("verify", e.stderr)
	token := fs.String("token", "", "license token")
	file := fs.String("file", "", "license file holding the token")
	publicKey := fs.String("public-key", "", "path to the issuer's public key")
	var algs listFlag
	fs.Var(&algs, "alg", "accepted algorithm (repeatable, defaults to RS256,ES256)")
	device := fs.String("device", "", "device hash to evaluate against (defaults to this machine)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"public-key": *publicKey}); err != nil {
		return err
	}
	if (*token == "") == (*file == "") {
		fmt.Fprintln(e.stderr, "exactly one of -token and -file is required")
		return errUsage
	}

	if *file != "" {
		f, err := license.NewStore(*file).Load()
		if err != nil {
			return err
		}
		if !f.Signed() {
			return errors.New("file holds no signed token, use legacy-verify")
		}
		*token = f.Token
	}

	key, err := license.LoadPublicKeyFile(*publicKey)
	if err != nil {
		return err
	}
	verifier, err := license.NewVerifier(key, algs...)
	if err != nil {
		return err
	}

	claims, err := verifier.DecodeAndVerify(strings.TrimSpace(*token))
	if err != nil {
		return &inactiveError{reason: license.DecisionFromError(err).Reason}
	}
	if *device == "" && claims.HasDevice() {
		*device, _ = security.NewFingerprintManager(security.FingerprintOptions{Logger: e.logger}).
			DeviceHash(context.Background())
		fmt.Fprintln(e.stderr, "license is device-bound, checking against this machine")
	}
	return printDecision(e, license.Evaluate(claims, *device, e.now()))
}

func runLegacyVerify(e *env, args []string) error {
	fs := newFlagSet("legacy-verify", e.stderr)
	file := fs.String("file", "", "legacy license file")
	product := fs.String("product", "", "product the license must name")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "environment variable holding the shared secret")
	configFile := fs.String("config", "", "configuration file naming the legacy features")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"file": *file}); err != nil {
		return err
	}
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	secret, err := legacySecret(e, *secretEnv)
	if err != nil {
		return err
	}

	f, err := license.NewStore(*file).Load()
	if err != nil {
		return err
	}
	if f.Legacy == nil {
		return errors.New("file holds a signed token, use verify")
	}
	if err := license.NewLegacyVerifier(secret, *product).Verify(f.Legacy); err != nil {
		return &inactiveError{reason: license.DecisionFromError(err).Reason}
	}

	src := license.LegacySource{License: f.Legacy, Features: cfg.License.LegacyFeatures}
	return printDecision(e, license.EvaluateSource(src, "", e.now()))
}

func legacySecret(e *env, name string) (string, error) {
	secret := strings.TrimSpace(e.getenv(name))
	if secret == "" {
		return "", fmt.Errorf("environment variable %s is empty", name)
	}
	return secret, nil
}

func runFingerprint(e *env, args []string) error {
	fs := newFlagSet("fingerprint", e.stderr)
	asJSON := fs.Bool("json", false, "print the full fingerprint record")
	check := fs.String("check", "", "compare this machine against a stored fingerprint")
	if err := parse(fs, args); err != nil {
		return err
	}

	fm := security.NewFingerprintManager(security.FingerprintOptions{Logger: e.logger})
	if *check != "" {
		if !fm.ValidateFingerprint(context.Background(), *check) {
			return &inactiveError{reason: license.ReasonDeviceMismatch}
		}
		fmt.Fprintln(e.stdout, "fingerprint matches this machine")
		return nil
	}
	fp := fm.GenerateFingerprint(context.Background())

	if *asJSON {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fp)
	}
	fmt.Fprintln(e.stdout, fp.Fingerprint)
	if fp.IsDegraded() {
		fmt.Fprintf(e.stderr, "warning: placeholders used for %s\n", strings.Join(fp.Degraded, ", "))
	}
	return nil
}

// loadConfig reads the application configuration the same way the web
// binary does.
func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		return config.LoadFrom(configFile)
	}
	return config.Load()
}

// installedManager builds the same license manager the web application uses.
func installedManager(e *env, configFile string) (*license.Manager, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}
	fingerprints := app.NewFingerprinter(nil, e.logger)
	return app.NewLicenseManager(cfg, fingerprints, nil, e.logger)
}

func runStatus(e *env, args []string) error {
	fs := newFlagSet("status", e.stderr)
	configFile := fs.String("config", "", "configuration file")
	if err := parse(fs, args); err != nil {
		return err
	}

	m, err := installedManager(e, *configFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stderr, "license file: %s\n", m.Path())
	return printDecision(e, m.Status(context.Background()))
}

func runUninstall(e *env, args []string) error {
	fs := newFlagSet("uninstall", e.stderr)
	configFile := fs.String("config", "", "configuration file")
	if err := parse(fs, args); err != nil {
		return err
	}

	m, err := installedManager(e, *configFile)
	if err != nil {
		return err
	}
	if err := m.Remove(context.Background()); err != nil {
		if errors.Is(err, license.ErrNotFound) {
			fmt.Fprintf(e.stdout, "no license installed at %s\n", m.Path())
			return nil
		}
		return err
	}
	fmt.Fprintf(e.stdout, "removed %s\n", m.Path())
	return nil
}

