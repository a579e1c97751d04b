package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	"github.com/enrferaba/Grabadora-Intento4/internal/security"
)

func runKeys(e *env, args []string) error {
	fs := newFlagSet("keys", e.stderr)
	alg := fs.String("alg", "ES256", "signing algorithm the keys are for ("+strings.Join(license.SupportedAlgorithms(), ", ")+")")
	output := fs.String("output", "", "prefix of the generated key files")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"output": *output}); err != nil {
		return err
	}

	privatePEM, publicPEM, err := license.GenerateKeys(*alg)
	if err != nil {
		return err
	}

	privatePath := *output + "_private_key.pem"
	publicPath := *output + "_public_key.pem"
	if err := writeNew(privatePath, privatePEM, 0o600); err != nil {
		return err
	}
	if err := writeNew(publicPath, publicPEM, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "private key: %s\npublic key:  %s\n", privatePath, publicPath)
	return nil
}

// writeNew refuses to overwrite existing key material.
func writeNew(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists", path)
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func runIssue(e *env, args []string) error {
	fs := newFlagSet("issue", e.stderr)
	privateKey := fs.String("private-key", "", "path to the issuer's private key")
	email := fs.String("email", "", "licensee email")
	plan := fs.String("plan", "pro", "plan name")
	var features listFlag
	fs.Var(&features, "feature", "licensed feature (repeatable)")
	days := fs.Int("days", 365, "days until expiration")
	seats := fs.Int("seats", 1, "number of seats")
	grace := fs.Int("grace-days", license.DefaultGraceDays, "days the license stays usable after expiry")
	device := fs.String("device", "", "device hash to pin the license to")
	bindThis := fs.Bool("bind-this-device", false, "pin the license to this machine")
	alg := fs.String("alg", "", "signing algorithm (defaults to the key's natural one)")
	out := fs.String("out", "", "also save the license file here")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"private-key": *privateKey, "email": *email}); err != nil {
		return err
	}
	if *bindThis && *device != "" {
		return errors.New("-device and -bind-this-device are mutually exclusive")
	}

	signer, err := license.LoadPrivateKeyFile(*privateKey)
	if err != nil {
		return err
	}
	if *alg == "" {
		*alg = license.AlgorithmFor(signer.Public())
	}

	if *bindThis {
		fp := security.NewFingerprintManager(security.FingerprintOptions{Logger: e.logger}).
			GenerateFingerprint(context.Background())
		if fp.IsDegraded() {
			fmt.Fprintf(e.stderr, "warning: fingerprint degraded (%v)\n", fp.Degraded)
		}
		*device = fp.Fingerprint
	}

	issued, err := license.Issue(license.IssueRequest{
		Email:      *email,
		Plan:       *plan,
		Features:   features,
		Seats:      *seats,
		Days:       *days,
		GraceDays:  *grace,
		DeviceHash: *device,
		Algorithm:  *alg,
	}, signer, e.now())
	if err != nil {
		return err
	}

	payload, err := issued.Payload()
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, string(payload))
	fmt.Fprintln(e.stdout, issued.Token)

	if *out != "" {
		if err := license.NewStore(*out).Save(issued.File()); err != nil {
			return err
		}
		fmt.Fprintf(e.stderr, "license written to %s\n", *out)
	}
	return nil
}

func runLegacyIssue(e *env, args []string) error {
	fs := newFlagSet("legacy-issue", e.stderr)
	name := fs.String("name", "", "licensee name")
	email := fs.String("email", "", "licensee email")
	days := fs.Int("days", 365, "days until expiration")
	product := fs.String("product", "", "product the license is for")
	note := fs.String("note", "", "free-form note")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "environment variable holding the shared secret")
	out := fs.String("out", "", "also save the license file here")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(fs, map[string]string{"name": *name, "email": *email}); err != nil {
		return err
	}

	secret, err := legacySecret(e, *secretEnv)
	if err != nil {
		return err
	}

	lic, err := license.IssueLegacy(license.LegacyIssueRequest{
		Name:    *name,
		Email:   *email,
		Days:    *days,
		Product: *product,
		Note:    *note,
	}, []byte(secret), e.now())
	if err != nil {
		return err
	}

	file := &license.File{Legacy: lic}
	raw, err := file.Encode()
	if err != nil {
		return err
	}
	e.stdout.Write(raw)

	if *out != "" {
		if err := license.NewStore(*out).Save(file); err != nil {
			return err
		}
		fmt.Fprintf(e.stderr, "license written to %s\n", *out)
	}
	return nil
}

func printDecision(e *env, d license.Decision) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return err
	}
	if !d.Active {
		return &inactiveError{reason: d.Reason}
	}
	if d.InGrace {
		fmt.Fprintf(e.stderr, "license expired, usable until %s\n", d.GraceEndsAt.Format("2006-01-02"))
	}
	return nil
}
