package license

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultPlan is assumed when a token does not name one.
const DefaultPlan = "free"

// DefaultGraceDays matches the issuer's historical default.
const DefaultGraceDays = 7

const day = 24 * time.Hour

// Claims is the signed payload of a license token.
type Claims struct {
	SubjectEmail string    `json:"sub" validate:"required,email"`
	Plan         string    `json:"plan" validate:"required"`
	Features     []string  `json:"features"`
	IssuedAt     time.Time `json:"iat"`
	ExpiresAt    time.Time `json:"exp"`
	GraceDays    int       `json:"grace_days" validate:"gte=0"`
	DeviceHash   string    `json:"device,omitempty" validate:"omitempty,len=64,hexadecimal,lowercase"`
	Seats        int       `json:"seats" validate:"gte=1"`
	TokenID      string    `json:"jti,omitempty"`
}

// GraceDeadline is the last instant at which the license is still usable.
func (c Claims) GraceDeadline() time.Time {
	return c.ExpiresAt.Add(time.Duration(c.GraceDays) * day)
}

// HasDevice reports whether the license is pinned to a device.
func (c Claims) HasDevice() bool {
	return c.DeviceHash != ""
}

var issueValidator = validator.New()

// Normalize applies the canonical form used on both sides of the codec:
// features trimmed, de-duplicated and sorted; plan defaulted; seats at least one;
// timestamps truncated to the second precision the token carries.
func (c *Claims) Normalize() {
	c.SubjectEmail = strings.TrimSpace(c.SubjectEmail)
	c.Plan = strings.TrimSpace(c.Plan)
	if c.Plan == "" {
		c.Plan = DefaultPlan
	}
	c.Features = NormalizeFeatures(c.Features)
	if c.Seats < 1 {
		c.Seats = 1
	}
	c.DeviceHash = strings.ToLower(strings.TrimSpace(c.DeviceHash))
	c.IssuedAt = c.IssuedAt.UTC().Truncate(time.Second)
	c.ExpiresAt = c.ExpiresAt.UTC().Truncate(time.Second)
}

// validateForIssue applies the stricter rules the issuer enforces.
func (c Claims) validateForIssue() error {
	if err := issueValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid claims: %w", err)
	}
	return c.checkWindow()
}

// validateDecoded checks the structural invariants any verified token must
// satisfy. Violations are reported as malformed tokens.
func (c Claims) validateDecoded() error {
	if c.SubjectEmail == "" {
		return malformed("missing sub claim")
	}
	if c.GraceDays < 0 {
		return malformed("negative grace_days %d", c.GraceDays)
	}
	if c.DeviceHash != "" && !IsDeviceHash(c.DeviceHash) {
		return malformed("device claim is not a sha256 hex digest")
	}
	if err := c.checkWindow(); err != nil {
		return &TokenError{Kind: ErrMalformedToken, Err: err}
	}
	return nil
}

func (c Claims) checkWindow() error {
	if c.ExpiresAt.IsZero() {
		return fmt.Errorf("missing exp claim")
	}
	if !c.IssuedAt.IsZero() && c.IssuedAt.After(c.ExpiresAt) {
		return fmt.Errorf("iat %s is after exp %s", c.IssuedAt.Format(time.RFC3339), c.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// NormalizeFeatures returns the sorted set of non-blank feature identifiers,
// with legacy aliases rewritten to their current names.
func NormalizeFeatures(features []string) []string {
	seen := make(map[string]struct{}, len(features))
	out := make([]string, 0, len(features))
	for _, f := range features {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if current, ok := featureAliases[f]; ok {
			f = current
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// IsDeviceHash reports whether s has the shape of a device fingerprint.
func IsDeviceHash(s string) bool {
	if len(s) != 64 || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
