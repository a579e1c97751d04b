package license

import (
	"math"
	"slices"
	"time"
)

// Reason strings reported on inactive decisions.
const (
	ReasonDeviceMismatch       = "device mismatch"
	ReasonExpired              = "expired"
	ReasonInvalidSignature     = "invalid signature"
	ReasonMalformed            = "malformed"
	ReasonUnsupportedAlgorithm = "unsupported algorithm"
	ReasonInvalidKey           = "invalid public key"
	ReasonNoPublicKey          = "no public key configured"
	ReasonNoLicense            = "no license present"
	ReasonNoLegacySecret       = "legacy secret not configured"
	ReasonProductMismatch      = "product mismatch"
	ReasonUnreadable           = "license unreadable"
)

// Source names which verification path produced a decision.
const (
	SourceNone   = "none"
	SourceSigned = "signed"
	SourceLegacy = "legacy"
)

// Decision is the outcome of evaluating the installed license. It is derived
// on demand and never persisted.
type Decision struct {
	Active    bool       `json:"active"`
	Plan      string     `json:"plan"`
	ExpiresAt *time.Time `json:"expires_at"`
	InGrace   bool       `json:"in_grace"`
	Features  []string   `json:"features"`
	Reason    string     `json:"reason"`
	Source    string     `json:"source"`

	// GraceEndsAt and DaysLeft are informational; DaysLeft counts whole days
	// until expiry, or until the end of grace once expired.
	GraceEndsAt *time.Time `json:"grace_ends_at,omitempty"`
	DaysLeft    int        `json:"days_left"`
	Subject     string     `json:"-"`
	TokenID     string     `json:"-"`
}

// Inactive returns a decision denying every licensed feature.
func Inactive(reason string) Decision {
	return Decision{
		Plan:     DefaultPlan,
		Features: []string{},
		Reason:   reason,
		Source:   SourceNone,
	}
}

// HasFeature is true only when the decision is active and lists feature.
func HasFeature(d Decision, feature string) bool {
	return d.Active && slices.Contains(d.Features, feature)
}

// HasFeature is the method form of HasFeature.
func (d Decision) HasFeature(feature string) bool {
	return HasFeature(d, feature)
}

// RenewalUrgency grades how soon the license needs renewing.
func (d Decision) RenewalUrgency() string {
	switch {
	case !d.Active:
		return "expired"
	case d.InGrace:
		return "critical"
	case d.DaysLeft <= 7:
		return "high"
	case d.DaysLeft <= 30:
		return "medium"
	case d.DaysLeft <= 60:
		return "low"
	default:
		return "none"
	}
}

func daysUntil(deadline, now time.Time) int {
	if !now.Before(deadline) {
		return 0
	}
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}
