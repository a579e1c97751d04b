package license

import (
	"errors"
	"time"
)

// window describes a validity period shared by both license sources.
type window struct {
	plan        string
	features    []string
	expiresAt   time.Time
	graceDays   int
	subject     string
	tokenID     string
	source      string
	deviceHash  string
	checkDevice bool
}

// evaluateWindow holds the expiry and grace arithmetic.
func evaluateWindow(w window, deviceHash string, now time.Time) Decision {
	expires := w.expiresAt
	graceEnd := expires.Add(time.Duration(w.graceDays) * day)

	d := Decision{
		Plan:        w.plan,
		ExpiresAt:   &expires,
		Features:    []string{},
		Source:      w.source,
		Subject:     w.subject,
		TokenID:     w.tokenID,
		GraceEndsAt: &graceEnd,
	}

	if w.checkDevice && w.deviceHash != "" && w.deviceHash != deviceHash {
		d.Reason = ReasonDeviceMismatch
		return d
	}

	switch {
	case !now.After(expires):
		d.Active = true
		d.DaysLeft = daysUntil(expires, now)
	case !now.After(graceEnd):
		d.Active = true
		d.InGrace = true
		d.DaysLeft = daysUntil(graceEnd, now)
	default:
		d.Reason = ReasonExpired
		return d
	}

	d.Features = append([]string(nil), w.features...)
	return d
}

// Evaluate turns verified claims into a decision for the device identified by
// deviceHash at time now. It performs no I/O.
func Evaluate(claims Claims, deviceHash string, now time.Time) Decision {
	return EvaluateSource(SignedSource{Claims: claims}, deviceHash, now)
}

// DecisionFromError maps a failure anywhere before evaluation to the inactive
// decision the rest of the application sees.
func DecisionFromError(err error) Decision {
	switch {
	case err == nil:
		return Inactive(ReasonMalformed)
	case errors.Is(err, ErrNotFound):
		return Inactive(ReasonNoLicense)
	case errors.Is(err, ErrNoPublicKey):
		return Inactive(ReasonNoPublicKey)
	case errors.Is(err, ErrNoLegacySecret):
		return Inactive(ReasonNoLegacySecret)
	case errors.Is(err, ErrProductMismatch):
		return Inactive(ReasonProductMismatch)
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return Inactive(ReasonUnsupportedAlgorithm)
	case errors.Is(err, ErrSignature):
		return Inactive(ReasonInvalidSignature)
	case errors.Is(err, ErrKeyFormat):
		return Inactive(ReasonInvalidKey)
	case errors.Is(err, ErrIO):
		return Inactive(ReasonUnreadable)
	default:
		return Inactive(ReasonMalformed)
	}
}
