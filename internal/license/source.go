package license

import "time"

// Source is a verified license of either kind. The set of implementations is
// closed: SignedSource and LegacySource.
type Source interface {
	window() window
}

// SignedSource carries claims from a verified signed token.
type SignedSource struct {
	Claims Claims
}

func (s SignedSource) window() window {
	return window{
		plan:        s.Claims.Plan,
		features:    s.Claims.Features,
		expiresAt:   s.Claims.ExpiresAt,
		graceDays:   s.Claims.GraceDays,
		subject:     s.Claims.SubjectEmail,
		tokenID:     s.Claims.TokenID,
		source:      SourceSigned,
		deviceHash:  s.Claims.DeviceHash,
		checkDevice: true,
	}
}

// LegacySource carries a shared-secret license whose MAC has been checked.
// It has no device binding and no grace period; Features is the set the
// application grants to legacy licensees.
type LegacySource struct {
	License  *LegacyLicense
	Features []string
}

func (s LegacySource) window() window {
	return window{
		plan:      LegacyPlan,
		features:  NormalizeFeatures(s.Features),
		expiresAt: s.License.ExpiresAt,
		subject:   s.License.Email,
		source:    SourceLegacy,
	}
}

// EvaluateSource dispatches on the license kind and applies the shared
// expiry and grace rules.
func EvaluateSource(src Source, deviceHash string, now time.Time) Decision {
	return evaluateWindow(src.window(), deviceHash, now)
}
