package errors

import (
	"errors"
	"net/http"

	"github.com/enrferaba/Grabadora-Intento4/internal/license"
)

// License problem types.
const (
	TypeLicenseNotFound      = "/errors/license/not-found"
	TypeLicenseMalformed     = "/errors/license/malformed"
	TypeLicenseSignature     = "/errors/license/invalid-signature"
	TypeLicenseAlgorithm     = "/errors/license/unsupported-algorithm"
	TypeLicenseRejected      = "/errors/license/rejected"
	TypeLicenseStorage       = "/errors/license/storage"
	TypeLicenseNotConfigured = "/errors/license/not-configured"
	TypeFeatureNotLicensed   = "/errors/license/feature-not-licensed"
)

// LicenseProblem maps an error from the license package to a problem. The
// second return is false when err carries no license semantics.
func LicenseProblem(err error, instance string) (*ProblemDetails, bool) {
	var (
		rejected *license.RejectedError
		feature  *license.FeatureError
	)

	switch {
	case errors.As(err, &feature):
		return NewProblemDetails(http.StatusForbidden, TypeFeatureNotLicensed,
			"Feature Not Licensed", feature.Error(), instance).
			WithExtension("feature", feature.Feature), true

	case errors.As(err, &rejected):
		d := rejected.Decision
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeLicenseRejected,
			"License Rejected", "The license was not installed: "+d.Reason, instance).
			WithExtension("reason", d.Reason).
			WithExtension("source", d.Source), true

	case errors.Is(err, license.ErrNotFound):
		return NewProblemDetails(http.StatusNotFound, TypeLicenseNotFound,
			"License Not Found", "No license is installed", instance), true

	case errors.Is(err, license.ErrUnsupportedAlgorithm):
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeLicenseAlgorithm,
			"Unsupported Signing Algorithm", err.Error(), instance), true

	case errors.Is(err, license.ErrSignature), errors.Is(err, license.ErrProductMismatch):
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeLicenseSignature,
			"Invalid License Signature", err.Error(), instance), true

	case errors.Is(err, license.ErrMalformedToken):
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeLicenseMalformed,
			"Malformed License", err.Error(), instance), true

	case errors.Is(err, license.ErrNoPublicKey), errors.Is(err, license.ErrNoLegacySecret):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeLicenseNotConfigured,
			"License Verification Not Configured", err.Error(), instance), true

	case errors.Is(err, license.ErrIO):
		// Paths stay in the log, not in the response.
		return NewProblemDetails(http.StatusInternalServerError, TypeLicenseStorage,
			"License Storage Failure", "The license file could not be read or written", instance), true
	}
	return nil, false
}
