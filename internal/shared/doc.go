// Package shared holds helpers used across the transcriptor's packages that
// belong to no single domain.
//
// # Test Utilities
//
// The testutil subpackage provides:
//
//	- a buffered slog handler for asserting on log output
//	- license fixtures: generated key pairs, issued tokens, legacy files and
//	  preconfigured managers
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    fx := testutil.NewLicenseFixtures(t)
//	    fx.Install(fx.Request())
//	    m := fx.Manager(license.Options{})
//	    // ...
//	}
//
// This package must not contain business logic.
package shared
