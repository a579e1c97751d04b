// Package license issues and verifies the transcriptor's offline licenses.
//
// # Architecture Overview
//
// The package is split along the life of a license:
//
//	- Keys: loading and generating signing and verification key material
//	- Token codec: signing claims (issuer only) and verifying tokens against
//	  one trusted public key and a pinned algorithm allow-list
//	- Evaluator: a pure function from verified claims, device hash and time
//	  to a Decision, including the grace window
//	- Legacy: the older shared-secret HMAC license format
//	- Store: the on-disk license file, replaced atomically
//	- Manager: loads, verifies, evaluates and caches the current Decision
//	- Gate: maps a Decision to the product features it unlocks
//
// # Verification Flow
//
//	1. Load the license file (a missing file is ErrNotFound)
//	2. A signed token, when present, is verified with the configured key;
//	   otherwise legacy fields are verified with the shared secret
//	3. The verified license is evaluated for this device at the current time
//	4. The decision is cached for a short time and served to callers
//
// Every failure before evaluation becomes an inactive Decision with a
// stable reason string; nothing in this package panics on hostile input.
//
// # Security
//
// Verification never trusts the token header: the declared algorithm must be
// on the allow-list and match the family of the configured key, which defeats
// "alg: none" and HMAC-with-public-key substitution. Subjects are masked in
// logs and tokens are identified only by a short digest.
package license
