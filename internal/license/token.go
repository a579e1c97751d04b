package license

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAlgorithms is the verifier allow-list used when none is configured.
var DefaultAlgorithms = []string{"RS256", "ES256"}

// supportedAlgorithms maps every algorithm the codec can handle to a check
// that the key belongs to the matching family.
var supportedAlgorithms = map[string]func(key any) bool{
	"RS256": isRSA, "RS384": isRSA, "RS512": isRSA,
	"PS256": isRSA, "PS384": isRSA, "PS512": isRSA,
	"ES256": curveIs(elliptic.P256()),
	"ES384": curveIs(elliptic.P384()),
	"ES512": curveIs(elliptic.P521()),
	"EdDSA": isEd25519,
}

// SupportedAlgorithms lists the algorithms Encode accepts, sorted.
func SupportedAlgorithms() []string {
	out := make([]string, 0, len(supportedAlgorithms))
	for alg := range supportedAlgorithms {
		out = append(out, alg)
	}
	sort.Strings(out)
	return out
}

func isRSA(key any) bool {
	switch key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return true
	}
	return false
}

func isEd25519(key any) bool {
	switch key.(type) {
	case ed25519.PublicKey, ed25519.PrivateKey:
		return true
	}
	return false
}

func curveIs(curve elliptic.Curve) func(any) bool {
	return func(key any) bool {
		switch k := key.(type) {
		case *ecdsa.PublicKey:
			return k.Curve == curve
		case *ecdsa.PrivateKey:
			return k.Curve == curve
		}
		return false
	}
}

// tokenClaims is the wire shape. grace_until is written alongside grace_days so
// verifiers that only know the older field keep working.
type tokenClaims struct {
	jwt.RegisteredClaims
	Plan       string           `json:"plan,omitempty"`
	Features   []string         `json:"features"`
	Seats      int              `json:"seats,omitempty"`
	Device     string           `json:"device,omitempty"`
	GraceDays  *int             `json:"grace_days,omitempty"`
	GraceUntil *jwt.NumericDate `json:"grace_until,omitempty"`
}

// Encode signs claims with key using alg after normalizing them. Used only by
// the offline issuer.
func Encode(claims Claims, key crypto.Signer, alg string) (string, error) {
	compatible, ok := supportedAlgorithms[alg]
	if !ok {
		return "", &TokenError{Kind: ErrUnsupportedAlgorithm, Err: fmt.Errorf("algorithm %q", alg)}
	}
	if key == nil || !compatible(key) {
		return "", &KeyFormatError{Source: "signing key", Err: fmt.Errorf("%T cannot sign %s", key, alg)}
	}

	claims.Normalize()
	if err := claims.validateForIssue(); err != nil {
		return "", err
	}

	grace := claims.GraceDays
	wire := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.SubjectEmail,
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        claims.TokenID,
		},
		Plan:       claims.Plan,
		Features:   claims.Features,
		Seats:      claims.Seats,
		Device:     claims.DeviceHash,
		GraceDays:  &grace,
		GraceUntil: jwt.NewNumericDate(claims.GraceDeadline()),
	}
	if !claims.IssuedAt.IsZero() {
		wire.IssuedAt = jwt.NewNumericDate(claims.IssuedAt)
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(alg), wire)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign license token: %w", err)
	}
	return signed, nil
}

// Verifier checks token signatures against one trusted public key and a pinned
// algorithm allow-list. It performs no time or device checks.
type Verifier struct {
	key     crypto.PublicKey
	allowed map[string]struct{}
	parser  *jwt.Parser
}

// NewVerifier builds a verifier. An empty algorithms list means DefaultAlgorithms.
func NewVerifier(key crypto.PublicKey, algorithms ...string) (*Verifier, error) {
	if key == nil {
		return nil, ErrNoPublicKey
	}
	if len(algorithms) == 0 {
		algorithms = DefaultAlgorithms
	}

	allowed := make(map[string]struct{}, len(algorithms))
	for _, alg := range algorithms {
		if _, ok := supportedAlgorithms[alg]; !ok {
			return nil, &TokenError{Kind: ErrUnsupportedAlgorithm, Err: fmt.Errorf("cannot allow %q", alg)}
		}
		allowed[alg] = struct{}{}
	}

	return &Verifier{
		key:     key,
		allowed: allowed,
		// Expiry belongs to the evaluator, which applies the grace window.
		// Strict decoding rejects segments with non-zero trailing bits, so no
		// two encodings of one signature both verify.
		parser: jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithStrictDecoding()),
	}, nil
}

// Algorithms returns the allow-list, sorted.
func (v *Verifier) Algorithms() []string {
	out := make([]string, 0, len(v.allowed))
	for alg := range v.allowed {
		out = append(out, alg)
	}
	sort.Strings(out)
	return out
}

// keyFunc never trusts the header: the declared algorithm must be allowed and
// must match the family of the configured key.
func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	alg := token.Method.Alg()
	if _, ok := v.allowed[alg]; !ok {
		return nil, fmt.Errorf("%w: %q not in allow-list", ErrUnsupportedAlgorithm, alg)
	}
	if !supportedAlgorithms[alg](v.key) {
		return nil, fmt.Errorf("%w: %q does not match the configured key", ErrUnsupportedAlgorithm, alg)
	}
	return v.key, nil
}

// DecodeAndVerify parses token, verifies its signature and returns the claims.
// Errors match ErrMalformedToken, ErrSignature or ErrUnsupportedAlgorithm.
func (v *Verifier) DecodeAndVerify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	var wire tokenClaims
	if _, err := v.parser.ParseWithClaims(token, &wire, v.keyFunc); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && v.onlySignatureUnreadable(token) {
			return Claims{}, &TokenError{Kind: ErrSignature, Err: err}
		}
		return Claims{}, classifyJWTError(err)
	}

	claims, err := wire.toClaims()
	if err != nil {
		return Claims{}, err
	}
	if err := claims.validateDecoded(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// onlySignatureUnreadable reports whether header and claims decode cleanly,
// which leaves the signature segment as the malformed part. An altered
// signature is a signature failure however it fails to decode.
func (v *Verifier) onlySignatureUnreadable(token string) bool {
	var wire tokenClaims
	_, parts, err := v.parser.ParseUnverified(token, &wire)
	return err == nil && len(parts) == 3
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return &TokenError{Kind: ErrUnsupportedAlgorithm, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &TokenError{Kind: ErrMalformedToken, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &TokenError{Kind: ErrSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// the header names an algorithm the library does not know
		return &TokenError{Kind: ErrUnsupportedAlgorithm, Err: err}
	default:
		return &TokenError{Kind: ErrMalformedToken, Err: err}
	}
}

func (w tokenClaims) toClaims() (Claims, error) {
	if w.ExpiresAt == nil {
		return Claims{}, malformed("missing exp claim")
	}
	if w.Seats < 0 {
		return Claims{}, malformed("negative seats %d", w.Seats)
	}

	c := Claims{
		SubjectEmail: w.Subject,
		Plan:         w.Plan,
		Features:     w.Features,
		ExpiresAt:    w.ExpiresAt.Time,
		DeviceHash:   w.Device,
		Seats:        w.Seats,
		TokenID:      w.ID,
	}
	if w.IssuedAt != nil {
		c.IssuedAt = w.IssuedAt.Time
	}

	switch {
	case w.GraceDays != nil:
		c.GraceDays = *w.GraceDays
	case w.GraceUntil != nil:
		// tokens from the older issuer only carry the absolute deadline
		span := w.GraceUntil.Sub(w.ExpiresAt.Time)
		if span < 0 {
			return Claims{}, malformed("grace_until precedes exp")
		}
		c.GraceDays = int(math.Floor(span.Hours() / 24))
	}

	c.Normalize()
	return c, nil
}

// ParseUnverified decodes the claims without checking the signature. Only
// diagnostics may use it; nothing it returns may drive an access decision.
func ParseUnverified(token string) (Claims, string, error) {
	var wire tokenClaims
	parsed, _, err := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(strings.TrimSpace(token), &wire)
	if err != nil {
		return Claims{}, "", classifyJWTError(err)
	}
	claims, err := wire.toClaims()
	if err != nil {
		return Claims{}, "", err
	}
	return claims, parsed.Method.Alg(), nil
}
