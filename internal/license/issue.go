package license

import (
	"crypto"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IssueRequest carries the issuer's inputs for a new signed license.
type IssueRequest struct {
	Email      string
	Plan       string
	Features   []string
	Seats      int
	Days       int
	GraceDays  int
	DeviceHash string
	Algorithm  string
}

// Issued is a freshly minted license.
type Issued struct {
	Claims Claims
	Token  string
}

// Payload renders the claims the way they appear inside the token.
func (i Issued) Payload() ([]byte, error) {
	return json.MarshalIndent(payloadView(i.Claims), "", "  ")
}

// File wraps the token in the on-disk license shape.
func (i Issued) File() *File {
	return &File{Token: i.Token}
}

// Issue builds claims from req at time now and signs them with key.
func Issue(req IssueRequest, key crypto.Signer, now time.Time) (Issued, error) {
	if req.Days <= 0 {
		return Issued{}, fmt.Errorf("validity must be at least one day, got %d", req.Days)
	}
	if req.Algorithm == "" {
		req.Algorithm = DefaultAlgorithms[0]
	}

	now = now.UTC().Truncate(time.Second)
	claims := Claims{
		SubjectEmail: req.Email,
		Plan:         req.Plan,
		Features:     req.Features,
		IssuedAt:     now,
		ExpiresAt:    now.AddDate(0, 0, req.Days),
		GraceDays:    req.GraceDays,
		DeviceHash:   req.DeviceHash,
		Seats:        req.Seats,
		TokenID:      uuid.NewString(),
	}

	token, err := Encode(claims, key, req.Algorithm)
	if err != nil {
		return Issued{}, err
	}

	claims.Normalize()
	return Issued{Claims: claims, Token: token}, nil
}

// payloadView mirrors the token claims with numeric dates, as the issuer
// prints them.
func payloadView(c Claims) map[string]any {
	view := map[string]any{
		"sub":         c.SubjectEmail,
		"plan":        c.Plan,
		"features":    c.Features,
		"seats":       c.Seats,
		"exp":         c.ExpiresAt.Unix(),
		"grace_days":  c.GraceDays,
		"grace_until": c.GraceDeadline().Unix(),
	}
	if !c.IssuedAt.IsZero() {
		view["iat"] = c.IssuedAt.Unix()
	}
	if c.DeviceHash != "" {
		view["device"] = c.DeviceHash
	}
	if c.TokenID != "" {
		view["jti"] = c.TokenID
	}
	return view
}
