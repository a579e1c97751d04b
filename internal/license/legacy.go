package license

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LegacyPlan labels decisions produced by shared-secret licenses.
const LegacyPlan = "legacy"

// legacyTimeLayout is ISO-8601 with an explicit UTC offset, which every
// historical reader of these files accepts.
const legacyTimeLayout = "2006-01-02T15:04:05-07:00"

// LegacyLicense is a shared-secret license. Two on-disk layouts exist: a flat
// object whose "signature" is a hex MAC, and an older {"payload", "signature"}
// envelope whose signature is URL-safe base64.
type LegacyLicense struct {
	Name      string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Product   string
	Note      string
	Signature string
	Nested    bool

	// payload is the exact object covered by the MAC, as read from disk.
	payload map[string]any
}

// LegacyIssueRequest carries the inputs for a new shared-secret license.
type LegacyIssueRequest struct {
	Name    string
	Email   string
	Days    int
	Product string
	Note    string
}

// IssueLegacy creates and signs a flat-layout legacy license.
func IssueLegacy(req LegacyIssueRequest, secret []byte, now time.Time) (*LegacyLicense, error) {
	if len(secret) == 0 {
		return nil, ErrNoLegacySecret
	}
	if req.Days <= 0 {
		return nil, fmt.Errorf("validity must be at least one day, got %d", req.Days)
	}

	now = now.UTC().Truncate(time.Second)
	lic := &LegacyLicense{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		IssuedAt:  now,
		ExpiresAt: now.AddDate(0, 0, req.Days),
		Product:   strings.TrimSpace(req.Product),
		Note:      strings.TrimSpace(req.Note),
	}

	lic.payload = map[string]any{
		"name":       lic.Name,
		"email":      lic.Email,
		"issued_at":  lic.IssuedAt.Format(legacyTimeLayout),
		"expires_at": lic.ExpiresAt.Format(legacyTimeLayout),
	}
	if lic.Product != "" {
		lic.payload["product"] = lic.Product
	}
	if lic.Note != "" {
		lic.payload["note"] = lic.Note
	}

	mac, err := legacyMAC(secret, lic.payload)
	if err != nil {
		return nil, err
	}
	lic.Signature = hex.EncodeToString(mac)
	return lic, nil
}

// ParseLegacy decodes either legacy layout. Structural problems are reported
// as malformed tokens.
func ParseLegacy(raw []byte) (*LegacyLicense, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed("legacy license is not a JSON object: %v", err)
	}

	signature, ok := doc["signature"].(string)
	if !ok || signature == "" {
		return nil, malformed("legacy license has no signature")
	}

	lic := &LegacyLicense{Signature: signature}
	if inner, nested := doc["payload"]; nested {
		payload, ok := inner.(map[string]any)
		if !ok {
			return nil, malformed("legacy payload is not an object")
		}
		lic.Nested = true
		lic.payload = payload
		lic.Name = stringField(payload, "holder")
	} else {
		delete(doc, "signature")
		lic.payload = doc
		lic.Name = stringField(doc, "name")
	}

	lic.Email = stringField(lic.payload, "email")
	lic.Product = stringField(lic.payload, "product")
	lic.Note = stringField(lic.payload, "note")

	expires, err := parseISOTime(stringField(lic.payload, "expires_at"))
	if err != nil {
		return nil, malformed("legacy expires_at: %v", err)
	}
	lic.ExpiresAt = expires

	if issued := stringField(lic.payload, "issued_at"); issued != "" {
		if lic.IssuedAt, err = parseISOTime(issued); err != nil {
			return nil, malformed("legacy issued_at: %v", err)
		}
	}

	return lic, nil
}

// MarshalJSON writes the license back in the layout it was read in.
func (l *LegacyLicense) MarshalJSON() ([]byte, error) {
	if l.Nested {
		return json.Marshal(map[string]any{"payload": l.payload, "signature": l.Signature})
	}
	doc := make(map[string]any, len(l.payload)+1)
	for k, v := range l.payload {
		doc[k] = v
	}
	doc["signature"] = l.Signature
	return json.Marshal(doc)
}

// LegacyVerifier checks shared-secret licenses.
type LegacyVerifier struct {
	secret  []byte
	product string
}

// NewLegacyVerifier returns a verifier for secret. A non-empty product makes
// licenses naming a different product fail.
func NewLegacyVerifier(secret, product string) *LegacyVerifier {
	return &LegacyVerifier{secret: []byte(secret), product: strings.TrimSpace(product)}
}

// Configured reports whether a secret is available.
func (v *LegacyVerifier) Configured() bool {
	return v != nil && len(v.secret) > 0
}

// Verify checks the MAC. Expiry is left to the evaluator.
func (v *LegacyVerifier) Verify(lic *LegacyLicense) error {
	if !v.Configured() {
		return ErrNoLegacySecret
	}

	expected, err := legacyMAC(v.secret, lic.payload)
	if err != nil {
		return err
	}

	var encoded string
	if lic.Nested {
		encoded = base64.URLEncoding.EncodeToString(expected)
	} else {
		encoded = hex.EncodeToString(expected)
	}
	if !hmac.Equal([]byte(encoded), []byte(lic.Signature)) {
		return &TokenError{Kind: ErrSignature, Err: fmt.Errorf("legacy MAC mismatch")}
	}

	if v.product != "" && lic.Product != "" && lic.Product != v.product {
		return fmt.Errorf("%w: %q", ErrProductMismatch, lic.Product)
	}
	return nil
}

func legacyMAC(secret []byte, payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, payload); err != nil {
		return nil, malformed("legacy payload: %v", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(buf.Bytes())
	return mac.Sum(nil), nil
}

// writeCanonical emits compact JSON with sorted keys and every non-ASCII rune
// escaped as \uXXXX. The issuing tool produced exactly this byte sequence, and
// encoding/json differs from it (HTML escaping, raw UTF-8).
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case json.Number:
		buf.WriteString(val.String())
	case float64:
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case string:
		writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value of type %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20:
				fmt.Fprintf(buf, `\u%04x`, r)
			case r < 0x7f:
				buf.WriteRune(r)
			case r > 0xFFFF:
				r -= 0x10000
				fmt.Fprintf(buf, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			default:
				fmt.Fprintf(buf, `\u%04x`, r)
			}
		}
	}
	buf.WriteByte('"')
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// parseISOTime accepts RFC 3339 and the naive forms the legacy tools wrote.
// Times without an offset are UTC.
func parseISOTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
