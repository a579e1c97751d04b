package license

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by this package matches exactly one
// of them under errors.Is.
var (
	ErrKeyFormat            = errors.New("unrecognized key format")
	ErrMalformedToken       = errors.New("malformed license token")
	ErrSignature            = errors.New("license signature does not verify")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrNotFound             = errors.New("no license installed")
	ErrIO                   = errors.New("license storage failure")

	ErrNoPublicKey     = errors.New("no public key configured")
	ErrNoLegacySecret  = errors.New("legacy secret not configured")
	ErrProductMismatch = errors.New("license issued for another product")
)

// KeyFormatError reports key material that could not be parsed.
type KeyFormatError struct {
	Source string
	Err    error
}

func (e *KeyFormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrKeyFormat, e.Source)
	}
	return fmt.Sprintf("%s: %s: %v", ErrKeyFormat, e.Source, e.Err)
}

func (e *KeyFormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrKeyFormat}
	}
	return []error{ErrKeyFormat, e.Err}
}

// TokenError is returned by the codec. Kind is one of ErrMalformedToken,
// ErrSignature or ErrUnsupportedAlgorithm.
type TokenError struct {
	Kind error
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func malformed(format string, args ...any) error {
	return &TokenError{Kind: ErrMalformedToken, Err: fmt.Errorf(format, args...)}
}

// IOError wraps a failed disk operation on the license file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("license %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}
