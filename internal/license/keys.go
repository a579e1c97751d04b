package license

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// MinRSABits is the smallest RSA modulus accepted for license signing.
const MinRSABits = 2048

// LoadPublicKeyFile reads and parses a public key from disk.
func LoadPublicKeyFile(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read public key", Path: path, Err: err}
	}
	return loadPublicKey(data, path)
}

// LoadPublicKey parses public key material. Accepted encodings are PEM
// "PUBLIC KEY" (PKIX), "RSA PUBLIC KEY" (PKCS#1), "CERTIFICATE", bare PKIX
// DER and OpenSSH authorized_keys lines.
func LoadPublicKey(material []byte) (crypto.PublicKey, error) {
	return loadPublicKey(material, "inline public key")
}

// ResolvePublicKey loads the operator-supplied key, preferring inline PEM over
// a path. It returns ErrNoPublicKey when neither is set; there is no fallback.
func ResolvePublicKey(inline, path string) (crypto.PublicKey, error) {
	if strings.TrimSpace(inline) != "" {
		return LoadPublicKey([]byte(inline))
	}
	if strings.TrimSpace(path) != "" {
		return LoadPublicKeyFile(path)
	}
	return nil, ErrNoPublicKey
}

func loadPublicKey(data []byte, source string) (crypto.PublicKey, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("empty input")}
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return parseBarePublicKey(data, source)
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "PUBLIC KEY":
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		var cert *x509.Certificate
		if cert, err = x509.ParseCertificate(block.Bytes); err == nil {
			key = cert.PublicKey
		}
	default:
		if strings.Contains(block.Type, "PRIVATE KEY") {
			return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("got a private key where a public key was expected")}
		}
		return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("unsupported PEM block %q", block.Type)}
	}
	if err != nil {
		return nil, &KeyFormatError{Source: source, Err: err}
	}

	return checkPublicKey(key, source)
}

// parseBarePublicKey handles non-PEM input: OpenSSH public keys and raw DER.
func parseBarePublicKey(data []byte, source string) (crypto.PublicKey, error) {
	if sshKey, _, _, _, err := ssh.ParseAuthorizedKey(data); err == nil {
		cryptoKey, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("ssh key type %s not supported", sshKey.Type())}
		}
		return checkPublicKey(cryptoKey.CryptoPublicKey(), source)
	}

	if key, err := x509.ParsePKIXPublicKey(data); err == nil {
		return checkPublicKey(key, source)
	}

	return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("not PEM, DER or OpenSSH encoded")}
}

func checkPublicKey(key any, source string) (crypto.PublicKey, error) {
	switch k := key.(type) {
	case *rsa.PublicKey:
		if k.N.BitLen() < MinRSABits {
			return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("rsa key is %d bits, need at least %d", k.N.BitLen(), MinRSABits)}
		}
		return k, nil
	case *ecdsa.PublicKey:
		if err := checkCurve(k.Curve); err != nil {
			return nil, &KeyFormatError{Source: source, Err: err}
		}
		return k, nil
	case ed25519.PublicKey:
		return k, nil
	default:
		return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("unsupported public key type %T", key)}
	}
}

// LoadPrivateKeyFile reads and parses a signing key from disk.
func LoadPrivateKeyFile(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read private key", Path: path, Err: err}
	}
	return loadPrivateKey(data, path)
}

// LoadPrivateKey parses a PEM private key: PKCS#8, PKCS#1, SEC1 or OpenSSH.
// Only the offline issuance path needs it.
func LoadPrivateKey(material []byte) (crypto.Signer, error) {
	return loadPrivateKey(material, "inline private key")
}

func loadPrivateKey(data []byte, source string) (crypto.Signer, error) {
	data = bytes.TrimSpace(data)
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("no PEM block found")}
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "OPENSSH PRIVATE KEY":
		key, err = ssh.ParseRawPrivateKey(data)
	default:
		return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("unsupported PEM block %q", block.Type)}
	}
	if err != nil {
		return nil, &KeyFormatError{Source: source, Err: err}
	}

	switch k := key.(type) {
	case *rsa.PrivateKey:
		if _, err := checkPublicKey(&k.PublicKey, source); err != nil {
			return nil, err
		}
		return k, nil
	case *ecdsa.PrivateKey:
		if err := checkCurve(k.Curve); err != nil {
			return nil, &KeyFormatError{Source: source, Err: err}
		}
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	case *ed25519.PrivateKey:
		return *k, nil
	default:
		return nil, &KeyFormatError{Source: source, Err: fmt.Errorf("unsupported private key type %T", key)}
	}
}

func checkCurve(curve elliptic.Curve) error {
	switch curve {
	case elliptic.P256(), elliptic.P384(), elliptic.P521():
		return nil
	default:
		return fmt.Errorf("unsupported elliptic curve %s", curve.Params().Name)
	}
}

// GenerateKeys creates a signing key pair suited to alg and returns it as
// PEM: PKCS#8 for the private half, PKIX for the public half.
func GenerateKeys(alg string) (privatePEM, publicPEM []byte, err error) {
	var signer crypto.Signer
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
		signer, err = rsa.GenerateKey(rand.Reader, 3072)
	case "ES256":
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "ES512":
		signer, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case "EdDSA":
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, nil, &TokenError{Kind: ErrUnsupportedAlgorithm, Err: fmt.Errorf("cannot generate keys for %q", alg)}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error generating private key: %w", err)
	}

	privateDER, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling private key: %w", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling public key: %w", err)
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	return privatePEM, publicPEM, nil
}

// AlgorithmFor returns the customary signing algorithm for key's family, or
// "" when the key cannot sign licenses.
func AlgorithmFor(key crypto.PublicKey) string {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case ed25519.PublicKey:
		return "EdDSA"
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return "ES256"
		case elliptic.P384():
			return "ES384"
		case elliptic.P521():
			return "ES512"
		}
	}
	return ""
}
