package license

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestLoadPublicKeyEncodings(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pkixDER, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	require.NoError(t, err)
	ecDER, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)

	tests := []struct {
		name     string
		material []byte
		wantRSA  bool
	}{
		{
			name:     "PKIX PEM RSA",
			material: pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkixDER}),
			wantRSA:  true,
		},
		{
			name:     "PKCS1 PEM RSA",
			material: pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&rsaKey.PublicKey)}),
			wantRSA:  true,
		},
		{
			name:     "PKIX PEM EC with surrounding whitespace",
			material: append(append([]byte("\n\n  "), pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: ecDER})...), '\n'),
		},
		{
			name:     "bare DER EC",
			material: ecDER,
		},
		{
			name:     "OpenSSH authorized key",
			material: ssh.MarshalAuthorizedKey(sshPub),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := LoadPublicKey(tt.material)
			require.NoError(t, err)
			if tt.wantRSA {
				assert.IsType(t, &rsa.PublicKey{}, key)
			} else {
				assert.IsType(t, &ecdsa.PublicKey{}, key)
			}
		})
	}
}

func TestLoadPublicKeyRejectsBadMaterial(t *testing.T) {
	small, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	smallDER, err := x509.MarshalPKIXPublicKey(&small.PublicKey)
	require.NoError(t, err)

	privPEM, _, err := GenerateKeys("ES256")
	require.NoError(t, err)

	tests := []struct {
		name     string
		material []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a key at all")},
		{"truncated PEM", []byte("-----BEGIN PUBLIC KEY-----\nMFkwEwYHKoZIzj0CAQYIKoZI\n-----END PUBLIC KEY-----\n")},
		{"RSA below minimum size", pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: smallDER})},
		{"private key where public expected", privPEM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPublicKey(tt.material)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrKeyFormat)

			var kfe *KeyFormatError
			assert.ErrorAs(t, err, &kfe)
		})
	}
}

func TestResolvePublicKey(t *testing.T) {
	_, pubPEM, err := GenerateKeys("ES256")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(path, pubPEM, 0o600))

	t.Run("inline wins over path", func(t *testing.T) {
		key, err := ResolvePublicKey(string(pubPEM), filepath.Join(dir, "missing.pem"))
		require.NoError(t, err)
		assert.NotNil(t, key)
	})

	t.Run("path", func(t *testing.T) {
		key, err := ResolvePublicKey("", path)
		require.NoError(t, err)
		assert.IsType(t, &ecdsa.PublicKey{}, key)
	})

	t.Run("missing file is an IO error", func(t *testing.T) {
		_, err := ResolvePublicKey("", filepath.Join(dir, "missing.pem"))
		assert.ErrorIs(t, err, ErrIO)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := ResolvePublicKey("  ", "")
		assert.ErrorIs(t, err, ErrNoPublicKey)
	})
}

func TestGenerateKeysRoundTrip(t *testing.T) {
	for _, alg := range []string{"RS256", "ES256", "ES384", "EdDSA"} {
		t.Run(alg, func(t *testing.T) {
			privPEM, pubPEM, err := GenerateKeys(alg)
			require.NoError(t, err)

			signer, err := LoadPrivateKey(privPEM)
			require.NoError(t, err)
			pub, err := LoadPublicKey(pubPEM)
			require.NoError(t, err)

			assert.True(t, supportedAlgorithms[alg](signer), "private key family")
			assert.True(t, supportedAlgorithms[alg](pub), "public key family")
		})
	}

	_, _, err := GenerateKeys("HS256")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestLoadPrivateKeyFormats(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalECPrivateKey(ecKey)
	require.NoError(t, err)
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	opensshBlock, err := ssh.MarshalPrivateKey(edKey, "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		material []byte
	}{
		{"PKCS1", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)})},
		{"SEC1", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: ecDER})},
		{"OpenSSH", pem.EncodeToMemory(opensshBlock)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := LoadPrivateKey(tt.material)
			require.NoError(t, err)
			assert.NotNil(t, signer.Public())
		})
	}

	_, err = LoadPrivateKey([]byte("nope"))
	assert.ErrorIs(t, err, ErrKeyFormat)
}

func TestAlgorithmFor(t *testing.T) {
	for _, alg := range []string{"RS256", "ES256", "ES384", "ES512", "EdDSA"} {
		t.Run(alg, func(t *testing.T) {
			privPEM, _, err := GenerateKeys(alg)
			require.NoError(t, err)
			signer, err := LoadPrivateKey(privPEM)
			require.NoError(t, err)
			assert.Equal(t, alg, AlgorithmFor(signer.Public()))
		})
	}

	assert.Empty(t, AlgorithmFor("not a key"))
}
