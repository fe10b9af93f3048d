package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SigningMaterial is a throwaway CA plus a signer certificate issued by it,
// shaped like the WWDR intermediate and a pass type certificate.
type SigningMaterial struct {
	CA        *x509.Certificate
	CAPEM     string
	Signer    *x509.Certificate
	SignerPEM string
	Key       *rsa.PrivateKey
	// KeyPKCS1PEM and KeyPKCS8PEM hold the same key in both encodings.
	KeyPKCS1PEM string
	KeyPKCS8PEM string
}

// NewSigningMaterial generates RSA signing material for tests.
func NewSigningMaterial(t *testing.T) SigningMaterial {
	t.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test WWDR CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signerTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Pass Type ID: pass.test.walletpass"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	signerDER, err := x509.CreateCertificate(rand.Reader, signerTmpl, ca, &key.PublicKey, caKey)
	require.NoError(t, err)
	signer, err := x509.ParseCertificate(signerDER)
	require.NoError(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return SigningMaterial{
		CA:          ca,
		CAPEM:       PEM("CERTIFICATE", caDER),
		Signer:      signer,
		SignerPEM:   PEM("CERTIFICATE", signerDER),
		Key:         key,
		KeyPKCS1PEM: PEM("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)),
		KeyPKCS8PEM: PEM("PRIVATE KEY", pkcs8),
	}
}

// NewECKey returns a P-256 key in SEC1 and PKCS#8 PEM.
func NewECKey(t *testing.T) (sec1PEM, pkcs8PEM string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	sec1, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return PEM("EC PRIVATE KEY", sec1), PEM("PRIVATE KEY", pkcs8)
}

// PEM encodes der without a trailing newline.
func PEM(blockType string, der []byte) string {
	out := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	return string(out[:len(out)-1])
}
