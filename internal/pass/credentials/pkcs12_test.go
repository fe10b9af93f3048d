package credentials

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"

	"walletpass/pkg/testutil"
)

// signerBundle encodes the signer key and certificate with the legacy
// algorithms that keychain exports use.
func signerBundle(t *testing.T, m testutil.SigningMaterial, password string) []byte {
	t.Helper()
	der, err := gopkcs12.LegacyRC2.Encode(m.Key, m.Signer, nil, password)
	require.NoError(t, err)
	return der
}

func TestFromPKCS12(t *testing.T) {
	m := testutil.NewSigningMaterial(t)
	der := signerBundle(t, m, "s3cret")

	tests := []struct {
		name   string
		bundle []byte
	}{
		{name: "raw DER", bundle: der},
		{name: "base64 text", bundle: []byte(base64.StdEncoding.EncodeToString(der))},
		{name: "base64 text with newline", bundle: []byte(base64.StdEncoding.EncodeToString(der) + "\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certPEM, keyPEM, err := FromPKCS12(tt.bundle, "s3cret")
			require.NoError(t, err)

			assert.Equal(t, m.SignerPEM, certPEM)
			assert.Equal(t, m.KeyPKCS1PEM, keyPEM)

			normalized, err := NormalizePrivateKey(keyPEM)
			require.NoError(t, err)
			block, _ := pem.Decode([]byte(normalized))
			require.NotNil(t, block)
			assert.Equal(t, "RSA PRIVATE KEY", block.Type)
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			require.NoError(t, err)
			assert.True(t, key.Equal(m.Key), "key material must survive the bundle")
		})
	}
}

func TestFromPKCS12WrongPassword(t *testing.T) {
	m := testutil.NewSigningMaterial(t)

	_, _, err := FromPKCS12(signerBundle(t, m, "right"), "wrong")
	assert.Error(t, err)
}

func TestFromPKCS12RejectsGarbage(t *testing.T) {
	_, _, err := FromPKCS12([]byte("definitely not a bundle"), "secret")
	assert.Error(t, err)
}
