package credentials

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// FromPKCS12 splits a signer bundle into certificate and legacy key PEM.
// The bundle may be raw DER or base64 text, which is how binary secrets
// travel through string-valued stores.
func FromPKCS12(bundle []byte, password string) (certPEM, keyPEM string, err error) {
	der := bundle
	if decoded, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(bundle))); decErr == nil {
		der = decoded
	}

	key, cert, err := pkcs12.Decode(der, password)
	if err != nil {
		return "", "", fmt.Errorf("decode PKCS#12 bundle: %w", err)
	}
	keyPEM, err = marshalLegacy(key)
	if err != nil {
		return "", "", err
	}
	return encodePEM(blockCertificate, cert.Raw), keyPEM, nil
}
