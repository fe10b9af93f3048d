package assembler

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/digitorus/pkcs7"

	"walletpass/internal/pass/models"
)

// Signer produces the detached signature over manifest.json.
type Signer interface {
	Sign(manifest []byte, creds models.CredentialSet) ([]byte, error)
}

// PKCS7Signer signs with SHA-256 and embeds the WWDR certificate as the
// signer's parent.
type PKCS7Signer struct{}

func (PKCS7Signer) Sign(manifest []byte, creds models.CredentialSet) ([]byte, error) {
	wwdr, err := parseCertificate(creds.WWDR)
	if err != nil {
		return nil, fmt.Errorf("wwdr certificate: %w", err)
	}
	cert, err := parseCertificate(creds.SignerCert)
	if err != nil {
		return nil, fmt.Errorf("signer certificate: %w", err)
	}
	key, err := parsePrivateKey(creds.SignerKey)
	if err != nil {
		return nil, err
	}

	sd, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, fmt.Errorf("init signed data: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSignerChain(cert, key, []*x509.Certificate{wwdr}, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("add signer: %w", err)
	}
	sd.Detach()
	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish signature: %w", err)
	}
	return der, nil
}

func parseCertificate(pemText string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

func parsePrivateKey(pemText string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("signer key: no PEM block")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("signer key: unexpected PEM block %q", block.Type)
	}
}
