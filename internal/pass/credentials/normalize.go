// Package credentials loads the pass signing material from the secret store
// and normalizes it into the PEM forms the signer accepts.
package credentials

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const (
	blockRSA         = "RSA PRIVATE KEY"
	blockEC          = "EC PRIVATE KEY"
	blockPKCS8       = "PRIVATE KEY"
	blockEncrypted   = "ENCRYPTED PRIVATE KEY"
	blockCertificate = "CERTIFICATE"
)

var (
	ErrNoPEM           = errors.New("no PEM block found")
	ErrUnsupportedKey  = errors.New("unsupported private key")
	ErrEmptySecret     = errors.New("secret is empty")
	ErrMalformedSecret = errors.New("secret JSON wrapper is malformed")
)

// UnwrapSecret accepts either bare PEM or a JSON object whose first value,
// in document order, holds the PEM text. The result is trimmed.
func UnwrapSecret(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptySecret
	}
	if !strings.HasPrefix(s, "{") {
		return s, nil
	}

	dec := json.NewDecoder(strings.NewReader(s))
	if _, err := dec.Token(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
	if !dec.More() {
		return "", fmt.Errorf("%w: object has no values", ErrMalformedSecret)
	}
	if _, err := dec.Token(); err != nil { // key
		return "", fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
	var value string
	if err := dec.Decode(&value); err != nil {
		return "", fmt.Errorf("%w: first value: %v", ErrMalformedSecret, err)
	}
	// drain the rest so a truncated document is still rejected
	for dec.More() {
		var skip json.RawMessage
		if _, err := dec.Token(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedSecret, err)
		}
		if err := dec.Decode(&skip); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedSecret, err)
		}
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return "", fmt.Errorf("%w: unterminated object", ErrMalformedSecret)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrEmptySecret
	}
	return value, nil
}

// NormalizePrivateKey returns the key in its legacy single-key encoding.
// PKCS#1 and SEC1 input passes through; PKCS#8 is transcoded to PKCS#1 for
// RSA keys and SEC1 for EC keys.
func NormalizePrivateKey(pemText string) (string, error) {
	block, err := decodePEM(pemText)
	if err != nil {
		return "", err
	}

	switch block.Type {
	case blockRSA:
		if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
			return "", fmt.Errorf("parse RSA private key: %w", err)
		}
		return encodePEM(blockRSA, block.Bytes), nil
	case blockEC:
		if _, err := x509.ParseECPrivateKey(block.Bytes); err != nil {
			return "", fmt.Errorf("parse EC private key: %w", err)
		}
		return encodePEM(blockEC, block.Bytes), nil
	case blockPKCS8:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("parse PKCS#8 private key: %w", err)
		}
		return marshalLegacy(key)
	case blockEncrypted:
		return "", fmt.Errorf("%w: encrypted keys must be decrypted before storage", ErrUnsupportedKey)
	default:
		return "", fmt.Errorf("%w: PEM block %q", ErrUnsupportedKey, block.Type)
	}
}

func marshalLegacy(key any) (string, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return encodePEM(blockRSA, x509.MarshalPKCS1PrivateKey(k)), nil
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			return "", fmt.Errorf("marshal EC private key: %w", err)
		}
		return encodePEM(blockEC, der), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

// NormalizeCertificate checks that the first PEM block is an X.509
// certificate and returns it re-encoded.
func NormalizeCertificate(pemText string) (string, error) {
	block, err := decodePEM(pemText)
	if err != nil {
		return "", err
	}
	if block.Type != blockCertificate {
		return "", fmt.Errorf("expected %s PEM block, got %q", blockCertificate, block.Type)
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return "", fmt.Errorf("parse certificate: %w", err)
	}
	return encodePEM(blockCertificate, block.Bytes), nil
}

func decodePEM(text string) (*pem.Block, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(text)))
	if block == nil {
		return nil, ErrNoPEM
	}
	return block, nil
}

func encodePEM(blockType string, der []byte) string {
	return string(bytes.TrimSpace(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})))
}
