package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "walletpass/pkg/domain-errors"
	"walletpass/pkg/testutil"
)

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

type mapStore struct {
	mu      sync.Mutex
	secrets map[string]string
	fail    map[string]error
	reads   []string
}

func (m *mapStore) GetSecret(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, name)
	if err := m.fail[name]; err != nil {
		return "", err
	}
	v, ok := m.secrets[name]
	if !ok {
		return "", errors.New("secret not found: " + name)
	}
	return v, nil
}

type LoaderSuite struct {
	suite.Suite
	material testutil.SigningMaterial
	store    *mapStore
	names    Names
}

func TestLoaderSuite(t *testing.T) {
	suite.Run(t, new(LoaderSuite))
}

func (s *LoaderSuite) SetupTest() {
	s.material = testutil.NewSigningMaterial(s.T())
	s.names = Names{WWDRCert: "wwdr", SignerCert: "cert", SignerKey: "key"}
	s.store = &mapStore{
		secrets: map[string]string{
			"wwdr": `{"wwdrCert": ` + jsonString(s.material.CAPEM) + `}`,
			"cert": s.material.SignerPEM + "\n",
			"key":  `{"signerKey": ` + jsonString(s.material.KeyPKCS8PEM) + `, "note": "rotated"}`,
		},
		fail: map[string]error{},
	}
}

func (s *LoaderSuite) TestLoad() {
	set, err := NewLoader(s.store, s.names).Load(context.Background())
	s.Require().NoError(err)

	s.Equal(s.material.CAPEM, set.WWDR)
	s.Equal(s.material.SignerPEM, set.SignerCert)
	s.Equal(s.material.KeyPKCS1PEM, set.SignerKey, "PKCS#8 key must be transcoded")
	s.ElementsMatch([]string{"wwdr", "cert", "key"}, s.store.reads)
}

func (s *LoaderSuite) TestLoadFailures() {
	s.Run("store error is a credential error", func() {
		s.store.fail["cert"] = errors.New("access denied")
		_, err := NewLoader(s.store, s.names).Load(context.Background())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredential))
		s.Contains(err.Error(), "access denied")
		delete(s.store.fail, "cert")
	})

	s.Run("bad key is a credential error", func() {
		s.store.secrets["key"] = "-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----"
		_, err := NewLoader(s.store, s.names).Load(context.Background())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredential))
	})

	s.Run("malformed wrapper is a credential error", func() {
		s.store.secrets["wwdr"] = `{"wwdrCert": `
		_, err := NewLoader(s.store, s.names).Load(context.Background())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredential))
	})
}

func (s *LoaderSuite) TestLoadFromPKCS12Bundle() {
	s.names.SignerP12 = "bundle"
	s.names.SignerPassword = "s3cret"
	der := signerBundle(s.T(), s.material, "s3cret")

	for name, raw := range map[string]string{
		"raw DER":     string(der),
		"base64 text": base64.StdEncoding.EncodeToString(der),
	} {
		s.Run(name, func() {
			s.store.secrets["bundle"] = raw

			set, err := NewLoader(s.store, s.names).Load(context.Background())

			s.Require().NoError(err)
			s.Equal(s.material.CAPEM, set.WWDR)
			s.Equal(s.material.SignerPEM, set.SignerCert)
			s.Equal(s.material.KeyPKCS1PEM, set.SignerKey)
		})
	}
}

func (s *LoaderSuite) TestLoadPKCS12Path() {
	s.names.SignerP12 = "bundle"
	s.store.secrets["bundle"] = "bm90IGEgYnVuZGxl"

	_, err := NewLoader(s.store, s.names).Load(context.Background())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCredential))
	s.NotContains(s.store.reads, "cert", "bundle replaces the separate signer secrets")
	s.NotContains(s.store.reads, "key")
}
