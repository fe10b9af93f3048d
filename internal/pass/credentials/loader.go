package credentials

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"walletpass/internal/pass/models"
	"walletpass/internal/pass/ports"
	"walletpass/internal/platform/logger"
	dErrors "walletpass/pkg/domain-errors"
)

// Names are the secret-store names of the signing material. When SignerP12
// is set it replaces SignerCert and SignerKey.
type Names struct {
	WWDRCert       string
	SignerCert     string
	SignerKey      string
	SignerP12      string
	SignerPassword string
}

type Loader struct {
	store  ports.SecretStore
	names  Names
	logger *slog.Logger
}

type Option func(*Loader)

func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) {
		ld.logger = l
	}
}

func NewLoader(store ports.SecretStore, names Names, opts ...Option) *Loader {
	ld := &Loader{store: store, names: names, logger: logger.Discard()}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load fetches every secret concurrently. Any failure is a CodeCredential
// error and the whole set is discarded.
func (ld *Loader) Load(ctx context.Context) (models.CredentialSet, error) {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	var set models.CredentialSet

	g.Go(func() error {
		wwdr, err := ld.certificate(ctx, ld.names.WWDRCert)
		if err != nil {
			return err
		}
		set.WWDR = wwdr
		return nil
	})

	if ld.names.SignerP12 != "" {
		g.Go(func() error {
			raw, err := ld.store.GetSecret(ctx, ld.names.SignerP12)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeCredential, "fetch signer bundle")
			}
			cert, key, err := FromPKCS12([]byte(raw), ld.names.SignerPassword)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeCredential, "signer bundle")
			}
			set.SignerCert, set.SignerKey = cert, key
			return nil
		})
	} else {
		g.Go(func() error {
			cert, err := ld.certificate(ctx, ld.names.SignerCert)
			if err != nil {
				return err
			}
			set.SignerCert = cert
			return nil
		})
		g.Go(func() error {
			pemText, err := ld.unwrapped(ctx, ld.names.SignerKey)
			if err != nil {
				return err
			}
			key, err := NormalizePrivateKey(pemText)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeCredential, "signer key")
			}
			set.SignerKey = key
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		ld.logger.ErrorContext(ctx, "credential load failed", "error", err)
		return models.CredentialSet{}, err
	}

	ld.logger.DebugContext(ctx, "credentials loaded", "duration_ms", time.Since(start).Milliseconds())
	return set, nil
}

func (ld *Loader) certificate(ctx context.Context, name string) (string, error) {
	pemText, err := ld.unwrapped(ctx, name)
	if err != nil {
		return "", err
	}
	cert, err := NormalizeCertificate(pemText)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCredential, "certificate "+name)
	}
	return cert, nil
}

func (ld *Loader) unwrapped(ctx context.Context, name string) (string, error) {
	raw, err := ld.store.GetSecret(ctx, name)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCredential, "fetch secret "+name)
	}
	pemText, err := UnwrapSecret(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCredential, "unwrap secret "+name)
	}
	return pemText, nil
}
