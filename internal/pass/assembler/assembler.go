// Package assembler turns the pipeline outputs into a signed, zipped wallet
// pass.
package assembler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"walletpass/internal/pass/models"
	"walletpass/internal/platform/logger"
	dErrors "walletpass/pkg/domain-errors"
	"walletpass/pkg/requestcontext"
)

// Input is everything one pass is built from.
type Input struct {
	Ref         models.ImageRef
	Portrait    models.Portrait
	Barcode     models.Barcode
	Identity    string
	Credentials models.CredentialSet
}

type Assembler struct {
	template Template
	assets   Assets
	signer   Signer
	logger   *slog.Logger
}

type Option func(*Assembler)

func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = l
	}
}

func WithSigner(s Signer) Option {
	return func(a *Assembler) {
		a.signer = s
	}
}

func WithAssets(assets Assets) Option {
	return func(a *Assembler) {
		a.assets = assets
	}
}

func New(template Template, opts ...Option) (*Assembler, error) {
	if template.PassTypeIdentifier == "" || template.TeamIdentifier == "" {
		return nil, errors.New("pass type and team identifiers are required")
	}
	a := &Assembler{
		template: template,
		signer:   PKCS7Signer{},
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.assets == nil {
		assets, err := DefaultAssets()
		if err != nil {
			return nil, err
		}
		a.assets = assets
	}
	return a, nil
}

// Assemble builds and signs the pass. The storage key is the same one the
// idempotency guard probes.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*models.Artifact, error) {
	payload := in.Barcode.Payload
	if !in.Barcode.Found || payload == "" {
		payload = models.FallbackBarcode(in.Ref.ImageID)
	}
	serial := models.SerialNumber(in.Ref.ImageID)

	passDoc, err := a.template.manifest(serial, in.Identity, payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAssembly, "render pass.json")
	}
	if len(in.Portrait.PNG1x) == 0 || len(in.Portrait.PNG2x) == 0 {
		return nil, dErrors.New(dErrors.CodeAssembly, "portrait is missing")
	}

	b := newBundle()
	b.add(filePass, passDoc)
	for _, name := range sortedNames(a.assets) {
		b.add(name, a.assets[name])
	}
	b.add("thumbnail.png", in.Portrait.PNG1x)
	b.add("thumbnail@2x.png", in.Portrait.PNG2x)

	manifest, err := b.manifest()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAssembly, "build manifest")
	}
	signature, err := a.signer.Sign(manifest, in.Credentials)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAssembly, "sign manifest")
	}
	b.add(fileManifest, manifest)
	b.add(fileSignature, signature)

	body, err := b.zip(requestcontext.Now(ctx).UTC().Truncate(time.Second))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAssembly, "zip bundle")
	}

	a.logger.InfoContext(ctx, "pass assembled",
		"image_id", in.Ref.ImageID,
		"serial", serial,
		"barcode_fallback", !in.Barcode.Found,
		"bytes", len(body),
	)
	return &models.Artifact{
		Key:         models.StorageKey(in.Ref.ImageID),
		ContentType: models.ArtifactContentType,
		Body:        body,
	}, nil
}
