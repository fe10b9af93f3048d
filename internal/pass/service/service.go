// Package service runs the image-to-pass pipeline for one inbound image.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"walletpass/internal/pass/assembler"
	"walletpass/internal/pass/events"
	"walletpass/internal/pass/face"
	"walletpass/internal/pass/metrics"
	"walletpass/internal/pass/models"
	"walletpass/internal/pass/ports"
	"walletpass/internal/platform/logger"
	dErrors "walletpass/pkg/domain-errors"
	"walletpass/pkg/requestcontext"
)

// State is a pipeline state. Skipped, NoFace, Failed and Notified are
// terminal.
type State string

const (
	StateReceived         State = "received"
	StateDeduped          State = "deduped"
	StateDownloaded       State = "downloaded"
	StateFaceFound        State = "face_found"
	StateCropped          State = "cropped"
	StateBarcodeResolved  State = "barcode_resolved"
	StateIdentityResolved State = "identity_resolved"
	StateCredentialsReady State = "credentials_ready"
	StateAssembled        State = "assembled"
	StatePublished        State = "published"
	StateNotified         State = "notified"

	StateSkipped State = "skipped"
	StateNoFace  State = "no_face"
	StateFailed  State = "failed"
)

// Result describes how a run ended.
type Result struct {
	State       State
	ArtifactKey string
	PassURL     string
	Barcode     models.Barcode
	Identity    string
}

// Guard decides whether a message may enter the pipeline.
type Guard interface {
	ShouldProcess(ctx context.Context, ref models.ImageRef) (bool, error)
	Release(ctx context.Context, key string) error
}

// FaceLocator finds and crops the dominant face.
type FaceLocator interface {
	Locate(ctx context.Context, image []byte) (models.FaceBox, error)
	Crop(image []byte, box models.FaceBox) (models.Portrait, error)
}

// BarcodeRecoverer never fails; Found reports success.
type BarcodeRecoverer interface {
	Recover(ctx context.Context, image []byte) models.Barcode
}

// IdentityExtractor never fails; Unknown is returned when extraction did.
type IdentityExtractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) string
	Unknown() string
}

type CredentialLoader interface {
	Load(ctx context.Context) (models.CredentialSet, error)
}

type PassAssembler interface {
	Assemble(ctx context.Context, in assembler.Input) (*models.Artifact, error)
}

// Deps are the collaborators every run needs.
type Deps struct {
	Guard       Guard
	Media       ports.MediaFetcher
	Notifier    ports.Notifier
	Faces       FaceLocator
	Barcodes    BarcodeRecoverer
	Identity    IdentityExtractor
	Credentials CredentialLoader
	Assembler   PassAssembler
	Store       ports.ArtifactStore
}

type Service struct {
	deps        Deps
	messages    Messages
	notifyStyle NotifyStyle
	events      events.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithMessages(m Messages) Option {
	return func(s *Service) {
		s.messages = m
	}
}

func WithNotifyStyle(style NotifyStyle) Option {
	return func(s *Service) {
		s.notifyStyle = style
	}
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Guard == nil:
		return nil, errors.New("idempotency guard is required")
	case deps.Media == nil:
		return nil, errors.New("media fetcher is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	case deps.Faces == nil:
		return nil, errors.New("face locator is required")
	case deps.Barcodes == nil:
		return nil, errors.New("barcode recoverer is required")
	case deps.Identity == nil:
		return nil, errors.New("identity extractor is required")
	case deps.Credentials == nil:
		return nil, errors.New("credential loader is required")
	case deps.Assembler == nil:
		return nil, errors.New("pass assembler is required")
	case deps.Store == nil:
		return nil, errors.New("artifact store is required")
	}
	s := &Service{
		deps:        deps,
		messages:    DefaultMessages(),
		notifyStyle: NotifyText,
		events:      events.Nop{},
		logger:      logger.Discard(),
		tracer:      otel.Tracer("walletpass/pass"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AskForImage tells a sender that only images are accepted.
func (s *Service) AskForImage(ctx context.Context, to string) error {
	if err := s.deps.Notifier.SendText(ctx, to, s.messages.AskForImage); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "send text")
	}
	return nil
}

// run carries the per-run state through the stages.
type run struct {
	ref    models.ImageRef
	result *Result
	logger *slog.Logger
	span   trace.Span
}

// Process runs the pipeline for one image. NoFace and duplicates are not
// errors; every other failure is returned after a best-effort notification.
func (s *Service) Process(ctx context.Context, ref models.ImageRef) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRunLatency(time.Since(start)) }()

	if err := ref.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid image reference")
	}

	// A started run outlives its caller: once the dedup entry is reserved the
	// run must publish, or release it and tell the sender. Collaborators
	// apply their own timeouts.
	ctx = requestcontext.WithMessageID(context.WithoutCancel(ctx), ref.MessageID)
	ctx, span := s.tracer.Start(ctx, "pass.process", trace.WithAttributes(
		attribute.String("message_id", ref.MessageID),
		attribute.String("image_id", ref.ImageID),
	))
	defer span.End()

	r := &run{
		ref:    ref,
		result: &Result{State: StateReceived},
		span:   span,
		logger: s.logger.With(
			"message_id", ref.MessageID,
			"image_id", ref.ImageID,
			"request_id", requestcontext.RequestID(ctx),
		),
	}

	proceed, err := s.deps.Guard.ShouldProcess(ctx, ref)
	if err != nil {
		return s.fail(ctx, r, "dedup", err)
	}
	if !proceed {
		r.result.State = StateSkipped
		r.logger.InfoContext(ctx, "image skipped as duplicate")
		s.finish(ctx, r, events.TypeSkipped, "")
		return r.result, nil
	}
	r.result.State = StateDeduped

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var creds models.CredentialSet
	g.Go(func() error {
		return s.stage(gctx, "credentials", func(ctx context.Context) error {
			c, err := s.deps.Credentials.Load(ctx)
			if err != nil {
				return err
			}
			creds = c
			return nil
		})
	})
	// Image stages run on runCtx so a credential failure surfaces at g.Wait
	// with its own error. abandon drains the credential goroutine on an
	// early exit.
	abandon := func() {
		cancel()
		_ = g.Wait()
	}

	var img []byte
	err = s.stage(runCtx, "download", func(ctx context.Context) error {
		var err error
		img, err = s.deps.Media.FetchMedia(ctx, ref.ImageID)
		return err
	})
	if err != nil {
		abandon()
		return s.fail(ctx, r, "download", dErrors.Wrap(err, dErrors.CodeUpstream, "download media"))
	}
	r.result.State = StateDownloaded

	var box models.FaceBox
	err = s.stage(runCtx, "face", func(ctx context.Context) error {
		var err error
		box, err = s.deps.Faces.Locate(ctx, img)
		return err
	})
	if errors.Is(err, face.ErrNoFaceDetected) {
		abandon()
		return s.noFace(ctx, r)
	}
	if err != nil {
		abandon()
		return s.fail(ctx, r, "face", dErrors.Wrap(err, dErrors.CodeUpstream, "locate face"))
	}
	r.result.State = StateFaceFound

	var portrait models.Portrait
	err = s.stage(runCtx, "crop", func(context.Context) error {
		var err error
		portrait, err = s.deps.Faces.Crop(img, box)
		return err
	})
	if err != nil {
		abandon()
		return s.fail(ctx, r, "crop", dErrors.Wrap(err, dErrors.CodeInternal, "crop face"))
	}
	r.result.State = StateCropped

	// barcode and identity are independent and both absorb their failures
	var side errgroup.Group
	side.Go(func() error {
		return s.stage(runCtx, "barcode", func(ctx context.Context) error {
			r.result.Barcode = s.deps.Barcodes.Recover(ctx, img)
			return nil
		})
	})
	side.Go(func() error {
		return s.stage(runCtx, "identity", func(ctx context.Context) error {
			r.result.Identity = s.deps.Identity.Extract(ctx, img, ref.MimeType)
			return nil
		})
	})
	_ = side.Wait()

	if !r.result.Barcode.Found {
		s.metrics.IncrementDegradation("barcode")
		r.logger.WarnContext(ctx, "no barcode recovered, using fallback identifier")
	}
	r.result.State = StateBarcodeResolved
	if r.result.Identity == s.deps.Identity.Unknown() {
		s.metrics.IncrementDegradation("identity")
	}
	r.result.State = StateIdentityResolved

	if err := g.Wait(); err != nil {
		return s.fail(ctx, r, "credentials", err)
	}
	r.result.State = StateCredentialsReady

	var artifact *models.Artifact
	err = s.stage(ctx, "assemble", func(ctx context.Context) error {
		var err error
		artifact, err = s.deps.Assembler.Assemble(ctx, assembler.Input{
			Ref:         ref,
			Portrait:    portrait,
			Barcode:     r.result.Barcode,
			Identity:    r.result.Identity,
			Credentials: creds,
		})
		return err
	})
	if err != nil {
		return s.fail(ctx, r, "assemble", err)
	}
	r.result.State = StateAssembled
	r.result.ArtifactKey = artifact.Key

	err = s.stage(ctx, "publish", func(ctx context.Context) error {
		return s.deps.Store.Put(ctx, artifact.Key, artifact.Body, artifact.ContentType)
	})
	if err != nil {
		return s.fail(ctx, r, "publish", dErrors.Wrap(err, dErrors.CodeUpstream, "upload pass"))
	}
	r.result.State = StatePublished
	r.result.PassURL = s.deps.Store.URL(artifact.Key)
	r.logger.InfoContext(ctx, "pass published", "key", artifact.Key, "url", r.result.PassURL)

	if err := s.stage(ctx, "notify", func(ctx context.Context) error {
		return s.notifyReady(ctx, ref, r.result.PassURL)
	}); err != nil {
		return s.fail(ctx, r, "notify", dErrors.Wrap(err, dErrors.CodeUpstream, "notify sender"))
	}
	r.result.State = StateNotified

	s.finish(ctx, r, events.TypePublished, "")
	return r.result, nil
}

func (s *Service) notifyReady(ctx context.Context, ref models.ImageRef, url string) error {
	if s.notifyStyle == NotifyDocument {
		filename := models.SerialNumber(ref.ImageID) + ".pkpass"
		return s.deps.Notifier.SendDocument(ctx, ref.Sender, url, filename, s.messages.DocumentCaption)
	}
	return s.deps.Notifier.SendText(ctx, ref.Sender, s.messages.ready(url))
}

func (s *Service) noFace(ctx context.Context, r *run) (*Result, error) {
	r.result.State = StateNoFace
	r.logger.InfoContext(ctx, "no face detected")
	if err := s.deps.Notifier.SendText(ctx, r.ref.Sender, s.messages.NoFace); err != nil {
		r.logger.WarnContext(ctx, "failed to notify sender", "error", err)
	}
	s.finish(ctx, r, events.TypeNoFace, "")
	return r.result, nil
}

// fail releases the guard entry so a platform retry can regenerate, then
// tells the sender. The artifact store still vetoes once a pass exists.
func (s *Service) fail(ctx context.Context, r *run, stage string, err error) (*Result, error) {
	failedAt := r.result.State
	r.result.State = StateFailed
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, stage)
	r.logger.ErrorContext(ctx, "pass generation failed",
		"stage", stage,
		"last_state", string(failedAt),
		"error", err,
	)

	if relErr := s.deps.Guard.Release(ctx, r.ref.DedupKey()); relErr != nil {
		r.logger.ErrorContext(ctx, "failed to release dedup entry", "error", relErr)
	}
	if nErr := s.deps.Notifier.SendText(ctx, r.ref.Sender, s.messages.Failure); nErr != nil {
		r.logger.WarnContext(ctx, "failed to notify sender", "error", nErr)
	}
	s.finish(ctx, r, events.TypeFailed, string(dErrors.CodeOf(err)))
	return r.result, fmt.Errorf("%s: %w", stage, err)
}

func (s *Service) finish(ctx context.Context, r *run, typ events.Type, errCode string) {
	s.metrics.IncrementOutcome(string(r.result.State))
	r.span.SetAttributes(attribute.String("state", string(r.result.State)))
	s.events.Publish(ctx, events.Event{
		ID:          uuid.NewString(),
		Type:        typ,
		MessageID:   r.ref.MessageID,
		ImageID:     r.ref.ImageID,
		RequestID:   requestcontext.RequestID(ctx),
		State:       string(r.result.State),
		ArtifactKey: r.result.ArtifactKey,
		PassURL:     r.result.PassURL,
		Barcode:     r.result.Barcode.Strategy,
		ErrorCode:   errCode,
		OccurredAt:  requestcontext.Now(ctx),
	})
}

// stage wraps one step in a span and records its latency.
func (s *Service) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "pass."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveStageLatency(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
