package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"walletpass/internal/pass/adapters/faces"
	"walletpass/internal/pass/adapters/secrets"
	"walletpass/internal/pass/adapters/storage"
	"walletpass/internal/pass/adapters/vision"
	"walletpass/internal/pass/adapters/whatsapp"
	"walletpass/internal/pass/assembler"
	"walletpass/internal/pass/barcode"
	"walletpass/internal/pass/credentials"
	"walletpass/internal/pass/events"
	"walletpass/internal/pass/face"
	"walletpass/internal/pass/handler"
	"walletpass/internal/pass/idempotency"
	"walletpass/internal/pass/identity"
	passmetrics "walletpass/internal/pass/metrics"
	"walletpass/internal/pass/ports"
	"walletpass/internal/pass/service"
	"walletpass/internal/platform/config"
	"walletpass/internal/platform/redis"
)

// pipeline is everything the server needs plus what must be closed on exit.
type pipeline struct {
	handler    *handler.Handler
	strategies []string
	closers    []func(context.Context) error
	log        *slog.Logger
}

func (p *pipeline) close(ctx context.Context) {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](ctx); err != nil {
			p.log.Warn("shutdown step failed", "error", err)
		}
	}
}

func buildPipeline(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*pipeline, error) {
	p := &pipeline{log: log}
	m := passmetrics.New(reg)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	store, err := storage.New(s3.NewFromConfig(awsCfg), cfg.AWS.Bucket, cfg.AWS.StorageHost,
		storage.WithLogger(log), storage.WithTimeout(cfg.AWS.Timeout))
	if err != nil {
		return nil, err
	}
	detector, err := faces.New(rekognition.NewFromConfig(awsCfg), cfg.AWS.Timeout)
	if err != nil {
		return nil, err
	}
	secretStore := secrets.New(secretsmanager.NewFromConfig(awsCfg),
		secrets.WithLogger(log), secrets.WithTimeout(cfg.AWS.Timeout))

	wa := whatsapp.New(cfg.WhatsApp.BaseURL, cfg.WhatsApp.APIVersion, cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.AccessToken, cfg.WhatsApp.Timeout, whatsapp.WithLogger(log))
	completer := vision.New(cfg.Vision.BaseURL, cfg.Vision.APIKey, cfg.Vision.Model, cfg.Vision.Timeout,
		vision.WithLogger(log), vision.WithMaxTokens(cfg.Vision.MaxTokens))

	set, checks, err := buildMessageSet(ctx, cfg, log, p)
	if err != nil {
		return nil, err
	}
	guard := idempotency.NewGuard(set, store, idempotency.WithLogger(log), idempotency.WithObserver(m))

	locator, err := face.New(detector, face.WithLogger(log), face.WithMarginScale(cfg.Pipeline.MarginScale))
	if err != nil {
		return nil, err
	}

	strategies := []barcode.Strategy{barcode.ZXing{}, barcode.Enhanced{}}
	if cmd, ok := barcode.NewCommand(cfg.Pipeline.BarcodeCommand, 0); ok {
		strategies = append(strategies, cmd)
	} else if len(cfg.Pipeline.BarcodeCommand) > 0 {
		log.Warn("barcode command not found on PATH; strategy disabled", "command", cfg.Pipeline.BarcodeCommand[0])
	}
	if cfg.Vision.APIKey != "" {
		strategies = append(strategies, barcode.NewVision(completer))
	}
	cascade := barcode.NewCascade(strategies, barcode.WithLogger(log), barcode.WithObserver(m))
	p.strategies = cascade.Strategies()

	// Without a key the extractor returns the unknown-name sentinel.
	var named ports.Completer
	if cfg.Vision.APIKey != "" {
		named = completer
	}
	extractor := identity.New(named, identity.WithLogger(log), identity.WithUnknown(cfg.Pass.UnknownName))

	loader := credentials.NewLoader(secretStore, credentials.Names{
		WWDRCert:       cfg.Secrets.WWDRCert,
		SignerCert:     cfg.Secrets.SignerCert,
		SignerKey:      cfg.Secrets.SignerKey,
		SignerP12:      cfg.Secrets.SignerP12,
		SignerPassword: cfg.Secrets.SignerPassword,
	}, credentials.WithLogger(log))

	asm, err := buildAssembler(cfg, log)
	if err != nil {
		return nil, err
	}

	publisher, err := buildPublisher(ctx, cfg, log, p)
	if err != nil {
		return nil, err
	}

	svc, err := service.New(service.Deps{
		Guard:       guard,
		Media:       wa,
		Notifier:    wa,
		Faces:       locator,
		Barcodes:    cascade,
		Identity:    extractor,
		Credentials: loader,
		Assembler:   asm,
		Store:       store,
	},
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithNotifyStyle(service.NotifyStyle(cfg.Pipeline.NotifyStyle)),
		service.WithEvents(publisher),
		service.WithTracer(otel.Tracer("walletpass/pass")),
	)
	if err != nil {
		return nil, err
	}

	opts := []handler.Option{handler.WithLogger(log), handler.WithAppSecret(cfg.WhatsApp.AppSecret)}
	for name, check := range checks {
		opts = append(opts, handler.WithHealthCheck(name, check))
	}
	h, err := handler.New(svc, cfg.WhatsApp.VerifyToken, opts...)
	if err != nil {
		return nil, err
	}
	p.handler = h
	return p, nil
}

func buildMessageSet(ctx context.Context, cfg config.Config, log *slog.Logger, p *pipeline) (idempotency.MessageSet, map[string]handler.HealthCheck, error) {
	checks := map[string]handler.HealthCheck{}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("dedup set in memory; duplicates are only caught per instance")
		return idempotency.NewMemorySet(cfg.Pipeline.DedupTTL), checks, nil
	}
	p.closers = append(p.closers, func(context.Context) error { return client.Close() })
	checks["redis"] = client.Health
	return idempotency.NewRedisSet(client.Client, cfg.Pipeline.DedupTTL), checks, nil
}

func buildAssembler(cfg config.Config, log *slog.Logger) (*assembler.Assembler, error) {
	tmpl := assembler.DefaultTemplate()
	tmpl.PassTypeIdentifier = cfg.Pass.PassTypeIdentifier
	tmpl.TeamIdentifier = cfg.Pass.TeamIdentifier
	tmpl.OrganizationName = cfg.Pass.OrganizationName
	if cfg.Pass.Description != "" {
		tmpl.Description = cfg.Pass.Description
	}
	tmpl.IncludeBarcode = cfg.Pass.IncludeBarcode

	var (
		assets assembler.Assets
		err    error
	)
	if cfg.Pass.AssetsDir != "" {
		assets, err = assembler.LoadAssets(cfg.Pass.AssetsDir)
	} else {
		assets, err = assembler.DefaultAssets()
	}
	if err != nil {
		return nil, fmt.Errorf("pass assets: %w", err)
	}
	return assembler.New(tmpl, assembler.WithLogger(log), assembler.WithAssets(assets))
}

func buildPublisher(ctx context.Context, cfg config.Config, log *slog.Logger, p *pipeline) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Nop{}, nil
	}
	kp, err := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, events.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := kp.EnsureTopic(topicCtx, 3, 1); err != nil {
		log.Warn("could not ensure outcome topic", "topic", cfg.Kafka.Topic, "error", err)
	}
	p.closers = append(p.closers, kp.Close)
	return kp, nil
}
