// Package barcode recovers a barcode payload from a photo by running an
// ordered list of independent decode strategies until one succeeds.
package barcode

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"walletpass/internal/pass/models"
	"walletpass/internal/platform/logger"
)

// ErrNoBarcode is returned by a strategy that ran cleanly but found nothing.
var ErrNoBarcode = errors.New("no barcode found")

// Strategy is one decode attempt over the raw image bytes. Strategies are
// stateless; an empty payload counts as a miss.
type Strategy interface {
	Name() string
	Decode(ctx context.Context, image []byte) (string, error)
}

// Observer receives one call per strategy attempt.
type Observer interface {
	ObserveBarcodeAttempt(strategy, outcome string, elapsed time.Duration)
}

const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// Cascade runs strategies in priority order and stops at the first hit.
type Cascade struct {
	strategies []Strategy
	logger     *slog.Logger
	observer   Observer
}

type Option func(*Cascade)

func WithLogger(l *slog.Logger) Option {
	return func(c *Cascade) {
		c.logger = l
	}
}

func WithObserver(o Observer) Option {
	return func(c *Cascade) {
		c.observer = o
	}
}

// NewCascade keeps the given order; nil strategies are skipped.
func NewCascade(strategies []Strategy, opts ...Option) *Cascade {
	c := &Cascade{logger: logger.Discard()}
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strategies returns the names in execution order.
func (c *Cascade) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Recover never fails: every strategy error is logged and treated as a miss.
// Found is false only when all strategies missed.
func (c *Cascade) Recover(ctx context.Context, image []byte) models.Barcode {
	for _, s := range c.strategies {
		start := time.Now()
		payload, err := s.Decode(ctx, image)
		payload = strings.TrimSpace(payload)
		elapsed := time.Since(start)

		switch {
		case err != nil && !errors.Is(err, ErrNoBarcode):
			c.observe(s.Name(), OutcomeError, elapsed)
			c.logger.WarnContext(ctx, "barcode strategy failed",
				"strategy", s.Name(),
				"error", err,
				"duration_ms", elapsed.Milliseconds(),
			)
		case err != nil || payload == "":
			c.observe(s.Name(), OutcomeMiss, elapsed)
			c.logger.DebugContext(ctx, "barcode strategy found nothing", "strategy", s.Name())
		default:
			c.observe(s.Name(), OutcomeHit, elapsed)
			c.logger.InfoContext(ctx, "barcode recovered",
				"strategy", s.Name(),
				"duration_ms", elapsed.Milliseconds(),
			)
			return models.Barcode{Payload: payload, Strategy: s.Name(), Found: true}
		}
	}
	return models.Barcode{}
}

func (c *Cascade) observe(strategy, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveBarcodeAttempt(strategy, outcome, elapsed)
	}
}
