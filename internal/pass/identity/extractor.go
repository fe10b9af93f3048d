// Package identity reads a display name off the photo through a vision
// service. Any failure degrades to a placeholder name.
package identity

import (
	"context"
	"log/slog"

	"walletpass/internal/pass/ports"
	"walletpass/internal/pass/structured"
	"walletpass/internal/platform/logger"
)

const (
	DefaultField   = "fullName"
	DefaultUnknown = "N/A"
)

type Extractor struct {
	completer ports.Completer
	field     string
	unknown   string
	logger    *slog.Logger
}

type Option func(*Extractor)

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// WithField changes the JSON key the service is asked to fill.
func WithField(field string) Option {
	return func(e *Extractor) {
		if field != "" {
			e.field = field
		}
	}
}

// WithUnknown sets the placeholder used when no name can be extracted.
func WithUnknown(name string) Option {
	return func(e *Extractor) {
		if name != "" {
			e.unknown = name
		}
	}
}

func New(completer ports.Completer, opts ...Option) *Extractor {
	e := &Extractor{
		completer: completer,
		field:     DefaultField,
		unknown:   DefaultUnknown,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Unknown() string { return e.unknown }

func (e *Extractor) instruction() string {
	return `Extract the full name of the person shown on this identity document or card. ` +
		`Reply with only a JSON object of the form {"` + e.field + `": "<name>"}.`
}

// Extract always returns a usable string.
func (e *Extractor) Extract(ctx context.Context, image []byte, mimeType string) string {
	if e.completer == nil {
		return e.unknown
	}
	answer, err := e.completer.CompleteJSON(ctx, e.instruction(), image, mimeType)
	if err != nil {
		e.logger.WarnContext(ctx, "identity extraction failed", "error", err)
		return e.unknown
	}
	name, err := structured.ParseField(answer, e.field)
	if err != nil {
		e.logger.WarnContext(ctx, "identity answer unusable",
			"error", err,
			"field", e.field,
		)
		return e.unknown
	}
	return name
}
