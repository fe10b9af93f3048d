// Package idempotency decides whether an inbound image should enter the
// pipeline. It consults a fast message set first and the artifact store
// second.
package idempotency

import (
	"context"
	"log/slog"

	"walletpass/internal/pass/models"
	"walletpass/internal/pass/ports"
	"walletpass/internal/platform/logger"
	dErrors "walletpass/pkg/domain-errors"
)

// Veto tiers.
const (
	TierMessageSet = "message_set"
	TierStorage    = "storage"
)

// VetoObserver is told which tier rejected a duplicate.
type VetoObserver interface {
	ObserveDedupVeto(tier string)
}

type Guard struct {
	set      MessageSet
	store    ports.ArtifactStore
	logger   *slog.Logger
	observer VetoObserver
}

type Option func(*Guard)

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = l
	}
}

func WithObserver(o VetoObserver) Option {
	return func(g *Guard) {
		g.observer = o
	}
}

func NewGuard(set MessageSet, store ports.ArtifactStore, opts ...Option) *Guard {
	g := &Guard{set: set, store: store, logger: logger.Discard()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ShouldProcess returns true exactly once per message key while the artifact
// is absent. The key is reserved before the storage probe and committed only
// once the probe answers; a probe error rolls the reservation back and is
// returned.
func (g *Guard) ShouldProcess(ctx context.Context, ref models.ImageRef) (bool, error) {
	key := ref.DedupKey()

	reserved, err := g.set.Reserve(ctx, key)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "reserve message")
	}
	if !reserved {
		g.veto(ctx, ref, TierMessageSet)
		return false, nil
	}

	exists, err := g.store.Exists(ctx, models.StorageKey(ref.ImageID))
	if err != nil {
		if rbErr := g.set.Forget(ctx, key); rbErr != nil {
			g.logger.ErrorContext(ctx, "failed to roll back dedup reservation",
				"message_id", ref.MessageID,
				"error", rbErr,
			)
		}
		return false, dErrors.Wrap(err, dErrors.CodeUpstream, "check artifact existence")
	}

	if err := g.set.Commit(ctx, key); err != nil {
		_ = g.set.Forget(ctx, key)
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "commit message")
	}
	if exists {
		g.veto(ctx, ref, TierStorage)
		return false, nil
	}
	return true, nil
}

// Release forgets a message so a platform retry can regenerate it.
func (g *Guard) Release(ctx context.Context, key string) error {
	return g.set.Forget(ctx, key)
}

func (g *Guard) veto(ctx context.Context, ref models.ImageRef, tier string) {
	g.logger.InfoContext(ctx, "duplicate image skipped",
		"message_id", ref.MessageID,
		"image_id", ref.ImageID,
		"tier", tier,
	)
	if g.observer != nil {
		g.observer.ObserveDedupVeto(tier)
	}
}
