package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"walletpass/internal/pass/models"
	"walletpass/internal/pass/ports/mocks"
	dErrors "walletpass/pkg/domain-errors"
)

type vetoCounter struct {
	mu    sync.Mutex
	tiers []string
}

func (v *vetoCounter) ObserveDedupVeto(tier string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tiers = append(v.tiers, tier)
}

type failingSet struct {
	MessageSet
	reserveErr error
	commitErr  error
}

func (f failingSet) Reserve(ctx context.Context, key string) (bool, error) {
	if f.reserveErr != nil {
		return false, f.reserveErr
	}
	return f.MessageSet.Reserve(ctx, key)
}

func (f failingSet) Commit(ctx context.Context, key string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	return f.MessageSet.Commit(ctx, key)
}

// =============================================================================
// Guard Test Suite
// =============================================================================
// Justification for unit tests: the guard is the only thing standing between
// platform retries and duplicate artifacts. Tests pin the ordering of the two
// tiers and the rollback on storage errors.

type GuardSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockArtifactStore
	set      *MemorySet
	observer *vetoCounter
	guard    *Guard
	ref      models.ImageRef
	ctx      context.Context
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockArtifactStore(s.ctrl)
	s.set = NewMemorySet(0)
	s.observer = &vetoCounter{}
	s.guard = NewGuard(s.set, s.store, WithObserver(s.observer))
	s.ref = models.ImageRef{MessageID: "wamid.A", ImageID: "img-A", Sender: "1555"}
	s.ctx = context.Background()
}

func (s *GuardSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GuardSuite) TestShouldProcess() {
	s.Run("fresh message with no artifact proceeds", func() {
		s.store.EXPECT().Exists(gomock.Any(), "passes/img-A.pkpass").Return(false, nil)

		ok, err := s.guard.ShouldProcess(s.ctx, s.ref)
		s.NoError(err)
		s.True(ok)
		s.Equal(1, s.set.Len())
	})

	s.Run("repeat message is vetoed without touching storage", func() {
		ok, err := s.guard.ShouldProcess(s.ctx, s.ref)
		s.NoError(err)
		s.False(ok)
		s.Equal([]string{TierMessageSet}, s.observer.tiers)
	})

	s.Run("existing artifact is vetoed and remembered", func() {
		ref := models.ImageRef{MessageID: "wamid.B", ImageID: "img-B", Sender: "1555"}
		s.store.EXPECT().Exists(gomock.Any(), "passes/img-B.pkpass").Return(true, nil)

		ok, err := s.guard.ShouldProcess(s.ctx, ref)
		s.NoError(err)
		s.False(ok)

		ok, err = s.guard.ShouldProcess(s.ctx, ref)
		s.NoError(err)
		s.False(ok)
		s.Equal([]string{TierMessageSet, TierStorage, TierMessageSet}, s.observer.tiers)
	})
}

func (s *GuardSuite) TestStorageErrorRollsBack() {
	s.store.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, errors.New("403 forbidden"))

	ok, err := s.guard.ShouldProcess(s.ctx, s.ref)
	s.Require().Error(err)
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Zero(s.set.Len(), "reservation must be rolled back")

	s.store.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
	ok, err = s.guard.ShouldProcess(s.ctx, s.ref)
	s.NoError(err)
	s.True(ok, "a retry after a storage error must be allowed through")
}

func (s *GuardSuite) TestSetFailures() {
	s.Run("reserve error is returned", func() {
		g := NewGuard(failingSet{MessageSet: s.set, reserveErr: errors.New("redis down")}, s.store)
		_, err := g.ShouldProcess(s.ctx, s.ref)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("commit error releases the reservation", func() {
		s.store.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
		g := NewGuard(failingSet{MessageSet: s.set, commitErr: errors.New("redis down")}, s.store)
		_, err := g.ShouldProcess(s.ctx, s.ref)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Zero(s.set.Len())
	})
}

func (s *GuardSuite) TestRelease() {
	s.store.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(2)

	ok, _ := s.guard.ShouldProcess(s.ctx, s.ref)
	s.True(ok)
	s.NoError(s.guard.Release(s.ctx, s.ref.DedupKey()))

	ok, _ = s.guard.ShouldProcess(s.ctx, s.ref)
	s.True(ok, "released message may be processed again")
}

func (s *GuardSuite) TestConcurrentDuplicatesProceedOnce() {
	s.store.EXPECT().Exists(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (bool, error) {
			time.Sleep(5 * time.Millisecond)
			return false, nil
		},
	).Times(1)

	const callers = 32
	var proceeded atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.guard.ShouldProcess(s.ctx, s.ref)
			if err == nil && ok {
				proceeded.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), proceeded.Load())
}

// =============================================================================
// Memory set
// =============================================================================

func TestMemorySetTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	set := NewMemorySet(time.Minute)
	set.now = func() time.Time { return now }

	ok, _ := set.Reserve(ctx, "k")
	assert.True(t, ok)
	ok, _ = set.Reserve(ctx, "k")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = set.Reserve(ctx, "k")
	assert.True(t, ok, "expired entries are forgotten")

	now = now.Add(time.Hour)
	assert.Zero(t, set.Len())
}

func TestMemorySetSweepsOnReserve(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	set := NewMemorySet(time.Minute)
	set.now = func() time.Time { return now }

	for _, key := range []string{"a", "b", "c"} {
		ok, _ := set.Reserve(ctx, key)
		require.True(t, ok)
	}
	require.Len(t, set.entries, 3)

	now = now.Add(2 * time.Minute)
	ok, _ := set.Reserve(ctx, "d")
	assert.True(t, ok)

	assert.Len(t, set.entries, 1, "keys that never recur are dropped once expired")
	assert.Contains(t, set.entries, "d")
}

func TestMemorySetKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	set := NewMemorySet(0)

	a, _ := set.Reserve(ctx, "a")
	b, _ := set.Reserve(ctx, "b")
	assert.True(t, a)
	assert.True(t, b)
	assert.Equal(t, 2, set.Len())
}
