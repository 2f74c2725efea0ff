package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stigwatch/internal/config"
	"stigwatch/internal/domain/models"
	"stigwatch/internal/domain/services"
	"stigwatch/internal/streaming"
	"stigwatch/pkg/logger"
)

type call struct {
	system uuid.UUID
	impact models.ImpactLevel
}

type fakeSource struct {
	mu    sync.Mutex
	calls []call
	errs  []error
}

func (f *fakeSource) Compliance(_ context.Context, systemID uuid.UUID, impact models.ImpactLevel, _ string) (*models.ComplianceReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{systemID, impact})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.ComplianceReport{SystemID: systemID, Impact: impact}, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) RefreshLock(context.Context, string, time.Duration) error { return nil }

func (l *fakeLocker) ReleaseLock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

func newTestWarmer(source ReportSource, locker Locker, impacts ...string) (*Warmer, *[]time.Duration) {
	w := NewWarmer(source, locker, config.WorkerConfig{
		Impacts:        impacts,
		Debounce:       time.Hour,
		MaxRetries:     2,
		BaseRetryDelay: time.Second,
		MaxRetryDelay:  10 * time.Second,
	}, logger.NewNop())

	var slept []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return w, &slept
}

func TestNewWarmerImpacts(t *testing.T) {
	w, _ := newTestWarmer(&fakeSource{}, nil, "moderate", "all", "bogus", "Moderate", "HIGH")
	assert.Equal(t, []models.ImpactLevel{models.ImpactModerate, "", models.ImpactHigh}, w.impacts)

	w, _ = newTestWarmer(&fakeSource{}, nil)
	assert.Equal(t, []models.ImpactLevel{""}, w.impacts)
}

func TestWarmSystem(t *testing.T) {
	source := &fakeSource{}
	locker := newFakeLocker()
	w, _ := newTestWarmer(source, locker, "low", "all")
	id := uuid.New()

	require.True(t, w.WarmSystem(context.Background(), id))
	assert.Equal(t, []call{{id, models.ImpactLow}, {id, ""}}, source.calls)
	assert.Equal(t, []string{"warm:" + id.String()}, locker.released)
	assert.Empty(t, locker.held)
}

func TestWarmSystemSkipsWhenLocked(t *testing.T) {
	source := &fakeSource{}
	locker := newFakeLocker()
	id := uuid.New()
	locker.held["warm:"+id.String()] = true

	w, _ := newTestWarmer(source, locker, "all")
	assert.False(t, w.WarmSystem(context.Background(), id))
	assert.Empty(t, source.calls)
	assert.Empty(t, locker.released)
}

func TestWarmSystemRetries(t *testing.T) {
	boom := errors.New("connection reset")
	source := &fakeSource{errs: []error{boom, boom, nil}}
	w, slept := newTestWarmer(source, nil, "high")

	assert.True(t, w.WarmSystem(context.Background(), uuid.New()))
	assert.Len(t, source.calls, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestWarmSystemGivesUp(t *testing.T) {
	boom := errors.New("connection reset")
	source := &fakeSource{errs: []error{boom, boom, boom, boom}}
	w, _ := newTestWarmer(source, nil, "high", "low")

	assert.False(t, w.WarmSystem(context.Background(), uuid.New()))
	assert.Len(t, source.calls, 3, "one attempt plus two retries, then the remaining impacts are skipped")
}

func TestWarmSystemRemovedSystem(t *testing.T) {
	source := &fakeSource{errs: []error{services.ErrSystemNotFound}}
	w, slept := newTestWarmer(source, nil, "high", "low")

	assert.False(t, w.WarmSystem(context.Background(), uuid.New()))
	assert.Len(t, source.calls, 1)
	assert.Empty(t, *slept)
}

func TestBackoff(t *testing.T) {
	w, _ := newTestWarmer(&fakeSource{}, nil)
	assert.Equal(t, time.Second, w.backoff(1))
	assert.Equal(t, 2*time.Second, w.backoff(2))
	assert.Equal(t, 8*time.Second, w.backoff(4))
	assert.Equal(t, 10*time.Second, w.backoff(5))
}

func TestRunDeduplicatesAndFlushesOnClose(t *testing.T) {
	source := &fakeSource{}
	w, _ := newTestWarmer(source, nil, "moderate")

	a, b := uuid.New(), uuid.New()
	events := make(chan *streaming.ChecklistEvent, 8)
	for _, id := range []uuid.UUID{a, a, b, a} {
		events <- &streaming.ChecklistEvent{Type: streaming.EventTypeChecklistUpdated, SystemID: id.String()}
	}
	events <- &streaming.ChecklistEvent{Type: streaming.EventTypeChecklistCreated}
	close(events)

	require.NoError(t, w.Run(context.Background(), events))
	assert.ElementsMatch(t, []call{{a, models.ImpactModerate}, {b, models.ImpactModerate}}, source.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	w, _ := newTestWarmer(&fakeSource{}, nil, "all")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Run(ctx, make(chan *streaming.ChecklistEvent))
	assert.ErrorIs(t, err, context.Canceled)
}
