// Package worker rebuilds cached compliance reports in the background after
// checklists change, so the first dashboard request after an upload or scan
// import is served from cache.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stigwatch/internal/config"
	"stigwatch/internal/domain/models"
	"stigwatch/internal/domain/services"
	"stigwatch/internal/streaming"
	"stigwatch/pkg/logger"
)

const (
	defaultDebounce       = 5 * time.Second
	defaultBaseRetryDelay = 2 * time.Second
	defaultMaxRetryDelay  = 30 * time.Second
	defaultLockTTL        = time.Minute
)

// ReportSource builds (and caches) a compliance report
type ReportSource interface {
	Compliance(ctx context.Context, systemID uuid.UUID, impact models.ImpactLevel, majorControl string) (*models.ComplianceReport, error)
}

// Locker is a distributed lock so several workers do not rebuild the same
// system at once
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, lockKey string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Warmer consumes checklist events and rebuilds the reports of every system
// they touch
type Warmer struct {
	source ReportSource
	locker Locker
	logger *logger.Logger

	impacts        []models.ImpactLevel
	debounce       time.Duration
	maxRetries     int
	baseRetryDelay time.Duration
	maxRetryDelay  time.Duration
	lockTTL        time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewWarmer creates a Warmer. locker may be nil when a single worker runs.
func NewWarmer(source ReportSource, locker Locker, cfg config.WorkerConfig, log *logger.Logger) *Warmer {
	w := &Warmer{
		source:         source,
		locker:         locker,
		logger:         log.WithComponent("report-warmer"),
		debounce:       cfg.Debounce,
		maxRetries:     cfg.MaxRetries,
		baseRetryDelay: cfg.BaseRetryDelay,
		maxRetryDelay:  cfg.MaxRetryDelay,
		lockTTL:        cfg.LockTTL,
		sleep:          sleepContext,
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.maxRetries < 0 {
		w.maxRetries = 0
	}
	if w.baseRetryDelay <= 0 {
		w.baseRetryDelay = defaultBaseRetryDelay
	}
	if w.maxRetryDelay <= 0 {
		w.maxRetryDelay = defaultMaxRetryDelay
	}
	if w.lockTTL <= 0 {
		w.lockTTL = defaultLockTTL
	}

	seen := make(map[models.ImpactLevel]bool)
	for _, raw := range cfg.Impacts {
		level := models.ParseImpactLevel(raw)
		if level == "" && raw != "all" {
			w.logger.Warn().Str("impact", raw).Msg("ignoring unknown impact level")
			continue
		}
		if !seen[level] {
			seen[level] = true
			w.impacts = append(w.impacts, level)
		}
	}
	if len(w.impacts) == 0 {
		w.impacts = []models.ImpactLevel{""}
	}
	return w
}

// Run collects the systems named by events and rebuilds them once per
// debounce interval. It returns nil when events is closed, after a final
// flush, and ctx.Err() when ctx ends.
func (w *Warmer) Run(ctx context.Context, events <-chan *streaming.ChecklistEvent) error {
	w.logger.Info().
		Dur("debounce", w.debounce).
		Int("impacts", len(w.impacts)).
		Msg("starting report warmer")

	pending := make(map[uuid.UUID]struct{})
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("report warmer stopped")
			return ctx.Err()
		case event, open := <-events:
			if !open {
				w.flush(ctx, pending)
				return nil
			}
			id, err := uuid.Parse(event.SystemID)
			if err != nil {
				w.logger.WithSystemID(event.SystemID).Debug().Msg("skipping event without system")
				continue
			}
			pending[id] = struct{}{}
		case <-ticker.C:
			w.flush(ctx, pending)
		}
	}
}

func (w *Warmer) flush(ctx context.Context, pending map[uuid.UUID]struct{}) {
	for id := range pending {
		delete(pending, id)
		if ctx.Err() != nil {
			return
		}
		w.WarmSystem(ctx, id)
	}
}

// WarmSystem rebuilds every configured report of one system. It reports
// whether the lock was taken and the reports were built.
func (w *Warmer) WarmSystem(ctx context.Context, systemID uuid.UUID) bool {
	log := w.logger.WithSystemID(systemID.String())
	lockKey := "warm:" + systemID.String()

	if w.locker != nil {
		acquired, err := w.locker.AcquireLock(ctx, lockKey, w.lockTTL)
		if err != nil {
			log.Error().Err(err).Msg("failed to acquire lock")
			return false
		}
		if !acquired {
			log.Debug().Msg("another worker is rebuilding this system, skipping")
			return false
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey); err != nil {
				log.Warn().Err(err).Msg("failed to release lock")
			}
		}()

		lockCtx, lockCancel := context.WithCancel(ctx)
		defer lockCancel()
		go w.refreshLock(lockCtx, lockKey)
	}

	start := time.Now()
	for _, impact := range w.impacts {
		if err := w.buildWithRetry(ctx, systemID, impact); err != nil {
			if errors.Is(err, services.ErrSystemNotFound) {
				log.Debug().Msg("system removed, nothing to rebuild")
				return false
			}
			log.Error().Err(err).Str("impact", string(impact)).Msg("failed to rebuild report")
			return false
		}
	}
	log.Info().Dur("duration", time.Since(start)).Msg("compliance reports rebuilt")
	return true
}

func (w *Warmer) refreshLock(ctx context.Context, lockKey string) {
	ticker := time.NewTicker(w.lockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.locker.RefreshLock(ctx, lockKey, w.lockTTL); err != nil {
				w.logger.Warn().Err(err).Str("lock", lockKey).Msg("failed to refresh lock")
			}
		}
	}
}

// buildWithRetry runs one report build with exponential backoff
func (w *Warmer) buildWithRetry(ctx context.Context, systemID uuid.UUID, impact models.ImpactLevel) error {
	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			delay := w.backoff(attempt)
			w.logger.Info().
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("retrying report build after delay")
			if err := w.sleep(ctx, delay); err != nil {
				return err
			}
		}

		_, err := w.source.Compliance(ctx, systemID, impact, "")
		if err == nil {
			return nil
		}
		if errors.Is(err, services.ErrSystemNotFound) {
			return err
		}
		lastErr = err
		w.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", w.maxRetries).
			Msg("report build failed")
	}
	return lastErr
}

// backoff is the delay before retry attempt n (n >= 1)
func (w *Warmer) backoff(attempt int) time.Duration {
	delay := w.baseRetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > w.maxRetryDelay || delay <= 0 {
		delay = w.maxRetryDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
