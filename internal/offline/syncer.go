package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BackoffConfig shapes the delay between replays of one entry.
type BackoffConfig struct {
	Initial             time.Duration
	Max                 time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultBackoff is used when NewSyncer is given a zero BackoffConfig.
var DefaultBackoff = BackoffConfig{
	Initial:             5 * time.Second,
	Max:                 10 * time.Minute,
	Multiplier:          2,
	RandomizationFactor: 0.2,
}

// SyncReport counts what one pass did.
type SyncReport struct {
	Claimed   int `json:"claimed"`
	Synced    int `json:"synced"`
	Retried   int `json:"retried"`
	Conflicts int `json:"conflicts"`
}

// Syncer replays queued checkouts until each is SYNCED or parked as CONFLICT.
type Syncer struct {
	store     Store
	client    Submitter
	interval  time.Duration
	timeout   time.Duration
	batchSize int
	backoff   BackoffConfig
	kick      chan struct{}
	now       func() time.Time
}

// NewSyncer creates a Syncer. timeout bounds each server call.
func NewSyncer(store Store, client Submitter, interval, timeout time.Duration, cfg BackoffConfig) *Syncer {
	if cfg.Initial <= 0 {
		cfg = DefaultBackoff
	}
	return &Syncer{
		store:     store,
		client:    client,
		interval:  interval,
		timeout:   timeout,
		batchSize: 50,
		backoff:   cfg,
		kick:      make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Kick requests a sync pass as soon as possible. It never blocks.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run recovers entries left in SYNCING by a previous process, then syncs on
// every tick or kick until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	n, err := s.store.ResetSyncing(ctx, s.now().UTC())
	if err != nil {
		return fmt.Errorf("reset syncing entries: %w", err)
	}
	if n > 0 {
		log.Warn().Int("entries", n).Msg("offline: recovered entries interrupted mid-sync")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report, err := s.SyncOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("offline: sync pass failed")
		} else if report.Claimed > 0 {
			log.Info().Int("synced", report.Synced).Int("retried", report.Retried).
				Int("conflicts", report.Conflicts).Msg("offline: sync pass")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.kick:
		}
	}
}

// SyncOnce claims the entries that are due and replays each one.
func (s *Syncer) SyncOnce(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	entries, err := s.store.ClaimDue(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return report, fmt.Errorf("claim due entries: %w", err)
	}
	report.Claimed = len(entries)

	for _, e := range entries {
		outcome, err := s.replay(ctx, e)
		if err != nil {
			return report, err
		}
		switch outcome {
		case outcomeSynced:
			report.Synced++
		case outcomeRetry:
			report.Retried++
		case outcomeConflict:
			report.Conflicts++
		}
	}
	return report, nil
}

type replayOutcome int

const (
	outcomeSynced replayOutcome = iota
	outcomeRetry
	outcomeConflict
)

func (s *Syncer) replay(ctx context.Context, e Entry) (replayOutcome, error) {
	order, err := s.submit(ctx, e)
	now := s.now().UTC()

	if err == nil {
		if err := s.store.MarkSynced(ctx, e.ID, order.ID, order.OrderNumber, now); err != nil {
			return 0, fmt.Errorf("mark entry %s synced: %w", e.ID, err)
		}
		log.Info().Str("entry_id", e.ID.String()).Str("order_number", order.OrderNumber).Msg("offline: entry synced")
		return outcomeSynced, nil
	}

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		if err := s.store.MarkConflict(ctx, e.ID, rejected.Kind, rejected.Message, now); err != nil {
			return 0, fmt.Errorf("mark entry %s conflict: %w", e.ID, err)
		}
		log.Warn().Str("entry_id", e.ID.String()).Str("error_kind", rejected.Kind).
			Msg("offline: replay rejected, entry needs operator attention")
		return outcomeConflict, nil
	}

	next := now.Add(s.delay(e.Attempts + 1))
	if err := s.store.MarkRetry(ctx, e.ID, err.Error(), next, now); err != nil {
		return 0, fmt.Errorf("mark entry %s for retry: %w", e.ID, err)
	}
	log.Debug().Err(err).Str("entry_id", e.ID.String()).Time("next_attempt_at", next).Msg("offline: replay deferred")
	return outcomeRetry, nil
}

// submit replays an entry. An entry with earlier attempts may already have
// landed, so its key is looked up first.
func (s *Syncer) submit(ctx context.Context, e Entry) (*Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if e.Attempts > 0 {
		order, err := s.client.Lookup(callCtx, e.IdempotencyKey)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.client.Submit(callCtx, e.IdempotencyKey, e.Request)
}

// delay is the wait before attempt number attempts+1, growing exponentially
// and capped at the configured maximum.
func (s *Syncer) delay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.backoff.Initial,
		RandomizationFactor: s.backoff.RandomizationFactor,
		Multiplier:          s.backoff.Multiplier,
		MaxInterval:         s.backoff.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Requeue sends a CONFLICT entry back for another replay and kicks a pass.
func (s *Syncer) Requeue(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Requeue(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.Kick()
	return nil
}

// Dismiss retires an entry the operator has dealt with by hand.
func (s *Syncer) Dismiss(ctx context.Context, id uuid.UUID) error {
	return s.store.Dismiss(ctx, id, s.now().UTC())
}
