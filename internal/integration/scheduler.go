// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/queue"
)

// scheduler owns the background sync and health tickers.
// The sync ticker is stopped while offline.
type scheduler struct {
	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	syncTick   *time.Ticker
	healthTick *time.Ticker
	syncEvery  time.Duration
}

// Start runs the background loops until ctx is done or Close is called.
// A second Start is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	s := &o.sched
	settings := o.Settings()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.syncEvery = settings.SyncInterval
	s.syncTick = time.NewTicker(settings.SyncInterval)
	s.healthTick = time.NewTicker(settings.HealthInterval)
	if o.mode.Offline() {
		s.syncTick.Stop()
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		o.syncLoop(loopCtx, s.syncTick.C)
	}()
	go func() {
		defer s.wg.Done()
		o.healthLoop(loopCtx, s.healthTick.C)
	}()

	o.logger.Info().
		Str(log.FieldEvent, "scheduler.started").
		Dur("sync_interval", settings.SyncInterval).
		Dur("health_interval", settings.HealthInterval).
		Msg("background sync started")
}

// Close stops the background loops and waits for them. It is safe to call
// more than once and without Start.
func (o *Orchestrator) Close() error {
	s := &o.sched
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	s.syncTick.Stop()
	s.healthTick.Stop()
	s.mu.Unlock()

	s.wg.Wait()
	o.logger.Info().Str(log.FieldEvent, "scheduler.stopped").Msg("background sync stopped")
	return nil
}

func (o *Orchestrator) syncLoop(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if o.mode.Offline() {
				continue
			}
			o.drainDue(ctx)
		}
	}
}

func (o *Orchestrator) healthLoop(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if o.Status().State == StatusFailed {
				// Initialize runs its own health pass.
				if err := o.Initialize(ctx); err != nil {
					o.logger.Debug().Err(err).Str(log.FieldEvent, "initialize.retry_failed").Msg("initialization still failing")
				}
				continue
			}
			o.CheckHealth(ctx)
		}
	}
}

// drainDue retries the operations whose backoff has elapsed.
func (o *Orchestrator) drainDue(ctx context.Context) {
	if o.queue.Len() == 0 {
		return
	}
	res, err := o.queue.Drain(ctx, queue.DrainOptions{})
	o.settleDrain(ctx, res)
	if err != nil && !errors.Is(err, queue.ErrPaused) && ctx.Err() == nil {
		o.logger.Warn().Err(err).Str(log.FieldEvent, "queue.drain_aborted").Msg("periodic drain aborted")
	}
}

func (s *scheduler) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.syncTick.Stop()
	}
}

func (s *scheduler) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.syncTick.Reset(s.syncEvery)
	}
}

// resetIntervals applies new intervals to running tickers. The sync ticker
// stays stopped while offline.
func (s *scheduler) resetIntervals(syncEvery, healthEvery time.Duration, offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.syncEvery = syncEvery
	s.healthTick.Reset(healthEvery)
	if !offline {
		s.syncTick.Reset(syncEvery)
	}
}
