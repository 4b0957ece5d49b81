// Package scheduler implements the Sync Scheduler (spec §4.G): gating push
// by cooldown and single-flight re-entrancy, driving pull on connectivity
// change, and exposing a background-tick entry point that runs push → pull →
// prune. An added consecutive-failure backoff (grounded in the teacher's
// watch-mode error backoff) throttles only cycle scheduling, never the
// per-record retry policy in internal/retry.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feedsync/feedsync/internal/prune"
	"github.com/feedsync/feedsync/internal/pull"
	"github.com/feedsync/feedsync/internal/push"
	"github.com/feedsync/feedsync/internal/store"
)

// PushCooldown is the minimum interval between trigger_push invocations
// (spec §4.G).
const PushCooldown = 3000 * time.Millisecond

// backoffThreshold is the number of consecutive whole-cycle failures before
// any scheduling backoff is applied, mirroring the teacher's watch-mode
// threshold.
const backoffThreshold = 3

var backoffMaxCap = 1 * time.Hour

// backoffSteps maps consecutive failure counts (starting at the threshold)
// to their backoff durations: 3→1m, 4→5m, 5→15m, 6+→1h.
var backoffSteps = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	backoffMaxCap,
}

// backoffDuration returns the scheduling backoff for the given number of
// consecutive whole-cycle failures. Returns 0 below backoffThreshold.
func backoffDuration(failures int) time.Duration {
	if failures < backoffThreshold {
		return 0
	}

	idx := failures - backoffThreshold
	if idx >= len(backoffSteps) {
		return backoffMaxCap
	}

	return backoffSteps[idx]
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Scheduler gates Push/Pull by connectivity, re-entrancy, and cooldown.
type Scheduler struct {
	store  *store.Store
	push   *push.Pipeline
	pull   *pull.Pipeline
	prune  *prune.Pruner
	logger *slog.Logger
	now    Clock

	mu                  sync.Mutex
	lastPushTime        time.Time
	isSyncing           atomic.Bool
	consecutiveFailures int
	backoffUntil        time.Time
}

// New creates a Scheduler from its collaborators.
func New(st *store.Store, pushPipeline *push.Pipeline, pullPipeline *pull.Pipeline, pruner *prune.Pruner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{store: st, push: pushPipeline, pull: pullPipeline, prune: pruner, logger: logger, now: time.Now}
}

// TriggerPush implements §4.G `trigger_push`: a single-flight, cooldown-gated
// attempt to run the push pipeline. Returns false without running anything
// if the store is closed, a push is already in flight, or the cooldown has
// not elapsed.
func (s *Scheduler) TriggerPush(ctx context.Context) bool {
	if s.store.Closed() {
		return false
	}

	if !s.isSyncing.CompareAndSwap(false, true) {
		return false
	}
	defer s.isSyncing.Store(false)

	s.mu.Lock()
	elapsed := s.now().Sub(s.lastPushTime)
	if elapsed < PushCooldown {
		s.mu.Unlock()
		return false
	}

	s.lastPushTime = s.now()
	s.mu.Unlock()

	s.push.Run(ctx)

	return true
}

// OnConnectivityChange implements §4.G `on_connectivity_change`: a
// reconnection triggers a push attempt followed by a pull.
func (s *Scheduler) OnConnectivityChange(ctx context.Context, connected bool) {
	if !connected {
		return
	}

	s.TriggerPush(ctx)
	s.pull.Run(ctx)
}

// BackgroundTick implements §4.G `background_tick`: push, then pull, then
// prune, gated by the consecutive-failure backoff. Intended as the handler
// registered with the platform's background execution collaborator (§6.5),
// or invoked directly by `feedsync tick`.
func (s *Scheduler) BackgroundTick(ctx context.Context) {
	if s.store.Closed() {
		return
	}

	s.mu.Lock()
	if s.now().Before(s.backoffUntil) {
		s.mu.Unlock()
		s.logger.Debug("scheduler: skipping tick, within backoff window")

		return
	}
	s.mu.Unlock()

	s.TriggerPush(ctx)
	s.pull.Run(ctx)
	s.prune.Run(ctx)

	s.recordCycleOutcome(true)
}

// recordCycleOutcome updates the consecutive-failure counter and the
// resulting backoff window. A cycle that ran at all (even with per-record
// skips) counts as a success here — only a remote-unreachable-for-the-whole-
// cycle condition should escalate backoff, and that is detected by callers
// via RecordCycleFailure, not by BackgroundTick itself (which has no direct
// signal of total remote unavailability).
func (s *Scheduler) recordCycleOutcome(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		s.consecutiveFailures = 0
		s.backoffUntil = time.Time{}

		return
	}

	s.consecutiveFailures++
	s.backoffUntil = s.now().Add(backoffDuration(s.consecutiveFailures))
}

// RecordCycleFailure marks the most recent cycle as a total failure (remote
// unreachable for the whole cycle), escalating the scheduling backoff per
// the teacher-derived table. Callers that can detect this condition (e.g. a
// connectivity monitor observing every remote call fail) should call this
// instead of relying on BackgroundTick's default success bookkeeping.
func (s *Scheduler) RecordCycleFailure() {
	s.recordCycleOutcome(false)
}
