package controller

import (
	"context"
	"log/slog"
	"time"

	"stormsurge/internal/engine"
	"stormsurge/internal/telemetry"
	"stormsurge/internal/types"
)

// windowDedupeTTL is how long a schedule window's idempotency key is
// retained. Window IDs are unique per window start, so the TTL only needs to
// outlast one window.
const windowDedupeTTL = 24 * time.Hour

// CapacityClient abstracts the external autoscaler's read/modify API.
// Production code uses *spot.Client.
type CapacityClient interface {
	GetCapacity(ctx context.Context) (types.CapacitySnapshot, error)
	SetCapacity(ctx context.Context, target, minimum, maximum int) error
}

// Result is the terminal state of one control-loop pass.
type Result struct {
	Outcome  types.Outcome
	Decision *types.ScalingDecision
	Err      error
}

// Loop serializes scaling decisions from all trigger sources into capacity
// mutations. It owns the ScalingLock and the idempotency cache; the decision
// engine stays pure and the capacity client stays resilient.
type Loop struct {
	client    CapacityClient
	sink      telemetry.Sink
	policy    engine.Policy
	lock      *ScalingLock
	dedupe    DedupeStore
	clusterID string

	dedupWindow time.Duration
	lockWait    time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// LoopConfig holds the dependencies and tunables for constructing a Loop.
type LoopConfig struct {
	Client      CapacityClient
	Sink        telemetry.Sink
	Policy      engine.Policy
	Dedupe      DedupeStore
	ClusterID   string
	DedupWindow time.Duration
	LockWait    time.Duration
	Logger      *slog.Logger
}

// NewLoop creates the control loop. A nil Dedupe gets a fresh in-memory
// cache; a nil Sink gets the no-op sink.
func NewLoop(cfg LoopConfig) *Loop {
	dedupe := cfg.Dedupe
	if dedupe == nil {
		dedupe = NewMemoryDedupe()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dedupWindow := cfg.DedupWindow
	if dedupWindow <= 0 {
		dedupWindow = 60 * time.Second
	}
	lockWait := cfg.LockWait
	if lockWait <= 0 {
		lockWait = 15 * time.Second
	}

	return &Loop{
		client:      cfg.Client,
		sink:        sink,
		policy:      cfg.Policy,
		lock:        NewScalingLock(),
		dedupe:      dedupe,
		clusterID:   cfg.ClusterID,
		dedupWindow: dedupWindow,
		lockWait:    lockWait,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleFlagEvent runs one control-loop pass for a verified webhook event.
// Redeliveries of the same logical flag transition within the dedup window
// result in exactly one capacity mutation.
func (l *Loop) HandleFlagEvent(ctx context.Context, ev *types.FlagChangeEvent) Result {
	return l.process(ctx, engine.FlagInput(ev), ev.IdempotencyKey(), l.dedupWindow)
}

// HandleScheduleTick runs one control-loop pass for a schedule boundary
// crossing. The window ID keys the idempotency record so a tick for an
// already-actuated window is suppressed.
func (l *Loop) HandleScheduleTick(ctx context.Context, tick *types.ScheduleTick) Result {
	return l.process(ctx, engine.TickInput(tick), "window:"+tick.WindowID, windowDedupeTTL)
}

// process is the serialized decision-actuation path shared by all triggers:
// dedup check, lock acquisition, fresh capacity read inside the lock,
// decision, and (unless no-op) the capacity update.
//
// The snapshot is always fetched after the lock is held so a decision acts on
// current state, never a read taken before the wait. Keys are recorded only
// after a successful or no-op outcome: a failed actuation leaves the key
// unrecorded so a provider redelivery can retry.
func (l *Loop) process(ctx context.Context, in engine.Input, key string, ttl time.Duration) Result {
	if l.dedupe.Seen(key) {
		l.logger.InfoContext(ctx, "duplicate trigger suppressed",
			"idempotency_key", key,
			"trigger", string(in.Trigger),
		)
		return Result{Outcome: types.OutcomeDuplicate}
	}

	if !l.lock.Acquire(ctx, l.lockWait) {
		l.logger.WarnContext(ctx, "scaling lock wait timed out, dropping trigger",
			"idempotency_key", key,
			"trigger", string(in.Trigger),
			"lock_wait", l.lockWait.String(),
		)
		return Result{
			Outcome: types.OutcomeBusy,
			Err:     types.NewAppError(types.ErrCodeLockBusy, "scaling lock held beyond wait timeout", nil),
		}
	}
	defer l.lock.Release()

	// A duplicate may have been actuated while this trigger waited.
	if l.dedupe.Seen(key) {
		return Result{Outcome: types.OutcomeDuplicate}
	}

	started := l.now()

	snap, err := l.client.GetCapacity(ctx)
	if err != nil {
		l.logger.ErrorContext(ctx, "capacity fetch failed, dropping trigger",
			"cluster_id", l.clusterID,
			"trigger", string(in.Trigger),
			"error", err,
		)
		l.sink.LogClusterAction(actionName(in), l.clusterID, false, map[string]any{
			"error":       err.Error(),
			"duration_ms": l.sinceMillis(started),
		})
		return Result{Outcome: types.OutcomeFailed, Err: err}
	}

	decision := engine.Decide(in, snap, l.policy)

	if decision.IsNoOp() {
		l.logger.InfoContext(ctx, "scaling decision is a no-op",
			"cluster_id", l.clusterID,
			"trigger", string(decision.Trigger),
			"current", snap.Current,
			"reason", decision.Reason,
		)
		l.dedupe.Record(key, ttl)
		return Result{Outcome: types.OutcomeSkipped, Decision: &decision}
	}

	err = l.client.SetCapacity(ctx, decision.TargetReplicas, decision.MinReplicas, decision.MaxReplicas)

	details := map[string]any{
		"current":               snap.Current,
		"target":                decision.TargetReplicas,
		"minimum":               decision.MinReplicas,
		"maximum":               decision.MaxReplicas,
		"reason":                decision.Reason,
		"trigger":               string(decision.Trigger),
		"cost_impact_threshold": l.policy.CostImpactThreshold,
		"duration_ms":           l.sinceMillis(started),
	}

	if err != nil {
		details["error"] = err.Error()
		l.logger.ErrorContext(ctx, "capacity update failed, dropping trigger",
			"cluster_id", l.clusterID,
			"trigger", string(decision.Trigger),
			"target", decision.TargetReplicas,
			"reason", decision.Reason,
			"error", err,
		)
		l.sink.LogClusterAction(actionName(in), l.clusterID, false, details)
		return Result{Outcome: types.OutcomeFailed, Decision: &decision, Err: err}
	}

	l.dedupe.Record(key, ttl)

	l.logger.InfoContext(ctx, "cluster scaled",
		"cluster_id", l.clusterID,
		"trigger", string(decision.Trigger),
		"direction", string(decision.Direction),
		"current", snap.Current,
		"target", decision.TargetReplicas,
		"reason", decision.Reason,
	)
	l.sink.LogClusterAction(actionName(in), l.clusterID, true, details)

	return Result{Outcome: types.OutcomeActuated, Decision: &decision}
}

// sinceMillis returns elapsed milliseconds since start.
func (l *Loop) sinceMillis(start time.Time) int64 {
	return l.now().Sub(start).Milliseconds()
}

// actionName maps a trigger to the telemetry action label.
func actionName(in engine.Input) string {
	if in.Trigger == types.TriggerSchedule && in.Tick != nil {
		if in.Tick.Window == types.WindowAfterHours {
			return "after_hours_optimization"
		}
		return "business_hours_scale_up"
	}
	if in.Flag != nil && in.Flag.FlagValue {
		return "cost_optimization_enabled"
	}
	return "cost_optimization_disabled"
}
