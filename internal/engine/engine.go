// Package engine implements the scaling decision engine: a pure function from
// a trigger (flag change or schedule tick) plus a fresh capacity snapshot to a
// ScalingDecision. The engine has no knowledge of concurrency, HTTP, or the
// capacity API; serialization and actuation belong to the control loop.
package engine

import (
	"fmt"
	"math"

	"stormsurge/internal/types"
)

// Policy carries the configured scaling bounds and factors.
type Policy struct {
	MinReplicas     int
	MaxReplicas     int
	ScaleDownFactor float64 // applied when cost optimization is enabled
	ScaleUpFactor   float64 // applied when cost optimization is disabled

	// CostImpactThreshold is the minimum estimated cost delta worth reporting.
	// It does not gate decisions; it is carried into action telemetry so the
	// dashboard can filter noise.
	CostImpactThreshold float64
}

// Input is the trigger half of a decision. Exactly one of Flag or Tick is
// set, discriminated by Trigger.
type Input struct {
	Trigger types.TriggerSource
	Flag    *types.FlagChangeEvent
	Tick    *types.ScheduleTick
}

// FlagInput wraps a flag change event as a decision input.
func FlagInput(ev *types.FlagChangeEvent) Input {
	return Input{Trigger: types.TriggerWebhook, Flag: ev}
}

// TickInput wraps a schedule tick as a decision input.
func TickInput(tick *types.ScheduleTick) Input {
	return Input{Trigger: types.TriggerSchedule, Tick: tick}
}

// Decide maps a trigger and a point-in-time capacity snapshot to a scaling
// decision under the given policy.
//
// Cost optimization enabled (flag true, or schedule entering after-hours):
// target = floor(current * ScaleDownFactor). Cost optimization disabled
// (flag false, or schedule entering business hours): target =
// ceil(current * ScaleUpFactor). Either way the target is clamped to
// [MinReplicas, MaxReplicas].
//
// When the computed target equals the snapshot's current capacity the
// decision is a no-op; callers must not invoke the capacity client for no-op
// decisions.
func Decide(in Input, snap types.CapacitySnapshot, pol Policy) types.ScalingDecision {
	optimize, reason := in.optimize()

	var target int
	var direction types.ScaleDirection
	if optimize {
		target = clamp(int(math.Floor(float64(snap.Current)*pol.ScaleDownFactor)), pol)
		direction = types.ScaleDown
	} else {
		target = clamp(int(math.Ceil(float64(snap.Current)*pol.ScaleUpFactor)), pol)
		direction = types.ScaleUp
	}

	if target == snap.Current {
		direction = types.ScaleNoOp
		reason = fmt.Sprintf("%s (target %d equals current capacity)", reason, target)
	}

	return types.ScalingDecision{
		Direction:      direction,
		TargetReplicas: target,
		MinReplicas:    pol.MinReplicas,
		MaxReplicas:    pol.MaxReplicas,
		Reason:         reason,
		Trigger:        in.Trigger,
	}
}

// clamp bounds a computed target to the policy range. Both branches clamp
// both sides: a cluster already outside its bounds converges back in, and the
// target is never outside [MinReplicas, MaxReplicas].
func clamp(target int, pol Policy) int {
	if target < pol.MinReplicas {
		return pol.MinReplicas
	}
	if target > pol.MaxReplicas {
		return pol.MaxReplicas
	}
	return target
}

// optimize resolves whether the trigger selects the cost-optimization branch,
// along with a human-readable reason for logs and telemetry.
//
// Schedule ticks force the branch regardless of flag state: entering
// after-hours always optimizes, entering business hours always scales up.
func (in Input) optimize() (bool, string) {
	if in.Trigger == types.TriggerSchedule && in.Tick != nil {
		if in.Tick.Window == types.WindowAfterHours {
			return true, "after-hours window entered"
		}
		return false, "business-hours window entered"
	}

	if in.Flag != nil && in.Flag.FlagValue {
		return true, fmt.Sprintf("flag %s enabled", in.Flag.FlagKey)
	}
	if in.Flag != nil {
		return false, fmt.Sprintf("flag %s disabled", in.Flag.FlagKey)
	}
	return false, "unknown trigger"
}
