// Package types defines the shared domain model for the Storm Surge scaling
// middleware: flag change events, scaling decisions, capacity snapshots, and
// the cross-cutting error and secret types used by every other package.
package types

import (
	"encoding/json"
	"time"
)

// ProviderKind identifies a supported feature-flag SaaS provider.
type ProviderKind string

const (
	ProviderLaunchDarkly ProviderKind = "launchdarkly"
	ProviderStatsig      ProviderKind = "statsig"
)

// TriggerSource identifies what initiated a scaling decision.
type TriggerSource string

const (
	TriggerWebhook  TriggerSource = "webhook"
	TriggerSchedule TriggerSource = "schedule"
)

// ScaleDirection is the direction of a scaling decision.
type ScaleDirection string

const (
	ScaleUp   ScaleDirection = "scale_up"
	ScaleDown ScaleDirection = "scale_down"
	ScaleNoOp ScaleDirection = "no_op"
)

// ScheduleWindow identifies which side of the business-hours boundary a
// schedule tick fires for.
type ScheduleWindow string

const (
	WindowBusinessHours ScheduleWindow = "business_hours"
	WindowAfterHours    ScheduleWindow = "after_hours"
)

// FlagChangeEvent is the normalized form of a verified provider webhook.
// It is constructed once per accepted webhook and never mutated.
type FlagChangeEvent struct {
	FlagKey    string          `json:"flag_key"`
	FlagValue  bool            `json:"flag_value"`
	RawValue   json.RawMessage `json:"raw_value,omitempty"`
	Provider   ProviderKind    `json:"provider"`
	ReceivedAt time.Time       `json:"received_at"`
}

// IdempotencyKey derives the dedup cache key for this event. Two deliveries
// of the same logical flag transition map to the same key.
func (e FlagChangeEvent) IdempotencyKey() string {
	v := "false"
	if e.FlagValue {
		v = "true"
	}
	return string(e.Provider) + ":" + e.FlagKey + ":" + v
}

// ScheduleTick is synthesized by the schedule trigger when "now" crosses a
// business-hours boundary.
type ScheduleTick struct {
	Window   ScheduleWindow `json:"window"`
	WindowID string         `json:"window_id"` // window start, rounded to the minute
	FiredAt  time.Time      `json:"fired_at"`
}

// CapacitySnapshot is a point-in-time read of the external autoscaler state.
// Snapshots are always re-fetched before each decision and never reused
// across lock acquisitions.
type CapacitySnapshot struct {
	Current   int       `json:"target"`
	Min       int       `json:"minimum"`
	Max       int       `json:"maximum"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ScalingDecision is the pure output of the decision engine.
type ScalingDecision struct {
	Direction      ScaleDirection `json:"direction"`
	TargetReplicas int            `json:"target_replicas"`
	MinReplicas    int            `json:"min_replicas"`
	MaxReplicas    int            `json:"max_replicas"`
	Reason         string         `json:"reason"`
	Trigger        TriggerSource  `json:"trigger"`
}

// IsNoOp reports whether the decision requires no capacity mutation.
func (d ScalingDecision) IsNoOp() bool {
	return d.Direction == ScaleNoOp
}

// Outcome is the terminal state of one control-loop pass.
type Outcome string

const (
	OutcomeActuated  Outcome = "actuated"
	OutcomeSkipped   Outcome = "skipped"   // decision was a no-op
	OutcomeDuplicate Outcome = "duplicate" // suppressed by the idempotency window
	OutcomeBusy      Outcome = "busy"      // lock wait timed out
	OutcomeFailed    Outcome = "failed"    // capacity API failure after retries
	OutcomeIgnored   Outcome = "ignored"   // webhook kind unrelated to the watched flag
)
