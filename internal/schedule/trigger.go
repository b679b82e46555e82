// Package schedule implements the business-hours schedule trigger. A
// minute-granularity ticker watches for the configured local-time window
// boundary and, on a crossing, synthesizes a ScheduleTick into the same
// serialized control-loop path as webhook events.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stormsurge/internal/controller"
	"stormsurge/internal/types"
)

// defaultCheckInterval is the boundary polling granularity.
const defaultCheckInterval = time.Minute

// TickHandler is the control-loop entry point for schedule ticks.
// Implemented by *controller.Loop.
type TickHandler interface {
	HandleScheduleTick(ctx context.Context, tick *types.ScheduleTick) controller.Result
}

// Trigger fires business-hours and after-hours scaling decisions on window
// boundary crossings only. A process that starts (or restarts) mid-window
// fires nothing until the next boundary: the window was either already
// actuated before the restart, or capacity is where the operator left it, and
// re-applying a multiplicative factor on every boot would compound it.
// Within one process, the control loop's idempotency cache (keyed by the
// window start rounded to the minute) suppresses duplicate crossings.
type Trigger struct {
	handler TickHandler

	startMinute int // business start, minutes since local midnight
	endMinute   int // business end, minutes since local midnight
	location    *time.Location

	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a schedule trigger for the given business-hours window.
// businessStart and businessEnd are "HH:MM" strings in the given IANA
// timezone; they were validated at config load.
func New(handler TickHandler, businessStart, businessEnd, timezone string, logger *slog.Logger) (*Trigger, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: loading timezone %q: %w", timezone, err)
	}

	startMinute, err := parseMinuteOfDay(businessStart)
	if err != nil {
		return nil, fmt.Errorf("schedule: parsing business start: %w", err)
	}
	endMinute, err := parseMinuteOfDay(businessEnd)
	if err != nil {
		return nil, fmt.Errorf("schedule: parsing business end: %w", err)
	}
	if startMinute == endMinute {
		return nil, fmt.Errorf("schedule: business start and end must differ (both %s)", businessStart)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Trigger{
		handler:     handler,
		startMinute: startMinute,
		endMinute:   endMinute,
		location:    loc,
		interval:    defaultCheckInterval,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Run polls for boundary crossings until the context is cancelled. The
// window observed at startup is only recorded, never fired: a restart inside
// an already-actuated window must not re-actuate it.
func (t *Trigger) Run(ctx context.Context) error {
	prevWindow, _ := t.windowAt(t.now())
	t.logger.InfoContext(ctx, "schedule trigger started",
		"window", string(prevWindow),
	)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := t.now()
			window, _ := t.windowAt(now)
			if window != prevWindow {
				t.fire(ctx, now)
				prevWindow = window
			}
		}
	}
}

// fire synthesizes a ScheduleTick for the window containing now and submits
// it to the control loop.
func (t *Trigger) fire(ctx context.Context, now time.Time) {
	window, windowStart := t.windowAt(now)
	tick := &types.ScheduleTick{
		Window:   window,
		WindowID: WindowID(windowStart),
		FiredAt:  now.UTC(),
	}

	t.logger.InfoContext(ctx, "schedule window boundary",
		"window", string(window),
		"window_id", tick.WindowID,
	)

	result := t.handler.HandleScheduleTick(ctx, tick)
	t.logger.InfoContext(ctx, "schedule tick handled",
		"window", string(window),
		"window_id", tick.WindowID,
		"outcome", string(result.Outcome),
	)
}

// windowAt classifies the instant and returns the start of the window it
// falls in. Overnight business windows (start > end) are supported.
func (t *Trigger) windowAt(now time.Time) (types.ScheduleWindow, time.Time) {
	local := now.In(t.location)
	minute := local.Hour()*60 + local.Minute()
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.location)

	boundary := func(minuteOfDay int, dayOffset int) time.Time {
		return midnight.AddDate(0, 0, dayOffset).Add(time.Duration(minuteOfDay) * time.Minute)
	}

	if t.startMinute < t.endMinute {
		// Daytime business window, e.g. 06:00-18:00.
		switch {
		case minute < t.startMinute:
			return types.WindowAfterHours, boundary(t.endMinute, -1)
		case minute < t.endMinute:
			return types.WindowBusinessHours, boundary(t.startMinute, 0)
		default:
			return types.WindowAfterHours, boundary(t.endMinute, 0)
		}
	}

	// Overnight business window, e.g. 22:00-06:00.
	switch {
	case minute >= t.startMinute:
		return types.WindowBusinessHours, boundary(t.startMinute, 0)
	case minute < t.endMinute:
		return types.WindowBusinessHours, boundary(t.startMinute, -1)
	default:
		return types.WindowAfterHours, boundary(t.endMinute, 0)
	}
}

// WindowID renders a window start as its idempotency key component: the
// start timestamp rounded to the minute, in UTC.
func WindowID(windowStart time.Time) string {
	return windowStart.UTC().Truncate(time.Minute).Format(time.RFC3339)
}

// parseMinuteOfDay converts "HH:MM" to minutes since midnight.
func parseMinuteOfDay(hhmm string) (int, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
