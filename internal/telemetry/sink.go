// Package telemetry implements the operational event sinks for the Storm
// Surge middleware. Sinks accumulate normalized events (flag evaluations,
// webhook receipts, cluster actions) and flush them in batches to the
// configured provider's bulk events endpoint.
//
// Telemetry is strictly best-effort: flush failures are logged and the batch
// is cleared, and no telemetry path may ever block or fail a scaling
// operation. The one hard guarantee is flush-on-shutdown, owned by the
// process entry point.
package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"stormsurge/internal/types"
)

// DefaultBatchSize is the number of buffered events that triggers an
// asynchronous flush.
const DefaultBatchSize = 100

// Sink is the operational event emitter. Implementations batch events
// in-process and deliver them asynchronously.
type Sink interface {
	// LogFlagEvaluation records a feature-flag evaluation event.
	LogFlagEvaluation(flagKey string, flagValue bool, metadata map[string]any)

	// LogWebhookEvent records an inbound webhook receipt or error.
	LogWebhookEvent(eventType string, responseStatus int, metadata map[string]any)

	// LogClusterAction records a capacity mutation attempt.
	LogClusterAction(action, clusterID string, success bool, details map[string]any)

	// LogCustomEvent records an arbitrary named event.
	LogCustomEvent(name string, properties map[string]any)

	// Flush synchronously delivers all buffered events. Failures are logged
	// and the buffer is cleared either way.
	Flush(ctx context.Context) error
}

// Config holds the settings shared by the provider sinks.
type Config struct {
	BatchSize    int
	FlushTimeout time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// NewSink constructs the sink for the given provider selector. Selector
// "auto" follows the feature-flag provider; "disabled" and missing
// credentials both yield the no-op sink (with a warning for the latter).
func NewSink(selector string, flagProvider types.ProviderKind, ldKey, statsigKey types.SecretString, cfg Config) Sink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolved := types.ProviderKind(selector)
	if selector == "auto" {
		resolved = flagProvider
	}

	switch resolved {
	case types.ProviderLaunchDarkly:
		if ldKey.IsZero() {
			logger.Warn("LaunchDarkly SDK key not provided; telemetry disabled")
			return NoopSink{}
		}
		return NewLaunchDarklySink(ldKey, cfg)
	case types.ProviderStatsig:
		if statsigKey.IsZero() {
			logger.Warn("Statsig server key not provided; telemetry disabled")
			return NoopSink{}
		}
		return NewStatsigSink(statsigKey, cfg)
	default:
		logger.Info("telemetry sink disabled", "selector", selector)
		return NoopSink{}
	}
}

// NoopSink discards all events. Used when telemetry is disabled or
// unconfigured, so callers never need nil checks.
type NoopSink struct{}

func (NoopSink) LogFlagEvaluation(string, bool, map[string]any)        {}
func (NoopSink) LogWebhookEvent(string, int, map[string]any)           {}
func (NoopSink) LogClusterAction(string, string, bool, map[string]any) {}
func (NoopSink) LogCustomEvent(string, map[string]any)                 {}
func (NoopSink) Flush(context.Context) error                           { return nil }

// poster delivers one batch of provider-shaped events. Implemented by the
// provider sinks; exercised by the shared batcher.
type poster interface {
	post(ctx context.Context, events []any) error
}

// batcher is the shared accumulate-and-flush core embedded by the provider
// sinks. Events append under a mutex; reaching the batch threshold hands the
// full batch to an async flush goroutine so callers never block on delivery.
type batcher struct {
	mu      sync.Mutex
	pending []any

	batchSize    int
	flushTimeout time.Duration
	logger       *slog.Logger
	sink         poster
}

// init wires the batcher in place; the embedded mutex must never be copied.
func (b *batcher) init(sink poster, cfg Config) {
	b.batchSize = cfg.BatchSize
	if b.batchSize <= 0 {
		b.batchSize = DefaultBatchSize
	}
	b.flushTimeout = cfg.FlushTimeout
	if b.flushTimeout <= 0 {
		b.flushTimeout = 10 * time.Second
	}
	b.logger = cfg.Logger
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.sink = sink
}

// add buffers one event. When the threshold is reached the batch is detached
// and flushed on its own goroutine.
func (b *batcher) add(event any) {
	b.mu.Lock()
	b.pending = append(b.pending, event)
	if len(b.pending) < b.batchSize {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.flushTimeout)
		defer cancel()
		b.deliver(ctx, batch)
	}()
}

// Flush synchronously delivers any buffered events. The buffer is cleared
// regardless of the delivery outcome (best-effort semantics).
func (b *batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return b.deliver(ctx, batch)
}

// deliver posts one batch, logging success or failure. The batch is never
// requeued.
func (b *batcher) deliver(ctx context.Context, batch []any) error {
	batchID := uuid.New().String()
	if err := b.sink.post(ctx, batch); err != nil {
		b.logger.ErrorContext(ctx, "telemetry flush failed, dropping batch",
			"batch_id", batchID,
			"event_count", len(batch),
			"error", err,
		)
		return err
	}
	b.logger.InfoContext(ctx, "telemetry batch delivered",
		"batch_id", batchID,
		"event_count", len(batch),
	)
	return nil
}

// postJSON is the shared HTTP delivery helper for provider sinks.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Storm-Surge-Middleware/1.1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting telemetry batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("telemetry endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// nowMillis returns the current time as epoch milliseconds, the timestamp
// format both provider event APIs use.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
