package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"stormsurge/internal/types"
)

// launchDarklyEventsURL is the LaunchDarkly bulk events endpoint.
const launchDarklyEventsURL = "https://events.launchdarkly.com/bulk"

// Compile-time assertion that LaunchDarklySink implements Sink.
var _ Sink = (*LaunchDarklySink)(nil)

// LaunchDarklySink delivers operational events to the LaunchDarkly Events
// API. Flag evaluations map to "feature" events; everything else maps to
// "custom" events keyed by event name.
type LaunchDarklySink struct {
	batcher
	sdkKey     types.SecretString
	httpClient *http.Client
	eventsURL  string
}

// NewLaunchDarklySink creates a sink authenticated with the given SDK key.
func NewLaunchDarklySink(sdkKey types.SecretString, cfg Config) *LaunchDarklySink {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	s := &LaunchDarklySink{
		sdkKey:     sdkKey,
		httpClient: httpClient,
		eventsURL:  launchDarklyEventsURL,
	}
	s.batcher.init(s, cfg)
	return s
}

// userContext is the fixed LaunchDarkly context identifying this service.
func (s *LaunchDarklySink) userContext() map[string]any {
	return map[string]any{
		"key":  "storm-surge-middleware",
		"kind": "user",
		"name": "Storm Surge Middleware",
		"custom": map[string]any{
			"service": "stormsurge-middleware",
		},
	}
}

// LogFlagEvaluation records a "feature" event for the flag evaluation.
func (s *LaunchDarklySink) LogFlagEvaluation(flagKey string, flagValue bool, metadata map[string]any) {
	event := map[string]any{
		"kind":         "feature",
		"creationDate": nowMillis(),
		"key":          flagKey,
		"value":        flagValue,
		"default":      false,
		"user":         s.userContext(),
		"version":      1,
	}
	if len(metadata) > 0 {
		event["custom"] = metadata
	}
	s.add(event)
}

// LogWebhookEvent records webhook receipt metadata as a custom event.
func (s *LaunchDarklySink) LogWebhookEvent(eventType string, responseStatus int, metadata map[string]any) {
	properties := map[string]any{
		"event_type":      eventType,
		"response_status": responseStatus,
	}
	for k, v := range metadata {
		properties[k] = v
	}
	s.LogCustomEvent("webhook_received", properties)
}

// LogClusterAction records a capacity mutation attempt as a custom event.
func (s *LaunchDarklySink) LogClusterAction(action, clusterID string, success bool, details map[string]any) {
	properties := map[string]any{
		"action":     action,
		"cluster_id": clusterID,
		"success":    success,
	}
	for k, v := range details {
		properties[k] = v
	}
	s.LogCustomEvent("cluster_action", properties)
}

// LogCustomEvent records an arbitrary named custom event.
func (s *LaunchDarklySink) LogCustomEvent(name string, properties map[string]any) {
	s.add(map[string]any{
		"kind":         "custom",
		"creationDate": nowMillis(),
		"key":          name,
		"user":         s.userContext(),
		"data":         properties,
	})
}

// post delivers one batch to the LaunchDarkly bulk endpoint. The API takes a
// bare JSON array of events with the SDK key as the Authorization header.
func (s *LaunchDarklySink) post(ctx context.Context, events []any) error {
	body, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return postJSON(ctx, s.httpClient, s.eventsURL, map[string]string{
		"Authorization": s.sdkKey.Unmask(),
	}, body)
}
