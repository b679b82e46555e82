package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"stormsurge/internal/types"
)

// statsigEventsURL is the Statsig server-side event logging endpoint.
const statsigEventsURL = "https://statsigapi.net/v1/log_event"

// Compile-time assertion that StatsigSink implements Sink.
var _ Sink = (*StatsigSink)(nil)

// StatsigSink delivers operational events to the Statsig log_event API.
// Flag evaluations map to "gate_evaluation" events; everything else maps to
// named events with properties in the metadata field.
type StatsigSink struct {
	batcher
	serverKey  types.SecretString
	httpClient *http.Client
	eventsURL  string
}

// NewStatsigSink creates a sink authenticated with the given server key.
func NewStatsigSink(serverKey types.SecretString, cfg Config) *StatsigSink {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	s := &StatsigSink{
		serverKey:  serverKey,
		httpClient: httpClient,
		eventsURL:  statsigEventsURL,
	}
	s.batcher.init(s, cfg)
	return s
}

// userContext is the fixed Statsig user identifying this service.
func (s *StatsigSink) userContext() map[string]any {
	return map[string]any{
		"userID": "storm-surge-middleware",
		"custom": map[string]any{
			"service": "stormsurge-middleware",
		},
	}
}

// LogFlagEvaluation records a gate evaluation event.
func (s *StatsigSink) LogFlagEvaluation(flagKey string, flagValue bool, metadata map[string]any) {
	md := map[string]any{
		"gate_name":  flagKey,
		"gate_value": flagValue,
		"source":     "storm_surge_middleware",
	}
	for k, v := range metadata {
		md[k] = v
	}
	s.add(map[string]any{
		"eventName": "gate_evaluation",
		"user":      s.userContext(),
		"time":      nowMillis(),
		"metadata":  md,
	})
}

// LogWebhookEvent records webhook receipt metadata.
func (s *StatsigSink) LogWebhookEvent(eventType string, responseStatus int, metadata map[string]any) {
	properties := map[string]any{
		"event_type":      eventType,
		"response_status": responseStatus,
	}
	for k, v := range metadata {
		properties[k] = v
	}
	s.LogCustomEvent("webhook_received", properties)
}

// LogClusterAction records a capacity mutation attempt.
func (s *StatsigSink) LogClusterAction(action, clusterID string, success bool, details map[string]any) {
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

// LogCustomEvent records an arbitrary named event.
func (s *StatsigSink) LogCustomEvent(name string, properties map[string]any) {
	s.add(map[string]any{
		"eventName": name,
		"user":      s.userContext(),
		"time":      nowMillis(),
		"metadata":  properties,
	})
}

// post delivers one batch to the Statsig log_event endpoint. The API takes an
// envelope with the events array and SDK metadata, authenticated via the
// STATSIG-API-KEY header.
func (s *StatsigSink) post(ctx context.Context, events []any) error {
	body, err := json.Marshal(map[string]any{
		"events": events,
		"statsigMetadata": map[string]any{
			"sdkType": "storm-surge-middleware",
		},
	})
	if err != nil {
		return err
	}
	return postJSON(ctx, s.httpClient, s.eventsURL, map[string]string{
		"STATSIG-API-KEY": s.serverKey.Unmask(),
	}, body)
}
