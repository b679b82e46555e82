package flag

import (
	"encoding/json"

	"stormsurge/internal/types"
)

// WatchedStatsigGate is the Statsig gate name that drives cost optimization.
const WatchedStatsigGate = "enable_cost_optimizer"

// Compile-time assertion that StatsigProvider implements Provider.
var _ Provider = (*StatsigProvider)(nil)

// StatsigProvider parses Statsig webhook payloads.
//
// Statsig delivers gate changes as {"event_type": "gate_config_updated",
// "data": {"name": ..., "enabled": ...}} and signs the raw body with
// HMAC-SHA256, sending "sha256=<hex>" in the X-Statsig-Signature header.
type StatsigProvider struct {
	now clock
}

// statsigPayload is the subset of the Statsig webhook body we read.
type statsigPayload struct {
	EventType string `json:"event_type"`
	Data      struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	} `json:"data"`
}

// Kind returns types.ProviderStatsig.
func (p *StatsigProvider) Kind() types.ProviderKind {
	return types.ProviderStatsig
}

// WebhookPath returns the inbound webhook endpoint for Statsig.
func (p *StatsigProvider) WebhookPath() string {
	return "/webhook/statsig"
}

// SignatureHeader returns the header Statsig signs webhooks with.
func (p *StatsigProvider) SignatureHeader() string {
	return "X-Statsig-Signature"
}

// ParsePayload extracts a FlagChangeEvent from a Statsig webhook body.
// Payloads that are not gate updates for the watched gate return (nil, nil).
func (p *StatsigProvider) ParsePayload(raw []byte) (*types.FlagChangeEvent, error) {
	var payload statsigPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, types.NewAppError(
			types.ErrCodePayloadMalformed,
			"malformed Statsig webhook payload",
			err,
		)
	}

	if payload.EventType != "gate_config_updated" || payload.Data.Name != WatchedStatsigGate {
		return nil, nil
	}

	return &types.FlagChangeEvent{
		FlagKey:    payload.Data.Name,
		FlagValue:  payload.Data.Enabled,
		Provider:   types.ProviderStatsig,
		ReceivedAt: p.now().UTC(),
	}, nil
}
