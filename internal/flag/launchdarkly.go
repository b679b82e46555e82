package flag

import (
	"encoding/json"

	"stormsurge/internal/types"
)

// WatchedLaunchDarklyFlag is the LaunchDarkly flag key that drives cost
// optimization. Webhooks for other flags are acknowledged but ignored.
const WatchedLaunchDarklyFlag = "enable-cost-optimizer"

// Compile-time assertion that LaunchDarklyProvider implements Provider.
var _ Provider = (*LaunchDarklyProvider)(nil)

// LaunchDarklyProvider parses LaunchDarkly webhook payloads.
//
// LaunchDarkly delivers flag changes as {"kind": "flag", "data": {"key": ...,
// "value": ...}} and signs the raw body with HMAC-SHA256, sending the hex
// digest in the X-LD-Signature header.
type LaunchDarklyProvider struct {
	now clock
}

// launchDarklyPayload is the subset of the LaunchDarkly webhook body we read.
type launchDarklyPayload struct {
	Kind string `json:"kind"`
	Data struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	} `json:"data"`
}

// Kind returns types.ProviderLaunchDarkly.
func (p *LaunchDarklyProvider) Kind() types.ProviderKind {
	return types.ProviderLaunchDarkly
}

// WebhookPath returns the inbound webhook endpoint for LaunchDarkly.
func (p *LaunchDarklyProvider) WebhookPath() string {
	return "/webhook/launchdarkly"
}

// SignatureHeader returns the header LaunchDarkly signs webhooks with.
func (p *LaunchDarklyProvider) SignatureHeader() string {
	return "X-LD-Signature"
}

// ParsePayload extracts a FlagChangeEvent from a LaunchDarkly webhook body.
// Payloads whose kind is not "flag", or whose flag key is not the watched
// cost-optimizer flag, return (nil, nil).
func (p *LaunchDarklyProvider) ParsePayload(raw []byte) (*types.FlagChangeEvent, error) {
	var payload launchDarklyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, types.NewAppError(
			types.ErrCodePayloadMalformed,
			"malformed LaunchDarkly webhook payload",
			err,
		)
	}

	if payload.Kind != "flag" || payload.Data.Key != WatchedLaunchDarklyFlag {
		return nil, nil
	}

	return &types.FlagChangeEvent{
		FlagKey:    payload.Data.Key,
		FlagValue:  flagValueEnabled(payload.Data.Value),
		RawValue:   payload.Data.Value,
		Provider:   types.ProviderLaunchDarkly,
		ReceivedAt: p.now().UTC(),
	}, nil
}

// flagValueEnabled interprets a JSON flag value as a boolean. LaunchDarkly
// flag values may be any JSON type; a missing or non-true value means the
// optimizer is off.
func flagValueEnabled(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}
