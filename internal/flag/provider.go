package flag

import (
	"fmt"
	"time"

	"stormsurge/internal/types"
)

// Provider normalizes a provider-specific webhook into the shared domain
// model. Implementations are stateless and safe for concurrent use.
type Provider interface {
	// Kind returns the provider identity.
	Kind() types.ProviderKind

	// WebhookPath returns the inbound webhook endpoint path for this provider.
	WebhookPath() string

	// SignatureHeader returns the HTTP header carrying the webhook signature.
	SignatureHeader() string

	// ParsePayload extracts a FlagChangeEvent from a raw webhook body.
	// It returns (nil, nil) when the payload is valid JSON but describes an
	// event unrelated to the watched flag; such webhooks are acknowledged
	// without producing a decision. Malformed JSON yields an AppError with
	// code ErrCodePayloadMalformed.
	ParsePayload(raw []byte) (*types.FlagChangeEvent, error)
}

// clock abstracts time.Now for deterministic tests.
type clock func() time.Time

// NewProvider constructs the provider adapter for the configured kind.
// An unrecognized kind is a fatal configuration error: the process must not
// start with a provider it cannot parse webhooks for.
func NewProvider(kind string) (Provider, error) {
	switch types.ProviderKind(kind) {
	case types.ProviderLaunchDarkly:
		return &LaunchDarklyProvider{now: time.Now}, nil
	case types.ProviderStatsig:
		return &StatsigProvider{now: time.Now}, nil
	default:
		return nil, types.NewAppError(
			types.ErrCodeStartupConfigInvalid,
			fmt.Sprintf("unsupported feature-flag provider %q", kind),
			nil,
		)
	}
}
