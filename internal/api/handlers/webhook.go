// Package handlers contains the HTTP handler implementations for the Storm
// Surge middleware.
//
// The webhook handler is NOT behind any auth middleware -- it is called
// directly by the feature-flag provider. Security is provided by verifying
// the provider's signature header using HMAC-SHA256.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stormsurge/internal/controller"
	"stormsurge/internal/core"
	"stormsurge/internal/flag"
	"stormsurge/internal/telemetry"
	"stormsurge/internal/types"
)

// maxWebhookBodySize is the maximum allowed webhook payload size (64 KB).
// Flag-change payloads are tiny; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// FlagEventHandler runs one control-loop pass for a normalized flag change.
// Implemented by *controller.Loop.
type FlagEventHandler interface {
	HandleFlagEvent(ctx context.Context, ev *types.FlagChangeEvent) controller.Result
}

// WebhookHandler processes inbound flag-change webhooks for the single
// provider the middleware was configured with. Webhooks addressed to any
// other provider path are rejected rather than silently accepted.
type WebhookHandler struct {
	provider flag.Provider
	verifier *flag.Verifier
	loop     FlagEventHandler
	sink     telemetry.Sink
	logger   *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler with the provided dependencies.
func NewWebhookHandler(
	provider flag.Provider,
	verifier *flag.Verifier,
	loop FlagEventHandler,
	sink telemetry.Sink,
	logger *slog.Logger,
) *WebhookHandler {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		provider: provider,
		verifier: verifier,
		loop:     loop,
		sink:     sink,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. The route is parameterized so
// a webhook aimed at the wrong provider gets a structured 400 instead of a
// bare 404.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/{provider}", h.Handle)
}

// webhookAck is the response body for accepted webhooks. Processing outcomes
// (including downstream capacity failures) are reported in the body with a
// 200 status so the provider does not redeliver; redelivery cannot fix a
// broken upstream and duplicates are suppressed anyway.
type webhookAck struct {
	Status string `json:"status"`
	Action string `json:"action,omitempty"`
}

// Handle processes an inbound flag-change webhook:
//  1. Checks the path provider against the configured one.
//  2. Reads the raw body with the size cap.
//  3. Verifies the provider signature header (401 on mismatch).
//  4. Parses the payload into a FlagChangeEvent (400 on malformed JSON).
//  5. Runs the control loop synchronously and reports the outcome.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	pathProvider := chi.URLParam(r, "provider")
	if pathProvider != string(h.provider.Kind()) {
		h.logger.WarnContext(r.Context(), "webhook for unconfigured provider",
			"path_provider", pathProvider,
			"configured_provider", string(h.provider.Kind()),
		)
		h.ackTelemetry(pathProvider, http.StatusBadRequest, start)
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeProviderMismatch,
			"webhook provider does not match configured provider",
			nil,
			map[string]any{"configured": string(h.provider.Kind())},
		))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		h.ackTelemetry(pathProvider, http.StatusBadRequest, start)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationBodyLimit,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get(h.provider.SignatureHeader())
	if sigHeader == "" && !h.verifier.Insecure() {
		h.logger.WarnContext(r.Context(), "missing webhook signature header",
			"header", h.provider.SignatureHeader(),
		)
		h.ackTelemetry(pathProvider, http.StatusUnauthorized, start)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeSignatureMissing,
			"missing "+h.provider.SignatureHeader()+" header",
			nil,
		))
		return
	}

	if !h.verifier.Verify(payload, sigHeader) {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed")
		h.ackTelemetry(pathProvider, http.StatusUnauthorized, start)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeSignatureInvalid,
			"webhook signature verification failed",
			nil,
		))
		return
	}

	event, err := h.provider.ParsePayload(payload)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to parse webhook payload", "error", err)
		h.ackTelemetry(pathProvider, http.StatusBadRequest, start)
		core.Error(w, r, err)
		return
	}

	if event == nil {
		// Valid JSON, unrelated to the watched flag. Acknowledge so the
		// provider does not retry.
		h.logger.InfoContext(r.Context(), "ignoring unrelated webhook event")
		h.ackTelemetry(pathProvider, http.StatusOK, start)
		core.JSON(w, r, http.StatusOK, webhookAck{Status: "received"})
		return
	}

	h.sink.LogFlagEvaluation(event.FlagKey, event.FlagValue, map[string]any{
		"provider": string(event.Provider),
		"source":   "webhook",
	})

	result := h.loop.HandleFlagEvent(r.Context(), event)

	h.logger.InfoContext(r.Context(), "webhook event handled",
		"provider", string(event.Provider),
		"flag_key", event.FlagKey,
		"flag_value", event.FlagValue,
		"outcome", string(result.Outcome),
		"duration", time.Since(start),
	)
	h.ackTelemetry(pathProvider, http.StatusOK, start)

	ack := webhookAck{Status: ackStatus(result.Outcome)}
	if result.Decision != nil {
		ack.Action = string(result.Decision.Direction)
	}
	core.JSON(w, r, http.StatusOK, ack)
}

// ackStatus maps a control-loop outcome to the wire status reported back to
// the provider.
func ackStatus(outcome types.Outcome) string {
	switch outcome {
	case types.OutcomeActuated, types.OutcomeSkipped:
		return "processed"
	case types.OutcomeDuplicate:
		return "duplicate"
	case types.OutcomeBusy:
		return "busy"
	case types.OutcomeFailed:
		return "failed"
	default:
		return "received"
	}
}

// ackTelemetry records webhook receipt metadata.
func (h *WebhookHandler) ackTelemetry(provider string, status int, start time.Time) {
	h.sink.LogWebhookEvent("flag_change_webhook", status, map[string]any{
		"provider":    provider,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
