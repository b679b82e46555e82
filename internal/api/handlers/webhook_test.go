package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormsurge/internal/controller"
	"stormsurge/internal/flag"
	"stormsurge/internal/types"
)

const testWebhookSecret = "whsec_test_secret"

// fakeLoop returns a canned Result and records the events it saw.
type fakeLoop struct {
	result controller.Result
	events []*types.FlagChangeEvent
}

func (f *fakeLoop) HandleFlagEvent(_ context.Context, ev *types.FlagChangeEvent) controller.Result {
	f.events = append(f.events, ev)
	return f.result
}

func newWebhookRouter(t *testing.T, loop *fakeLoop, secret string) chi.Router {
	t.Helper()
	provider, err := flag.NewProvider("launchdarkly")
	require.NoError(t, err)
	verifier := flag.NewVerifier(types.SecretString(secret), nil)

	r := chi.NewRouter()
	NewWebhookHandler(provider, verifier, loop, nil, nil).RegisterRoutes(r)
	return r
}

func signedRequest(t *testing.T, path string, body []byte, secret string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if secret != "" {
		req.Header.Set("X-LD-Signature", flag.ComputeSignature(body, secret))
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) webhookAck {
	t.Helper()
	var ack webhookAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	return ack
}

var enablePayload = []byte(`{"kind":"flag","data":{"key":"enable-cost-optimizer","value":true}}`)

func TestWebhookHandler_Actuated(t *testing.T) {
	loop := &fakeLoop{result: controller.Result{
		Outcome: types.OutcomeActuated,
		Decision: &types.ScalingDecision{
			Direction:      types.ScaleDown,
			TargetReplicas: 4,
		},
	}}
	r := newWebhookRouter(t, loop, testWebhookSecret)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest(t, "/webhook/launchdarkly", enablePayload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	ack := decodeAck(t, rec)
	assert.Equal(t, "processed", ack.Status)
	assert.Equal(t, "scale_down", ack.Action)

	require.Len(t, loop.events, 1)
	assert.Equal(t, "enable-cost-optimizer", loop.events[0].FlagKey)
	assert.True(t, loop.events[0].FlagValue)
}

func TestWebhookHandler_OutcomeStatuses(t *testing.T) {
	tests := []struct {
		outcome types.Outcome
		want    string
	}{
		{types.OutcomeActuated, "processed"},
		{types.OutcomeSkipped, "processed"},
		{types.OutcomeDuplicate, "duplicate"},
		{types.OutcomeBusy, "busy"},
		{types.OutcomeFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			loop := &fakeLoop{result: controller.Result{Outcome: tt.outcome}}
			r := newWebhookRouter(t, loop, testWebhookSecret)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, signedRequest(t, "/webhook/launchdarkly", enablePayload, testWebhookSecret))

			// Always 200: the provider must not redeliver on downstream
			// failures, and duplicates are already suppressed.
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, decodeAck(t, rec).Status)
		})
	}
}

func TestWebhookHandler_WrongProviderPath(t *testing.T) {
	loop := &fakeLoop{}
	r := newWebhookRouter(t, loop, testWebhookSecret)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest(t, "/webhook/statsig", enablePayload, testWebhookSecret))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeProviderMismatch), decodeError(t, rec))
	assert.Empty(t, loop.events)
}

func TestWebhookHandler_MissingSignature(t *testing.T) {
	loop := &fakeLoop{}
	r := newWebhookRouter(t, loop, testWebhookSecret)

	req := httptest.NewRequest(http.MethodPost, "/webhook/launchdarkly", bytes.NewReader(enablePayload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeSignatureMissing), decodeError(t, rec))
	assert.Empty(t, loop.events)
}

func TestWebhookHandler_InvalidSignature(t *testing.T) {
	loop := &fakeLoop{}
	r := newWebhookRouter(t, loop, testWebhookSecret)

	req := httptest.NewRequest(http.MethodPost, "/webhook/launchdarkly", bytes.NewReader(enablePayload))
	req.Header.Set("X-LD-Signature", flag.ComputeSignature(enablePayload, "wrong_secret"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeSignatureInvalid), decodeError(t, rec))
	assert.Empty(t, loop.events)
}

func TestWebhookHandler_InsecureModeAcceptsUnsigned(t *testing.T) {
	loop := &fakeLoop{result: controller.Result{Outcome: types.OutcomeActuated}}
	r := newWebhookRouter(t, loop, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/launchdarkly", bytes.NewReader(enablePayload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, loop.events, 1)
}

func TestWebhookHandler_MalformedPayload(t *testing.T) {
	loop := &fakeLoop{}
	r := newWebhookRouter(t, loop, testWebhookSecret)

	body := []byte(`{"kind":`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest(t, "/webhook/launchdarkly", body, testWebhookSecret))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodePayloadMalformed), decodeError(t, rec))
	assert.Empty(t, loop.events)
}

func TestWebhookHandler_UnrelatedEventAcknowledged(t *testing.T) {
	loop := &fakeLoop{}
	r := newWebhookRouter(t, loop, testWebhookSecret)

	body := []byte(`{"kind":"flag","data":{"key":"some-other-flag","value":true}}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest(t, "/webhook/launchdarkly", body, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "received", decodeAck(t, rec).Status)
	assert.Empty(t, loop.events, "unrelated events never reach the control loop")
}

func TestWebhookHandler_BodyTooLarge(t *testing.T) {
	loop := &fakeLoop{}
	r := newWebhookRouter(t, loop, testWebhookSecret)

	body := bytes.Repeat([]byte("a"), maxWebhookBodySize+1)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, signedRequest(t, "/webhook/launchdarkly", body, testWebhookSecret))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationBodyLimit), decodeError(t, rec))
	assert.Empty(t, loop.events)
}
