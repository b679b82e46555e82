// Package flag implements the feature-flag provider adapters for the Storm
// Surge middleware: webhook signature verification and normalization of
// provider-specific webhook payloads into types.FlagChangeEvent.
//
// Providers form a small closed set selected once at startup from
// configuration. Each provider owns its webhook path, signature header, and
// payload parsing; the rest of the system only sees FlagChangeEvent.
package flag

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"stormsurge/internal/types"
)

// statsigSignaturePrefix is the scheme prefix Statsig prepends to its
// hex-encoded HMAC in the X-Statsig-Signature header.
const statsigSignaturePrefix = "sha256="

// Verifier validates that an inbound webhook body was produced by the trusted
// flag provider, using a shared secret and HMAC-SHA256.
//
// If the secret is empty the verifier operates in explicit insecure mode:
// Verify returns true unconditionally, and a loud warning is emitted once at
// construction time. Insecure mode is never an implicit fallback at request
// time.
type Verifier struct {
	secret   types.SecretString
	insecure bool
}

// NewVerifier creates a Verifier for the given shared secret. An empty secret
// enables insecure mode and logs a prominent startup warning.
func NewVerifier(secret types.SecretString, logger *slog.Logger) *Verifier {
	insecure := secret.IsZero()
	if insecure {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("WEBHOOK SIGNATURE VERIFICATION DISABLED: no webhook secret configured; all inbound webhooks will be accepted without verification")
	}
	return &Verifier{secret: secret, insecure: insecure}
}

// Insecure reports whether the verifier accepts unsigned payloads.
func (v *Verifier) Insecure() bool {
	return v.insecure
}

// Verify checks the signature header against the HMAC-SHA256 of rawBody keyed
// by the shared secret. The header may carry either a bare lowercase hex
// digest (LaunchDarkly) or a "sha256=<hex>" prefixed digest (Statsig).
//
// Comparison is constant-time. Decode failures and length mismatches return
// false; Verify never panics.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) bool {
	if v.insecure {
		return true
	}

	provided := strings.TrimPrefix(signatureHeader, statsigSignaturePrefix)
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(v.secret.Unmask()))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	return hmac.Equal(decoded, expected)
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 digest of body keyed
// by secret. Exposed for tests and outbound signing.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
