package flag

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormsurge/internal/types"
)

// referenceHMAC computes HMAC-SHA256 independently for test verification.
func referenceHMAC(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifier_Verify_ValidSignature(t *testing.T) {
	secret := "whsec_test_secret_123"
	body := []byte(`{"kind":"flag","data":{"key":"enable-cost-optimizer","value":true}}`)
	v := NewVerifier(types.SecretString(secret), nil)

	sig := referenceHMAC(body, secret)
	assert.True(t, v.Verify(body, sig), "correctly signed body should verify")
}

func TestVerifier_Verify_KnownDigest(t *testing.T) {
	// Fixed vector so a change in the HMAC input (prefix handling, encoding)
	// is caught even if both sides of the comparison change together.
	secret := "secret"
	body := []byte("hello")
	want := "88aab3ede8d3adf94d26ab90d3bafd4a2083070c3bcce9c014ee04a443847c0b"

	require.Equal(t, want, referenceHMAC(body, secret))

	v := NewVerifier(types.SecretString(secret), nil)
	assert.True(t, v.Verify(body, want))
}

func TestVerifier_Verify_StatsigPrefix(t *testing.T) {
	secret := "statsig_shared_secret"
	body := []byte(`{"event_type":"gate_config_updated"}`)
	v := NewVerifier(types.SecretString(secret), nil)

	sig := "sha256=" + referenceHMAC(body, secret)
	assert.True(t, v.Verify(body, sig), "sha256= prefixed signature should verify")
}

func TestVerifier_Verify_BitFlipRejected(t *testing.T) {
	secret := "whsec_test_secret_123"
	body := []byte(`{"kind":"flag"}`)
	v := NewVerifier(types.SecretString(secret), nil)

	sig := referenceHMAC(body, secret)
	require.True(t, v.Verify(body, sig))

	// Flip one hex digit of the signature.
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	assert.False(t, v.Verify(body, string(flipped)), "single-bit signature change must fail")
}

func TestVerifier_Verify_TamperedBody(t *testing.T) {
	secret := "whsec_test_secret_123"
	body := []byte(`{"kind":"flag","data":{"key":"enable-cost-optimizer","value":true}}`)
	v := NewVerifier(types.SecretString(secret), nil)

	sig := referenceHMAC(body, secret)
	tampered := []byte(`{"kind":"flag","data":{"key":"enable-cost-optimizer","value":false}}`)
	assert.False(t, v.Verify(tampered, sig))
}

func TestVerifier_Verify_WrongSecret(t *testing.T) {
	body := []byte(`{"kind":"flag"}`)
	v := NewVerifier(types.SecretString("right_secret"), nil)

	sig := referenceHMAC(body, "wrong_secret")
	assert.False(t, v.Verify(body, sig))
}

func TestVerifier_Verify_MalformedSignature(t *testing.T) {
	v := NewVerifier(types.SecretString("secret"), nil)
	body := []byte(`{}`)

	tests := []struct {
		name string
		sig  string
	}{
		{"empty", ""},
		{"not hex", "zzzz"},
		{"truncated digest", referenceHMAC(body, "secret")[:10]},
		{"prefix only", "sha256="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, v.Verify(body, tt.sig))
		})
	}
}

func TestVerifier_InsecureMode(t *testing.T) {
	v := NewVerifier(types.SecretString(""), nil)

	assert.True(t, v.Insecure())
	assert.True(t, v.Verify([]byte("anything"), ""), "insecure mode accepts unsigned payloads")
	assert.True(t, v.Verify([]byte("anything"), "garbage"), "insecure mode accepts arbitrary signatures")
}

func TestVerifier_SecureModeFlag(t *testing.T) {
	v := NewVerifier(types.SecretString("configured"), nil)
	assert.False(t, v.Insecure())
}

func TestComputeSignature_MatchesReference(t *testing.T) {
	body := []byte(`{"payload":true}`)
	secret := "key"
	assert.Equal(t, referenceHMAC(body, secret), ComputeSignature(body, secret))
	assert.Len(t, ComputeSignature(body, secret), 64)
}
