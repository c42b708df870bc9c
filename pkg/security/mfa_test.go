package security

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPEngine_GenerateSecret(t *testing.T) {
	engine := NewTOTPEngine(1)

	secret, err := engine.GenerateSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32) // 20 bytes base32 without padding

	raw, err := secretEncoding.DecodeString(secret)
	require.NoError(t, err)
	assert.Len(t, raw, 20)

	other, err := engine.GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestTOTPEngine_ProvisioningURI(t *testing.T) {
	engine := NewTOTPEngine(1)
	uri := engine.ProvisioningURI("Sentinel", "alice@x.com", "JBSWY3DPEHPK3PXP")

	key, err := otp.NewKeyFromURL(uri)
	require.NoError(t, err)
	assert.Equal(t, "totp", key.Type())
	assert.Equal(t, "Sentinel", key.Issuer())
	assert.Equal(t, "alice@x.com", key.AccountName())
	assert.Equal(t, "JBSWY3DPEHPK3PXP", key.Secret())

	// Nothing beyond issuer, label and secret.
	query := uri[strings.Index(uri, "?")+1:]
	for _, pair := range strings.Split(query, "&") {
		name := pair[:strings.Index(pair, "=")]
		assert.Contains(t, []string{"issuer", "secret"}, name)
	}
}

func TestTOTPEngine_QRCode(t *testing.T) {
	engine := NewTOTPEngine(1)
	png, err := engine.QRCode(engine.ProvisioningURI("Sentinel", "alice@x.com", "JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestTOTPEngine_VerifyCodeSkewWindow(t *testing.T) {
	engine := NewTOTPEngine(1)
	secret, err := engine.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_010, 0)
	step := 30 * time.Second

	for _, tc := range []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"current step", 0, true},
		{"previous step", -step, true},
		{"next step", step, true},
		{"two steps ahead", 2 * step, false},
		{"two steps behind", -2 * step, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			code, err := engine.GenerateCode(secret, now.Add(tc.offset))
			require.NoError(t, err)
			assert.Equal(t, tc.valid, engine.VerifyCode(secret, code, now))
		})
	}
}

func TestTOTPEngine_MatchStepReportsCounter(t *testing.T) {
	engine := NewTOTPEngine(1)
	secret, err := engine.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_010, 0)
	code, err := engine.GenerateCode(secret, now.Add(-30*time.Second))
	require.NoError(t, err)

	counter, ok := engine.MatchStep(secret, code, now)
	require.True(t, ok)
	assert.Equal(t, now.Unix()/30-1, counter)
}

func TestTOTPEngine_RejectsMalformedCodes(t *testing.T) {
	engine := NewTOTPEngine(1)
	secret, err := engine.GenerateSecret()
	require.NoError(t, err)
	now := time.Now()

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		assert.False(t, engine.VerifyCode(secret, code, now), "code %q", code)
	}

	code, err := engine.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.False(t, engine.VerifyCode("", code, now))
}

func TestTOTPEngine_ZeroSkew(t *testing.T) {
	engine := NewTOTPEngine(0)
	secret, err := engine.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_010, 0)
	prev, err := engine.GenerateCode(secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.False(t, engine.VerifyCode(secret, prev, now))
}

func TestTOTPEngine_ReplayWindow(t *testing.T) {
	assert.Equal(t, 2*time.Minute, NewTOTPEngine(1).ReplayWindow())
	assert.Equal(t, time.Minute, NewTOTPEngine(0).ReplayWindow())
}
