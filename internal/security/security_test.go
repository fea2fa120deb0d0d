package security

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-engine/internal/config"
	apperrors "options-engine/internal/errors"
)

func TestNormalizeSymbol(t *testing.T) {
	for in, want := range map[string]string{"spy": "SPY", " qqq ": "QQQ", "brk.b": "BRK.B", "x1": "X1"} {
		got, err := NormalizeSymbol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "1SPY", "SPY;DROP", "TOOLONGSYMBOL", "A B"} {
		_, err := NormalizeSymbol(bad)
		var ve *apperrors.ValidationError
		assert.ErrorAs(t, err, &ve, bad)
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got, err := NormalizeSymbols([]string{"spy", "", "QQQ", "SPY "})
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "QQQ"}, got)

	_, err = NormalizeSymbols([]string{"spy", "$$"})
	assert.Error(t, err)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("trade_id", "0b7d5c4e-8c7e-4a57-9d1f-0d6b7b8f4e21"))
	assert.NoError(t, ValidateID("id", "prop_SPY_2025-03-10T14_30_00Z"))
	assert.Error(t, ValidateID("trade_id", ""))
	assert.Error(t, ValidateID("trade_id", "../etc/passwd"))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "margin call", SanitizeText(" margin\x00 call\n"))
}

func TestMaskSecrets(t *testing.T) {
	msg := `Post "https://api.telegram.org/bot123456:AAFsecretsecretsecret/sendMessage": dial tcp: timeout`
	masked := MaskSecrets(msg)
	assert.NotContains(t, masked, "AAFsecretsecretsecret")
	assert.Contains(t, masked, "bot123456:")
	assert.Contains(t, masked, "dial tcp: timeout")

	assert.Equal(t, "password=hu*****", MaskSecrets("password=hunter2"))
	assert.NotContains(t, MaskSecrets("https://hooks.slack.com/services/T000/B000/XXXXSECRET"), "XXXXSECRET")
}

func TestRedactConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Webhook.URL = "https://hooks.slack.com/services/T000/B000/XXXX"
	cfg.Notifications.Telegram.BotToken = "123456:ABCDEFGHIJ"
	cfg.Redis.Password = "redispass"
	cfg.Store.DSN = "postgres://engine:s3cret@db:5432/options?sslmode=disable"

	out := RedactConfig(cfg)
	assert.Equal(t, "https://hooks.slack.com/***", out.Notifications.Webhook.URL)
	assert.Equal(t, "1234*********GHIJ", out.Notifications.Telegram.BotToken)
	assert.NotContains(t, out.Store.DSN, "s3cret")
	assert.Contains(t, out.Store.DSN, "engine:")
	assert.NotEqual(t, "redispass", out.Redis.Password)

	// The original is untouched.
	assert.Equal(t, "redispass", cfg.Redis.Password)
}

func TestMaskCredentialProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: masking preserves length and never reveals the middle of
	// values longer than eight characters.
	properties.Property("mask preserves length", prop.ForAll(
		func(s string) bool {
			m := MaskCredential(s)
			if len(m) != len(s) {
				return false
			}
			if len(s) > 8 {
				return m[4:len(m)-4] == stringOf('*', len(s)-8)
			}
			return true
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func stringOf(r byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = r
	}
	return string(b)
}
