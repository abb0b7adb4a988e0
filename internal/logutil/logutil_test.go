package logutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIsSensitiveLogField(t *testing.T) {
	for _, key := range []string{"password", "confirm-password", "api_key", "Session-Token", "client_secret", "otp-code"} {
		require.True(t, IsSensitiveLogField(key), key)
	}
	for _, key := range []string{"email", "username", "search-input", "quantity"} {
		require.False(t, IsSensitiveLogField(key), key)
	}
}

func TestFormatFieldsForLog_KeepsOrderAndRedacts(t *testing.T) {
	got := FormatFieldsForLog([]KeyValue{
		{Key: "email", Value: "test@example.com"},
		{Key: "password", Value: "hunter2"},
		{Key: "name", Value: "Ada"},
	})
	require.Equal(t, `email="test@example.com"; password=[REDACTED]; name="Ada"`, got)
	require.Equal(t, "{}", FormatFieldsForLog(nil))
}

func testFormatFieldsNeverLeaksSecrets(t *rapid.T) {
	secret := rapid.StringMatching(`[A-Za-z0-9]{12,24}`).Draw(t, "secret")
	key := rapid.SampledFrom([]string{"password", "new-password", "api_token", "client-secret"}).Draw(t, "key")

	out := FormatFieldsForLog([]KeyValue{{Key: "email", Value: "x@example.com"}, {Key: key, Value: secret}})
	if strings.Contains(out, secret) {
		t.Fatalf("secret leaked: %s", out)
	}
}

func TestFormatFieldsNeverLeaksSecrets(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testFormatFieldsNeverLeaksSecrets)
}

func TestTruncateForLog(t *testing.T) {
	require.Equal(t, "", TruncateForLog("   ", 10))
	require.Equal(t, `<p>a</p>\n<p>b</p>`, TruncateForLog("<p>a</p>\n<p>b</p>\n", 0))
	require.Equal(t, "abcde... [truncated]", TruncateForLog("abcdefghij", 5))
}
