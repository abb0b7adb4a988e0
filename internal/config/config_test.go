package config

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/e2ekit/internal/errs"
)

var envKeys = []string{
	"E2E_CONFIG_FILE", "E2E_BASE_URL", "E2E_TEST_ID_ATTRIBUTE",
	"E2E_WAIT_TIMEOUT", "E2E_POLL_INTERVAL", "E2E_SOFT_TIMEOUT",
	"E2E_RETRY_MAX_ATTEMPTS", "E2E_RETRY_INITIAL_DELAY", "E2E_RETRY_BACKOFF_FACTOR",
	"E2E_HEADLESS", "E2E_NAVIGATION_TIMEOUT",
	"E2E_ARTIFACT_DIR", "E2E_ARTIFACT_UPLOAD_RPS", "E2E_ARTIFACT_RETAIN", "E2E_ARTIFACT_BUCKET", "E2E_ARTIFACT_PREFIX",
	"AWS_ENDPOINT_URL_S3", "AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"E2E_LOGIN_PATH", "E2E_LOGIN_LANDING_PATH", "E2E_LOGIN_NAME", "E2E_LOGIN_EMAIL", "E2E_LOGIN_PASSWORD", "E2E_LOG_LEVEL",
}

// clearEnv blanks every variable Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "http://localhost:3000", cfg.BaseURL)
	require.Equal(t, "data-testid", cfg.TestIDAttribute)
	require.Equal(t, 10*time.Second, cfg.WaitTimeout)
	require.Zero(t, cfg.PollInterval)
	require.Equal(t, 2*time.Second, cfg.SoftTimeout)
	require.Equal(t, RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2}, cfg.Retry)
	require.True(t, cfg.Headless)
	require.False(t, cfg.S3Enabled())
	require.Equal(t, RetainAll, cfg.ArtifactRetain)
	require.Equal(t, "/login", cfg.Login.Path)
	require.Equal(t, "/dashboard", cfg.Login.LandingPath)
	require.Equal(t, "Test User", cfg.Login.Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("E2E_BASE_URL", "https://staging.example.com")
	t.Setenv("E2E_WAIT_TIMEOUT", "30s")
	t.Setenv("E2E_POLL_INTERVAL", " 250ms ")
	t.Setenv("E2E_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("E2E_HEADLESS", "false")
	t.Setenv("E2E_ARTIFACT_BUCKET", "e2e-artifacts")
	t.Setenv("E2E_ARTIFACT_RETAIN", "failed")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "https://staging.example.com", cfg.BaseURL)
	require.Equal(t, 30*time.Second, cfg.WaitConfig().Timeout)
	require.Equal(t, 250*time.Millisecond, cfg.WaitConfig().PollInterval)
	require.Equal(t, 5, cfg.RetryPolicy().MaxAttempts)
	require.False(t, cfg.Headless)
	require.True(t, cfg.S3Enabled())
	require.Equal(t, "auto", cfg.S3.Region)
	require.Equal(t, RetainFailed, cfg.ArtifactRetain)
}

func TestLoad_UnparsableEnvIsReported(t *testing.T) {
	clearEnv(t)
	t.Setenv("E2E_WAIT_TIMEOUT", "ten seconds")
	t.Setenv("E2E_RETRY_MAX_ATTEMPTS", "three")
	t.Setenv("E2E_HEADLESS", "maybe")

	_, err := Load()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Errors, 3)
	require.Contains(t, err.Error(), `E2E_WAIT_TIMEOUT="ten seconds" is invalid`)
	require.Contains(t, err.Error(), "E2E_RETRY_MAX_ATTEMPTS")
	require.Contains(t, err.Error(), "E2E_HEADLESS")
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "e2e.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://file.example.com
test_id_attribute: data-qa
wait_timeout: 15s
retry:
  max_attempts: 4
  initial_delay: 250ms
  backoff_factor: 3
s3:
  bucket: from-file
  prefix: nightly/
login:
  path: /signin
`), 0o600))
	t.Setenv("E2E_CONFIG_FILE", path)
	t.Setenv("E2E_WAIT_TIMEOUT", "20s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, path, cfg.ConfigFile)
	require.Equal(t, "https://file.example.com", cfg.BaseURL)
	require.Equal(t, "data-qa", cfg.TestIDAttribute)
	require.Equal(t, 20*time.Second, cfg.WaitTimeout, "env wins over file")
	require.Equal(t, RetryConfig{MaxAttempts: 4, InitialDelay: 250 * time.Millisecond, BackoffFactor: 3}, cfg.Retry)
	require.Equal(t, "from-file", cfg.S3.Bucket)
	require.Equal(t, "nightly/", cfg.S3.Prefix)
	require.Equal(t, "/signin", cfg.Login.Path)
	require.Equal(t, "TestPassword123", cfg.Login.Password, "fields absent from the file keep defaults")
	require.Equal(t, 2*time.Second, cfg.SoftTimeout)
}

func TestLoad_BadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wait_timeout: [nope"), 0o600))
	t.Setenv("E2E_CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))

	t.Setenv("E2E_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBindFlags_OverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("E2E_BASE_URL", "https://env.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	fs := flag.NewFlagSet("e2e", flag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-base-url", "http://127.0.0.1:8080", "-headless=false", "-wait-timeout", "3s"}))

	require.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL)
	require.False(t, cfg.Headless)
	require.Equal(t, 3*time.Second, cfg.WaitTimeout)
	require.Equal(t, "http://127.0.0.1:8080/notes/new", cfg.URL("/notes/new"))
	require.Equal(t, "https://other.example.com/x", cfg.URL("https://other.example.com/x"))
}

func TestPrintSummary_ShowsLoginURLAndRetention(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "https://staging.example.com/app"
	cfg.ArtifactRetain = RetainFailed

	var out bytes.Buffer
	cfg.PrintSummary(&out)
	require.Contains(t, out.String(), "Target:    https://staging.example.com/app\n")
	require.Contains(t, out.String(), "Retain:    failed\n")
	require.Contains(t, out.String(), "Login:     https://staging.example.com/app/login as test@example.com\n")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.BaseURL = "localhost:3000"
	cfg.TestIDAttribute = " "
	cfg.WaitTimeout = 0
	cfg.Retry.MaxAttempts = 0
	cfg.S3.Bucket = "artifacts"
	cfg.S3.AccessKeyID = "only-half"
	cfg.ArtifactRetain = "sometimes"
	cfg.Login.Path = "login"
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, expected := range []string{
		"E2E_BASE_URL",
		"E2E_TEST_ID_ATTRIBUTE",
		"E2E_WAIT_TIMEOUT",
		"E2E_RETRY_*",
		"AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY",
		"E2E_ARTIFACT_RETAIN",
		"E2E_LOGIN_PATH",
		"E2E_LOG_LEVEL",
	} {
		require.Contains(t, msg, expected)
	}
}

func testValidate_RejectsNonPositiveTimeouts(t *rapid.T) {
	cfg := Default()
	cfg.SoftTimeout = -time.Duration(rapid.Int64Range(0, int64(time.Hour)).Draw(t, "soft"))
	cfg.ArtifactUploadRPS = -rapid.Float64Range(0, 100).Draw(t, "rps")

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, token := range []string{"E2E_SOFT_TIMEOUT", "E2E_ARTIFACT_UPLOAD_RPS"} {
		if !strings.Contains(err.Error(), token) {
			t.Fatalf("expected error mentioning %q, got: %v", token, err)
		}
	}
}

func TestValidate_RejectsNonPositiveTimeouts(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsNonPositiveTimeouts)
}

func TestGetEnvOrDefault_TrimsWhitespace(t *testing.T) {
	t.Setenv("E2E_CFG_TEST_STR", "   value   ")
	require.Equal(t, "value", getEnvOrDefault("E2E_CFG_TEST_STR", "fallback"))
	t.Setenv("E2E_CFG_TEST_STR", "   ")
	require.Equal(t, "fallback", getEnvOrDefault("E2E_CFG_TEST_STR", "fallback"))
}
