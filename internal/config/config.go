// Package config loads e2e run configuration from an optional YAML file,
// environment variables and CLI flags, in that order of precedence (flags
// win), and validates the result.
//
// E2E_CONFIG_FILE names the YAML file. Every other setting has an E2E_*
// environment variable; S3 artifact storage uses the standard AWS_* names.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/retry"
	"github.com/kuitang/e2ekit/internal/urlutil"
	"github.com/kuitang/e2ekit/internal/wait"
)

const (
	defaultBaseURL     = "http://localhost:3000"
	defaultArtifactDir = "./artifacts"
	defaultS3Region    = "auto"
)

// Artifact retention modes.
const (
	RetainAll    = "all"    // keep every screenshot
	RetainFailed = "failed" // discard a run's screenshots when it passes
)

// Config holds all e2e run configuration.
type Config struct {
	// Target application
	BaseURL         string `yaml:"base_url"`
	TestIDAttribute string `yaml:"test_id_attribute"`

	// Wait engine
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"` // 0 derives Timeout/20
	SoftTimeout  time.Duration `yaml:"soft_timeout"`

	Retry RetryConfig `yaml:"retry"`

	// Browser
	Headless          bool          `yaml:"headless"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`

	// Artifacts
	ArtifactDir       string   `yaml:"artifact_dir"`
	ArtifactUploadRPS float64  `yaml:"artifact_upload_rps"`
	ArtifactRetain    string   `yaml:"artifact_retain"`
	S3                S3Config `yaml:"s3"`

	// Standard login fixture
	Login LoginConfig `yaml:"login"`

	LogLevel string `yaml:"log_level"`

	// ConfigFile is the YAML file that was applied, if any.
	ConfigFile string `yaml:"-"`
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// S3Config enables the S3 artifact store when Bucket is set.
type S3Config struct {
	Bucket          string `yaml:"bucket"`          // E2E_ARTIFACT_BUCKET
	Endpoint        string `yaml:"endpoint"`        // AWS_ENDPOINT_URL_S3
	Region          string `yaml:"region"`          // AWS_REGION
	AccessKeyID     string `yaml:"access_key_id"`   // AWS_ACCESS_KEY_ID
	SecretAccessKey string `yaml:"-"`               // AWS_SECRET_ACCESS_KEY, env only
	Prefix          string `yaml:"prefix"`          // E2E_ARTIFACT_PREFIX
}

// LoginConfig is used by the authenticatedPage fixture.
type LoginConfig struct {
	Path        string `yaml:"path"`
	LandingPath string `yaml:"landing_path"` // where a successful login redirects
	Email       string `yaml:"email"`
	Password    string `yaml:"-"` // E2E_LOGIN_PASSWORD, env only
	Name        string `yaml:"name"`
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ErrorCode implements errs.Coder.
func (e *ValidationError) ErrorCode() errs.Code {
	return errs.InvalidArgument
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		BaseURL:         defaultBaseURL,
		TestIDAttribute: "data-testid",
		WaitTimeout:     wait.DefaultTimeout,
		SoftTimeout:     wait.DefaultSoftTimeout,
		Retry: RetryConfig{
			MaxAttempts:   retry.DefaultPolicy.MaxAttempts,
			InitialDelay:  retry.DefaultPolicy.InitialDelay,
			BackoffFactor: retry.DefaultPolicy.BackoffFactor,
		},
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
		ArtifactDir:       defaultArtifactDir,
		ArtifactUploadRPS: 5,
		ArtifactRetain:    RetainAll,
		S3:                S3Config{Region: defaultS3Region},
		Login: LoginConfig{
			Path:        "/login",
			LandingPath: "/dashboard",
			Email:       "test@example.com",
			Password:    "TestPassword123",
			Name:        "Test User",
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the E2E_CONFIG_FILE YAML
// file and environment variables. It does not validate; call Validate after
// applying flags.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnvOrDefault("E2E_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	env := &envLoader{}
	env.apply(&cfg)
	if len(env.problems) > 0 {
		return nil, &ValidationError{Errors: env.problems}
	}
	return &cfg, nil
}

// LoadAndValidate is Load followed by Validate, for callers without flags.
func LoadAndValidate() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "failed to read config file", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("failed to parse config file %s", path), err)
	}
	c.ConfigFile = path
	return nil
}

// BindFlags registers flags that override the loaded values. Call after Load
// and before fs.Parse.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "Base URL of the application under test (E2E_BASE_URL)")
	fs.BoolVar(&c.Headless, "headless", c.Headless, "Run the browser headless (E2E_HEADLESS)")
	fs.DurationVar(&c.WaitTimeout, "wait-timeout", c.WaitTimeout, "Default strict wait timeout (E2E_WAIT_TIMEOUT)")
	fs.StringVar(&c.ArtifactDir, "artifact-dir", c.ArtifactDir, "Directory for screenshots (E2E_ARTIFACT_DIR)")
	fs.StringVar(&c.ArtifactRetain, "artifact-retain", c.ArtifactRetain, "Keep screenshots: all, or failed to discard them when a run passes (E2E_ARTIFACT_RETAIN)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error (E2E_LOG_LEVEL)")
}

// envLoader applies environment overrides and collects unparsable values.
type envLoader struct {
	problems []string
}

func (l *envLoader) apply(c *Config) {
	c.BaseURL = getEnvOrDefault("E2E_BASE_URL", c.BaseURL)
	c.TestIDAttribute = getEnvOrDefault("E2E_TEST_ID_ATTRIBUTE", c.TestIDAttribute)

	c.WaitTimeout = l.duration("E2E_WAIT_TIMEOUT", c.WaitTimeout)
	c.PollInterval = l.duration("E2E_POLL_INTERVAL", c.PollInterval)
	c.SoftTimeout = l.duration("E2E_SOFT_TIMEOUT", c.SoftTimeout)

	c.Retry.MaxAttempts = l.int("E2E_RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	c.Retry.InitialDelay = l.duration("E2E_RETRY_INITIAL_DELAY", c.Retry.InitialDelay)
	c.Retry.BackoffFactor = l.float64("E2E_RETRY_BACKOFF_FACTOR", c.Retry.BackoffFactor)

	c.Headless = l.bool("E2E_HEADLESS", c.Headless)
	c.NavigationTimeout = l.duration("E2E_NAVIGATION_TIMEOUT", c.NavigationTimeout)

	c.ArtifactDir = getEnvOrDefault("E2E_ARTIFACT_DIR", c.ArtifactDir)
	c.ArtifactUploadRPS = l.float64("E2E_ARTIFACT_UPLOAD_RPS", c.ArtifactUploadRPS)
	c.ArtifactRetain = getEnvOrDefault("E2E_ARTIFACT_RETAIN", c.ArtifactRetain)
	c.S3.Bucket = getEnvOrDefault("E2E_ARTIFACT_BUCKET", c.S3.Bucket)
	c.S3.Prefix = getEnvOrDefault("E2E_ARTIFACT_PREFIX", c.S3.Prefix)
	c.S3.Endpoint = getEnvOrDefault("AWS_ENDPOINT_URL_S3", c.S3.Endpoint)
	c.S3.Region = getEnvOrDefault("AWS_REGION", c.S3.Region)
	c.S3.AccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)

	c.Login.Path = getEnvOrDefault("E2E_LOGIN_PATH", c.Login.Path)
	c.Login.LandingPath = getEnvOrDefault("E2E_LOGIN_LANDING_PATH", c.Login.LandingPath)
	c.Login.Name = getEnvOrDefault("E2E_LOGIN_NAME", c.Login.Name)
	c.Login.Email = getEnvOrDefault("E2E_LOGIN_EMAIL", c.Login.Email)
	c.Login.Password = getEnvOrDefault("E2E_LOGIN_PASSWORD", c.Login.Password)

	c.LogLevel = getEnvOrDefault("E2E_LOG_LEVEL", c.LogLevel)
}

// Validate checks that all configuration is present and consistent.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("E2E_BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL))
	}
	if strings.TrimSpace(c.TestIDAttribute) == "" {
		errs = append(errs, "E2E_TEST_ID_ATTRIBUTE must not be empty")
	}

	if c.WaitTimeout <= 0 {
		errs = append(errs, "E2E_WAIT_TIMEOUT must be positive")
	}
	if c.PollInterval < 0 {
		errs = append(errs, "E2E_POLL_INTERVAL must not be negative")
	}
	if c.SoftTimeout <= 0 {
		errs = append(errs, "E2E_SOFT_TIMEOUT must be positive")
	}
	if c.NavigationTimeout <= 0 {
		errs = append(errs, "E2E_NAVIGATION_TIMEOUT must be positive")
	}

	if err := c.RetryPolicy().Validate(); err != nil {
		errs = append(errs, "E2E_RETRY_*: "+err.Error())
	}

	if c.ArtifactUploadRPS <= 0 {
		errs = append(errs, "E2E_ARTIFACT_UPLOAD_RPS must be positive")
	}
	if c.ArtifactRetain != RetainAll && c.ArtifactRetain != RetainFailed {
		errs = append(errs, fmt.Sprintf("E2E_ARTIFACT_RETAIN must be all or failed, got %q", c.ArtifactRetain))
	}
	if c.S3Enabled() {
		if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
		if c.S3.Region == "" {
			errs = append(errs, "AWS_REGION is required when E2E_ARTIFACT_BUCKET is set")
		}
	}

	if !strings.HasPrefix(c.Login.Path, "/") {
		errs = append(errs, fmt.Sprintf("E2E_LOGIN_PATH must start with '/', got %q", c.Login.Path))
	}
	if !strings.HasPrefix(c.Login.LandingPath, "/") {
		errs = append(errs, fmt.Sprintf("E2E_LOGIN_LANDING_PATH must start with '/', got %q", c.Login.LandingPath))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("E2E_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// S3Enabled reports whether screenshots are uploaded to S3.
func (c *Config) S3Enabled() bool {
	return c.S3.Bucket != ""
}

// WaitConfig returns the wait engine defaults.
func (c *Config) WaitConfig() wait.Config {
	return wait.Config{
		Timeout:      c.WaitTimeout,
		PollInterval: c.PollInterval,
		SoftTimeout:  c.SoftTimeout,
	}
}

// RetryPolicy returns the default retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   c.Retry.MaxAttempts,
		InitialDelay:  c.Retry.InitialDelay,
		BackoffFactor: c.Retry.BackoffFactor,
	}
}

// URL joins path onto BaseURL.
func (c *Config) URL(path string) string {
	return urlutil.BuildAbsolute(c.BaseURL, path)
}

// PrintSummary writes a human-readable summary of the configuration to w.
func (c *Config) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "e2e run configuration")
	fmt.Fprintf(w, "  Target:    %s\n", c.BaseURL)
	if c.ConfigFile != "" {
		fmt.Fprintf(w, "  File:      %s\n", c.ConfigFile)
	}
	fmt.Fprintf(w, "  Waits:     %s (soft %s)\n", c.WaitTimeout, c.SoftTimeout)
	fmt.Fprintf(w, "  Retry:     %d attempts, %s x%g\n", c.Retry.MaxAttempts, c.Retry.InitialDelay, c.Retry.BackoffFactor)
	if c.Headless {
		fmt.Fprintln(w, "  Browser:   chromium (headless)")
	} else {
		fmt.Fprintln(w, "  Browser:   chromium (headed)")
	}
	if c.S3Enabled() {
		fmt.Fprintf(w, "  Artifacts: s3://%s/%s\n", c.S3.Bucket, c.S3.Prefix)
	} else {
		fmt.Fprintf(w, "  Artifacts: %s\n", c.ArtifactDir)
	}
	fmt.Fprintf(w, "  Retain:    %s\n", c.ArtifactRetain)
	fmt.Fprintf(w, "  Login:     %s as %s\n", c.URL(c.Login.Path), c.Login.Email)
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func (l *envLoader) int(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		l.invalid(key, value, err)
		return defaultValue
	}
	return parsed
}

func (l *envLoader) float64(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		l.invalid(key, value, err)
		return defaultValue
	}
	return parsed
}

func (l *envLoader) duration(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		l.invalid(key, value, err)
		return defaultValue
	}
	return parsed
}

func (l *envLoader) bool(key string, defaultValue bool) bool {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		l.invalid(key, value, err)
		return defaultValue
	}
	return parsed
}

func (l *envLoader) invalid(key, value string, err error) {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		err = numErr.Err
	}
	l.problems = append(l.problems, fmt.Sprintf("%s=%q is invalid: %v", key, value, err))
}
