package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values
const (
	DefaultPangeaDomain = "aws.us.pangea.cloud"
	DefaultInputRecipe  = "pangea_prompt_guard"
	DefaultOutputRecipe = "pangea_llm_response_guard"
	DefaultAWSRegion    = "us-east-1"
	DefaultLogLevel     = "info"
)

// Executor backends
const (
	BackendBedrock   = "bedrock"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// ErrMissingAPIKey is returned by Validate when no Pangea API key is configured
var ErrMissingAPIKey = errors.New("config: pangea api key is required")

// Config holds everything needed to build a guarded Bedrock client
type Config struct {
	Pangea     PangeaConfig     `yaml:"pangea"`
	AWS        AWSConfig        `yaml:"aws"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Retry      RetryConfig      `yaml:"retry"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PangeaConfig configures the AI Guard client and the recipes
type PangeaConfig struct {
	APIKey       string        `yaml:"api_key"`
	Domain       string        `yaml:"domain"`
	BaseURL      string        `yaml:"base_url"`
	InputRecipe  string        `yaml:"input_recipe"`
	OutputRecipe string        `yaml:"output_recipe"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AWSConfig configures the Bedrock Runtime client
type AWSConfig struct {
	Region   string `yaml:"region"`
	Profile  string `yaml:"profile"`
	Endpoint string `yaml:"endpoint"`
	ModelID  string `yaml:"model_id"`
}

// ExecutorConfig selects the backend serving model calls. Only the bedrock
// backend serves every command kind; openai and anthropic serve Converse.
type ExecutorConfig struct {
	Backend   string        `yaml:"backend"`
	OpenAI    BackendConfig `yaml:"openai"`
	Anthropic BackendConfig `yaml:"anthropic"`
}

// BackendConfig configures an HTTP model backend
type BackendConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GuardrailsConfig switches AI Guard for local rules. Development only:
// the rules are a stand-in and do not score content the way AI Guard does.
type GuardrailsConfig struct {
	Enabled      bool     `yaml:"enabled"`
	BlockedWords []string `yaml:"blocked_words"`
	MaxTokens    int      `yaml:"max_tokens"`
}

// RetryConfig configures retries of the underlying executor.
// Guard calls are never retried.
type RetryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	MaxAttempts     int32         `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// TracingConfig groups the tracing backends
type TracingConfig struct {
	Langfuse LangfuseConfig `yaml:"langfuse"`
	OTel     OTelConfig     `yaml:"otel"`
}

// LangfuseConfig configures Langfuse generation tracing
type LangfuseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SecretKey   string `yaml:"secret_key"`
	PublicKey   string `yaml:"public_key"`
	Host        string `yaml:"host"`
	Environment string `yaml:"environment"`
}

// OTelConfig configures OpenTelemetry tracing
type OTelConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ServiceName       string `yaml:"service_name"`
	CollectorEndpoint string `yaml:"collector_endpoint"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with every default filled in and no credentials
func Default() *Config {
	return &Config{
		Pangea: PangeaConfig{
			Domain:       DefaultPangeaDomain,
			InputRecipe:  DefaultInputRecipe,
			OutputRecipe: DefaultOutputRecipe,
			Timeout:      60 * time.Second,
		},
		AWS: AWSConfig{
			Region: DefaultAWSRegion,
		},
		Executor: ExecutorConfig{
			Backend: BackendBedrock,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
		},
		Tracing: TracingConfig{
			Langfuse: LangfuseConfig{
				Host:        "https://cloud.langfuse.com",
				Environment: "development",
			},
			OTel: OTelConfig{
				ServiceName:       "pangea-bedrock",
				CollectorEndpoint: "localhost:4317",
			},
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// LoadFromEnv returns the defaults overridden by environment variables
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv(os.LookupEnv)
	return cfg
}

// LoadFromFile reads a YAML file on top of the defaults. ${VAR} references in
// the file are expanded from the environment before parsing; environment
// variables then override the file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)

	return cfg, nil
}

var (
	global     *Config
	globalOnce sync.Once
)

// Get returns the process-wide configuration, loaded from the environment on first use
func Get() *Config {
	globalOnce.Do(func() {
		global = LoadFromEnv()
	})
	return global
}

// Validate checks the settings a guarded client cannot run without
func (c *Config) Validate() error {
	if c.Pangea.APIKey == "" && !c.Guardrails.Enabled {
		return ErrMissingAPIKey
	}
	switch c.Executor.Backend {
	case "", BackendBedrock:
	case BackendOpenAI:
		if c.Executor.OpenAI.APIKey == "" {
			return fmt.Errorf("config: executor.openai.api_key is required for the openai backend")
		}
	case BackendAnthropic:
		if c.Executor.Anthropic.APIKey == "" {
			return fmt.Errorf("config: executor.anthropic.api_key is required for the anthropic backend")
		}
	default:
		return fmt.Errorf("config: unknown executor backend %q", c.Executor.Backend)
	}
	if c.Retry.Enabled && c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("PANGEA_API_KEY", &c.Pangea.APIKey)
	str("PANGEA_DOMAIN", &c.Pangea.Domain)
	str("PANGEA_BASE_URL", &c.Pangea.BaseURL)
	str("PANGEA_INPUT_RECIPE", &c.Pangea.InputRecipe)
	str("PANGEA_OUTPUT_RECIPE", &c.Pangea.OutputRecipe)

	str("AWS_REGION", &c.AWS.Region)
	str("AWS_PROFILE", &c.AWS.Profile)
	str("BEDROCK_ENDPOINT", &c.AWS.Endpoint)
	str("BEDROCK_MODEL_ID", &c.AWS.ModelID)

	str("EXECUTOR_BACKEND", &c.Executor.Backend)
	str("OPENAI_API_KEY", &c.Executor.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.Executor.OpenAI.BaseURL)
	str("OPENAI_MODEL", &c.Executor.OpenAI.Model)
	str("ANTHROPIC_API_KEY", &c.Executor.Anthropic.APIKey)
	str("ANTHROPIC_BASE_URL", &c.Executor.Anthropic.BaseURL)
	str("ANTHROPIC_MODEL", &c.Executor.Anthropic.Model)

	boolean("GUARDRAILS_ENABLED", &c.Guardrails.Enabled)

	boolean("LANGFUSE_ENABLED", &c.Tracing.Langfuse.Enabled)
	str("LANGFUSE_SECRET_KEY", &c.Tracing.Langfuse.SecretKey)
	str("LANGFUSE_PUBLIC_KEY", &c.Tracing.Langfuse.PublicKey)
	str("LANGFUSE_HOST", &c.Tracing.Langfuse.Host)
	str("LANGFUSE_ENVIRONMENT", &c.Tracing.Langfuse.Environment)

	boolean("OTEL_ENABLED", &c.Tracing.OTel.Enabled)
	str("OTEL_SERVICE_NAME", &c.Tracing.OTel.ServiceName)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTel.CollectorEndpoint)

	str("LOG_LEVEL", &c.Logging.Level)
}
