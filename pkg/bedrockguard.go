// Package bedrockguard builds a Bedrock Runtime executor whose Converse calls
// are checked by Pangea AI Guard.
package bedrockguard

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/config"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/guard"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/guardrails"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/llm/anthropic"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/llm/openai"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/retry"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/tracing"
)

// ErrMissingAPIKey is returned when no Pangea API key is given
var ErrMissingAPIKey = config.ErrMissingAPIKey

// Client is a guarded executor. Close releases the tracers it was built with.
type Client struct {
	*guard.Client
	closers []func(context.Context) error
}

// Close flushes and stops any tracer attached to the client
func (c *Client) Close(ctx context.Context) error {
	return runClosers(ctx, c.closers)
}

func runClosers(ctx context.Context, closers []func(context.Context) error) error {
	var errs []error
	for _, closeFn := range closers {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type options struct {
	executor         interfaces.Executor
	oracle           interfaces.Oracle
	inputRecipe      string
	outputRecipe     string
	logger           logging.Logger
	bedrockOptFns    []func(*bedrockruntime.Options)
	executorOptions  []bedrock.Option
	aiguardOptions   []aiguard.Option
	executorWrappers []func(interfaces.Executor) interfaces.Executor
	oracleWrappers   []func(interfaces.Oracle) interfaces.Oracle
	closers          []func(context.Context) error
}

// Option configures New
type Option func(*options)

// WithExecutor serves model calls from executor instead of a Bedrock Runtime
// client built from the AWS configuration. Executor options and Bedrock
// options are then unused.
func WithExecutor(executor interfaces.Executor) Option {
	return func(o *options) {
		o.executor = executor
	}
}

// WithOracle asks oracle for verdicts instead of the Pangea AI Guard service.
// No Pangea API key is needed then.
func WithOracle(oracle interfaces.Oracle) Option {
	return func(o *options) {
		o.oracle = oracle
	}
}

// WithInputRecipe sets the AI Guard recipe prompts are checked with
func WithInputRecipe(recipe string) Option {
	return func(o *options) {
		o.inputRecipe = recipe
	}
}

// WithOutputRecipe sets the AI Guard recipe model responses are checked with
func WithOutputRecipe(recipe string) Option {
	return func(o *options) {
		o.outputRecipe = recipe
	}
}

// WithLogger sets the logger shared by every layer
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBedrockOptions adds functions applied to the Bedrock Runtime client options
func WithBedrockOptions(optFns ...func(*bedrockruntime.Options)) Option {
	return func(o *options) {
		o.bedrockOptFns = append(o.bedrockOptFns, optFns...)
	}
}

// WithExecutorOptions adds options for the Bedrock executor
func WithExecutorOptions(opts ...bedrock.Option) Option {
	return func(o *options) {
		o.executorOptions = append(o.executorOptions, opts...)
	}
}

// WithAIGuardOptions adds options for the AI Guard client
func WithAIGuardOptions(opts ...aiguard.Option) Option {
	return func(o *options) {
		o.aiguardOptions = append(o.aiguardOptions, opts...)
	}
}

// WithExecutorMiddleware wraps the Bedrock executor before it is guarded.
// Wrappers are applied in order, the last one outermost.
func WithExecutorMiddleware(wrap func(interfaces.Executor) interfaces.Executor) Option {
	return func(o *options) {
		o.executorWrappers = append(o.executorWrappers, wrap)
	}
}

// WithOracleMiddleware wraps the AI Guard client
func WithOracleMiddleware(wrap func(interfaces.Oracle) interfaces.Oracle) Option {
	return func(o *options) {
		o.oracleWrappers = append(o.oracleWrappers, wrap)
	}
}

// WithCloser registers a function run by Client.Close
func WithCloser(closeFn func(context.Context) error) Option {
	return func(o *options) {
		o.closers = append(o.closers, closeFn)
	}
}

// New creates a guarded Bedrock Runtime client. awsCfg and the functions
// passed with WithBedrockOptions reach bedrockruntime.NewFromConfig unchanged.
// apiKey is required unless WithOracle replaces AI Guard. Closers registered
// with WithCloser run when New fails.
func New(awsCfg aws.Config, apiKey string, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client, err := build(awsCfg, apiKey, o)
	if err != nil {
		if closeErr := runClosers(context.Background(), o.closers); closeErr != nil {
			return nil, errors.Join(err, closeErr)
		}
		return nil, err
	}
	return client, nil
}

func build(awsCfg aws.Config, apiKey string, o *options) (*Client, error) {
	if apiKey == "" && o.oracle == nil {
		return nil, ErrMissingAPIKey
	}
	if o.logger == nil {
		o.logger = logging.New()
	}

	executor := o.executor
	if executor == nil {
		executorOptions := append([]bedrock.Option{bedrock.WithLogger(o.logger)}, o.executorOptions...)
		executor = bedrock.NewClient(awsCfg, o.bedrockOptFns, executorOptions...)
	}
	for _, wrap := range o.executorWrappers {
		executor = wrap(executor)
	}

	oracle := o.oracle
	if oracle == nil {
		aiguardOptions := append([]aiguard.Option{aiguard.WithLogger(o.logger)}, o.aiguardOptions...)
		aiguardClient, err := aiguard.NewClient(apiKey, aiguardOptions...)
		if err != nil {
			return nil, err
		}
		oracle = aiguardClient
	}
	for _, wrap := range o.oracleWrappers {
		oracle = wrap(oracle)
	}

	guarded, err := guard.NewClient(executor, oracle,
		guard.WithInputRecipe(o.inputRecipe),
		guard.WithOutputRecipe(o.outputRecipe),
		guard.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	return &Client{Client: guarded, closers: o.closers}, nil
}

// NewFromConfig builds a guarded client from cfg: the executor backend, the
// oracle (AI Guard or local guardrails), retry and tracing. The AWS
// configuration is only loaded for the bedrock backend.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Get()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(logging.WithLevel(cfg.Logging.Level))

	var awsCfg aws.Config
	if backend(cfg) == config.BackendBedrock {
		loadOptions := []func(*awsconfig.LoadOptions) error{}
		if cfg.AWS.Region != "" {
			loadOptions = append(loadOptions, awsconfig.WithRegion(cfg.AWS.Region))
		}
		if cfg.AWS.Profile != "" {
			loadOptions = append(loadOptions, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
		}
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, loadOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	built, err := configOptions(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := New(awsCfg, cfg.Pangea.APIKey, append(built, opts...)...)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Guarded client created", map[string]interface{}{
		"backend":       backend(cfg),
		"local_oracle":  cfg.Guardrails.Enabled,
		"input_recipe":  client.InputRecipe(),
		"output_recipe": client.OutputRecipe(),
	})

	return client, nil
}

func backend(cfg *config.Config) string {
	if cfg.Executor.Backend == "" {
		return config.BackendBedrock
	}
	return cfg.Executor.Backend
}

// configOptions turns cfg into options for New. Tracers created before a
// failure are closed before it returns.
func configOptions(ctx context.Context, cfg *config.Config, logger logging.Logger) (opts []Option, err error) {
	var closers []func(context.Context) error
	defer func() {
		if err != nil {
			if closeErr := runClosers(ctx, closers); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
		}
	}()

	opts = []Option{
		WithLogger(logger),
		WithInputRecipe(cfg.Pangea.InputRecipe),
		WithOutputRecipe(cfg.Pangea.OutputRecipe),
	}

	var retryOptions []retry.Option
	if cfg.Retry.Enabled {
		retryOptions = []retry.Option{
			retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
			retry.WithInitialInterval(cfg.Retry.InitialInterval),
			retry.WithMaximumInterval(cfg.Retry.MaxInterval),
		}
	}

	switch backend(cfg) {
	case config.BackendOpenAI:
		opts = append(opts, WithExecutor(openAIExecutor(cfg.Executor.OpenAI, logger, retryOptions)))
	case config.BackendAnthropic:
		opts = append(opts, WithExecutor(anthropicExecutor(cfg.Executor.Anthropic, logger, retryOptions)))
	default:
		if endpoint := cfg.AWS.Endpoint; endpoint != "" {
			opts = append(opts, WithBedrockOptions(func(o *bedrockruntime.Options) {
				o.BaseEndpoint = aws.String(endpoint)
			}))
		}
		if cfg.Retry.Enabled {
			opts = append(opts, WithExecutorOptions(bedrock.WithRetry(retryOptions...)))
		}
	}

	if cfg.Guardrails.Enabled {
		logger.Warn(ctx, "Using local guardrails instead of AI Guard, for development only", nil)
		opts = append(opts, WithOracle(localOracle(cfg.Guardrails, logger)))
	} else {
		if cfg.Pangea.BaseURL != "" {
			opts = append(opts, WithAIGuardOptions(aiguard.WithBaseURL(cfg.Pangea.BaseURL)))
		} else if cfg.Pangea.Domain != "" {
			opts = append(opts, WithAIGuardOptions(aiguard.WithDomain(cfg.Pangea.Domain)))
		}
		if cfg.Pangea.Timeout > 0 {
			opts = append(opts, WithAIGuardOptions(aiguard.WithHTTPClient(&http.Client{Timeout: cfg.Pangea.Timeout})))
		}
	}

	// OTel wraps Langfuse when both are enabled
	if lf := cfg.Tracing.Langfuse; lf.Enabled {
		tracer, err := tracing.NewLangfuseTracer(tracing.LangfuseConfig{
			Enabled:     true,
			SecretKey:   lf.SecretKey,
			PublicKey:   lf.PublicKey,
			Host:        lf.Host,
			Environment: lf.Environment,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Langfuse tracer: %w", err)
		}
		closers = append(closers, func(context.Context) error { return tracer.Flush() })
		opts = append(opts, WithExecutorMiddleware(func(next interfaces.Executor) interfaces.Executor {
			return tracing.NewExecutorLangfuseMiddleware(next, tracer, logger)
		}))
	}

	if otelCfg := cfg.Tracing.OTel; otelCfg.Enabled {
		tracer, err := tracing.NewOTelTracer(tracing.OTelConfig{
			Enabled:           true,
			ServiceName:       otelCfg.ServiceName,
			CollectorEndpoint: otelCfg.CollectorEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenTelemetry tracer: %w", err)
		}
		closers = append(closers, tracer.Shutdown)
		opts = append(opts,
			WithExecutorMiddleware(func(next interfaces.Executor) interfaces.Executor {
				return tracing.NewExecutorOTelMiddleware(next, tracer)
			}),
			WithOracleMiddleware(func(next interfaces.Oracle) interfaces.Oracle {
				return tracing.NewOracleOTelMiddleware(next, tracer)
			}),
		)
	}

	for _, closeFn := range closers {
		opts = append(opts, WithCloser(closeFn))
	}

	return opts, nil
}

func openAIExecutor(cfg config.BackendConfig, logger logging.Logger, retryOptions []retry.Option) interfaces.Executor {
	options := []openai.Option{openai.WithLogger(logger)}
	if cfg.BaseURL != "" {
		options = append(options, openai.WithBaseURL(cfg.APIKey, cfg.BaseURL))
	}
	if cfg.Model != "" {
		options = append(options, openai.WithModel(cfg.Model))
	}
	if len(retryOptions) > 0 {
		options = append(options, openai.WithRetry(retryOptions...))
	}
	return openai.NewClient(cfg.APIKey, options...)
}

func anthropicExecutor(cfg config.BackendConfig, logger logging.Logger, retryOptions []retry.Option) interfaces.Executor {
	options := []anthropic.Option{anthropic.WithLogger(logger)}
	if cfg.BaseURL != "" {
		options = append(options, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		options = append(options, anthropic.WithModel(cfg.Model))
	}
	if len(retryOptions) > 0 {
		options = append(options, anthropic.WithRetry(retryOptions...))
	}
	return anthropic.NewClient(cfg.APIKey, options...)
}

func localOracle(cfg config.GuardrailsConfig, logger logging.Logger) interfaces.Oracle {
	rules := []guardrails.Rule{guardrails.NewPiiFilter(guardrails.RedactAction)}
	if len(cfg.BlockedWords) > 0 {
		rules = append(rules, guardrails.NewContentFilter(cfg.BlockedWords, guardrails.BlockAction))
	}
	if cfg.MaxTokens > 0 {
		rules = append(rules, guardrails.NewTokenLimit(cfg.MaxTokens, nil, guardrails.BlockAction, ""))
	}
	return guardrails.NewOracle(rules, guardrails.WithLogger(logger))
}
