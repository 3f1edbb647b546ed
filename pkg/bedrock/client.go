package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/retry"
)

// ErrUnsupportedCommand is returned for command kinds an executor cannot serve
var ErrUnsupportedCommand = errors.New("unsupported command")

// RuntimeAPI is the subset of *bedrockruntime.Client the executor calls
type RuntimeAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
	ApplyGuardrail(ctx context.Context, params *bedrockruntime.ApplyGuardrailInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ApplyGuardrailOutput, error)
}

var _ RuntimeAPI = (*bedrockruntime.Client)(nil)

// Client is an interfaces.Executor backed by the Bedrock Runtime API
type Client struct {
	API           RuntimeAPI
	logger        logging.Logger
	retryExecutor *retry.Executor
}

var _ interfaces.Executor = (*Client)(nil)

// Option represents an option for configuring the Bedrock client
type Option func(*Client)

// WithLogger sets the logger for the Bedrock client
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client, on top of the SDK's own
// retryer. Only errors IsRetryable accepts are retried unless opts set
// another check with retry.WithRetryable.
func WithRetry(opts ...retry.Option) Option {
	return func(c *Client) {
		policyOpts := append([]retry.Option{retry.WithRetryable(IsRetryable)}, opts...)
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(policyOpts...))
	}
}

// WithAPI replaces the underlying runtime API
func WithAPI(api RuntimeAPI) Option {
	return func(c *Client) {
		c.API = api
	}
}

// NewClient creates a Bedrock executor from an AWS configuration. The
// configuration and optFns are handed to bedrockruntime.NewFromConfig unchanged.
func NewClient(cfg aws.Config, optFns []func(*bedrockruntime.Options), options ...Option) *Client {
	client := &Client{
		API:    bedrockruntime.NewFromConfig(cfg, optFns...),
		logger: logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Send dispatches cmd to the matching Bedrock Runtime operation
func (c *Client) Send(ctx context.Context, cmd interfaces.Command, optFns ...func(*bedrockruntime.Options)) (any, error) {
	if !Supports(cmd) {
		return nil, unsupported(cmd)
	}

	var result any

	operation := func() error {
		var err error
		switch cmd := cmd.(type) {
		case *ConverseCommand:
			result, err = c.API.Converse(ctx, cmd.Input, optFns...)
		case *ConverseStreamCommand:
			result, err = c.API.ConverseStream(ctx, cmd.Input, optFns...)
		case *InvokeModelCommand:
			result, err = c.API.InvokeModel(ctx, cmd.Input, optFns...)
		case *InvokeModelWithResponseStreamCommand:
			result, err = c.API.InvokeModelWithResponseStream(ctx, cmd.Input, optFns...)
		case *ApplyGuardrailCommand:
			result, err = c.API.ApplyGuardrail(ctx, cmd.Input, optFns...)
		}
		if err != nil {
			c.logger.Debug(ctx, "Error from Bedrock Runtime", map[string]interface{}{
				"operation": cmd.Name(),
				"error":     err.Error(),
			})
		}
		return err
	}

	var err error
	if c.retryExecutor != nil {
		err = c.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Supports reports whether cmd is one of the Bedrock Runtime command kinds
func Supports(cmd interfaces.Command) bool {
	switch cmd.(type) {
	case *ConverseCommand, *ConverseStreamCommand, *InvokeModelCommand,
		*InvokeModelWithResponseStreamCommand, *ApplyGuardrailCommand:
		return true
	default:
		return false
	}
}

func unsupported(cmd interfaces.Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: <nil>", ErrUnsupportedCommand)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Name())
}
