// Package guard wraps a Bedrock Runtime executor with Pangea AI Guard checks
// on Converse calls. The prompt is checked before the model is called and the
// model response after; either check may block the call or rewrite the content.
//
// Send mutates the caller's ConverseCommand input and the executor's
// ConverseOutput in place when AI Guard rewrites them.
package guard

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/correlation"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
)

const (
	// DefaultInputRecipe is the recipe prompts are checked with
	DefaultInputRecipe = "pangea_prompt_guard"
	// DefaultOutputRecipe is the recipe model responses are checked with
	DefaultOutputRecipe = "pangea_llm_response_guard"
)

var (
	// ErrNilExecutor is returned by NewClient without an executor
	ErrNilExecutor = errors.New("guard: executor is required")
	// ErrNilOracle is returned by NewClient without an oracle
	ErrNilOracle = errors.New("guard: oracle is required")
)

// Client is an interfaces.Executor that guards Converse calls of the
// executor it wraps. It is safe for concurrent use when the wrapped executor
// and oracle are.
type Client struct {
	executor     interfaces.Executor
	oracle       interfaces.Oracle
	inputRecipe  string
	outputRecipe string
	logger       logging.Logger
}

var _ interfaces.Executor = (*Client)(nil)

// Option represents an option for configuring the guard client
type Option func(*Client)

// WithInputRecipe sets the recipe prompts are checked with. Empty keeps the default.
func WithInputRecipe(recipe string) Option {
	return func(c *Client) {
		if recipe != "" {
			c.inputRecipe = recipe
		}
	}
}

// WithOutputRecipe sets the recipe responses are checked with. Empty keeps the default.
func WithOutputRecipe(recipe string) Option {
	return func(c *Client) {
		if recipe != "" {
			c.outputRecipe = recipe
		}
	}
}

// WithLogger sets the logger for the guard client
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a guard client around executor, asking oracle for verdicts
func NewClient(executor interfaces.Executor, oracle interfaces.Oracle, options ...Option) (*Client, error) {
	if executor == nil {
		return nil, ErrNilExecutor
	}
	if oracle == nil {
		return nil, ErrNilOracle
	}

	client := &Client{
		executor:     executor,
		oracle:       oracle,
		inputRecipe:  DefaultInputRecipe,
		outputRecipe: DefaultOutputRecipe,
		logger:       logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

// InputRecipe returns the recipe prompts are checked with
func (c *Client) InputRecipe() string { return c.inputRecipe }

// OutputRecipe returns the recipe responses are checked with
func (c *Client) OutputRecipe() string { return c.outputRecipe }

// Executor returns the wrapped executor
func (c *Client) Executor() interfaces.Executor { return c.executor }

// Send forwards cmd to the wrapped executor. Converse commands carrying
// messages are checked by AI Guard before and after the call; everything else
// goes straight through. A block at either stage returns a *BlockedError and
// the model response, if any, is dropped. Errors of the executor and the
// oracle are returned as they are.
func (c *Client) Send(ctx context.Context, cmd interfaces.Command, optFns ...func(*bedrockruntime.Options)) (any, error) {
	converse, ok := cmd.(*bedrock.ConverseCommand)
	if !ok || converse == nil || converse.Input == nil || len(converse.Input.Messages) == 0 {
		return c.executor.Send(ctx, cmd, optFns...)
	}

	ctx, _ = correlation.EnsureRequestID(ctx)

	prompt := Flatten(converse.Input.Messages)
	if err := c.guardInput(ctx, converse.Input, prompt); err != nil {
		return nil, err
	}

	result, err := c.executor.Send(ctx, cmd, optFns...)
	if err != nil {
		return nil, err
	}

	out, ok := result.(*bedrockruntime.ConverseOutput)
	if !ok {
		return result, nil
	}
	if err := c.guardOutput(ctx, out, prompt); err != nil {
		return nil, err
	}

	return out, nil
}
