package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/sashabaranov/go-openai"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/retry"
)

// OpenAIClient serves Converse commands from an OpenAI compatible chat
// completions endpoint. Every other command kind is rejected with
// bedrock.ErrUnsupportedCommand.
type OpenAIClient struct {
	Client        *openai.Client
	Model         string
	logger        logging.Logger
	retryExecutor *retry.Executor
}

var _ interfaces.Executor = (*OpenAIClient)(nil)

// Option represents an option for configuring the OpenAI client
type Option func(*OpenAIClient)

// WithModel sets the model used when the Converse input names none
func WithModel(model string) Option {
	return func(c *OpenAIClient) {
		c.Model = model
	}
}

// WithLogger sets the logger for the OpenAI client
func WithLogger(logger logging.Logger) Option {
	return func(c *OpenAIClient) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client. Rate limits, server
// errors and transport failures are retried; other API errors are not.
func WithRetry(opts ...retry.Option) Option {
	return func(c *OpenAIClient) {
		policyOpts := append([]retry.Option{retry.WithRetryable(isRetryable)}, opts...)
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(policyOpts...))
	}
}

// WithBaseURL points the client at another OpenAI compatible endpoint
func WithBaseURL(apiKey, baseURL string) Option {
	return func(c *OpenAIClient) {
		config := openai.DefaultConfig(apiKey)
		config.BaseURL = baseURL
		c.Client = openai.NewClientWithConfig(config)
	}
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, options ...Option) *OpenAIClient {
	client := &OpenAIClient{
		Client: openai.NewClient(apiKey),
		Model:  "gpt-4o-mini",
		logger: logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Send implements interfaces.Executor. Bedrock request options do not apply
// and are ignored.
func (c *OpenAIClient) Send(ctx context.Context, cmd interfaces.Command, _ ...func(*bedrockruntime.Options)) (any, error) {
	converse, ok := cmd.(*bedrock.ConverseCommand)
	if !ok {
		name := "<nil>"
		if cmd != nil {
			name = cmd.Name()
		}
		return nil, fmt.Errorf("%w: %s", bedrock.ErrUnsupportedCommand, name)
	}
	if converse == nil || converse.Input == nil {
		return nil, fmt.Errorf("converse: input is required")
	}

	req := c.chatRequest(converse.Input)

	var resp openai.ChatCompletionResponse
	var err error
	start := time.Now()

	operation := func() error {
		c.logger.Debug(ctx, "Executing OpenAI API request", map[string]interface{}{
			"model":          req.Model,
			"temperature":    req.Temperature,
			"top_p":          req.TopP,
			"stop_sequences": req.Stop,
			"messages":       len(req.Messages),
		})

		resp, err = c.Client.CreateChatCompletion(ctx, req)
		if err != nil {
			c.logger.Error(ctx, "Error from OpenAI API", map[string]interface{}{
				"error": err.Error(),
				"model": req.Model,
			})
			return fmt.Errorf("failed to generate text: %w", err)
		}
		return nil
	}

	if c.retryExecutor != nil {
		c.logger.Debug(ctx, "Using retry mechanism for OpenAI request", map[string]interface{}{
			"model": req.Model,
		})
		err = c.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI API")
	}

	return converseOutput(resp, time.Since(start)), nil
}

func (c *OpenAIClient) chatRequest(input *bedrockruntime.ConverseInput) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(input.Messages)+1)

	var system []string
	for _, block := range input.System {
		if text, ok := block.(*types.SystemContentBlockMemberText); ok {
			system = append(system, text.Value)
		}
	}
	if len(system) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: strings.Join(system, bedrock.TextSeparator),
		})
	}

	for _, message := range input.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(message.Role),
			Content: bedrock.JoinText(message.Content),
		})
	}

	model := aws.ToString(input.ModelId)
	if model == "" {
		model = c.Model
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	if cfg := input.InferenceConfig; cfg != nil {
		if cfg.MaxTokens != nil {
			req.MaxTokens = int(*cfg.MaxTokens)
		}
		if cfg.Temperature != nil {
			req.Temperature = *cfg.Temperature
		}
		if cfg.TopP != nil {
			req.TopP = *cfg.TopP
		}
		req.Stop = cfg.StopSequences
	}

	return req
}

func converseOutput(resp openai.ChatCompletionResponse, latency time.Duration) *bedrockruntime.ConverseOutput {
	choice := resp.Choices[0]

	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{bedrock.TextBlock(choice.Message.Content)},
		}},
		StopReason: stopReason(choice.FinishReason),
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(int32(resp.Usage.PromptTokens)),
			OutputTokens: aws.Int32(int32(resp.Usage.CompletionTokens)),
			TotalTokens:  aws.Int32(int32(resp.Usage.TotalTokens)),
		},
		Metrics: &types.ConverseMetrics{LatencyMs: aws.Int64(latency.Milliseconds())},
	}
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func stopReason(reason openai.FinishReason) types.StopReason {
	switch reason {
	case openai.FinishReasonLength:
		return types.StopReasonMaxTokens
	case openai.FinishReasonContentFilter:
		return types.StopReasonContentFiltered
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return types.StopReasonToolUse
	default:
		return types.StopReasonEndTurn
	}
}
