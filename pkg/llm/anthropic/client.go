package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/retry"
)

// AnthropicClient serves Converse commands from the Anthropic Messages API.
// Every other command kind is rejected with bedrock.ErrUnsupportedCommand.
type AnthropicClient struct {
	APIKey        string
	Model         string
	BaseURL       string
	HTTPClient    *http.Client
	logger        logging.Logger
	retryExecutor *retry.Executor
}

var _ interfaces.Executor = (*AnthropicClient)(nil)

// Option represents an option for configuring the Anthropic client
type Option func(*AnthropicClient)

// WithModel sets the model used when the Converse input names none
func WithModel(model string) Option {
	return func(c *AnthropicClient) {
		c.Model = model
	}
}

// WithLogger sets the logger for the Anthropic client
func WithLogger(logger logging.Logger) Option {
	return func(c *AnthropicClient) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client. Rate limits, server
// errors and transport failures are retried; other API errors are not.
func WithRetry(opts ...retry.Option) Option {
	return func(c *AnthropicClient) {
		policyOpts := append([]retry.Option{retry.WithRetryable(isRetryable)}, opts...)
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(policyOpts...))
	}
}

// WithBaseURL sets the base URL for the Anthropic API
func WithBaseURL(baseURL string) Option {
	return func(c *AnthropicClient) {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the Anthropic client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *AnthropicClient) {
		c.HTTPClient = httpClient
	}
}

// NewClient creates a new Anthropic client
func NewClient(apiKey string, options ...Option) *AnthropicClient {
	client := &AnthropicClient{
		APIKey:     apiKey,
		Model:      Claude35Haiku,
		BaseURL:    "https://api.anthropic.com",
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// ModelName constants for supported Anthropic models
const (
	Claude35Haiku  = "claude-3-5-haiku-latest"
	Claude35Sonnet = "claude-3-5-sonnet-latest"
	Claude37Sonnet = "claude-3-7-sonnet-latest"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Message represents a message for Anthropic API
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents a request for Anthropic API
type CompletionRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	Temperature   *float32  `json:"temperature,omitempty"`
	TopP          *float32  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	System        string    `json:"system,omitempty"`
}

// ContentBlock represents a content block in Anthropic API response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CompletionResponse represents a response from Anthropic API
type CompletionResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// APIError is returned when the Anthropic API answers with a non-200 status
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("error from Anthropic API (http %d): %s", e.StatusCode, e.Body)
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// Send implements interfaces.Executor. Bedrock request options do not apply
// and are ignored.
func (c *AnthropicClient) Send(ctx context.Context, cmd interfaces.Command, _ ...func(*bedrockruntime.Options)) (any, error) {
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

	req := c.completionRequest(converse.Input)

	var resp CompletionResponse
	var err error
	start := time.Now()

	operation := func() error {
		c.logger.Debug(ctx, "Executing Anthropic API request", map[string]interface{}{
			"model":          req.Model,
			"stop_sequences": req.StopSequences,
			"system":         req.System != "",
			"messages":       len(req.Messages),
		})

		reqBody, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-API-Key", c.APIKey)
		httpReq.Header.Set("Anthropic-Version", apiVersion)

		httpResp, err := c.HTTPClient.Do(httpReq)
		if err != nil {
			c.logger.Error(ctx, "Error from Anthropic API", map[string]interface{}{
				"error": err.Error(),
				"model": req.Model,
			})
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer func() {
			if closeErr := httpResp.Body.Close(); closeErr != nil {
				c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{
					"error": closeErr.Error(),
				})
			}
		}()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if httpResp.StatusCode != http.StatusOK {
			c.logger.Error(ctx, "Error from Anthropic API", map[string]interface{}{
				"status_code": httpResp.StatusCode,
				"response":    string(respBody),
				"model":       req.Model,
			})
			return &APIError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
		}

		if err := json.Unmarshal(respBody, &resp); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}

		return nil
	}

	if c.retryExecutor != nil {
		c.logger.Debug(ctx, "Using retry mechanism for Anthropic request", map[string]interface{}{
			"model": req.Model,
		})
		err = c.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}
	if err != nil {
		return nil, err
	}

	return converseOutput(resp, time.Since(start)), nil
}

func (c *AnthropicClient) completionRequest(input *bedrockruntime.ConverseInput) CompletionRequest {
	var system []string
	for _, block := range input.System {
		if text, ok := block.(*types.SystemContentBlockMemberText); ok {
			system = append(system, text.Value)
		}
	}

	messages := make([]Message, 0, len(input.Messages))
	for _, message := range input.Messages {
		messages = append(messages, Message{
			Role:    string(message.Role),
			Content: bedrock.JoinText(message.Content),
		})
	}

	model := aws.ToString(input.ModelId)
	if model == "" {
		model = c.Model
	}

	req := CompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: defaultMaxTokens,
		System:    strings.Join(system, bedrock.TextSeparator),
	}

	if cfg := input.InferenceConfig; cfg != nil {
		if cfg.MaxTokens != nil {
			req.MaxTokens = int(*cfg.MaxTokens)
		}
		req.Temperature = cfg.Temperature
		req.TopP = cfg.TopP
		req.StopSequences = cfg.StopSequences
	}

	return req
}

func converseOutput(resp CompletionResponse, latency time.Duration) *bedrockruntime.ConverseOutput {
	var content []types.ContentBlock
	for _, block := range resp.Content {
		if block.Type == "text" {
			content = append(content, bedrock.TextBlock(block.Text))
		}
	}

	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: content,
		}},
		StopReason: stopReason(resp.StopReason),
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(int32(resp.Usage.InputTokens)),
			OutputTokens: aws.Int32(int32(resp.Usage.OutputTokens)),
			TotalTokens:  aws.Int32(int32(resp.Usage.InputTokens + resp.Usage.OutputTokens)),
		},
		Metrics: &types.ConverseMetrics{LatencyMs: aws.Int64(latency.Milliseconds())},
	}
}

func stopReason(reason string) types.StopReason {
	switch reason {
	case "max_tokens":
		return types.StopReasonMaxTokens
	case "stop_sequence":
		return types.StopReasonStopSequence
	case "tool_use":
		return types.StopReasonToolUse
	default:
		return types.StopReasonEndTurn
	}
}
