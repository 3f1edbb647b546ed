package aiguard

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

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
)

const (
	// DefaultDomain is the Pangea cloud domain services are reached under
	DefaultDomain = "aws.us.pangea.cloud"

	serviceName = "ai-guard"
	guardPath   = "/v1/text/guard"
	userAgent   = "pangea-aws-sdk-go"
)

// ErrMissingToken is returned by NewClient when no API token is given
var ErrMissingToken = errors.New("ai guard: API token is required")

// Client calls the Pangea AI Guard service
type Client struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	logger     logging.Logger
}

// Option represents an option for configuring the AI Guard client
type Option func(*Client)

// WithDomain points the client at https://ai-guard.<domain>
func WithDomain(domain string) Option {
	return func(c *Client) {
		c.BaseURL = "https://" + serviceName + "." + domain
	}
}

// WithBaseURL sets the full base URL, overriding WithDomain
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

// WithLogger sets the logger for the AI Guard client
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new AI Guard client
func NewClient(token string, options ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	client := &Client{
		Token:      token,
		BaseURL:    "https://" + serviceName + "." + DefaultDomain,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

// Guard submits a conversation for evaluation under the request's recipe
func (c *Client) Guard(ctx context.Context, req *GuardRequest) (*GuardResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("ai guard: nil request")
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal guard request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+guardPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create guard request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	httpReq.Header.Set("User-Agent", userAgent)

	c.logger.Debug(ctx, "Executing AI Guard request", map[string]interface{}{
		"recipe":   req.Recipe,
		"messages": len(req.Input.Messages),
	})

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send guard request: %w", err)
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
		return nil, fmt.Errorf("failed to read guard response: %w", err)
	}

	var resp GuardResponse
	decodeErr := json.Unmarshal(respBody, &resp)

	if httpResp.StatusCode != http.StatusOK || decodeErr != nil || resp.Status != "Success" {
		apiErr := &APIError{
			StatusCode: httpResp.StatusCode,
			Status:     resp.Status,
			Summary:    resp.Summary,
			RequestID:  resp.RequestID,
		}
		if decodeErr != nil {
			apiErr.Summary = strings.TrimSpace(string(respBody))
		}
		if apiErr.Status == "" {
			apiErr.Status = http.StatusText(httpResp.StatusCode)
		}
		return nil, apiErr
	}

	c.logger.Debug(ctx, "Received AI Guard result", map[string]interface{}{
		"pangea_request_id": resp.RequestID,
		"blocked":           resp.Result.Blocked,
		"transformed":       resp.Result.Transformed,
	})

	return &resp, nil
}
