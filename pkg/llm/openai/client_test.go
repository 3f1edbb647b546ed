package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	gopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/llm/openai"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/retry"
)

func TestSendConverse(t *testing.T) {
	// Create a test server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header with test-key")
		}

		var reqBody gopenai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}

		assert.Equal(t, "gpt-4", reqBody.Model)
		assert.Equal(t, 64, reqBody.MaxTokens)
		require.Len(t, reqBody.Messages, 3)
		assert.Equal(t, "system", reqBody.Messages[0].Role)
		assert.Equal(t, "be brief", reqBody.Messages[0].Content)
		assert.Equal(t, "user", reqBody.Messages[1].Role)
		assert.Equal(t, "hello\nthere", reqBody.Messages[1].Content)
		assert.Equal(t, "assistant", reqBody.Messages[2].Role)

		w.Header().Set("Content-Type", "application/json")
		response := gopenai.ChatCompletionResponse{
			Choices: []gopenai.ChatCompletionChoice{
				{
					Message: gopenai.ChatCompletionMessage{
						Content: "test response",
						Role:    "assistant",
					},
					FinishReason: gopenai.FinishReasonLength,
				},
			},
			Usage: gopenai.Usage{PromptTokens: 7, CompletionTokens: 2, TotalTokens: 9},
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Fatalf("Failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client := openai.NewClient("test-key",
		openai.WithModel("gpt-4"),
		openai.WithBaseURL("test-key", server.URL),
		openai.WithLogger(logging.NewNop()),
	)

	out, err := bedrock.Converse(context.Background(), client, &bedrockruntime.ConverseInput{
		System: []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: "be brief"}},
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: []types.ContentBlock{
				bedrock.TextBlock("hello"), bedrock.TextBlock("there"),
			}},
			{Role: types.ConversationRoleAssistant, Content: []types.ContentBlock{bedrock.TextBlock("hi")}},
		},
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(64)},
	})
	require.NoError(t, err)

	message := bedrock.OutputMessage(out)
	require.NotNil(t, message)
	assert.Equal(t, types.ConversationRoleAssistant, message.Role)
	assert.Equal(t, "test response", bedrock.JoinText(message.Content))
	assert.Equal(t, types.StopReasonMaxTokens, out.StopReason)
	require.NotNil(t, out.Usage)
	assert.Equal(t, int32(9), aws.ToInt32(out.Usage.TotalTokens))
}

func TestSendRejectsOtherCommands(t *testing.T) {
	client := openai.NewClient("test-key", openai.WithLogger(logging.NewNop()))

	_, err := client.Send(context.Background(), &bedrock.InvokeModelCommand{})
	assert.ErrorIs(t, err, bedrock.ErrUnsupportedCommand)
	assert.ErrorContains(t, err, bedrock.OpInvokeModel)

	_, err = client.Send(context.Background(), &bedrock.ConverseCommand{})
	assert.ErrorContains(t, err, "input is required")
}

func TestSendRetriesOnlyTransientErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		attempts int32
	}{
		{"rate limited", http.StatusTooManyRequests, 3},
		{"bad request", http.StatusBadRequest, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			}))
			defer server.Close()

			client := openai.NewClient("test-key",
				openai.WithBaseURL("test-key", server.URL),
				openai.WithLogger(logging.NewNop()),
				openai.WithRetry(retry.WithMaxAttempts(3), retry.WithInitialInterval(time.Millisecond)),
			)

			_, err := client.Send(context.Background(), &bedrock.ConverseCommand{Input: &bedrockruntime.ConverseInput{}})
			assert.Error(t, err)
			assert.Equal(t, tc.attempts, calls.Load())
		})
	}
}
