package tracing

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/correlation"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
)

type stubExecutor struct {
	result any
	err    error
	calls  int
}

func (s *stubExecutor) Send(ctx context.Context, cmd interfaces.Command, optFns ...func(*bedrockruntime.Options)) (any, error) {
	s.calls++
	return s.result, s.err
}

type stubOracle struct {
	resp *aiguard.GuardResponse
	err  error
}

func (s *stubOracle) Guard(ctx context.Context, req *aiguard.GuardRequest) (*aiguard.GuardResponse, error) {
	return s.resp, s.err
}

func newRecordingTracer() (*OTelTracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewOTelTracerFromProvider(tp, "test"), recorder
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestDisabledOTelTracer(t *testing.T) {
	tracer, err := NewOTelTracer(OTelConfig{Enabled: false})
	require.NoError(t, err)

	exec := &stubExecutor{result: &bedrockruntime.InvokeModelOutput{}}
	_, err = NewExecutorOTelMiddleware(exec, tracer).Send(context.Background(), &bedrock.InvokeModelCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, exec.calls)
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestExecutorOTelMiddleware(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	out := &bedrockruntime.ConverseOutput{
		StopReason: types.StopReasonEndTurn,
		Usage:      &types.TokenUsage{InputTokens: aws.Int32(12), OutputTokens: aws.Int32(3)},
	}
	middleware := NewExecutorOTelMiddleware(&stubExecutor{result: out}, tracer)

	ctx := correlation.WithRequestID(context.Background(), "req-7")
	result, err := bedrock.Converse(ctx, middleware, &bedrockruntime.ConverseInput{
		ModelId:  aws.String("amazon.nova-micro-v1:0"),
		Messages: []types.Message{{Role: types.ConversationRoleUser}},
	})
	require.NoError(t, err)
	assert.Same(t, out, result)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "bedrock.Converse", spans[0].Name())

	a := attrs(spans[0])
	assert.Equal(t, "amazon.nova-micro-v1:0", a["bedrock.model_id"].AsString())
	assert.Equal(t, "1", a["messages.count"].AsString())
	assert.Equal(t, "req-7", a["request_id"].AsString())
	assert.Equal(t, "end_turn", a["bedrock.stop_reason"].AsString())
	assert.Equal(t, int64(12), a["usage.input_tokens"].AsInt64())
}

func TestExecutorOTelMiddlewareRecordsError(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	boom := errors.New("throttled")

	_, err := NewExecutorOTelMiddleware(&stubExecutor{err: boom}, tracer).
		Send(context.Background(), &bedrock.InvokeModelCommand{})
	assert.Same(t, boom, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "bedrock.InvokeModel", spans[0].Name())
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestOracleOTelMiddleware(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	oracle := &stubOracle{resp: &aiguard.GuardResponse{
		RequestID: "prq_1",
		Result:    aiguard.GuardResult{Blocked: true},
	}}

	resp, err := NewOracleOTelMiddleware(oracle, tracer).Guard(context.Background(), &aiguard.GuardRequest{
		Input:  aiguard.GuardInput{Messages: []aiguard.Message{{Role: "user", Content: aiguard.Text("x")}}},
		Recipe: "pangea_prompt_guard",
	})
	require.NoError(t, err)
	assert.True(t, resp.Result.Blocked)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "aiguard.guard", spans[0].Name())
	a := attrs(spans[0])
	assert.Equal(t, "pangea_prompt_guard", a["aiguard.recipe"].AsString())
	assert.True(t, a["aiguard.blocked"].AsBool())
	assert.False(t, a["aiguard.transformed"].AsBool())
	assert.Equal(t, "prq_1", a["aiguard.request_id"].AsString())
}

func TestDisabledLangfusePassesThrough(t *testing.T) {
	tracer, err := NewLangfuseTracer(LangfuseConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tracer.Enabled())
	assert.NoError(t, tracer.Flush())

	out := &bedrockruntime.ConverseOutput{}
	exec := &stubExecutor{result: out}
	middleware := NewExecutorLangfuseMiddleware(exec, tracer, logging.NewNop())

	result, err := middleware.Send(context.Background(), &bedrock.ConverseCommand{Input: &bedrockruntime.ConverseInput{}})
	require.NoError(t, err)
	assert.Same(t, out, result)
	assert.Equal(t, 1, exec.calls)
}

func TestLangfuseRequiresKeys(t *testing.T) {
	_, err := NewLangfuseTracer(LangfuseConfig{Enabled: true, PublicKey: "pk"})
	assert.ErrorContains(t, err, "keys are required")
}

func TestConversation(t *testing.T) {
	messages := conversation(&bedrockruntime.ConverseInput{Messages: []types.Message{
		{Role: types.ConversationRoleUser, Content: []types.ContentBlock{bedrock.TextBlock("a"), bedrock.TextBlock("b")}},
	}})
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0]["role"])
	assert.Equal(t, "a\nb", messages[0]["content"])
}

func TestLangfuseTracerExportsConfiguredCredentials(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")
	t.Setenv("LANGFUSE_HOST", "https://env.langfuse.example")

	tracer, err := NewLangfuseTracer(LangfuseConfig{
		Enabled:   true,
		PublicKey: "pk-lf-from-config",
		SecretKey: "sk-lf-from-config",
	})
	require.NoError(t, err)
	assert.True(t, tracer.Enabled())

	assert.Equal(t, "pk-lf-from-config", os.Getenv("LANGFUSE_PUBLIC_KEY"))
	assert.Equal(t, "sk-lf-from-config", os.Getenv("LANGFUSE_SECRET_KEY"))
	// no host configured
	assert.Equal(t, "https://env.langfuse.example", os.Getenv("LANGFUSE_HOST"))
}

func TestExportCredentials(t *testing.T) {
	set := map[string]string{}
	err := exportCredentials(LangfuseConfig{PublicKey: "pk", SecretKey: "sk", Host: "https://lf.internal"},
		func(key, value string) error {
			set[key] = value
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"LANGFUSE_PUBLIC_KEY": "pk",
		"LANGFUSE_SECRET_KEY": "sk",
		"LANGFUSE_HOST":       "https://lf.internal",
	}, set)

	boom := errors.New("read-only environment")
	err = exportCredentials(LangfuseConfig{PublicKey: "pk"}, func(string, string) error { return boom })
	assert.ErrorIs(t, err, boom)
}
