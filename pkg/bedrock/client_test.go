package bedrock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/retry"
)

type fakeRuntime struct {
	calls      []string
	optFns     int
	converseFn func() (*bedrockruntime.ConverseOutput, error)
}

func (f *fakeRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.calls = append(f.calls, OpConverse)
	f.optFns = len(optFns)
	if f.converseFn != nil {
		return f.converseFn()
	}
	return &bedrockruntime.ConverseOutput{}, nil
}

func (f *fakeRuntime) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	f.calls = append(f.calls, OpConverseStream)
	return &bedrockruntime.ConverseStreamOutput{}, nil
}

func (f *fakeRuntime) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls = append(f.calls, OpInvokeModel)
	return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"ok":true}`)}, nil
}

func (f *fakeRuntime) InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	f.calls = append(f.calls, OpInvokeModelWithResponseStream)
	return &bedrockruntime.InvokeModelWithResponseStreamOutput{}, nil
}

func (f *fakeRuntime) ApplyGuardrail(ctx context.Context, params *bedrockruntime.ApplyGuardrailInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ApplyGuardrailOutput, error) {
	f.calls = append(f.calls, OpApplyGuardrail)
	return &bedrockruntime.ApplyGuardrailOutput{}, nil
}

type otherCommand struct{}

func (otherCommand) Name() string { return "ListAsyncInvokes" }

func newTestClient(api RuntimeAPI, options ...Option) *Client {
	options = append([]Option{WithAPI(api), WithLogger(logging.NewNop())}, options...)
	return NewClient(aws.Config{Region: "us-east-1"}, nil, options...)
}

func TestSendDispatchesEveryCommand(t *testing.T) {
	api := &fakeRuntime{}
	client := newTestClient(api)
	ctx := context.Background()

	_, err := Converse(ctx, client, &bedrockruntime.ConverseInput{})
	require.NoError(t, err)
	_, err = ConverseStream(ctx, client, &bedrockruntime.ConverseStreamInput{})
	require.NoError(t, err)
	out, err := InvokeModel(ctx, client, &bedrockruntime.InvokeModelInput{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out.Body))
	_, err = InvokeModelWithResponseStream(ctx, client, &bedrockruntime.InvokeModelWithResponseStreamInput{})
	require.NoError(t, err)
	_, err = ApplyGuardrail(ctx, client, &bedrockruntime.ApplyGuardrailInput{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		OpConverse, OpConverseStream, OpInvokeModel, OpInvokeModelWithResponseStream, OpApplyGuardrail,
	}, api.calls)
}

func TestSendForwardsOptions(t *testing.T) {
	api := &fakeRuntime{}
	client := newTestClient(api)

	_, err := client.Send(context.Background(), &ConverseCommand{},
		func(o *bedrockruntime.Options) { o.Region = "eu-west-1" },
		func(o *bedrockruntime.Options) {},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, api.optFns)
}

func TestSendUnsupportedCommand(t *testing.T) {
	api := &fakeRuntime{}
	client := newTestClient(api)

	_, err := client.Send(context.Background(), otherCommand{})
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
	assert.Contains(t, err.Error(), "ListAsyncInvokes")

	_, err = client.Send(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
	assert.Empty(t, api.calls)
}

func TestSendRetries(t *testing.T) {
	attempts := 0
	api := &fakeRuntime{converseFn: func() (*bedrockruntime.ConverseOutput, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("ThrottlingException")
		}
		return &bedrockruntime.ConverseOutput{StopReason: types.StopReasonEndTurn}, nil
	}}
	client := newTestClient(api, WithRetry(
		retry.WithInitialInterval(time.Millisecond),
		retry.WithMaxAttempts(3),
	))

	out, err := Converse(context.Background(), client, &bedrockruntime.ConverseInput{})
	require.NoError(t, err)
	assert.Equal(t, types.StopReasonEndTurn, out.StopReason)
	assert.Equal(t, 2, attempts)
}

func TestSendPropagatesError(t *testing.T) {
	boom := errors.New("AccessDeniedException")
	api := &fakeRuntime{converseFn: func() (*bedrockruntime.ConverseOutput, error) { return nil, boom }}

	_, err := Converse(context.Background(), newTestClient(api), &bedrockruntime.ConverseInput{})
	assert.Same(t, boom, err)
}

func TestJoinText(t *testing.T) {
	content := []types.ContentBlock{
		&types.ContentBlockMemberText{Value: "a"},
		&types.ContentBlockMemberImage{Value: types.ImageBlock{Format: types.ImageFormatPng}},
		&types.ContentBlockMemberText{Value: "b"},
	}
	assert.Equal(t, "a\nb", JoinText(content))
	assert.Equal(t, "", JoinText(nil))
}

func TestOutputMessage(t *testing.T) {
	assert.Nil(t, OutputMessage(nil))
	assert.Nil(t, OutputMessage(&bedrockruntime.ConverseOutput{}))

	out := &bedrockruntime.ConverseOutput{Output: &types.ConverseOutputMemberMessage{Value: types.Message{
		Role:    types.ConversationRoleAssistant,
		Content: []types.ContentBlock{TextBlock("hi")},
	}}}
	msg := OutputMessage(out)
	require.NotNil(t, msg)

	// The returned message aliases the output
	msg.Content = []types.ContentBlock{TextBlock("changed")}
	assert.Equal(t, "changed", JoinText(OutputMessage(out).Content))
}
