package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
)

// Operation names, as reported by Command.Name
const (
	OpConverse                      = "Converse"
	OpConverseStream                = "ConverseStream"
	OpInvokeModel                   = "InvokeModel"
	OpInvokeModelWithResponseStream = "InvokeModelWithResponseStream"
	OpApplyGuardrail                = "ApplyGuardrail"
)

// ConverseCommand sends messages to a model through the Converse API
type ConverseCommand struct {
	Input *bedrockruntime.ConverseInput
}

// Name implements interfaces.Command
func (c *ConverseCommand) Name() string { return OpConverse }

// ConverseStreamCommand is the streaming variant of ConverseCommand
type ConverseStreamCommand struct {
	Input *bedrockruntime.ConverseStreamInput
}

// Name implements interfaces.Command
func (c *ConverseStreamCommand) Name() string { return OpConverseStream }

// InvokeModelCommand invokes a model with a provider specific body
type InvokeModelCommand struct {
	Input *bedrockruntime.InvokeModelInput
}

// Name implements interfaces.Command
func (c *InvokeModelCommand) Name() string { return OpInvokeModel }

// InvokeModelWithResponseStreamCommand is the streaming variant of InvokeModelCommand
type InvokeModelWithResponseStreamCommand struct {
	Input *bedrockruntime.InvokeModelWithResponseStreamInput
}

// Name implements interfaces.Command
func (c *InvokeModelWithResponseStreamCommand) Name() string { return OpInvokeModelWithResponseStream }

// ApplyGuardrailCommand evaluates content against a Bedrock guardrail
type ApplyGuardrailCommand struct {
	Input *bedrockruntime.ApplyGuardrailInput
}

// Name implements interfaces.Command
func (c *ApplyGuardrailCommand) Name() string { return OpApplyGuardrail }

// Converse sends a ConverseCommand through exec
func Converse(ctx context.Context, exec interfaces.Executor, input *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return send[*bedrockruntime.ConverseOutput](ctx, exec, &ConverseCommand{Input: input}, optFns...)
}

// ConverseStream sends a ConverseStreamCommand through exec
func ConverseStream(ctx context.Context, exec interfaces.Executor, input *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return send[*bedrockruntime.ConverseStreamOutput](ctx, exec, &ConverseStreamCommand{Input: input}, optFns...)
}

// InvokeModel sends an InvokeModelCommand through exec
func InvokeModel(ctx context.Context, exec interfaces.Executor, input *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return send[*bedrockruntime.InvokeModelOutput](ctx, exec, &InvokeModelCommand{Input: input}, optFns...)
}

// InvokeModelWithResponseStream sends an InvokeModelWithResponseStreamCommand through exec
func InvokeModelWithResponseStream(ctx context.Context, exec interfaces.Executor, input *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	return send[*bedrockruntime.InvokeModelWithResponseStreamOutput](ctx, exec, &InvokeModelWithResponseStreamCommand{Input: input}, optFns...)
}

// ApplyGuardrail sends an ApplyGuardrailCommand through exec
func ApplyGuardrail(ctx context.Context, exec interfaces.Executor, input *bedrockruntime.ApplyGuardrailInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ApplyGuardrailOutput, error) {
	return send[*bedrockruntime.ApplyGuardrailOutput](ctx, exec, &ApplyGuardrailCommand{Input: input}, optFns...)
}

func send[T any](ctx context.Context, exec interfaces.Executor, cmd interfaces.Command, optFns ...func(*bedrockruntime.Options)) (T, error) {
	var zero T

	out, err := exec.Send(ctx, cmd, optFns...)
	if err != nil {
		return zero, err
	}

	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", cmd.Name(), out)
	}
	return typed, nil
}
