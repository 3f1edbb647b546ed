package interfaces

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Command is one Bedrock Runtime operation together with its input
type Command interface {
	// Name returns the operation name, e.g. "Converse"
	Name() string
}

// Executor sends commands to a Bedrock Runtime compatible backend.
// The concrete result type depends on the command, e.g. a Converse command
// yields *bedrockruntime.ConverseOutput.
type Executor interface {
	Send(ctx context.Context, cmd Command, optFns ...func(*bedrockruntime.Options)) (any, error)
}
