package tracing

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/config"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/correlation"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
)

// LangfuseTracer implements tracing using Langfuse
type LangfuseTracer struct {
	client      *langfuse.Langfuse
	enabled     bool
	environment string
}

// LangfuseConfig contains configuration for Langfuse
type LangfuseConfig struct {
	// Enabled determines whether Langfuse tracing is enabled
	Enabled bool

	// SecretKey is the Langfuse secret key
	SecretKey string

	// PublicKey is the Langfuse public key
	PublicKey string

	// Host is the Langfuse host (optional)
	Host string

	// Environment is the environment name (e.g., "production", "staging")
	Environment string
}

// NewLangfuseTracer creates a new Langfuse tracer
func NewLangfuseTracer(customConfig ...LangfuseConfig) (*LangfuseTracer, error) {
	// Use custom config if provided, otherwise use global config
	var tracerConfig LangfuseConfig
	if len(customConfig) > 0 {
		tracerConfig = customConfig[0]
	} else {
		cfg := config.Get()
		tracerConfig = LangfuseConfig{
			Enabled:     cfg.Tracing.Langfuse.Enabled,
			SecretKey:   cfg.Tracing.Langfuse.SecretKey,
			PublicKey:   cfg.Tracing.Langfuse.PublicKey,
			Host:        cfg.Tracing.Langfuse.Host,
			Environment: cfg.Tracing.Langfuse.Environment,
		}
	}

	if !tracerConfig.Enabled {
		return &LangfuseTracer{
			enabled: false,
		}, nil
	}

	if tracerConfig.SecretKey == "" || tracerConfig.PublicKey == "" {
		return nil, fmt.Errorf("langfuse: public and secret keys are required")
	}

	// langfuse-go only reads its credentials from the environment, when the client is built
	if err := exportCredentials(tracerConfig, os.Setenv); err != nil {
		return nil, fmt.Errorf("langfuse: failed to export credentials: %w", err)
	}
	client := langfuse.New(context.Background())

	return &LangfuseTracer{
		client:      client,
		enabled:     true,
		environment: tracerConfig.Environment,
	}, nil
}

// exportCredentials publishes the configured keys and host under the
// variable names langfuse-go reads. An empty host leaves LANGFUSE_HOST alone.
func exportCredentials(cfg LangfuseConfig, setenv func(key, value string) error) error {
	vars := [][2]string{
		{"LANGFUSE_PUBLIC_KEY", cfg.PublicKey},
		{"LANGFUSE_SECRET_KEY", cfg.SecretKey},
		{"LANGFUSE_HOST", cfg.Host},
	}
	for _, kv := range vars {
		if kv[1] == "" {
			continue
		}
		if err := setenv(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// Enabled reports whether traces are sent
func (t *LangfuseTracer) Enabled() bool {
	return t.enabled
}

// TraceGeneration traces a model generation
func (t *LangfuseTracer) TraceGeneration(ctx context.Context, modelName string, input interface{}, output interface{}, startTime time.Time, endTime time.Time, metadata map[string]interface{}) (string, error) {
	if !t.enabled {
		return "", nil
	}

	metadataM := t.metadata(ctx, metadata)

	generation := &model.Generation{
		Name:      fmt.Sprintf("converse-%d", startTime.UnixNano()),
		StartTime: &startTime,
		EndTime:   &endTime,
		Model:     modelName,
		Input:     input,
		Output:    output,
		Metadata:  metadataM,
	}

	var id string
	generationID, err := t.client.Generation(generation, &id)
	if err != nil {
		return "", fmt.Errorf("failed to create Langfuse generation: %w", err)
	}

	return generationID.ID, nil
}

// TraceEvent traces an event
func (t *LangfuseTracer) TraceEvent(ctx context.Context, name string, input interface{}, output interface{}, level string, metadata map[string]interface{}, parentID string) (string, error) {
	if !t.enabled {
		return "", nil
	}

	event := &model.Event{
		Name:     name,
		Input:    input,
		Output:   output,
		Level:    model.ObservationLevel(level),
		Metadata: t.metadata(ctx, metadata),
	}
	if parentID != "" {
		event.ParentObservationID = parentID
	}

	var id string
	eventID, err := t.client.Event(event, &id)
	if err != nil {
		return "", fmt.Errorf("failed to create Langfuse event: %w", err)
	}

	return eventID.ID, nil
}

// Flush flushes the Langfuse client
func (t *LangfuseTracer) Flush() error {
	if !t.enabled {
		return nil
	}

	t.client.Flush(context.Background())
	return nil
}

func (t *LangfuseTracer) metadata(ctx context.Context, metadata map[string]interface{}) model.M {
	metadataM := make(model.M, len(metadata)+2)
	for k, v := range metadata {
		metadataM[k] = v
	}
	metadataM["environment"] = t.environment
	if requestID, err := correlation.GetRequestID(ctx); err == nil {
		metadataM["request_id"] = requestID
	}
	return metadataM
}

// ExecutorLangfuseMiddleware records Converse calls as Langfuse generations.
// Other commands are forwarded without tracing.
type ExecutorLangfuseMiddleware struct {
	executor interfaces.Executor
	tracer   *LangfuseTracer
	logger   logging.Logger
}

// NewExecutorLangfuseMiddleware creates a new executor middleware with Langfuse tracing
func NewExecutorLangfuseMiddleware(executor interfaces.Executor, tracer *LangfuseTracer, logger logging.Logger) *ExecutorLangfuseMiddleware {
	if logger == nil {
		logger = logging.New()
	}
	return &ExecutorLangfuseMiddleware{
		executor: executor,
		tracer:   tracer,
		logger:   logger,
	}
}

// Send implements interfaces.Executor
func (m *ExecutorLangfuseMiddleware) Send(ctx context.Context, cmd interfaces.Command, optFns ...func(*bedrockruntime.Options)) (any, error) {
	converse, ok := cmd.(*bedrock.ConverseCommand)
	if !ok || converse == nil || converse.Input == nil || !m.tracer.Enabled() {
		return m.executor.Send(ctx, cmd, optFns...)
	}

	input := conversation(converse.Input)
	modelID := aws.ToString(converse.Input.ModelId)
	startTime := time.Now()

	result, err := m.executor.Send(ctx, cmd, optFns...)

	endTime := time.Now()

	if err != nil {
		_, traceErr := m.tracer.TraceEvent(ctx, "converse_error", input, nil, "ERROR", map[string]interface{}{
			"model_id": modelID,
			"error":    err.Error(),
		}, "")
		if traceErr != nil {
			// Log the error but don't fail the request
			m.logger.Warn(ctx, "Failed to trace error", map[string]interface{}{"error": traceErr.Error()})
		}
		return result, err
	}

	metadata := map[string]interface{}{}
	var output interface{}
	if out, ok := result.(*bedrockruntime.ConverseOutput); ok {
		if message := bedrock.OutputMessage(out); message != nil {
			output = model.M{"role": string(message.Role), "content": bedrock.JoinText(message.Content)}
		}
		metadata["stop_reason"] = string(out.StopReason)
		if out.Usage != nil {
			metadata["input_tokens"] = aws.ToInt32(out.Usage.InputTokens)
			metadata["output_tokens"] = aws.ToInt32(out.Usage.OutputTokens)
		}
	}

	if _, traceErr := m.tracer.TraceGeneration(ctx, modelID, input, output, startTime, endTime, metadata); traceErr != nil {
		m.logger.Warn(ctx, "Failed to trace generation", map[string]interface{}{"error": traceErr.Error()})
	}

	return result, nil
}

func conversation(input *bedrockruntime.ConverseInput) []model.M {
	messages := make([]model.M, 0, len(input.Messages))
	for _, message := range input.Messages {
		messages = append(messages, model.M{
			"role":    string(message.Role),
			"content": bedrock.JoinText(message.Content),
		})
	}
	return messages
}
