package tracing

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/correlation"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
)

// OTelTracer implements tracing using OpenTelemetry
type OTelTracer struct {
	tracer      trace.Tracer
	provider    *sdktrace.TracerProvider
	enabled     bool
	serviceName string
}

// OTelConfig contains configuration for OpenTelemetry
type OTelConfig struct {
	// Enabled determines whether OpenTelemetry tracing is enabled
	Enabled bool

	// ServiceName is the name of the service
	ServiceName string

	// CollectorEndpoint is the endpoint of the OpenTelemetry collector
	CollectorEndpoint string
}

// NewOTelTracer creates a new OpenTelemetry tracer
func NewOTelTracer(config OTelConfig) (*OTelTracer, error) {
	if !config.Enabled {
		return &OTelTracer{
			enabled: false,
		}, nil
	}

	// Create exporter
	ctx := context.Background()
	exporter, err := otlptrace.New(
		ctx,
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(config.CollectorEndpoint),
			otlptracegrpc.WithInsecure(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// Create resource
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return NewOTelTracerFromProvider(tp, config.ServiceName), nil
}

// NewOTelTracerFromProvider creates an enabled tracer on an existing provider
func NewOTelTracerFromProvider(tp *sdktrace.TracerProvider, serviceName string) *OTelTracer {
	return &OTelTracer{
		tracer:      tp.Tracer(serviceName),
		provider:    tp,
		enabled:     true,
		serviceName: serviceName,
	}
}

// StartSpan starts a new span
func (t *OTelTracer) StartSpan(ctx context.Context, name string, attributes map[string]string) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, trace.SpanFromContext(ctx)
	}

	attrs := make([]attribute.KeyValue, 0, len(attributes)+1)
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	if requestID, err := correlation.GetRequestID(ctx); err == nil {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}

	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan ends a span
func (t *OTelTracer) EndSpan(span trace.Span, err error) {
	if !t.enabled {
		return
	}

	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// Shutdown flushes pending spans and stops the provider
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	if !t.enabled || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ExecutorOTelMiddleware wraps an executor with OpenTelemetry tracing
type ExecutorOTelMiddleware struct {
	executor interfaces.Executor
	tracer   *OTelTracer
}

// NewExecutorOTelMiddleware creates a new ExecutorOTelMiddleware
func NewExecutorOTelMiddleware(executor interfaces.Executor, tracer *OTelTracer) *ExecutorOTelMiddleware {
	return &ExecutorOTelMiddleware{
		executor: executor,
		tracer:   tracer,
	}
}

// Send implements interfaces.Executor
func (m *ExecutorOTelMiddleware) Send(ctx context.Context, cmd interfaces.Command, optFns ...func(*bedrockruntime.Options)) (any, error) {
	name := "<nil>"
	if cmd != nil {
		name = cmd.Name()
	}
	attributes := map[string]string{
		"bedrock.operation": name,
	}
	if converse, ok := cmd.(*bedrock.ConverseCommand); ok && converse != nil && converse.Input != nil {
		attributes["bedrock.model_id"] = aws.ToString(converse.Input.ModelId)
		attributes["messages.count"] = fmt.Sprintf("%d", len(converse.Input.Messages))
	}

	ctx, span := m.tracer.StartSpan(ctx, "bedrock."+name, attributes)

	result, err := m.executor.Send(ctx, cmd, optFns...)

	if err == nil {
		if out, ok := result.(*bedrockruntime.ConverseOutput); ok && out != nil {
			span.SetAttributes(attribute.String("bedrock.stop_reason", string(out.StopReason)))
			if out.Usage != nil {
				span.SetAttributes(
					attribute.Int("usage.input_tokens", int(aws.ToInt32(out.Usage.InputTokens))),
					attribute.Int("usage.output_tokens", int(aws.ToInt32(out.Usage.OutputTokens))),
				)
			}
		}
	}
	m.tracer.EndSpan(span, err)

	return result, err
}

// OracleOTelMiddleware wraps an AI Guard oracle with OpenTelemetry tracing
type OracleOTelMiddleware struct {
	oracle interfaces.Oracle
	tracer *OTelTracer
}

// NewOracleOTelMiddleware creates a new OracleOTelMiddleware
func NewOracleOTelMiddleware(oracle interfaces.Oracle, tracer *OTelTracer) *OracleOTelMiddleware {
	return &OracleOTelMiddleware{
		oracle: oracle,
		tracer: tracer,
	}
}

// Guard implements interfaces.Oracle
func (m *OracleOTelMiddleware) Guard(ctx context.Context, req *aiguard.GuardRequest) (*aiguard.GuardResponse, error) {
	attributes := map[string]string{}
	if req != nil {
		attributes["aiguard.recipe"] = req.Recipe
		attributes["messages.count"] = fmt.Sprintf("%d", len(req.Input.Messages))
	}

	ctx, span := m.tracer.StartSpan(ctx, "aiguard.guard", attributes)

	resp, err := m.oracle.Guard(ctx, req)

	if err == nil && resp != nil {
		span.SetAttributes(
			attribute.Bool("aiguard.blocked", resp.Result.Blocked),
			attribute.Bool("aiguard.transformed", resp.Result.Transformed),
			attribute.String("aiguard.request_id", resp.RequestID),
		)
	}
	m.tracer.EndSpan(span, err)

	return resp, err
}
