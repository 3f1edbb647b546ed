// Package guardrails is an in-process interfaces.Oracle that evaluates
// conversations with local rules and answers in the AI Guard response shape.
// It is a development stand-in for running without network access, not a
// replacement for AI Guard detection.
package guardrails

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/interfaces"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/logging"
)

// Action is what happens when a rule triggers
type Action string

const (
	// BlockAction blocks the whole conversation
	BlockAction Action = "block"
	// RedactAction replaces the offending text and reports a transform
	RedactAction Action = "redact"
)

// Rule checks the text of one conversation turn
type Rule interface {
	// Name identifies the rule in the detectors report
	Name() string
	// Check reports whether the rule triggered and the text with any redaction applied
	Check(ctx context.Context, text string) (bool, string, error)
	// Action returns the action to take when the rule triggers
	Action() Action
}

// Oracle evaluates conversations against the rules registered for the
// request's recipe. Recipes without rules of their own use the default rules.
type Oracle struct {
	defaultRules []Rule
	recipes      map[string][]Rule
	logger       logging.Logger
}

var _ interfaces.Oracle = (*Oracle)(nil)

// Option represents an option for configuring the oracle
type Option func(*Oracle)

// WithRecipe registers the rules applied under recipe
func WithRecipe(recipe string, rules ...Rule) Option {
	return func(o *Oracle) {
		o.recipes[recipe] = append(o.recipes[recipe], rules...)
	}
}

// WithLogger sets the logger for the oracle
func WithLogger(logger logging.Logger) Option {
	return func(o *Oracle) {
		o.logger = logger
	}
}

// NewOracle creates an oracle applying defaultRules to recipes that have none registered
func NewOracle(defaultRules []Rule, options ...Option) *Oracle {
	o := &Oracle{
		defaultRules: defaultRules,
		recipes:      make(map[string][]Rule),
		logger:       logging.New(),
	}

	for _, option := range options {
		option(o)
	}

	return o
}

type detection struct {
	Rule   string `json:"rule"`
	Action Action `json:"action"`
	Turn   int    `json:"turn"`
}

// Guard implements interfaces.Oracle
func (o *Oracle) Guard(ctx context.Context, req *aiguard.GuardRequest) (*aiguard.GuardResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("guardrails: nil request")
	}
	start := time.Now().UTC()

	rules, ok := o.recipes[req.Recipe]
	if !ok {
		rules = o.defaultRules
	}

	messages := make([]aiguard.Message, len(req.Input.Messages))
	copy(messages, req.Input.Messages)

	var detections []detection
	blocked, transformed := false, false

	for i, message := range messages {
		if message.Content == nil {
			continue
		}
		text := *message.Content
		for _, rule := range rules {
			triggered, modified, err := rule.Check(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("guardrails: rule %s: %w", rule.Name(), err)
			}
			if !triggered {
				continue
			}
			detections = append(detections, detection{Rule: rule.Name(), Action: rule.Action(), Turn: i})
			switch rule.Action() {
			case BlockAction:
				blocked = true
			case RedactAction:
				transformed = true
				text = modified
			}
		}
		messages[i].Content = aiguard.Text(text)
	}

	result := aiguard.GuardResult{
		Blocked:     blocked,
		Transformed: transformed && !blocked,
		Recipe:      req.Recipe,
	}
	if result.Transformed {
		raw, err := json.Marshal(messages)
		if err != nil {
			return nil, fmt.Errorf("guardrails: failed to encode output: %w", err)
		}
		result.Output = &aiguard.GuardOutput{Messages: raw}
	}
	if len(detections) > 0 {
		raw, err := json.Marshal(detections)
		if err != nil {
			return nil, fmt.Errorf("guardrails: failed to encode detectors: %w", err)
		}
		result.Detectors = raw
	}

	o.logger.Debug(ctx, "Local guardrails evaluated", map[string]interface{}{
		"recipe":      req.Recipe,
		"rules":       len(rules),
		"detections":  len(detections),
		"blocked":     result.Blocked,
		"transformed": result.Transformed,
	})

	return &aiguard.GuardResponse{
		RequestID:    "local_" + uuid.NewString(),
		RequestTime:  start.Format(time.RFC3339Nano),
		ResponseTime: time.Now().UTC().Format(time.RFC3339Nano),
		Status:       "Success",
		Summary:      fmt.Sprintf("%d rule(s) triggered", len(detections)),
		Result:       result,
	}, nil
}
