package guardrails

import (
	"context"
	"fmt"
	"strings"
)

// TokenCounter is an interface for counting tokens in text
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// SimpleTokenCounter implements a simple token counter
type SimpleTokenCounter struct{}

// CountTokens counts tokens in text (simple approximation)
func (s *SimpleTokenCounter) CountTokens(text string) (int, error) {
	// Simple approximation: count words and punctuation
	return len(strings.Fields(text)), nil
}

// TokenLimit implements a rule that limits the number of tokens of a turn.
// With RedactAction the turn is truncated.
type TokenLimit struct {
	maxTokens    int
	counter      TokenCounter
	action       Action
	truncateMode string // "start", "end", or "middle"
}

// NewTokenLimit creates a new token limit rule
func NewTokenLimit(maxTokens int, counter TokenCounter, action Action, truncateMode string) *TokenLimit {
	if counter == nil {
		counter = &SimpleTokenCounter{}
	}

	if truncateMode == "" {
		truncateMode = "end"
	}

	return &TokenLimit{
		maxTokens:    maxTokens,
		counter:      counter,
		action:       action,
		truncateMode: truncateMode,
	}
}

// Name implements Rule
func (t *TokenLimit) Name() string {
	return "token_limit"
}

// Check implements Rule
func (t *TokenLimit) Check(ctx context.Context, text string) (bool, string, error) {
	tokens, err := t.counter.CountTokens(text)
	if err != nil {
		return false, text, fmt.Errorf("failed to count tokens: %w", err)
	}

	if tokens <= t.maxTokens {
		return false, text, nil
	}

	return true, t.truncate(text), nil
}

// Action returns the action to take when the rule triggers
func (t *TokenLimit) Action() Action {
	return t.action
}

// truncate truncates text to the maximum token limit
func (t *TokenLimit) truncate(text string) string {
	words := strings.Fields(text)

	if len(words) <= t.maxTokens {
		return text
	}

	switch t.truncateMode {
	case "start":
		return strings.Join(words[len(words)-t.maxTokens:], " ")
	case "middle":
		half := t.maxTokens / 2
		return strings.Join(words[:half], " ") + " ... " + strings.Join(words[len(words)-half:], " ")
	case "end":
		fallthrough
	default:
		return strings.Join(words[:t.maxTokens], " ") + " ..."
	}
}
