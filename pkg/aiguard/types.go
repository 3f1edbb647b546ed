package aiguard

import (
	"encoding/json"
	"fmt"
)

// Message is one conversation turn in the shape AI Guard evaluates.
// Content is nil when the source turn carried no content at all.
type Message struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// GuardInput holds the conversation submitted for evaluation
type GuardInput struct {
	Messages []Message `json:"messages"`
}

// GuardRequest is the body of a text guard call
type GuardRequest struct {
	Input  GuardInput `json:"input"`
	Recipe string     `json:"recipe,omitempty"`
	Debug  bool       `json:"debug,omitempty"`
}

// GuardOutput carries the rewritten conversation of a transformed result.
// Messages is kept raw so a payload that is not an array can be told apart
// from a missing one.
type GuardOutput struct {
	Messages json.RawMessage `json:"messages,omitempty"`
}

// GuardResult is the verdict part of the response envelope
type GuardResult struct {
	Blocked     bool            `json:"blocked"`
	Transformed bool            `json:"transformed"`
	Recipe      string          `json:"recipe,omitempty"`
	Output      *GuardOutput    `json:"output,omitempty"`
	Detectors   json.RawMessage `json:"detectors,omitempty"`
}

// GuardResponse is the Pangea response envelope of a text guard call
type GuardResponse struct {
	RequestID    string      `json:"request_id"`
	RequestTime  string      `json:"request_time"`
	ResponseTime string      `json:"response_time"`
	Status       string      `json:"status"`
	Summary      string      `json:"summary"`
	Result       GuardResult `json:"result"`
}

// OutputMessages decodes the rewritten conversation. ok is false when the
// output is absent, null, or not a JSON array of messages.
func (r GuardResult) OutputMessages() (messages []Message, ok bool) {
	if r.Output == nil || len(r.Output.Messages) == 0 {
		return nil, false
	}
	if err := json.Unmarshal(r.Output.Messages, &messages); err != nil {
		return nil, false
	}
	// "null" unmarshals without error into a nil slice
	if messages == nil {
		return nil, false
	}
	return messages, true
}

// APIError is returned when AI Guard answers with a non-success envelope
type APIError struct {
	StatusCode int
	Status     string
	Summary    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai guard: %s (http %d, request %s): %s", e.Status, e.StatusCode, e.RequestID, e.Summary)
}

// Text returns a pointer to s, for building Message values
func Text(s string) *string {
	return &s
}
