package guardrails

import (
	"context"
	"regexp"
)

type piiPattern struct {
	name    string
	pattern *regexp.Regexp
}

// PiiFilter implements a rule that finds personally identifiable information
type PiiFilter struct {
	patterns []piiPattern
	action   Action
}

// NewPiiFilter creates a new PII filter rule
func NewPiiFilter(action Action) *PiiFilter {
	// credit cards before phone numbers, a card number contains a phone-shaped run
	patterns := []piiPattern{
		{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{"credit_card", regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
		{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{"phone", regexp.MustCompile(`\b(\+\d{1,2}\s)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
		{"ip_address", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
	}

	return &PiiFilter{
		patterns: patterns,
		action:   action,
	}
}

// Name implements Rule
func (p *PiiFilter) Name() string {
	return "pii_filter"
}

// Check implements Rule
func (p *PiiFilter) Check(ctx context.Context, text string) (bool, string, error) {
	modified := text
	triggered := false

	for _, pii := range p.patterns {
		if pii.pattern.MatchString(modified) {
			triggered = true
			modified = pii.pattern.ReplaceAllString(modified, "<"+pii.name+">")
		}
	}

	return triggered, modified, nil
}

// Action returns the action to take when the rule triggers
func (p *PiiFilter) Action() Action {
	return p.action
}
