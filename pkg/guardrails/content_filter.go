package guardrails

import (
	"context"
	"regexp"
	"strings"
)

// ContentFilter implements a rule that matches a list of words
type ContentFilter struct {
	blockedWords []string
	action       Action
	regex        *regexp.Regexp
}

// NewContentFilter creates a new content filter rule
func NewContentFilter(blockedWords []string, action Action) *ContentFilter {
	quoted := make([]string, len(blockedWords))
	for i, word := range blockedWords {
		quoted[i] = regexp.QuoteMeta(word)
	}
	regex := regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)

	return &ContentFilter{
		blockedWords: blockedWords,
		action:       action,
		regex:        regex,
	}
}

// Name implements Rule
func (c *ContentFilter) Name() string {
	return "content_filter"
}

// Check implements Rule
func (c *ContentFilter) Check(ctx context.Context, text string) (bool, string, error) {
	if len(c.blockedWords) == 0 {
		return false, text, nil
	}
	if c.regex.MatchString(text) {
		modified := c.regex.ReplaceAllString(text, "****")
		return true, modified, nil
	}
	return false, text, nil
}

// Action returns the action to take when the rule triggers
func (c *ContentFilter) Action() Action {
	return c.action
}
