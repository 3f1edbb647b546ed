package guard

import (
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
)

// VerdictKind is the outcome of one guard call
type VerdictKind int

const (
	// VerdictClean leaves the content as it is
	VerdictClean VerdictKind = iota
	// VerdictTransformed replaces the content with Verdict.Messages
	VerdictTransformed
	// VerdictBlocked aborts the call
	VerdictBlocked
	// VerdictUnusableTransform means a rewrite was signaled without a usable
	// payload. The content is kept.
	VerdictUnusableTransform
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictClean:
		return "clean"
	case VerdictTransformed:
		return "transformed"
	case VerdictBlocked:
		return "blocked"
	case VerdictUnusableTransform:
		return "unusable_transform"
	default:
		return "unknown"
	}
}

// Verdict is a guard response reduced to what the mediator acts on
type Verdict struct {
	Kind     VerdictKind
	Messages []aiguard.Message
}

// Classify reduces resp to a Verdict. Blocking wins over transforming. With
// requireMessages set an empty rewritten conversation is unusable.
func Classify(resp *aiguard.GuardResponse, requireMessages bool) Verdict {
	if resp == nil {
		return Verdict{Kind: VerdictClean}
	}

	result := resp.Result
	switch {
	case result.Blocked:
		return Verdict{Kind: VerdictBlocked}
	case !result.Transformed:
		return Verdict{Kind: VerdictClean}
	}

	messages, ok := result.OutputMessages()
	if !ok || (requireMessages && len(messages) == 0) {
		return Verdict{Kind: VerdictUnusableTransform}
	}
	return Verdict{Kind: VerdictTransformed, Messages: messages}
}
