package bedrock

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// TextSeparator joins the text parts of one message
const TextSeparator = "\n"

// JoinText concatenates the text blocks of content in order, separated by
// TextSeparator. Blocks of any other kind are skipped.
func JoinText(content []types.ContentBlock) string {
	parts := make([]string, 0, len(content))
	for _, block := range content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	return strings.Join(parts, TextSeparator)
}

// TextBlock wraps s as a single text content block
func TextBlock(s string) types.ContentBlock {
	return &types.ContentBlockMemberText{Value: s}
}

// OutputMessage returns the message of a Converse result, or nil when the
// result carries none.
func OutputMessage(out *bedrockruntime.ConverseOutput) *types.Message {
	if out == nil {
		return nil
	}
	member, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || member == nil {
		return nil
	}
	return &member.Value
}
