package guard

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
)

// Flatten projects Bedrock messages into the role + text shape AI Guard reads.
// Text blocks of a message are joined with a newline; other blocks are dropped.
// A message without any content block gets a nil Content.
func Flatten(messages []types.Message) []aiguard.Message {
	flattened := make([]aiguard.Message, 0, len(messages))
	for _, message := range messages {
		m := aiguard.Message{Role: string(message.Role)}
		if len(message.Content) > 0 {
			m.Content = aiguard.Text(bedrock.JoinText(message.Content))
		}
		flattened = append(flattened, m)
	}
	return flattened
}

// Unflatten turns AI Guard messages back into Bedrock messages holding exactly
// one text block each.
func Unflatten(messages []aiguard.Message) []types.Message {
	structured := make([]types.Message, 0, len(messages))
	for _, message := range messages {
		structured = append(structured, types.Message{
			Role:    types.ConversationRole(message.Role),
			Content: []types.ContentBlock{bedrock.TextBlock(textOf(message))},
		})
	}
	return structured
}

// AppendAssistantTurn returns a copy of messages with an assistant message
// holding text appended. messages itself is not modified.
func AppendAssistantTurn(messages []aiguard.Message, text string) []aiguard.Message {
	out := make([]aiguard.Message, len(messages), len(messages)+1)
	copy(out, messages)
	return append(out, aiguard.Message{
		Role:    string(types.ConversationRoleAssistant),
		Content: aiguard.Text(text),
	})
}

func textOf(message aiguard.Message) string {
	if message.Content == nil {
		return ""
	}
	return *message.Content
}
