package guard

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
)

func TestFlatten(t *testing.T) {
	messages := []types.Message{
		userTurn("first", "second"),
		{Role: types.ConversationRoleAssistant, Content: []types.ContentBlock{
			&types.ContentBlockMemberText{Value: "text"},
			&types.ContentBlockMemberImage{Value: types.ImageBlock{Format: types.ImageFormatJpeg}},
		}},
		{Role: types.ConversationRoleUser},
	}

	flattened := Flatten(messages)
	require.Len(t, flattened, 3)
	assert.Equal(t, msg("user", "first\nsecond"), flattened[0])
	assert.Equal(t, msg("assistant", "text"), flattened[1])
	assert.Equal(t, "user", flattened[2].Role)
	assert.Nil(t, flattened[2].Content)
}

func TestFlattenOnlyNonTextParts(t *testing.T) {
	flattened := Flatten([]types.Message{{
		Role: types.ConversationRoleUser,
		Content: []types.ContentBlock{
			&types.ContentBlockMemberImage{Value: types.ImageBlock{Format: types.ImageFormatPng}},
		},
	}})
	require.Len(t, flattened, 1)
	require.NotNil(t, flattened[0].Content)
	assert.Equal(t, "", *flattened[0].Content)
}

func TestUnflatten(t *testing.T) {
	structured := Unflatten([]aiguard.Message{
		msg("user", "hello"),
		{Role: "assistant"},
	})

	require.Len(t, structured, 2)
	assert.Equal(t, types.ConversationRoleUser, structured[0].Role)
	require.Len(t, structured[0].Content, 1)
	assert.Equal(t, "hello", structured[0].Content[0].(*types.ContentBlockMemberText).Value)

	assert.Equal(t, types.ConversationRoleAssistant, structured[1].Role)
	require.Len(t, structured[1].Content, 1)
	assert.Equal(t, "", structured[1].Content[0].(*types.ContentBlockMemberText).Value)
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	messages := []types.Message{
		userTurn("hello"),
		{Role: types.ConversationRoleAssistant, Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "hi"}}},
		userTurn("multi\nline"),
	}

	assert.Equal(t, messages, Unflatten(Flatten(messages)))
}

func TestAppendAssistantTurn(t *testing.T) {
	prompt := make([]aiguard.Message, 1, 4)
	prompt[0] = msg("user", "q")

	withAnswer := AppendAssistantTurn(prompt, "a\nb")
	require.Len(t, withAnswer, 2)
	assert.Equal(t, msg("assistant", "a\nb"), withAnswer[1])

	// The input keeps its length and its spare capacity is not written to
	assert.Len(t, prompt, 1)
	other := append(prompt, msg("user", "x"))
	assert.Equal(t, msg("assistant", "a\nb"), withAnswer[1])
	assert.Equal(t, msg("user", "x"), other[1])
}

func TestClassify(t *testing.T) {
	assert.Equal(t, VerdictClean, Classify(nil, false).Kind)
	assert.Equal(t, VerdictClean, Classify(clean(), true).Kind)

	both := transformedRaw(`[{"role":"user","content":"x"}]`)
	both.Result.Blocked = true
	assert.Equal(t, VerdictBlocked, Classify(both, false).Kind)

	verdict := Classify(transformedRaw(`[{"role":"user","content":"x"}]`), true)
	assert.Equal(t, VerdictTransformed, verdict.Kind)
	assert.Equal(t, []aiguard.Message{msg("user", "x")}, verdict.Messages)

	assert.Equal(t, VerdictTransformed, Classify(transformedRaw(`[]`), false).Kind)
	assert.Equal(t, VerdictUnusableTransform, Classify(transformedRaw(`[]`), true).Kind)
	assert.Equal(t, VerdictUnusableTransform, Classify(transformedRaw(`{}`), false).Kind)

	assert.Equal(t, "unusable_transform", VerdictUnusableTransform.String())
}
