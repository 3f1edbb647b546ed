package guard

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/aiguard"
	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/bedrock"
)

// guardInput checks the flattened prompt and rewrites input.Messages when
// AI Guard transformed it.
func (c *Client) guardInput(ctx context.Context, input *bedrockruntime.ConverseInput, prompt []aiguard.Message) error {
	resp, err := c.oracle.Guard(ctx, &aiguard.GuardRequest{
		Input:  aiguard.GuardInput{Messages: prompt},
		Recipe: c.inputRecipe,
	})
	if err != nil {
		return err
	}

	verdict := Classify(resp, false)
	c.logVerdict(ctx, StageInput, verdict)

	switch verdict.Kind {
	case VerdictBlocked:
		return &BlockedError{Stage: StageInput}
	case VerdictTransformed:
		input.Messages = Unflatten(verdict.Messages)
	}
	return nil
}

// guardOutput checks the model response as the last assistant turn of the
// original prompt and rewrites out when AI Guard transformed it.
func (c *Client) guardOutput(ctx context.Context, out *bedrockruntime.ConverseOutput, prompt []aiguard.Message) error {
	message := bedrock.OutputMessage(out)
	if message == nil || len(message.Content) == 0 {
		return nil
	}

	// AI Guard keeps only the last message per role, so the response must
	// go in as a single assistant message.
	resp, err := c.oracle.Guard(ctx, &aiguard.GuardRequest{
		Input:  aiguard.GuardInput{Messages: AppendAssistantTurn(prompt, bedrock.JoinText(message.Content))},
		Recipe: c.outputRecipe,
	})
	if err != nil {
		return err
	}

	verdict := Classify(resp, true)
	c.logVerdict(ctx, StageOutput, verdict)

	switch verdict.Kind {
	case VerdictBlocked:
		return &BlockedError{Stage: StageOutput}
	case VerdictTransformed:
		last := verdict.Messages[len(verdict.Messages)-1]
		message.Content = []types.ContentBlock{bedrock.TextBlock(textOf(last))}
	}
	return nil
}

func (c *Client) logVerdict(ctx context.Context, stage Stage, verdict Verdict) {
	fields := map[string]interface{}{
		"stage":   string(stage),
		"verdict": verdict.Kind.String(),
	}
	if verdict.Kind == VerdictTransformed {
		fields["messages"] = len(verdict.Messages)
	}
	c.logger.Debug(ctx, "AI Guard verdict", fields)
}
