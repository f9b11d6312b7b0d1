package nodes

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/loop"
)

type PromptRenderer interface {
	Render(ctx context.Context, sessionID string) (string, error)
}

type TurnRunner interface {
	Run(ctx context.Context, in loop.Input) (loop.Outcome, error)
}

func RunAgentLoop(ctx context.Context, in *GraphState, prompts PromptRenderer, runner TurnRunner) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	system, err := prompts.Render(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	out, err := runner.Run(ctx, loop.Input{
		SessionID:    in.SessionID,
		History:      in.Session.Messages,
		SystemPrompt: system,
		UserText:     in.Text,
	})
	if err != nil {
		return nil, err
	}
	in.Outcome = out
	return in, nil
}
