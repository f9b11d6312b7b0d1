package nodes

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-Conversational-Commerce/agent/state"
)

// SaveState replaces the session history with the turn's full history.
func SaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.Session.Messages = in.Outcome.Messages
	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return in, nil
}
