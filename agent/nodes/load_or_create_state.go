package nodes

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-Conversational-Commerce/agent/state"
)

func LoadOrCreateState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
		in.Session = st
	case errors.Is(err, statex.ErrStateNotFound):
		in.Session = statex.NewSessionState(in.SessionID, in.Now)
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}
	return in, nil
}
