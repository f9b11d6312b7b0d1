package nodes

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Outcome.Reply)
	// A capped turn may legitimately end without text.
	if reply == "" && !in.Outcome.Truncated {
		return GraphOutput{}, ErrEmptyReply
	}
	return GraphOutput{
		Reply:     reply,
		Rounds:    in.Outcome.Rounds,
		ToolCalls: in.Outcome.ToolCalls,
		Truncated: in.Outcome.Truncated,
	}, nil
}
