package nodes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/loop"
	statex "github.com/tanpawarit/Chative-Conversational-Commerce/agent/state"
)

var (
	ErrInvalidMessage = fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	ErrInvalidSession = fmt.Errorf("%w: session id is empty", contractx.ErrValidation)
	ErrEmptyReply     = errors.New("agent produced an empty reply")
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphOutput struct {
	Reply     string
	Rounds    int
	ToolCalls int
	Truncated bool
}

// GraphState is threaded through every node of one turn.
type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	Session *statex.SessionState
	Outcome loop.Outcome
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}
