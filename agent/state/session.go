package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
)

// SessionState is one conversation: its ordered message history and the time
// of the last completed turn. The system prompt is never stored; it is
// rendered fresh for every turn.
type SessionState struct {
	SessionID    string            `json:"session_id"`
	Messages     []*schema.Message `json:"messages"`
	LastActivity time.Time         `json:"last_activity"`
	Version      int               `json:"version"`
}

func NewSessionState(sessionID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:    sessionID,
		Messages:     make([]*schema.Message, 0, 8),
		LastActivity: now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.LastActivity = now.UTC()
}

// Idle reports whether the session has been untouched for longer than retention.
func (s *SessionState) Idle(now time.Time, retention time.Duration) bool {
	return now.Sub(s.LastActivity) > retention
}

// Clone copies the history slice. Messages are shared; they are not mutated
// once appended.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append(make([]*schema.Message, 0, len(s.Messages)), s.Messages...)
	return &cp
}

func (s *SessionState) Validate() error {
	if s == nil {
		return ErrNilSessionState
	}
	if s.SessionID == "" {
		return ErrInvalidSession
	}
	for i, m := range s.Messages {
		if m == nil {
			return fmt.Errorf("%w: message %d is nil", errCorruptHistory, i)
		}
		if m.Role == schema.System {
			return fmt.Errorf("%w: message %d is a system message", errCorruptHistory, i)
		}
	}
	return nil
}

var errCorruptHistory = errors.New("corrupt session history")
