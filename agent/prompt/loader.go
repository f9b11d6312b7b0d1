package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
)

//go:embed template/system.txt
var systemRaw string

// PromptSet holds the system prompt template.
type PromptSet struct {
	System string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{System: strings.TrimSpace(systemRaw)}
}

// SystemRenderer fills the system prompt for one conversation.
type SystemRenderer struct {
	tpl einoprompt.ChatTemplate
}

func NewSystemRenderer(set PromptSet) (*SystemRenderer, error) {
	if strings.TrimSpace(set.System) == "" {
		return nil, fmt.Errorf("%w: system prompt", contractx.ErrPromptMissing)
	}
	return &SystemRenderer{
		tpl: einoprompt.FromMessages(schema.FString, schema.SystemMessage(set.System)),
	}, nil
}

func (r *SystemRenderer) Render(ctx context.Context, sessionID string) (string, error) {
	msgs, err := r.tpl.Format(ctx, map[string]any{"session_id": sessionID})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%w: system prompt rendered empty", contractx.ErrPromptMissing)
	}
	return msgs[0].Content, nil
}
