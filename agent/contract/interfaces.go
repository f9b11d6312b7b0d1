package contract

import (
	"context"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel is the single suspension point of an agent round.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

type ToolGateway interface {
	Infos() []*schema.ToolInfo
	// Execute runs reqs in order and returns one result per request. Failures
	// are reported through ToolResult.Error, never as a Go error.
	Execute(ctx context.Context, sessionID string, reqs []ToolRequest) []ToolResult
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, sessionID string, text string) (string, error)
}
