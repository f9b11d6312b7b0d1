// Package loop runs one conversational turn: the model is called, any tool
// calls it makes are dispatched in order, and the results are fed back until
// the model answers with plain text or the round cap is reached.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
)

const DefaultMaxRounds = 10

type Phase string

const (
	PhaseAwaitingModel    Phase = "awaiting_model"
	PhaseDispatchingTools Phase = "dispatching_tools"
	PhaseDone             Phase = "done"
)

type Input struct {
	SessionID    string
	History      []*schema.Message
	SystemPrompt string
	UserText     string
}

// Outcome is the result of a completed turn. Messages is the full history
// after the turn, without the system prompt.
type Outcome struct {
	Reply     string
	Messages  []*schema.Message
	Rounds    int
	ToolCalls int
	// Truncated reports that the model still wanted tools after the last
	// allowed round. Reply then holds whatever text came with that response.
	Truncated bool
}

type Runner struct {
	model     contractx.ChatModel
	tools     contractx.ToolGateway
	maxRounds int
	observe   func(Phase, int)
}

type Option func(*Runner)

func WithMaxRounds(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxRounds = n
		}
	}
}

// WithPhaseObserver is called on every phase transition with the number of
// completed dispatch rounds.
func WithPhaseObserver(fn func(phase Phase, rounds int)) Option {
	return func(r *Runner) { r.observe = fn }
}

// New expects model to already have the gateway's tools bound.
func New(model contractx.ChatModel, tools contractx.ToolGateway, opts ...Option) (*Runner, error) {
	if model == nil {
		return nil, errors.New("loop: chat model is required")
	}
	if tools == nil {
		return nil, errors.New("loop: tool gateway is required")
	}
	r := &Runner{model: model, tools: tools, maxRounds: DefaultMaxRounds}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *Runner) Run(ctx context.Context, in Input) (Outcome, error) {
	logger := log.Ctx(ctx).With().Str("session_id", in.SessionID).Logger()

	history := make([]*schema.Message, 0, len(in.History)+4)
	history = append(history, in.History...)
	history = append(history, schema.UserMessage(in.UserText))

	out := Outcome{}
	for {
		r.transition(PhaseAwaitingModel, out.Rounds)
		resp, err := r.model.Generate(ctx, r.conversation(in.SystemPrompt, history))
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: round %d: %w", contractx.ErrUpstream, out.Rounds, err)
		}
		if resp == nil {
			return Outcome{}, fmt.Errorf("%w: round %d: empty model response", contractx.ErrUpstream, out.Rounds)
		}

		if len(resp.ToolCalls) == 0 {
			history = append(history, schema.AssistantMessage(resp.Content, nil))
			out.Reply = strings.TrimSpace(resp.Content)
			out.Messages = history
			r.transition(PhaseDone, out.Rounds)
			return out, nil
		}

		if out.Rounds >= r.maxRounds {
			// Unanswered tool calls cannot be replayed into the next turn.
			history = append(history, schema.AssistantMessage(resp.Content, nil))
			out.Reply = strings.TrimSpace(resp.Content)
			out.Messages = history
			out.Truncated = true
			logger.Warn().Int("rounds", out.Rounds).Int("pending_calls", len(resp.ToolCalls)).Msg("agent loop hit round cap")
			r.transition(PhaseDone, out.Rounds)
			return out, nil
		}

		r.transition(PhaseDispatchingTools, out.Rounds)
		out.Rounds++
		history = append(history, schema.AssistantMessage(resp.Content, resp.ToolCalls))
		history = append(history, r.dispatch(ctx, in.SessionID, resp.ToolCalls)...)
		out.ToolCalls += len(resp.ToolCalls)
		logger.Debug().Int("round", out.Rounds).Int("calls", len(resp.ToolCalls)).Msg("tool round dispatched")
	}
}

// dispatch executes calls in order and returns one tool message per call.
func (r *Runner) dispatch(ctx context.Context, sessionID string, calls []schema.ToolCall) []*schema.Message {
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		reqs = append(reqs, contractx.ToolRequest{
			CallID:    call.ID,
			Tool:      strings.TrimSpace(call.Function.Name),
			Arguments: call.Function.Arguments,
		})
	}

	results := r.tools.Execute(ctx, sessionID, reqs)
	msgs := make([]*schema.Message, 0, len(calls))
	for i, call := range calls {
		var res contractx.ToolResult
		if i < len(results) {
			res = results[i]
		} else {
			res = contractx.ToolResult{Tool: reqs[i].Tool, Error: "sin resultado"}
		}
		msgs = append(msgs, schema.ToolMessage(encodeResult(res), call.ID))
	}
	return msgs
}

func (r *Runner) conversation(system string, history []*schema.Message) []*schema.Message {
	if strings.TrimSpace(system) == "" {
		return history
	}
	out := make([]*schema.Message, 0, len(history)+1)
	out = append(out, schema.SystemMessage(system))
	return append(out, history...)
}

func (r *Runner) transition(p Phase, rounds int) {
	if r.observe != nil {
		r.observe(p, rounds)
	}
}

// encodeResult renders a tool result as the JSON payload the model reads.
func encodeResult(res contractx.ToolResult) string {
	var payload any = map[string]any{"result": res.Result}
	if res.Failed() {
		payload = map[string]any{"error": res.Error}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"error": fmt.Sprintf("resultado no serializable: %v", err)})
	}
	return string(b)
}
