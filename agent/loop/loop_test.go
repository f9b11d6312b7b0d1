package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
)

type scriptedModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	fallback  *schema.Message
	err       error
	inputs    [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return m.fallback, nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

type fakeGateway struct {
	mu      sync.Mutex
	batches [][]contractx.ToolRequest
}

func (g *fakeGateway) Infos() []*schema.ToolInfo { return nil }

func (g *fakeGateway) Execute(_ context.Context, _ string, reqs []contractx.ToolRequest) []contractx.ToolResult {
	g.mu.Lock()
	g.batches = append(g.batches, reqs)
	g.mu.Unlock()

	out := make([]contractx.ToolResult, 0, len(reqs))
	for _, r := range reqs {
		if r.Tool == "broken" {
			out = append(out, contractx.ToolResult{Tool: r.Tool, Error: "boom"})
			continue
		}
		out = append(out, contractx.ToolResult{Tool: r.Tool, Result: map[string]string{"echo": r.Arguments}})
	}
	return out
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func TestRun_PlainReply(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{responses: []*schema.Message{schema.AssistantMessage("¡Hola!", nil)}}
	r, err := New(model, &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	prior := []*schema.Message{schema.UserMessage("antes"), schema.AssistantMessage("ok", nil)}
	out, err := r.Run(context.Background(), Input{SessionID: "s1", History: prior, SystemPrompt: "sys", UserText: "hola"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Reply != "¡Hola!" || out.Rounds != 0 || out.Truncated {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(out.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(out.Messages))
	}
	if out.Messages[2].Role != schema.User || out.Messages[2].Content != "hola" {
		t.Fatalf("user message not appended: %+v", out.Messages[2])
	}
	if got := model.inputs[0][0]; got.Role != schema.System || got.Content != "sys" {
		t.Fatalf("system prompt not first: %+v", got)
	}
	for _, m := range out.Messages {
		if m.Role == schema.System {
			t.Fatal("system prompt leaked into history")
		}
	}
	if len(prior) != 2 {
		t.Fatal("input history mutated")
	}
}

func TestRun_DispatchesAllCallsBeforeNextModelCall(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c1", "searchProducts", `{"query":"roja"}`),
			toolCall("c2", "broken", `{}`),
		}),
		schema.AssistantMessage("Listo", nil),
	}}
	gw := &fakeGateway{}
	var phases []Phase
	r, err := New(model, gw, WithPhaseObserver(func(p Phase, _ int) { phases = append(phases, p) }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := r.Run(context.Background(), Input{SessionID: "s1", UserText: "camisetas"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Reply != "Listo" || out.Rounds != 1 || out.ToolCalls != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(gw.batches) != 1 || len(gw.batches[0]) != 2 {
		t.Fatalf("batches = %+v, want one batch of two", gw.batches)
	}
	if gw.batches[0][0].CallID != "c1" || gw.batches[0][1].Tool != "broken" {
		t.Fatalf("calls out of order: %+v", gw.batches[0])
	}

	second := model.inputs[1]
	tail := second[len(second)-2:]
	if tail[0].Role != schema.Tool || tail[0].ToolCallID != "c1" || tail[1].ToolCallID != "c2" {
		t.Fatalf("tool results not appended in order: %+v", tail)
	}
	var failed map[string]any
	if err := json.Unmarshal([]byte(tail[1].Content), &failed); err != nil {
		t.Fatalf("tool payload is not json: %v", err)
	}
	if failed["error"] != "boom" {
		t.Fatalf("error payload = %v", failed)
	}

	want := []Phase{PhaseAwaitingModel, PhaseDispatchingTools, PhaseAwaitingModel, PhaseDone}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
}

func TestRun_StopsAtRoundCap(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{fallback: schema.AssistantMessage("sigo pensando", []schema.ToolCall{toolCall("c", "getCart", "")})}
	gw := &fakeGateway{}
	r, err := New(model, gw)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := r.Run(context.Background(), Input{SessionID: "s1", UserText: "hola"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Truncated || out.Rounds != DefaultMaxRounds {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(gw.batches) != DefaultMaxRounds {
		t.Fatalf("dispatches = %d, want %d", len(gw.batches), DefaultMaxRounds)
	}
	if len(model.inputs) != DefaultMaxRounds+1 {
		t.Fatalf("model calls = %d, want %d", len(model.inputs), DefaultMaxRounds+1)
	}
	if out.Reply != "sigo pensando" {
		t.Fatalf("reply = %q", out.Reply)
	}
	last := out.Messages[len(out.Messages)-1]
	if last.Role != schema.Assistant || len(last.ToolCalls) != 0 {
		t.Fatalf("last message should be a plain assistant message: %+v", last)
	}
}

func TestRun_CustomRoundCap(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{fallback: schema.AssistantMessage("", []schema.ToolCall{toolCall("c", "getCart", "")})}
	gw := &fakeGateway{}
	r, _ := New(model, gw, WithMaxRounds(2))

	out, err := r.Run(context.Background(), Input{SessionID: "s1", UserText: "hola"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Truncated || out.Reply != "" || len(gw.batches) != 2 {
		t.Fatalf("unexpected outcome %+v with %d dispatches", out, len(gw.batches))
	}
}

func TestRun_ModelErrorIsUpstream(t *testing.T) {
	t.Parallel()

	r, _ := New(&scriptedModel{err: errors.New("dial tcp: refused")}, &fakeGateway{})
	_, err := r.Run(context.Background(), Input{SessionID: "s1", UserText: "hola"})
	if !errors.Is(err, contractx.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}

	r, _ = New(&scriptedModel{}, &fakeGateway{})
	_, err = r.Run(context.Background(), Input{SessionID: "s1", UserText: "hola"})
	if !errors.Is(err, contractx.ErrUpstream) {
		t.Fatalf("nil response err = %v, want ErrUpstream", err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeGateway{}); err == nil {
		t.Fatal("expected error for nil model")
	}
	if _, err := New(&scriptedModel{}, nil); err == nil {
		t.Fatal("expected error for nil gateway")
	}
}
