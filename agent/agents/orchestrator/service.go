package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	nodex "github.com/tanpawarit/Chative-Conversational-Commerce/agent/nodes"
	statex "github.com/tanpawarit/Chative-Conversational-Commerce/agent/state"
	metricsx "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/metrics"
)

const (
	ApologyReply     = "Lo siento, hubo un error procesando tu mensaje. Por favor, intenta de nuevo."
	ConfigErrorReply = "Hay un problema con la configuración del servicio. Por favor, contacta al administrador."
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

var _ contractx.MessageProcessor = (*Orchestrator)(nil)

// Orchestrator runs one turn per inbound message. Turns of the same session
// never overlap.
type Orchestrator struct {
	store   statex.Store
	prompts nodex.PromptRenderer
	runner  nodex.TurnRunner
	locks   *statex.KeyedMutex
	metrics *metricsx.Metrics

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithMetrics(m *metricsx.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(
	store statex.Store,
	prompts nodex.PromptRenderer,
	runner nodex.TurnRunner,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if prompts == nil {
		return nil, errors.New("prompt renderer is required")
	}
	if runner == nil {
		return nil, errors.New("turn runner is required")
	}

	o := &Orchestrator{
		store:   store,
		prompts: prompts,
		runner:  runner,
		locks:   statex.NewKeyedMutex(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner
	return o, nil
}

// ProcessMessage returns the assistant's reply. Only invalid input is
// reported as an error; every other failure becomes a fixed apology and
// leaves the stored history untouched.
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID string, text string) (string, error) {
	key := strings.TrimSpace(sessionID)
	logger := log.Ctx(ctx).With().Str("session_id", key).Logger()
	ctx = logger.WithContext(ctx)

	if key != "" {
		unlock := o.locks.Lock(key)
		defer unlock()
	}

	start := time.Now()
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{SessionID: sessionID, Text: text})
	if err != nil {
		if errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrInvalidMessage) {
			o.metrics.RecordTurn("invalid", time.Since(start), 0)
			return "", err
		}
		if isCredentialError(err) {
			logger.Error().Err(err).Msg("model credentials rejected")
			o.metrics.RecordTurn("config_error", time.Since(start), 0)
			return ConfigErrorReply, nil
		}
		logger.Error().Err(err).Msg("turn failed")
		o.metrics.RecordTurn("error", time.Since(start), 0)
		return ApologyReply, nil
	}

	outcome := "ok"
	if out.Truncated {
		outcome = "truncated"
	}
	o.metrics.RecordTurn(outcome, time.Since(start), out.Rounds)
	if out.Reply == "" {
		logger.Warn().Int("rounds", out.Rounds).Msg("turn capped without text")
		return ApologyReply, nil
	}
	logger.Info().
		Int("rounds", out.Rounds).
		Int("tool_calls", out.ToolCalls).
		Bool("truncated", out.Truncated).
		Dur("took", time.Since(start)).
		Msg("turn completed")
	return out.Reply, nil
}

func isCredentialError(err error) bool {
	if !errors.Is(err, contractx.ErrUpstream) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"api key", "api_key", "401"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
