// Package webhook receives WhatsApp messages relayed by Twilio and answers
// them through the Twilio REST API.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	metricsx "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/metrics"
	twiliox "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/twilio"
)

const (
	channelPrefix = "whatsapp:"
	emptyTwiML    = "<Response></Response>"
)

type Sender interface {
	SendMessage(ctx context.Context, to, body string) (twiliox.Message, error)
}

type Handler struct {
	processor contractx.MessageProcessor
	sender    Sender
	metrics   *metricsx.Metrics
}

type Option func(*Handler)

func WithMetrics(m *metricsx.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(processor contractx.MessageProcessor, sender Sender, opts ...Option) (*Handler, error) {
	if processor == nil {
		return nil, errors.New("webhook: message processor is required")
	}
	if sender == nil {
		return nil, errors.New("webhook: sender is required")
	}
	h := &Handler{processor: processor, sender: sender}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

func (h *Handler) Routes(r chi.Router) {
	HealthRoutes(r)
	r.Post("/webhook", h.Receive)
}

// HealthRoutes mounts only the liveness check. It needs no Twilio client.
func HealthRoutes(r chi.Router) {
	r.Get("/webhook", Health)
}

func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"message": "WhatsApp webhook is running (Twilio)",
	})
}

type inbound struct {
	Body string `json:"Body"`
	From string `json:"From"`
}

// Receive handles one inbound message. The reply goes out through the REST
// API, so the TwiML answer is always empty.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	msg, err := decodeInbound(r)
	if err != nil {
		logger.Warn().Err(err).Msg("webhook: undecodable payload")
		writeTwiML(w, http.StatusInternalServerError)
		return
	}

	sessionID := strings.TrimSpace(strings.Replace(msg.From, channelPrefix, "", 1))
	text := strings.TrimSpace(msg.Body)
	if sessionID == "" || text == "" {
		logger.Debug().Msg("webhook: empty message ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	reply, err := h.processor.ProcessMessage(ctx, sessionID, text)
	if err != nil {
		logger.Error().Err(err).Str("session_id", sessionID).Msg("webhook: process message")
		writeTwiML(w, http.StatusInternalServerError)
		return
	}

	sent, err := h.sender.SendMessage(ctx, msg.From, reply)
	h.metrics.RecordMessageSent(err == nil)
	if err != nil {
		logger.Error().Err(err).Str("session_id", sessionID).Msg("webhook: send reply")
		writeTwiML(w, http.StatusInternalServerError)
		return
	}

	logger.Info().Str("session_id", sessionID).Str("sid", sent.SID).Msg("webhook: reply sent")
	writeTwiML(w, http.StatusOK)
}

func decodeInbound(r *http.Request) (inbound, error) {
	var msg inbound
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&msg)
		if errors.Is(err, io.EOF) {
			return inbound{}, nil
		}
		return msg, err
	}
	if err := r.ParseForm(); err != nil {
		return inbound{}, err
	}
	msg.Body = r.PostForm.Get("Body")
	msg.From = r.PostForm.Get("From")
	return msg, nil
}

func writeTwiML(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, emptyTwiML)
}
