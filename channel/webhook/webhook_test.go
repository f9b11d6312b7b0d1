package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	twiliox "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/twilio"
)

type fakeProcessor struct {
	mu       sync.Mutex
	sessions []string
	texts    []string
	reply    string
	err      error
}

func (f *fakeProcessor) ProcessMessage(_ context.Context, sessionID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	f.texts = append(f.texts, text)
	return f.reply, f.err
}

func (f *fakeProcessor) calls() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...), append([]string(nil), f.texts...)
}

type sentMessage struct{ to, body string }

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, to, body string) (twiliox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	if f.err != nil {
		return twiliox.Message{}, f.err
	}
	return twiliox.Message{SID: "SM1"}, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newServer(t *testing.T, p *fakeProcessor, s *fakeSender) *httptest.Server {
	t.Helper()
	h, err := New(p, s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postForm(t *testing.T, srv *httptest.Server, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := http.PostForm(srv.URL+"/webhook", form)
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, string(raw)
}

func TestReceiveProcessesAndReplies(t *testing.T) {
	t.Parallel()
	p := &fakeProcessor{reply: "¡Hola! ¿Qué buscas?"}
	s := &fakeSender{}
	srv := newServer(t, p, s)

	resp, body := postForm(t, srv, url.Values{"Body": {"hola"}, "From": {"whatsapp:+5491100000000"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/xml" {
		t.Fatalf("content type = %q", ct)
	}
	if body != "<Response></Response>" {
		t.Fatalf("body = %q", body)
	}
	sessions, texts := p.calls()
	if len(sessions) != 1 || sessions[0] != "+5491100000000" || texts[0] != "hola" {
		t.Fatalf("processed %v %v", sessions, texts)
	}
	sent := s.messages()
	if len(sent) != 1 || sent[0].to != "whatsapp:+5491100000000" || sent[0].body != p.reply {
		t.Fatalf("sent %+v", sent)
	}
}

func TestReceiveIgnoresEmptyMessages(t *testing.T) {
	t.Parallel()
	p := &fakeProcessor{}
	s := &fakeSender{}
	srv := newServer(t, p, s)

	for _, form := range []url.Values{
		{"From": {"whatsapp:+1"}},
		{"Body": {"hola"}},
		{"Body": {"  "}, "From": {"whatsapp:"}},
	} {
		resp, body := postForm(t, srv, form)
		if resp.StatusCode != http.StatusOK || body != "" {
			t.Fatalf("form %v: status = %d body = %q", form, resp.StatusCode, body)
		}
	}
	if sessions, _ := p.calls(); len(sessions) != 0 || len(s.messages()) != 0 {
		t.Fatal("empty messages must not be processed")
	}
}

func TestReceiveFailures(t *testing.T) {
	t.Parallel()

	p := &fakeProcessor{err: errors.New("boom")}
	s := &fakeSender{}
	resp, body := postForm(t, newServer(t, p, s), url.Values{"Body": {"hola"}, "From": {"whatsapp:+1"}})
	if resp.StatusCode != http.StatusInternalServerError || body != "<Response></Response>" {
		t.Fatalf("process failure: status = %d body = %q", resp.StatusCode, body)
	}
	if len(s.messages()) != 0 {
		t.Fatal("reply sent after processing failure")
	}

	p = &fakeProcessor{reply: "ok"}
	s = &fakeSender{err: errors.New("twilio down")}
	resp, _ = postForm(t, newServer(t, p, s), url.Values{"Body": {"hola"}, "From": {"whatsapp:+1"}})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("send failure: status = %d", resp.StatusCode)
	}
	if n := len(s.messages()); n != 1 {
		t.Fatalf("send attempts = %d, want 1", n)
	}
}

func TestReceiveJSONPayload(t *testing.T) {
	t.Parallel()
	p := &fakeProcessor{reply: "ok"}
	s := &fakeSender{}
	srv := newServer(t, p, s)

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(`{"Body":"hola","From":"whatsapp:+2"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	sessions, _ := p.calls()
	if resp.StatusCode != http.StatusOK || len(sessions) != 1 || sessions[0] != "+2" {
		t.Fatalf("status = %d sessions = %v", resp.StatusCode, sessions)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := newServer(t, &fakeProcessor{}, &fakeSender{})

	resp, err := http.Get(srv.URL + "/webhook")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"status":"ok"`) {
		t.Fatalf("status = %d body = %q", resp.StatusCode, raw)
	}
}

func TestHealthRoutesWithoutSender(t *testing.T) {
	t.Parallel()
	r := chi.NewRouter()
	HealthRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/webhook")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"status":"ok"`) {
		t.Fatalf("status = %d body = %q", resp.StatusCode, raw)
	}

	post, err := http.PostForm(srv.URL+"/webhook", url.Values{"Body": {"hola"}, "From": {"whatsapp:+521"}})
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want %d", post.StatusCode, http.StatusMethodNotAllowed)
	}
}
