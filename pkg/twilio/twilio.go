package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.twilio.com"

var ErrNotConfigured = errors.New("twilio: whatsapp sender number is not configured")

type Config struct {
	AccountSID     string        `envconfig:"ACCOUNT_SID" split_words:"true"`
	AuthToken      string        `envconfig:"AUTH_TOKEN" split_words:"true"`
	WhatsAppNumber string        `envconfig:"WHATSAPP_NUMBER" split_words:"true"`
	BaseURL        string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.twilio.com"`
	Timeout        time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
}

// Message is the subset of Twilio's message resource we read back.
type Message struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// APIError is a non-2xx answer from the Twilio REST API.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("twilio: status %d", e.StatusCode)
	}
	return fmt.Sprintf("twilio: status %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("twilio: invalid base url: %w", err)
	}
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, errors.New("twilio: account sid is required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio: auth token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		from:       strings.TrimSpace(cfg.WhatsAppNumber),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// SendMessage posts body to the recipient once. Delivery is never retried.
func (c *Client) SendMessage(ctx context.Context, to, body string) (Message, error) {
	if c.from == "" {
		return Message{}, ErrNotConfigured
	}

	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Message{}, fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("twilio: send message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Message{}, fmt.Errorf("twilio: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return Message{}, apiErr
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("twilio: decode response: %w", err)
	}
	return msg, nil
}
