package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/loop"
	openrouterx "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/openrouter"
)

const (
	DriverEino = "eino"
	DriverSDK  = "sdk"
)

type Config struct {
	Driver             string        `envconfig:"DRIVER" default:"eino"`
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"google/gemini-2.5-flash"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true" default:"Chative Commerce"`
	MaxRounds          int           `envconfig:"MAX_ROUNDS" split_words:"true" default:"10"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", contractx.ErrValidation)
	}
	switch c.driver() {
	case DriverEino, DriverSDK:
	default:
		return fmt.Errorf("%w: unknown llm driver %q", contractx.ErrValidation, c.Driver)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("%w: max rounds must not be negative", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouter() openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// Rounds is the dispatch round cap for one turn.
func (c Config) Rounds() int {
	if c.MaxRounds <= 0 {
		return loop.DefaultMaxRounds
	}
	return c.MaxRounds
}

// NewChatModel builds the configured model. schemas is only used by the sdk
// driver, which needs raw JSON Schemas for tool parameters.
func NewChatModel(ctx context.Context, c Config, schemas openrouterx.SchemaFunc) (einomodel.ToolCallingChatModel, error) {
	or := c.OpenRouter()
	switch c.driver() {
	case DriverSDK:
		return openrouterx.NewSDKChatModel(or, schemas)
	case DriverEino:
		return or.New(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown llm driver %q", contractx.ErrValidation, c.Driver)
	}
}

func (c Config) driver() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		return DriverEino
	}
	return d
}
