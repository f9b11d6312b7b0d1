package llm

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/loop"
	openrouterx "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/openrouter"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	ok := Config{APIKey: "k", Model: "m"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	for name, c := range map[string]Config{
		"missing key":    {Model: "m"},
		"missing model":  {APIKey: "k"},
		"unknown driver": {APIKey: "k", Model: "m", Driver: "grpc"},
		"negative cap":   {APIKey: "k", Model: "m", MaxRounds: -1},
	} {
		if err := c.Validate(); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
	}
}

func TestConfig_Rounds(t *testing.T) {
	t.Parallel()

	if got := (Config{}).Rounds(); got != loop.DefaultMaxRounds {
		t.Fatalf("Rounds() = %d", got)
	}
	if got := (Config{MaxRounds: 3}).Rounds(); got != 3 {
		t.Fatalf("Rounds() = %d", got)
	}
}

func TestNewChatModel_SDKDriver(t *testing.T) {
	t.Parallel()

	m, err := NewChatModel(context.Background(), Config{Driver: "SDK", APIKey: "k", Model: "m"}, nil)
	if err != nil {
		t.Fatalf("NewChatModel() error = %v", err)
	}
	if _, ok := m.(*openrouterx.SDKChatModel); !ok {
		t.Fatalf("model = %T, want *openrouter.SDKChatModel", m)
	}

	if _, err := NewChatModel(context.Background(), Config{Driver: "grpc"}, nil); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
