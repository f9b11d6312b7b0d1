package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	BackendMemory  = "memory"
	BackendUpstash = "upstash"
)

type Config struct {
	Backend       string             `envconfig:"BACKEND" default:"memory"`
	Retention     time.Duration      `envconfig:"RETENTION" default:"24h"`
	SweepInterval time.Duration      `envconfig:"SWEEP_INTERVAL" split_words:"true" default:"1h"`
	KeyPrefix     string             `envconfig:"KEY_PREFIX" split_words:"true" default:"chative:session:"`
	Upstash       UpstashRedisConfig `envconfig:"UPSTASH"`
}

func (c *Config) Validate() error {
	if c.Retention <= 0 {
		return errors.New("session retention must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case BackendMemory:
	case BackendUpstash:
		if strings.TrimSpace(c.Upstash.URL) == "" || strings.TrimSpace(c.Upstash.Token) == "" {
			return errors.New("upstash backend needs SESSION_UPSTASH_URL and SESSION_UPSTASH_TOKEN")
		}
	default:
		return fmt.Errorf("unsupported session backend %q", c.Backend)
	}
	return nil
}

// NewStore builds the configured backend.
func NewStore(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendUpstash:
		return NewUpstashRedisStore(cfg.Upstash,
			WithKeyPrefix(cfg.KeyPrefix),
			WithTTL(cfg.Retention),
		)
	case BackendMemory, "":
		return NewMemoryStore(cfg.Retention), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Backend)
	}
}
