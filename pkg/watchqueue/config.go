package watchqueue

import (
	"errors"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// SlotSize is the fixed size of one delivery slot in bytes.
	SlotSize = 128

	DefaultMaxNotes          = 512
	DefaultBufferBudget      = 16 << 20
	DefaultMaxFilters        = 16
	DefaultDropWarnThreshold = 0.01
	DefaultDropWarnInterval  = 30 * time.Second

	// maxSlots caps MaxNotes.
	maxSlots = 1 << 24
)

// Config holds the engine-wide limits and the feature toggle.
type Config struct {
	// Enabled is the global toggle. A disabled Manager rejects every entry
	// point with ErrFeatureDisabled and posting becomes a no-op.
	Enabled bool `env:"WATCHQUEUE_ENABLED" envDefault:"true"`
	// MaxNotes bounds the slot count requested for a single queue. The
	// request is then rounded up to a power of two.
	MaxNotes int `env:"WATCHQUEUE_MAX_NOTES" envDefault:"512"`
	// BufferBudget bounds slot storage across all live queues, in bytes.
	// Zero or negative means unbounded.
	BufferBudget int64 `env:"WATCHQUEUE_BUFFER_BUDGET" envDefault:"16777216"`
	// MaxFilters bounds the per-type entries of one filter.
	MaxFilters int `env:"WATCHQUEUE_MAX_FILTERS" envDefault:"16"`

	DropWarnThreshold float64       `env:"WATCHQUEUE_DROP_WARN_THRESHOLD" envDefault:"0.01"`
	DropWarnInterval  time.Duration `env:"WATCHQUEUE_DROP_WARN_INTERVAL" envDefault:"30s"`
}

// DefaultConfig returns the configuration LoadConfig yields with an empty environment.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MaxNotes:          DefaultMaxNotes,
		BufferBudget:      DefaultBufferBudget,
		MaxFilters:        DefaultMaxFilters,
		DropWarnThreshold: DefaultDropWarnThreshold,
		DropWarnInterval:  DefaultDropWarnInterval,
	}
}

var dotenvOnce sync.Once

// LoadConfig reads Config from the environment. A .env file in the working
// directory is loaded first, once per process, if present.
func LoadConfig() (Config, error) {
	dotenvOnce.Do(func() {
		// The file is optional.
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

func (c Config) normalized() Config {
	if c.MaxNotes <= 0 {
		c.MaxNotes = DefaultMaxNotes
	}
	c.MaxNotes = min(c.MaxNotes, maxSlots)
	if c.MaxFilters <= 0 {
		c.MaxFilters = DefaultMaxFilters
	}
	if c.DropWarnInterval <= 0 {
		c.DropWarnInterval = DefaultDropWarnInterval
	}
	return c
}
