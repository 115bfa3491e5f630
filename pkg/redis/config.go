package redis

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"` // ConnectionURL is the URL of the server, e.g. "redis://:password@localhost:6379/0".
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`                      // RetryAttempts is the number of connection attempts.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`                     // RetryInterval is the delay between attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`                   // ConnectTimeout bounds all attempts together.

	Channel        string        `env:"REDIS_NOTIFY_CHANNEL" envDefault:"watchqueue"` // Channel is the prefix of per-queue pub/sub channels.
	SinkBuffer     int           `env:"REDIS_SINK_BUFFER" envDefault:"1024"`          // SinkBuffer is the number of notes a sink holds while Redis is slow.
	PublishTimeout time.Duration `env:"REDIS_PUBLISH_TIMEOUT" envDefault:"2s"`        // PublishTimeout bounds a single PUBLISH.
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}
	return cfg, nil
}
