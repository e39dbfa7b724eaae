package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	RateLimitMax       int           `env:"RATE_LIMIT_MAX,default=5"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	RateLimitPolicy    string        `env:"RATE_LIMIT_POLICY,default=fail_closed"`
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY,default=4"`
	QueueScanInterval  time.Duration `env:"QUEUE_SCAN_INTERVAL,default=30s"`
	QueueScanLimit     int           `env:"QUEUE_SCAN_LIMIT,default=50"`
	QueueStaleAfter    time.Duration `env:"QUEUE_STALE_AFTER,default=5m"`
	DeliveryTimeout    time.Duration `env:"DELIVERY_TIMEOUT,default=30s"`
	StatsCacheTTL      time.Duration `env:"STATS_CACHE_TTL,default=30s"`
	SimulationMode     bool          `env:"SIMULATION_MODE,default=false"`
	SimulationFailRate float64       `env:"SIMULATION_FAIL_RATE,default=0"`
	SimulationDelay    time.Duration `env:"SIMULATION_DELAY,default=0s"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RateLimitMax < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be at least 1, got %d", c.RateLimitMax)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.QueueScanLimit < 1 {
		return fmt.Errorf("QUEUE_SCAN_LIMIT must be at least 1, got %d", c.QueueScanLimit)
	}
	if c.SimulationFailRate < 0 || c.SimulationFailRate > 1 {
		return fmt.Errorf("SIMULATION_FAIL_RATE must be in [0,1], got %v", c.SimulationFailRate)
	}
	return nil
}
