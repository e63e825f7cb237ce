package consumer

import "time"

// Config controls the event consumer loop.
type Config struct {
	ProcessTimeout time.Duration
	RetryBackoff   time.Duration
	MaxAttempts    int
}

func DefaultConfig() Config {
	return Config{
		ProcessTimeout: 30 * time.Second,
		RetryBackoff:   time.Second,
		MaxAttempts:    3,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = defaults.ProcessTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	return c
}
