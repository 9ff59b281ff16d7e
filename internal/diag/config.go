package diag

import "time"

// BackoffConfig defines accept retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines server loop defaults.
type Config struct {
	// SessionReadTimeout bounds the wait for each message on a session.
	// Zero waits forever.
	SessionReadTimeout time.Duration
	AcceptBackoff      BackoffConfig
	// AcceptLogInterval throttles repeated accept-failure logs.
	AcceptLogInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		SessionReadTimeout: 0,
		AcceptBackoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		AcceptLogInterval: 10 * time.Second,
	}
}
