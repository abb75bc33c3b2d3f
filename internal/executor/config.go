// Package executor drives agents: each executor repeatedly asks the scheduler
// for work, claims it through the store and runs the agent's work function.
package executor

import "time"

// Config defines executor timing.
type Config struct {
	// PollInterval is the first idle wait; it doubles while the agent stays idle.
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxBackoff caps both the idle wait and the store retry delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// StoreRetries is the number of attempts for each store call.
	StoreRetries int `yaml:"store_retries"`
	// RetryDelay is the first delay between store attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// ProjectsDir holds one working directory per project.
	ProjectsDir string `yaml:"projects_dir"`
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 2 * time.Second,
		MaxBackoff:   30 * time.Second,
		StoreRetries: 5,
		RetryDelay:   100 * time.Millisecond,
		ProjectsDir:  ".aiorg/projects",
	}
}

// nextBackoff doubles d up to MaxBackoff.
func (c *Config) nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}
