package pager

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config controls page sizes, cache TTL and backend retries.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	// TTL of cached pages. Zero disables caching of new pages.
	TTL time.Duration
	// FetchTimeout bounds every backend attempt.
	FetchTimeout time.Duration
	// MaxAttempts counts the first try, so 2 means one retry.
	MaxAttempts          uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize:      20,
		MaxPageSize:          100,
		TTL:                  30 * time.Second,
		FetchTimeout:         2 * time.Second,
		MaxAttempts:          2,
		RetryInitialInterval: 50 * time.Millisecond,
		RetryMaxInterval:     500 * time.Millisecond,
	}
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultPageSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxPageSize, validation.Required, validation.Min(c.DefaultPageSize)),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
		validation.Field(&c.FetchTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxAttempts, validation.Required),
		validation.Field(&c.RetryInitialInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryMaxInterval, validation.Min(c.RetryInitialInterval)),
	)
}
