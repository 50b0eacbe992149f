package turboyaml

import (
	"io"
	"log/slog"
	"time"

	"github.com/LiboWorks/turboyaml/internal/config"
	"github.com/LiboWorks/turboyaml/internal/logs"
)

// Version information for turboyaml.
const (
	// Version is the current version of turboyaml.
	Version = "0.1.0"

	// MinGoVersion is the minimum required Go version.
	MinGoVersion = "1.25"
)

// Options configures a conversion or log analysis run.
type Options struct {
	// APIKey is the OpenAI key. When empty or not a valid key,
	// OPENAI_API_KEY is used.
	APIKey string

	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL string

	// Model is the chat model to ask.
	Model string

	// Temperature is the sampling temperature.
	Temperature float32

	// Destination is the schema file name written next to each input.
	Destination string

	// MaxConcurrency caps simultaneous completion requests.
	MaxConcurrency int

	// Retry bounds log analysis retries on transient failures.
	Retry logs.RetryPolicy

	// Out receives progress lines. Nil discards them.
	Out io.Writer

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns Options seeded from the environment configuration.
func DefaultOptions() *Options {
	return FromConfig(config.Get())
}

// FromConfig returns Options carrying the values of cfg.
func FromConfig(cfg *config.Config) *Options {
	retry := logs.DefaultRetryPolicy()
	retry.Attempts = cfg.MaxRetries

	return &Options{
		BaseURL:        cfg.OpenAIBaseURL,
		Model:          cfg.OpenAIModel,
		Temperature:    cfg.Temperature,
		Destination:    cfg.Destination,
		MaxConcurrency: cfg.MaxConcurrency,
		Retry:          retry,
	}
}

// Option is a functional option for configuring a run.
type Option func(*Options)

// WithConfig replaces the settings with those of cfg, keeping the API key,
// output and logger. Options given after it still apply on top.
func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		c := FromConfig(cfg)
		c.APIKey, c.Out, c.Logger = o.APIKey, o.Out, o.Logger
		*o = *c
	}
}

// WithAPIKey sets the OpenAI key. A valid key takes precedence over the
// environment.
func WithAPIKey(key string) Option {
	return func(o *Options) {
		o.APIKey = key
	}
}

// WithBaseURL sets the API endpoint.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *Options) {
		o.Temperature = t
	}
}

// WithDestination sets the schema file name.
func WithDestination(name string) Option {
	return func(o *Options) {
		o.Destination = name
	}
}

// WithConcurrency sets the maximum number of simultaneous requests.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.MaxConcurrency = n
	}
}

// WithRetry sets how log analysis retries transient failures.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *Options) {
		o.Retry = logs.RetryPolicy{Attempts: attempts, Backoff: backoff}
	}
}

// WithOutput sets where progress lines are printed.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Out = w
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// ApplyOptions applies functional options to DefaultOptions.
func ApplyOptions(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
