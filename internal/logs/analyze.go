package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LiboWorks/turboyaml/internal/backend"
	"github.com/LiboWorks/turboyaml/internal/logging"
	"github.com/LiboWorks/turboyaml/internal/output"
	"github.com/LiboWorks/turboyaml/internal/prompt"
)

// ErrMalformedResponse is returned when the model's answer is not the
// expected JSON object. Asking again with the same input is not retried.
var ErrMalformedResponse = errors.New("malformed analysis response")

// Report is what the model extracted from a log section.
type Report struct {
	Errors      []string `json:"errors"`
	Keywords    []string `json:"keywords"`
	Models      []string `json:"models"`
	Corrections []string `json:"corrections"`
}

// Empty reports whether nothing was extracted.
func (r *Report) Empty() bool {
	return len(r.Errors) == 0 && len(r.Keywords) == 0 && len(r.Models) == 0 && len(r.Corrections) == 0
}

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	// Attempts is the total number of calls, first one included.
	Attempts int
	// Backoff is the wait before the second attempt; it doubles after each retry.
	Backoff time.Duration
}

// DefaultRetryPolicy makes up to three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 500 * time.Millisecond}
}

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	Model string
	// Temperature defaults to backend.DefaultTemperature when nil.
	Temperature *float32
	Retry       RetryPolicy
	Logger      *slog.Logger
}

// Analyzer extracts a Report from a log section through a completion backend.
type Analyzer struct {
	backend     backend.LLMBackend
	builder     *prompt.Builder
	opts        AnalyzerOptions
	temperature float32
}

// NewAnalyzer creates an analyzer. opts may be nil.
func NewAnalyzer(b backend.LLMBackend, opts *AnalyzerOptions) *Analyzer {
	var o AnalyzerOptions
	if opts != nil {
		o = *opts
	}
	temperature := backend.DefaultTemperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	if o.Retry.Attempts <= 0 {
		o.Retry.Attempts = DefaultRetryPolicy().Attempts
	}
	if o.Retry.Backoff < 0 {
		o.Retry.Backoff = 0
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return &Analyzer{backend: b, builder: prompt.NewBuilder(), opts: o, temperature: temperature}
}

// Analyze asks the backend to extract errors, keywords, models and
// corrections from s. Transient backend failures are retried with
// exponential backoff; anything else is returned at once.
func (a *Analyzer) Analyze(ctx context.Context, s Section) (*Report, error) {
	msgs, err := a.builder.BuildLogAnalysis(s.Label(), s.Text())
	if err != nil {
		return nil, err
	}
	req := backend.NewRequest(a.opts.Model, a.temperature, msgs.System, msgs.User)
	req.JSON = true

	wait := a.opts.Retry.Backoff
	for attempt := 1; ; attempt++ {
		raw, err := a.backend.Complete(ctx, req)
		if err == nil {
			return parseReport(raw)
		}

		if !backend.IsTransient(err) || attempt >= a.opts.Retry.Attempts {
			return nil, fmt.Errorf("log analysis failed after %d attempt(s): %w", attempt, err)
		}

		a.opts.Logger.Warn("log analysis attempt failed, retrying",
			"attempt", attempt, "max_attempts", a.opts.Retry.Attempts, "backoff", wait, "error", err)

		if err := sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("log analysis interrupted: %w", err)
		}
		wait *= 2
	}
}

func parseReport(raw string) (*Report, error) {
	var r Report
	if err := json.Unmarshal([]byte(output.StripFences(strings.TrimSpace(raw))), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	r.Errors = compact(r.Errors)
	r.Keywords = compact(r.Keywords)
	r.Models = compact(r.Models)
	r.Corrections = compact(r.Corrections)
	return &r, nil
}

// compact trims entries and drops empty ones and duplicates.
func compact(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
