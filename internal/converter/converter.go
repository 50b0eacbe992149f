// Package converter provides the core SQL-to-YAML pipeline for turboyaml:
// discover model files, ask the completion backend to document each one
// under a concurrency limit, and append the answers to the destination
// schema files in discovery order.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/LiboWorks/turboyaml/internal/backend"
	"github.com/LiboWorks/turboyaml/internal/discovery"
	"github.com/LiboWorks/turboyaml/internal/logging"
	"github.com/LiboWorks/turboyaml/internal/output"
	"github.com/LiboWorks/turboyaml/internal/prompt"
	"github.com/LiboWorks/turboyaml/internal/worker"
)

// GenericFailureMessage is shown to the user when the completion service fails.
// Details go to the error log.
const GenericFailureMessage = "Oops! An unexpected error occurred while processing. Please try again later or report the issue."

var (
	// ErrEmptyInput is returned for model files with no content.
	ErrEmptyInput = errors.New("input file is empty")
	// ErrNotText is returned for model files that do not contain text.
	ErrNotText = errors.New("input file is not a text file")
	// ErrEmptyResponse is returned when the model answered with nothing to write.
	ErrEmptyResponse = errors.New("completion returned no YAML")
)

// Options configures a conversion run.
type Options struct {
	// Destination is the schema file name written next to each input. An
	// absolute path collects every input into that one file.
	// Defaults to output.DefaultDestination.
	Destination string

	// Model and Temperature are passed to the backend. A nil Temperature
	// means backend.DefaultTemperature; zero is a valid setting.
	Model       string
	Temperature *float32

	// MaxConcurrency caps simultaneous completion requests.
	// Defaults to worker.DefaultLimit.
	MaxConcurrency int

	// Out receives progress lines. Defaults to io.Discard.
	Out io.Writer

	// Logger receives diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Input discovery.InputFile

	// Destination is the schema file the output went (or would go) to.
	Destination string

	// Output is the normalized YAML block.
	Output string

	// Models lists the model names found in Output, when it parses.
	Models []string

	Err error
}

// Result contains the outcome of a conversion run.
type Result struct {
	// Files holds one entry per input, in discovery order.
	Files []FileResult

	// Destinations lists the schema files written, in first-write order.
	Destinations []string
}

// Failed returns the files that could not be documented.
func (r *Result) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Err joins the per-file failures, or returns nil when every file succeeded.
func (r *Result) Err() error {
	var errs []error
	for _, f := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", f.Input.Path(), f.Err))
	}
	return errors.Join(errs...)
}

// Converter documents SQL model files through an LLM backend.
type Converter struct {
	backend     backend.LLMBackend
	builder     *prompt.Builder
	opts        Options
	temperature float32

	outMu sync.Mutex
}

// New creates a converter. opts may be nil.
func New(b backend.LLMBackend, opts *Options) *Converter {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Destination == "" {
		o.Destination = output.DefaultDestination
	}
	temperature := backend.DefaultTemperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = worker.DefaultLimit
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}

	return &Converter{
		backend:     b,
		builder:     prompt.NewBuilder(),
		opts:        o,
		temperature: temperature,
	}
}

// Convert documents every model file found under paths. Destination and
// input problems abort the run before any request is sent. Per-file
// failures do not stop the other files; they are reported in the Result.
func (c *Converter) Convert(ctx context.Context, paths []string) (*Result, error) {
	if err := output.ValidateDestination(c.opts.Destination); err != nil {
		return nil, err
	}

	inputs, err := discovery.Discover(paths)
	if err != nil {
		return nil, err
	}
	c.opts.Logger.Debug("inputs resolved", "count", len(inputs), "destination", c.opts.Destination)

	checked := make(map[string]bool)
	for _, in := range inputs {
		dest := output.Resolve(in.Dir, c.opts.Destination)
		if checked[dest] {
			continue
		}
		checked[dest] = true
		if err := output.CheckParent(dest); err != nil {
			return nil, err
		}
	}

	limiter := worker.NewLimiter(c.opts.MaxConcurrency)
	generated := worker.Dispatch(ctx, limiter, inputs, c.generate)

	result := &Result{Files: make([]FileResult, len(inputs))}
	writers := make(map[string]*output.Writer)

	for i, g := range generated {
		fr := FileResult{
			Input:       inputs[i],
			Destination: output.Resolve(inputs[i].Dir, c.opts.Destination),
			Output:      g.Value,
			Err:         g.Err,
		}
		if fr.Err == nil {
			fr.Models = c.inspect(fr.Input, fr.Output)
			fr.Err = c.write(writers, result, fr)
		}
		if fr.Err != nil {
			c.report(fr)
		}
		result.Files[i] = fr
	}

	var closeErrs []error
	for _, dest := range result.Destinations {
		if err := writers[dest].Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	for _, dest := range result.Destinations {
		c.printf("📄 YAML saved at %s\n", dest)
	}

	return result, errors.Join(closeErrs...)
}

// generate runs one file through prompt, backend and normalizer.
func (c *Converter) generate(ctx context.Context, in discovery.InputFile) (string, error) {
	content, err := readModel(in.Path())
	if err != nil {
		return "", err
	}

	msgs, err := c.builder.Build(content, in.ModelName())
	if err != nil {
		return "", err
	}

	c.printf("🔄 Processing SQL file: %s\n", in.ModelName())
	raw, err := c.backend.Complete(ctx, backend.NewRequest(c.opts.Model, c.temperature, msgs.System, msgs.User))
	if err != nil {
		return "", err
	}

	yml := output.StripFences(raw)
	if strings.TrimSpace(yml) == "" {
		return "", ErrEmptyResponse
	}
	return yml, nil
}

func readModel(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", ErrEmptyInput
	}
	if !isText(mimetype.Detect(data)) {
		return "", ErrNotText
	}
	return string(data), nil
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// inspect probes the block with a YAML parser. A block that does not parse
// is still written; the user gets a warning to review it.
func (c *Converter) inspect(in discovery.InputFile, block string) []string {
	models, err := output.ModelNames(block)
	if err != nil {
		c.opts.Logger.Warn("generated YAML needs review", "file", in.Path(), "error", err)
		return nil
	}
	if !slices.Contains(models, in.ModelName()) {
		c.opts.Logger.Warn("generated YAML does not name the model after its file",
			"file", in.Path(), "expected", in.ModelName(), "models", models)
	}
	return models
}

func (c *Converter) write(writers map[string]*output.Writer, result *Result, fr FileResult) error {
	w, ok := writers[fr.Destination]
	if !ok {
		var err error
		w, err = output.Open(fr.Input.Dir, c.opts.Destination)
		if err != nil {
			return err
		}
		writers[fr.Destination] = w
		result.Destinations = append(result.Destinations, fr.Destination)
	}

	if err := w.AppendBlock(fr.Output); err != nil {
		return err
	}
	c.printf("✅ %s documented\n", fr.Input.ModelName())
	return nil
}

func (c *Converter) report(fr FileResult) {
	c.opts.Logger.Error("failed to document model", "file", fr.Input.Path(), "error", fr.Err)

	if errors.Is(fr.Err, backend.ErrServiceUnavailable) || errors.Is(fr.Err, backend.ErrUnknownFailure) {
		c.printf("❌ %s: %s\n", fr.Input.ModelName(), GenericFailureMessage)
		return
	}
	c.printf("❌ %s: %v\n", fr.Input.ModelName(), fr.Err)
}

func (c *Converter) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.opts.Out, format, args...)
}
