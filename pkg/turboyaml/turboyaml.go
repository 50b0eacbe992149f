// Package turboyaml provides a public API for turboyaml.
//
// This package documents dbt SQL models as schema YAML through an
// OpenAI-compatible chat model, and explains dbt log failures.
//
// Basic usage:
//
//	result, err := turboyaml.Convert(ctx, []string{"models/staging"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, dest := range result.Destinations {
//	    fmt.Println("Written:", dest)
//	}
//
// With options:
//
//	result, err := turboyaml.Convert(ctx, paths,
//	    turboyaml.WithAPIKey(os.Getenv("DBT_DOCS_OPENAI_KEY")),
//	    turboyaml.WithDestination("_models.yml"),
//	    turboyaml.WithOutput(os.Stdout),
//	)
//
// Log analysis:
//
//	report, err := turboyaml.AnalyzeLogs(ctx, "logs/dbt.log", turboyaml.LatestSection())
//	report.Render(os.Stdout)
package turboyaml

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/LiboWorks/turboyaml/internal/backend"
	"github.com/LiboWorks/turboyaml/internal/config"
	"github.com/LiboWorks/turboyaml/internal/converter"
	"github.com/LiboWorks/turboyaml/internal/logs"
)

// FileResult is the outcome for one SQL model file.
type FileResult struct {
	// Input is the path of the SQL file.
	Input string

	// Destination is the schema file the YAML went (or would go) to.
	Destination string

	// Models lists the model names found in the generated YAML.
	Models []string

	// Err is non-nil when the file could not be documented.
	Err error
}

// ConvertResult contains the results of a conversion run.
type ConvertResult struct {
	// Files holds one entry per input file, in discovery order.
	Files []FileResult

	// Destinations lists the schema files written.
	Destinations []string
}

// Failed returns the files that could not be documented.
func (r *ConvertResult) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Err joins the per-file failures, or returns nil when every file succeeded.
func (r *ConvertResult) Err() error {
	var errs []error
	for _, f := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", f.Input, f.Err))
	}
	return errors.Join(errs...)
}

// Convert documents every SQL model found under paths. Each path is a
// directory (its .sql files, non-recursively) or a single .sql file.
//
// The credential is checked before anything else, and destination or input
// problems fail the run before any request is sent. Files that fail
// individually are reported in the result; the YAML of the others is still
// written. Use ConvertResult.Err to tell whether every file succeeded.
func Convert(ctx context.Context, paths []string, opts ...Option) (*ConvertResult, error) {
	o := ApplyOptions(opts...)

	b, err := newBackend(o)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	c := converter.New(b, &converter.Options{
		Destination:    o.Destination,
		Model:          o.Model,
		Temperature:    &o.Temperature,
		MaxConcurrency: o.MaxConcurrency,
		Out:            o.Out,
		Logger:         o.Logger,
	})

	result, err := c.Convert(ctx, paths)
	if result == nil {
		return nil, err
	}
	return fromInternalResult(result), err
}

// Selector picks one section out of a parsed log.
type Selector = logs.Selector

// LatestSection selects the most recent invocation in the log.
func LatestSection() Selector {
	return logs.Latest()
}

// SectionByKey selects a section by 1-based position, invocation id or
// timestamp prefix.
func SectionByKey(key string) Selector {
	return logs.ByKey(key)
}

// PromptSection lists the sections on out and reads the choice from in.
func PromptSection(in io.Reader, out io.Writer) Selector {
	return logs.Prompt{In: in, Out: out}
}

// LogReport is the analysis of one dbt invocation.
type LogReport struct {
	// SectionID and Timestamp identify the analysed invocation.
	SectionID string
	Timestamp string

	Errors      []string
	Keywords    []string
	Models      []string
	Corrections []string

	section logs.Section
	report  *logs.Report
}

// Render writes the report as a console panel.
func (r *LogReport) Render(w io.Writer) error {
	return logs.Render(w, r.section, r.report)
}

// AnalyzeLogs parses the dbt log at path, picks a section with sel and asks
// the model what went wrong in it. A nil sel picks the latest section.
func AnalyzeLogs(ctx context.Context, path string, sel Selector, opts ...Option) (*LogReport, error) {
	o := ApplyOptions(opts...)

	b, err := newBackend(o)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	sections, err := logs.ParseFile(path)
	if err != nil {
		return nil, err
	}

	if sel == nil {
		sel = logs.Latest()
	}
	idx, err := sel.Select(sections)
	if err != nil {
		return nil, err
	}
	section := sections[idx]

	analyzer := logs.NewAnalyzer(b, &logs.AnalyzerOptions{
		Model:       o.Model,
		Temperature: &o.Temperature,
		Retry:       o.Retry,
		Logger:      o.Logger,
	})
	report, err := analyzer.Analyze(ctx, section)
	if err != nil {
		return nil, err
	}

	return &LogReport{
		SectionID:   section.ID,
		Timestamp:   section.Timestamp,
		Errors:      report.Errors,
		Keywords:    report.Keywords,
		Models:      report.Models,
		Corrections: report.Corrections,
		section:     section,
		report:      report,
	}, nil
}

func newBackend(o *Options) (backend.LLMBackend, error) {
	key, err := config.ResolveAPIKey(o.APIKey, config.Get().OpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	return backend.NewOpenAIBackend(backend.OpenAIConfig{
		APIKey:       key,
		BaseURL:      o.BaseURL,
		DefaultModel: o.Model,
	})
}

func fromInternalResult(r *converter.Result) *ConvertResult {
	files := make([]FileResult, len(r.Files))
	for i, f := range r.Files {
		files[i] = FileResult{
			Input:       f.Input.Path(),
			Destination: f.Destination,
			Models:      f.Models,
			Err:         f.Err,
		}
	}
	return &ConvertResult{
		Files:        files,
		Destinations: r.Destinations,
	}
}
