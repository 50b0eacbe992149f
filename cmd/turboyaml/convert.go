package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/LiboWorks/turboyaml/internal/backend"
	"github.com/LiboWorks/turboyaml/internal/config"
	"github.com/LiboWorks/turboyaml/internal/converter"
	"github.com/LiboWorks/turboyaml/pkg/turboyaml"
)

const credentialHelp = "please provide a valid OpenAI API key using --api-key or set it as the OPENAI_API_KEY environment variable"

func (f *flags) convert(cmd *cobra.Command, paths []string, logger *slog.Logger, opts []turboyaml.Option) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🔧 Starting conversion...")

	result, err := turboyaml.Convert(cmd.Context(), paths, opts...)
	if result == nil {
		return failure(err)
	}

	printSummary(out, result)
	if err != nil {
		logger.Error("failed to finish writing schema files", "error", err)
		return &ExitError{Code: 1, Err: err}
	}
	if result.Err() != nil {
		// Each failure was already reported as it happened.
		return &ExitError{Code: 1}
	}
	return nil
}

func (f *flags) analyze(cmd *cobra.Command, logger *slog.Logger, opts []turboyaml.Option) error {
	out := cmd.OutOrStdout()

	var sel turboyaml.Selector
	if f.section != "" {
		sel = turboyaml.SectionByKey(f.section)
	} else {
		sel = turboyaml.PromptSection(cmd.InOrStdin(), out)
	}

	report, err := turboyaml.AnalyzeLogs(cmd.Context(), f.logsPath, sel, opts...)
	if err != nil {
		if isServiceFailure(err) {
			logger.Error("log analysis failed", "log", f.logsPath, "error", err)
		}
		return failure(err)
	}
	return report.Render(out)
}

// failure maps an aborted run to its exit status and user-facing message.
func failure(err error) error {
	switch {
	case errors.Is(err, config.ErrMissingAPIKey), errors.Is(err, config.ErrInvalidAPIKey):
		return &ExitError{Code: 1, Err: fmt.Errorf("%w: %s", err, credentialHelp)}
	case isServiceFailure(err):
		return &ExitError{Code: 1, Err: errors.New(converter.GenericFailureMessage)}
	default:
		return &ExitError{Code: 1, Err: err}
	}
}

func isServiceFailure(err error) bool {
	return errors.Is(err, backend.ErrServiceUnavailable) || errors.Is(err, backend.ErrUnknownFailure)
}

// printSummary writes the closing tally of a conversion run.
func printSummary(w io.Writer, r *turboyaml.ConvertResult) {
	re := lipgloss.NewRenderer(w)
	good := re.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	bad := re.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	dim := re.NewStyle().Foreground(lipgloss.Color("#888888"))

	failed := r.Failed()
	fmt.Fprintln(w, good.Render(fmt.Sprintf("✅ %d of %d model(s) documented", len(r.Files)-len(failed), len(r.Files))))
	if len(failed) == 0 {
		return
	}

	fmt.Fprintln(w, bad.Render(fmt.Sprintf("❌ %d file(s) failed:", len(failed))))
	for _, f := range failed {
		fmt.Fprintln(w, dim.Render("   - "+f.Input))
	}
}
