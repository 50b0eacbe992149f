package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/LiboWorks/turboyaml/internal/config"
	"github.com/LiboWorks/turboyaml/internal/logging"
	"github.com/LiboWorks/turboyaml/pkg/turboyaml"
)

// flags holds the parsed command line.
type flags struct {
	selects    []string
	apiKey     string
	yamlName   string
	logsPath   string
	section    string
	configPath string
	model      string
	logLevel   string
	logFormat  string
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "turboyaml",
		Short: "Document dbt SQL models as schema YAML using OpenAI",
		Long: `turboyaml sends dbt SQL models to an OpenAI chat model and appends
the generated model documentation to a schema YAML file next to each model.

It can also read a dbt log, let you pick one invocation, and explain the
errors found in it.

Examples:
  turboyaml --select models/staging
  turboyaml --select models/orders.sql models/customers.sql --yaml _models.yml
  turboyaml --logs logs/dbt.log
  turboyaml --logs logs/dbt.log --section 2`,
		Version:       turboyaml.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.run(cmd, args)
		},
	}

	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	fs := cmd.Flags()
	fs.StringArrayVar(&f.selects, "select", nil, "SQL model file or directory to document; repeat it or list more paths after it")
	fs.StringVar(&f.apiKey, "api-key", "", "OpenAI API key (default $OPENAI_API_KEY)")
	fs.StringVar(&f.yamlName, "yaml", config.DefaultDestination, "Schema file written next to each model, or one absolute path for all (.yml or .yaml)")
	fs.StringVar(&f.logsPath, "logs", "", "Analyze a dbt log file instead of documenting models")
	fs.StringVar(&f.section, "section", "", "Log section to analyze: number, invocation id or timestamp (default: ask)")
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.model, "model", config.DefaultOpenAIModel, "OpenAI chat model")
	fs.StringVar(&f.logLevel, "log-level", "warn", "Diagnostics level: debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "text", "Diagnostics format: text or json")

	return cmd
}

func (f *flags) run(cmd *cobra.Command, args []string) error {
	if cmd.Flags().NFlag() == 0 && len(args) == 0 {
		_ = cmd.Help()
		return &ExitError{Code: 2}
	}
	if err := f.validate(args); err != nil {
		return err
	}

	cfg, err := f.loadConfig(cmd.Flags())
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	logger, errLog := f.newLogger(cfg, cmd.ErrOrStderr())
	defer errLog.Close()

	opts := []turboyaml.Option{
		turboyaml.WithConfig(cfg),
		turboyaml.WithAPIKey(f.apiKey),
		turboyaml.WithOutput(cmd.OutOrStdout()),
		turboyaml.WithLogger(logger),
	}

	if f.logsPath != "" {
		return f.analyze(cmd, logger, opts)
	}
	return f.convert(cmd, append(f.selects, args...), logger, opts)
}

func (f *flags) validate(args []string) error {
	switch strings.ToLower(f.logFormat) {
	case "text", "json":
	default:
		return usageError("invalid log-format %q: must be 'text' or 'json'", f.logFormat)
	}
	switch strings.ToLower(f.logLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return usageError("invalid log-level %q: must be 'debug', 'info', 'warn' or 'error'", f.logLevel)
	}

	switch {
	case f.logsPath != "" && (len(f.selects) > 0 || len(args) > 0):
		return usageError("--logs cannot be combined with model paths")
	case f.section != "" && f.logsPath == "":
		return usageError("--section requires --logs")
	case f.logsPath == "" && len(f.selects) == 0 && len(args) > 0:
		return usageError("unexpected arguments %q: pass model paths with --select", args)
	case f.logsPath == "" && len(f.selects) == 0:
		return usageError("nothing to do: pass model paths with --select or a log with --logs")
	}
	return nil
}

// loadConfig layers the configuration: environment, then the config file,
// then explicitly set flags.
func (f *flags) loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg := *config.Get()
	if f.configPath != "" {
		loaded, err := config.LoadFile(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if fs.Changed("yaml") {
		cfg.Destination = f.yamlName
	}
	if fs.Changed("model") {
		cfg.OpenAIModel = f.model
	}
	return &cfg, nil
}

// newLogger writes diagnostics to w and mirrors errors to the error log
// file, which is only created once something is logged to it.
func (f *flags) newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, io.Closer) {
	level := f.logLevel
	if cfg.DebugMode {
		level = "debug"
	} else if cfg.Verbose && logging.ParseLevel(level) > slog.LevelInfo {
		level = "info"
	}

	errLog := logging.NewLazyFile(cfg.ErrorLogFile)
	logger := logging.Tee(
		logging.NewLogger(level, f.logFormat, w),
		logging.NewLogger("error", "json", errLog),
	)
	return logger, errLog
}
