// Package cmd builds the backup_check and validate command-line tools.
//
// Both tools print their result lines on stdout and keep diagnostics on
// stderr. Failures are returned as *ExitError so main can map them to the
// documented process exit codes.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/specguard/internal/config"
	"github.com/3leaps/specguard/internal/observability"
)

// maxExitCode is the largest portable process exit status. The validator
// exits with its failure count up to this value.
const maxExitCode = 255

// versionInfo is injected from main via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata reported by --version.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

func versionString() string {
	return fmt.Sprintf("%s (commit %s, built %s)", versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
}

// ExitError carries the process exit code for a failed run.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// reported is set when the failure was already printed on stdout.
	reported bool
}

func (e *ExitError) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError returns a failure that Execute reports on stderr.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// reportedError returns a failure whose message is already on stdout.
func reportedError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err, reported: true}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return foundry.ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return clampExitCode(exitErr.Code)
	}
	if errors.Is(err, context.Canceled) {
		return foundry.ExitSignalInt
	}
	return foundry.ExitFailure
}

func clampExitCode(code int) int {
	if code < 0 {
		return foundry.ExitFailure
	}
	if code > maxExitCode {
		return maxExitCode
	}
	return code
}

// Execute runs c and returns the process exit code. Failures not already
// printed by the command are written to stderr.
func Execute(ctx context.Context, c *cobra.Command) int {
	err := c.ExecuteContext(ctx)
	if err == nil {
		return foundry.ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.reported {
		_, _ = fmt.Fprintf(c.ErrOrStderr(), "ERROR: %v\n", err)
	}
	return ExitCode(err)
}

// newToolCommand applies the settings shared by both root commands.
func newToolCommand(use, short, long, usage string) *cobra.Command {
	c := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Version:       versionString(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError(cmd, usage, fmt.Errorf("unexpected arguments: %s", strings.Join(args, " ")))
			}
			return nil
		},
	}
	c.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(cmd, usage, err)
	})
	return c
}

// usageError prints the one-line usage on stdout and returns exit 1.
func usageError(cmd *cobra.Command, usage string, err error) error {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), usage)
	observability.CLILogger.Debug("Usage error", zap.Error(err))
	return reportedError(foundry.ExitFailure, usage, err)
}

// commonFlags are registered on both tools.
type commonFlags struct {
	configFile  string
	logLevel    string
	logFormat   string
	s3Region    string
	s3Endpoint  string
	s3Profile   string
	s3PathStyle bool
}

func (f *commonFlags) register(c *cobra.Command) {
	fs := c.Flags()
	fs.StringVar(&f.configFile, "config", "", "Path to a YAML config file")
	fs.StringVar(&f.logLevel, "log-level", "", "Diagnostic log level on stderr (debug|info|warn|error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Diagnostic log format (console|json)")
	fs.StringVar(&f.s3Region, "s3-region", "", "Region for s3:// locations")
	fs.StringVar(&f.s3Endpoint, "s3-endpoint", "", "Custom endpoint for S3-compatible stores")
	fs.StringVar(&f.s3Profile, "s3-profile", "", "AWS shared config profile")
	fs.BoolVar(&f.s3PathStyle, "s3-path-style", false, "Use path-style S3 addressing")
}

// load resolves configuration from the config file, environment and the
// flags the user set, then initializes the CLI logger.
func (f *commonFlags) load(c *cobra.Command, extra map[string]any) (*config.Config, error) {
	overrides := map[string]any{}
	fs := c.Flags()

	set := func(flag, key string, val any) {
		if fs.Changed(flag) {
			overrides[key] = val
		}
	}
	set("log-level", "logging.level", f.logLevel)
	set("log-format", "logging.format", f.logFormat)
	set("s3-region", "s3.region", f.s3Region)
	set("s3-endpoint", "s3.endpoint", f.s3Endpoint)
	set("s3-profile", "s3.profile", f.s3Profile)
	set("s3-path-style", "s3.force_path_style", f.s3PathStyle)

	for k, v := range extra {
		overrides[k] = v
	}

	cfg, err := config.Load(f.configFile, overrides)
	if err != nil {
		return nil, err
	}

	if err := observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, err
	}

	observability.CLILogger.Debug("Loaded configuration",
		zap.String("file", cfg.File),
		zap.String("log_level", cfg.Logging.Level),
		zap.Int("concurrency", cfg.Scan.Concurrency),
		zap.Duration("timeout", cfg.Timeout))

	return cfg, nil
}

// withTimeout applies the configured run timeout, if any.
func withTimeout(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.Timeout > 0 {
		return context.WithTimeout(ctx, cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// printf writes a result line; stdout failures are not recoverable.
func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
