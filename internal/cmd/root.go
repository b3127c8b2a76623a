package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/offlinefirst/deskrec/internal/buildinfo"
	"github.com/offlinefirst/deskrec/internal/telemetry"
	"github.com/offlinefirst/deskrec/pkg/config"
	"github.com/offlinefirst/deskrec/pkg/layout"
	"github.com/offlinefirst/deskrec/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

// AppContext exposes lazily initialised configuration, logging and telemetry.
type AppContext struct {
	Config    config.Config
	Logger    *slog.Logger
	Layout    layout.Layout
	Telemetry *telemetry.Providers
}

// RootCommand wraps the cobra tree and the state shared by its subcommands.
type RootCommand struct {
	cmd        *cobra.Command
	viper      *viper.Viper
	stdout     io.Writer
	stderr     io.Writer
	appCtx     *AppContext
	logCloser  io.Closer
	configPath string
}

// Test seams.
var (
	timeNow       = time.Now
	initTelemetry = telemetry.Init
)

// NewRootCommand constructs the CLI with its subcommands and global flags.
func NewRootCommand() *RootCommand {
	rc := &RootCommand{
		viper:  viper.New(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	root := &cobra.Command{
		Use:   "deskrec",
		Short: "Desktop screen recorder with a timestamped input log",
		Long: `deskrec records the screen to a WebM file while logging mouse movements and
key presses with millisecond offsets from the start of the recording.`,
		Version:       buildinfo.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&rc.configPath, "config", "", "Path to config file (default: ./config.yaml if present)")
	flags.String("log-level", "", "Override log level (debug, info, warn, error)")
	flags.String("log-format", "", "Override log output format (json, console)")
	rc.bindFlags(flags, map[string]string{
		"log-level":  "logging.level",
		"log-format": "logging.format",
	})
	_ = root.RegisterFlagCompletionFunc("log-level", fixedCompletions("debug", "info", "warn", "error"))
	_ = root.RegisterFlagCompletionFunc("log-format", fixedCompletions("json", "console"))

	root.AddCommand(
		rc.newRecordCommand(),
		rc.newSourcesCommand(),
		rc.newInspectCommand(),
		rc.newVersionCommand(),
	)
	rc.cmd = root
	return rc
}

// SetOutput redirects command output, mainly for tests.
func (rc *RootCommand) SetOutput(stdout, stderr io.Writer) {
	rc.stdout = stdout
	rc.stderr = stderr
	rc.cmd.SetOut(stdout)
	rc.cmd.SetErr(stderr)
}

// Execute runs the command named by args and releases logging and telemetry
// resources afterwards.
func (rc *RootCommand) Execute(ctx context.Context, args []string) error {
	rc.cmd.SetArgs(args)
	err := rc.cmd.ExecuteContext(ctx)
	if closeErr := rc.close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(rc.stderr, "Error: %v\n", err)
	}
	return err
}

func (rc *RootCommand) bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := rc.viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func (rc *RootCommand) ensureAppContext(ctx context.Context) (*AppContext, error) {
	if rc.appCtx != nil {
		return rc.appCtx, nil
	}

	cfg, err := config.LoadWith(rc.viper, rc.configPath)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(logging.FromConfig(cfg.Logging, rc.stderr))
	if err != nil {
		return nil, err
	}
	rc.logCloser = closer

	l, err := layout.Build(cfg.Paths)
	if err != nil {
		return nil, err
	}

	providers, err := initTelemetry(ctx, telemetry.Options{
		Enabled:        cfg.Telemetry.Enabled,
		Dir:            l.TelemetryDir,
		Interval:       time.Duration(cfg.Telemetry.ExportIntervalSeconds) * time.Second,
		ServiceVersion: buildinfo.Version(),
		MaxSizeMB:      cfg.Logging.MaxSizeMB,
		MaxBackups:     cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise telemetry: %w", err)
	}

	logger.Info("configuration loaded",
		"source", cfg.Source,
		"output_dir", l.Root,
		"telemetry", providers.Enabled,
	)

	rc.appCtx = &AppContext{Config: cfg, Logger: logger, Layout: l, Telemetry: providers}
	return rc.appCtx, nil
}

func (rc *RootCommand) close(ctx context.Context) error {
	var errs []error
	if rc.appCtx != nil && rc.appCtx.Telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := rc.appCtx.Telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("flush telemetry: %w", err))
		}
		cancel()
	}
	if rc.logCloser != nil {
		if err := rc.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		rc.logCloser = nil
	}
	rc.appCtx = nil
	return errors.Join(errs...)
}

func fixedCompletions(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}
