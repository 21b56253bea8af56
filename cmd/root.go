// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cloudgames/schemaboot/cmd/flags"
	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/config"
	"github.com/cloudgames/schemaboot/pkg/metrics"
)

// Version is the schemaboot version
var Version = "development"

func init() {
	viper.SetEnvPrefix("SCHEMABOOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("env-file", ".env", "File of environment variables loaded before the configuration is read")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().Int("max-retries", bootstrap.DefaultMaxRetries, "Maximum number of attempts per database, overrides the configuration file")
	rootCmd.PersistentFlags().Duration("delay", bootstrap.DefaultDelay, "Delay between attempts, overrides the configuration file")
	rootCmd.PersistentFlags().Duration("attempt-timeout", bootstrap.DefaultAttemptTimeout, "Upper bound on a single attempt, overrides the configuration file")
	rootCmd.PersistentFlags().String("backoff", string(bootstrap.BackoffFixed), "Backoff strategy: fixed or exponential, overrides the configuration file")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"ENV_FILE":        "env-file",
		"LOG_FORMAT":      "log-format",
		"LOG_LEVEL":       "log-level",
		"MAX_RETRIES":     "max-retries",
		"DELAY":           "delay",
		"ATTEMPT_TIMEOUT": "attempt-timeout",
		"BACKOFF":         "backoff",
	})
}

var rootCmd = &cobra.Command{
	Use:               "schemaboot",
	Short:             "Create and migrate the databases of a service before it starts",
	SilenceUsage:      true,
	Version:           Version,
	PersistentPreRunE: loadEnvFile,
}

// loadEnvFile loads the env file into the process environment. Variables
// already set are left untouched. A missing default file is not an error.
func loadEnvFile(cmd *cobra.Command, _ []string) error {
	path := flags.EnvFile()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// bindFlags binds each viper key to the flag of the given name.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		viper.BindPFlag(key, fs.Lookup(name))
	}
}

// Prepare registers the subcommands and returns the root command.
func Prepare() *cobra.Command {
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(serveCmd())

	return rootCmd
}

// Execute executes the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Prepare().ExecuteContext(ctx)
}

// NewLogger builds the pterm logger configured by the log flags. Logs go to
// stderr so that command output on stdout stays machine readable.
func NewLogger() (*pterm.Logger, error) {
	logger := pterm.DefaultLogger.WithWriter(os.Stderr)

	switch flags.LogFormat() {
	case "text":
		logger = logger.WithFormatter(pterm.LogFormatterColorful)
	case "json":
		logger = logger.WithFormatter(pterm.LogFormatterJSON)
	default:
		return nil, errInvalidLogFormat
	}

	levels := map[string]pterm.LogLevel{
		"trace": pterm.LogLevelTrace,
		"debug": pterm.LogLevelDebug,
		"info":  pterm.LogLevelInfo,
		"warn":  pterm.LogLevelWarn,
		"error": pterm.LogLevelError,
	}
	level, ok := levels[strings.ToLower(flags.LogLevel())]
	if !ok {
		return nil, errInvalidLogLevel
	}

	return logger.WithLevel(level), nil
}

// NewCoordinator builds a coordinator from the configuration file. Retry
// settings given as flags or environment variables take precedence.
func NewCoordinator(cfg *config.Config) (*bootstrap.Coordinator, error) {
	logger, err := NewLogger()
	if err != nil {
		return nil, err
	}

	opts := cfg.CoordinatorOptions()
	if flags.IsSet("MAX_RETRIES") {
		opts = append(opts, bootstrap.WithMaxRetries(flags.MaxRetries()))
	}
	if flags.IsSet("DELAY") {
		opts = append(opts, bootstrap.WithDelay(flags.Delay()))
	}
	if flags.IsSet("ATTEMPT_TIMEOUT") {
		opts = append(opts, bootstrap.WithAttemptTimeout(flags.AttemptTimeout()))
	}
	if flags.IsSet("BACKOFF") {
		strategy := bootstrap.BackoffStrategy(flags.Backoff())
		if strategy != bootstrap.BackoffFixed && strategy != bootstrap.BackoffExponential {
			return nil, errInvalidBackoff
		}
		opts = append(opts, bootstrap.WithBackoffStrategy(strategy))
	}
	opts = append(opts, bootstrap.WithLogger(metrics.NewLogger(bootstrap.NewLogger(logger))))

	return bootstrap.New(opts...), nil
}
