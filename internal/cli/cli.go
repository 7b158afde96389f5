package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/modgate/internal/config"
	"github.com/vk/modgate/internal/livefeed"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Mode selects which process lifecycle to run.
type Mode int

const (
	ModeServe Mode = iota + 1
	ModeWorker
	ModeWatch
)

// Invocation is a parsed command line.
type Invocation struct {
	Mode   Mode
	Config *config.Config
	Watch  livefeed.WatchOptions
}

type serveFlags struct {
	configFile     string
	envFile        string
	portBase       int
	workers        int
	modulesPath    string
	allowList      string
	auditLog       string
	logFormat      string
	logLevel       string
	strictFallback bool
	liveFeed       bool
}

// Parse processes command-line arguments. It returns the invocation to run,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	var inv *Invocation

	root := &cobra.Command{
		Use:   "modgate",
		Short: "modgate - a multi-process module server with shared state.",
		Long: `modgate serves pluggable modules over HTTP from a pool of worker processes.

Callers on the plaintext port are read-only. Callers on the TLS port that
present a client certificate whose common name is on the allow list may
call privileged functions. Module state is shared by every worker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)
	root.CompletionOptions.DisableDefaultCmd = true

	var sf serveFlags
	defaults := config.Default()
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Bind the listeners and supervise the worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(cmd, &sf)
			if err != nil {
				return err
			}
			inv = &Invocation{Mode: ModeServe, Config: cfg}
			return nil
		},
	}
	fs := serve.Flags()
	fs.StringVarP(&sf.configFile, "config", "c", "", "Path to an HCL configuration file.")
	fs.StringVar(&sf.envFile, "env-file", ".env", "Path to a .env file; a missing file is ignored.")
	fs.IntVar(&sf.portBase, "port-base", defaults.PortBase, "Port base; plaintext listens on base+80, TLS on base+443.")
	fs.IntVarP(&sf.workers, "workers", "w", defaults.Workers, "Number of worker processes. 0 uses the CPU count.")
	fs.StringVar(&sf.modulesPath, "modules-path", defaults.ModulesPath, "Path to the directory containing module manifests.")
	fs.StringVar(&sf.allowList, "allow-list", defaults.AllowList, "Path to the HCL allow list of privileged identities.")
	fs.StringVar(&sf.auditLog, "audit-log", defaults.AuditLog, "Path of the append-only activity log. Empty disables it.")
	fs.StringVar(&sf.logFormat, "log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	fs.StringVar(&sf.logLevel, "log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.BoolVar(&sf.strictFallback, "strict-fallback", defaults.StrictFallback, "Only fall back to read-only handlers when the privileged one is missing or not implemented.")
	fs.BoolVar(&sf.liveFeed, "live-feed", defaults.LiveFeed, "Serve the socket.io state feed.")

	worker := &cobra.Command{
		Use:    "worker",
		Short:  "Serve requests on listeners inherited from the master",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			encoded, ok := os.LookupEnv(config.WorkerConfigEnv)
			if !ok {
				return &ExitError{Code: 2, Message: "the worker command is started by 'modgate serve'"}
			}
			cfg, err := config.Decode(encoded)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			inv = &Invocation{Mode: ModeWorker, Config: cfg}
			return nil
		},
	}

	var wo livefeed.WatchOptions
	watch := &cobra.Command{
		Use:   "watch URL",
		Short: "Print live state changes from a running worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wo.URL = args[0]
			inv = &Invocation{Mode: ModeWatch, Config: &defaults, Watch: wo}
			return nil
		},
	}
	watch.Flags().StringVarP(&wo.Module, "module", "m", "", "Only print changes to this module.")
	watch.Flags().BoolVarP(&wo.InsecureSkipVerify, "insecure", "k", false, "Skip TLS certificate verification.")

	root.AddCommand(serve, worker, watch)

	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if inv == nil {
		slog.Debug("No command selected, exiting.")
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "mode", inv.Mode)
	return inv, false, nil
}

// resolve layers defaults, the config file, the environment and finally
// the flags the user set explicitly.
func resolve(cmd *cobra.Command, sf *serveFlags) (*config.Config, error) {
	cfg := config.Default()

	if sf.configFile != "" {
		if err := config.LoadFile(sf.configFile, &cfg); err != nil {
			return nil, &ExitError{Code: 2, Message: err.Error()}
		}
	}
	if err := config.LoadDotEnv(sf.envFile); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}

	fs := cmd.Flags()
	if fs.Changed("port-base") {
		cfg.PortBase = sf.portBase
	}
	if fs.Changed("workers") {
		cfg.Workers = sf.workers
	}
	if fs.Changed("modules-path") {
		cfg.ModulesPath = sf.modulesPath
	}
	if fs.Changed("allow-list") {
		cfg.AllowList = sf.allowList
	}
	if fs.Changed("audit-log") {
		cfg.AuditLog = sf.auditLog
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = strings.ToLower(sf.logFormat)
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(sf.logLevel)
	}
	if fs.Changed("strict-fallback") {
		cfg.StrictFallback = sf.strictFallback
	}
	if fs.Changed("live-feed") {
		cfg.LiveFeed = sf.liveFeed
	}
	slog.Debug("CLI parameter validation starting.")

	if err := cfg.Validate(); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return &cfg, nil
}
