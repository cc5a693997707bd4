package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds connection flags for commands that query a running daemon.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// buildRoot creates the root command with its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(),
		createRelaysCommand(),
		createTransitionsCommand(),
		createCheckConfigCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "switchr",
		Short: "Live-broadcast fallback switcher and relay supervisor",
		Long: `Switchr keeps a broadcast fed: it watches stream presence on the ingest
tier and relays either a looped offline asset or the live source, while a
persistent relay delivers the result to the final destination.

Examples:
  switchr serve config.toml          # Run the supervisor
  switchr status                     # Query logical state of a running daemon
  switchr transitions --limit=10     # Recent state transitions
  switchr check-config --config=config.toml`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

// addAPIFlags wires the daemon connection flags shared by query commands.
func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://localhost:8888/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the relay supervisor",
		Long: `Run the supervisor daemon: start the offline switch relay and the
delivery relay, then drive transitions from the debounced presence signal.

Examples:
  switchr serve config.toml
  switchr serve --config=config.toml
  switchr serve config.toml --daemonize --logfile=/var/log/switchr.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

func createStatusCommand() *cobra.Command {
	apiFlags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the supervisor's logical state",
		Long: `Show the supervisor's logical state, presence signal and last
transition, queried from a running daemon.

Examples:
  switchr status
  switchr status --api-url=http://remote:8888/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(*apiFlags)
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func createRelaysCommand() *cobra.Command {
	apiFlags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "relays",
		Short: "Show both relay processes",
		Long: `Show records and liveness of the switch and delivery relays.

Examples:
  switchr relays
  switchr relays --api-url=http://remote:8888/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelays(*apiFlags)
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func createTransitionsCommand() *cobra.Command {
	apiFlags := &APIFlags{}
	limit := 20
	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "Show recent state transitions",
		Long: `Show the last N entries of the transition log, newest first.

Examples:
  switchr transitions
  switchr transitions --limit=50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransitions(*apiFlags, limit)
		},
	}
	addAPIFlags(cmd, apiFlags)
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	return cmd
}

func createCheckConfigCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-config [config.toml]",
		Short: "Validate a config file and print resolved values",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			return runCheckConfig(path)
		},
	}
	return cmd
}
