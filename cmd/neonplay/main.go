// Package main is the entry point for the neonplay player core.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dshills/neonplay/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// globals are the flags accepted before the command name.
type globals struct {
	configPath string
	logLevel   string
}

func run(args []string, stdout, stderr io.Writer) int {
	var g globals
	var showVersion, showHelp bool

	fs := pflag.NewFlagSet("neonplay", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.StringVarP(&g.configPath, "config", "c", "", "path to configuration file")
	fs.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVarP(&showVersion, "version", "v", false, "show version information")
	fs.BoolVarP(&showHelp, "help", "h", false, "show help message")
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showHelp {
		usage(stdout, fs)
		return 0
	}
	if showVersion {
		printVersion(stdout)
		return 0
	}

	name, rest := "run", fs.Args()
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", name)
		usage(stderr, fs)
		return 2
	}
	if len(rest) != len(cmd.args) {
		fmt.Fprintf(stderr, "Usage: neonplay %s %s\n", name, cmd.argsUsage())
		return 2
	}

	if err := cmd.run(&env{globals: g, args: rest, stdout: stdout, stderr: stderr}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "neonplay - extensible music player core\n\n")
	fmt.Fprintf(w, "Usage: neonplay [options] [command] [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Fprintf(w, "  %-24s %s\n", name+" "+cmd.argsUsage(), cmd.summary)
	}
	fmt.Fprintf(w, "\nOptions:\n")
	fmt.Fprint(w, fs.FlagUsages())
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "neonplay %s\n", version)
	fmt.Fprintf(w, "Commit: %s\n", commit)
	fmt.Fprintf(w, "Built: %s\n", date)
}

// runPlayer runs the player until SIGINT or SIGTERM.
func runPlayer(e *env) error {
	application, err := app.New(app.Options{
		ConfigPath: e.configPath,
		LogLevel:   e.logLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	// Ensure cleanup on all exit paths
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}
