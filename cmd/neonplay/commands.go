package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dshills/neonplay/internal/app"
	"github.com/dshills/neonplay/internal/plugin"
	coreversion "github.com/dshills/neonplay/internal/version"
)

// env is what a command runs with.
type env struct {
	globals
	args   []string
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	summary string
	args    []string
	run     func(*env) error
}

func (c command) argsUsage() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = "<" + a + ">"
	}
	return strings.Join(parts, " ")
}

var commands = map[string]command{
	"run":      {summary: "run the player and load enabled plugins (default)", run: runPlayer},
	"list":     {summary: "list discovered plugins and their state", run: listPlugins},
	"validate": {summary: "check a plugin directory or .lua file", args: []string{"path"}, run: validatePlugin},
	"enable":   {summary: "enable a plugin on the next run", args: []string{"id"}, run: setEnabled(true)},
	"disable":  {summary: "disable a plugin on the next run", args: []string{"id"}, run: setEnabled(false)},
	"version":  {summary: "show version information", run: showVersion},
}

var commandOrder = []string{"run", "list", "validate", "enable", "disable", "version"}

// openApp builds the application for a one-shot command and registers
// the discovered plugins without loading them.
func openApp(e *env) (*app.Application, error) {
	level := e.logLevel
	if level == "" {
		level = "warn"
	}
	application, err := app.New(app.Options{
		ConfigPath: e.configPath,
		LogLevel:   level,
		LogOutput:  e.stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	if err := application.LoadPlugins(context.Background()); err != nil {
		fmt.Fprintf(e.stderr, "Warning: %v\n", err)
	}
	return application, nil
}

func listPlugins(e *env) error {
	application, err := openApp(e)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	sys := application.Plugins()
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tSTATE\tPERMISSIONS\tSOURCE")
	for _, st := range sys.Registry().List() {
		d := st.Descriptor
		perms := make([]string, 0, len(d.Permissions()))
		for _, p := range d.Permissions() {
			perms = append(perms, string(p))
		}
		source := d.Dir()
		if info, ok := sys.Source(d.ID()); ok {
			source = info.Entry
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID(), d.Version(), st.State, dash(strings.Join(perms, ",")), source)
	}
	for _, info := range sys.Loader().Errors() {
		fmt.Fprintf(tw, "%s\t-\terror\t-\t%v\n", info.ID, info.Err)
	}
	return tw.Flush()
}

func validatePlugin(e *env) error {
	d, err := plugin.Validate(context.Background(), e.args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "ok %s %s\n", d.ID(), d.Version())
	return nil
}

func setEnabled(enabled bool) func(*env) error {
	return func(e *env) error {
		application, err := openApp(e)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		id := e.args[0]
		sys := application.Plugins()
		var ok bool
		if enabled {
			ok = sys.Enable(context.Background(), id)
		} else {
			ok = sys.Disable(context.Background(), id)
		}
		if !ok {
			return fmt.Errorf("%w: %s", plugin.ErrPluginNotFound, id)
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Fprintf(e.stdout, "%s %s\n", id, state)
		return nil
	}
}

func showVersion(e *env) error {
	printVersion(e.stdout)
	fmt.Fprintf(e.stdout, "Plugin API: %s\n", coreversion.Core)
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
