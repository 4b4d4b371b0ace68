package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dshills/envforge/internal/app"
	"github.com/dshills/envforge/internal/config/watcher"
	"github.com/dshills/envforge/internal/envcache"
)

// rootFlags are the flags shared by every subcommand.
type rootFlags struct {
	configPath string
	root       string
	workDir    string
	envs       []string
	labels     []string
	overrides  []string
	recreate   bool
	logLevel   string
	logFormat  string
}

func newRootCommand(version, commit, date string) *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "envforge",
		Short: "envforge - test environment configuration and cache",
		Long: `envforge reads a project file (envforge.toml, envforge.ini, envforge.jsonc
or the [tool.envforge] table of pyproject.toml), resolves the configuration of
each test environment and decides whether an environment on disk can be
reused.

Arguments after "--" are substituted for {posargs}.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "conf", "c", "", "project file (default: discovered in the current directory)")
	pf.StringVar(&flags.root, "root", "", "project root directory")
	pf.StringVar(&flags.workDir, "workdir", "", "working directory for environments")
	pf.StringArrayVarP(&flags.envs, "env", "e", nil, "environment to act on (repeatable, comma separated)")
	pf.StringSliceVarP(&flags.labels, "labels", "m", nil, "select environments by label")
	pf.StringArrayVarP(&flags.overrides, "override", "x", nil, "override a value: NAMESPACE.KEY=VALUE or NAMESPACE.KEY+=VALUE")
	pf.BoolVarP(&flags.recreate, "recreate", "r", false, "treat every environment as needing recreation")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "auto", "log format (console, json, auto)")

	rootCmd.AddCommand(newListCommand(&flags, version))
	rootCmd.AddCommand(newConfigCommand(&flags, version))
	rootCmd.AddCommand(newStatusCommand(&flags, version))
	rootCmd.AddCommand(newCommitCommand(&flags, version))

	return rootCmd
}

// open builds the application for a subcommand. Arguments after "--" become
// the positional arguments; anything before it is rejected.
func open(cmd *cobra.Command, args []string, flags *rootFlags, version string) (*app.Application, error) {
	opts := app.Options{
		ConfigPath: flags.configPath,
		Root:       flags.root,
		WorkDir:    flags.workDir,
		Envs:       splitEnvs(flags.envs),
		Labels:     flags.labels,
		Overrides:  flags.overrides,
		Recreate:   flags.recreate,
		LogLevel:   flags.logLevel,
		LogFormat:  flags.logFormat,
		Version:    version,
	}
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		if dash > 0 {
			return nil, fmt.Errorf("unexpected argument: %s", args[0])
		}
		opts.PosArgs = append([]string{}, args[dash:]...)
	} else if len(args) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s (positional arguments go after --)", args[0])
	}
	return app.New(opts)
}

// splitEnvs accepts both "-e a -e b" and "-e a,b".
func splitEnvs(values []string) []string {
	var out []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func newListCommand(flags *rootFlags, version string) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List environments",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd, args, flags, version)
			if err != nil {
				return err
			}
			infos, err := a.List()
			if err != nil {
				return err
			}
			if jsonOutput {
				return emitJSON(cmd.OutOrStdout(), infos)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "NAME\tDEFAULT\tLABELS\tDESCRIPTION\n")
			for _, info := range infos {
				def := ""
				if info.Default {
					def = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, def, strings.Join(info.Labels, ","), info.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newConfigCommand(flags *rootFlags, version string) *cobra.Command {
	var (
		keys   []string
		format string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Show the resolved configuration of the core namespace and of every
selected environment. Values that fail to resolve are shown with their error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			show := func(a *app.Application) error {
				return a.RenderConfig(cmd.OutOrStdout(), format, keys)
			}
			if watch {
				return watchProject(cmd, args, flags, version, show)
			}
			a, err := open(cmd, args, flags, version)
			if err != nil {
				return err
			}
			return show(a)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "show again whenever the project file changes")
	cmd.Flags().StringSliceVarP(&keys, "key", "k", nil, "only show these keys")
	cmd.Flags().StringVar(&format, "format", app.FormatINI, "output format (ini, yaml, json)")
	return cmd
}

func newStatusCommand(flags *rootFlags, version string) *cobra.Command {
	var jsonOutput, watch bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether each environment can be reused",
		RunE: func(cmd *cobra.Command, args []string) error {
			show := func(a *app.Application) error {
				status, err := a.Status(cmd.Context())
				if len(status) > 0 {
					if perr := printStatus(cmd.OutOrStdout(), status, jsonOutput); perr != nil {
						return perr
					}
				}
				return err
			}
			if watch {
				return watchProject(cmd, args, flags, version, show)
			}
			a, err := open(cmd, args, flags, version)
			if err != nil {
				return err
			}
			return show(a)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "show again whenever the project file changes")
	return cmd
}

func newCommitCommand(flags *rootFlags, version string) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the current configuration of each environment as built",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd, args, flags, version)
			if err != nil {
				return err
			}
			status, err := a.Commit(cmd.Context())
			if len(status) > 0 {
				if perr := printStatus(cmd.OutOrStdout(), status, jsonOutput); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

// watchProject runs show once and again after every change to the project
// file, until the command context is cancelled. Failures are reported and
// the watch goes on.
func watchProject(cmd *cobra.Command, args []string, flags *rootFlags, version string, show func(*app.Application) error) error {
	a, err := open(cmd, args, flags, version)
	if err != nil {
		return err
	}
	log := a.Logger().WithComponent("watch")
	path := a.Config().Source().Path()

	w, err := watcher.New(watcher.WithLogger(log))
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Watch(path); err != nil {
		return err
	}

	report := func(err error) {
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("error: "+err.Error()))
		}
	}
	report(show(a))
	return w.Run(cmd.Context(), func(e watcher.Event) {
		log.Info("%s: %s", e.Op, e.Path)
		fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(fmt.Sprintf("--- %s %s", e.Path, e.Time.Format("15:04:05"))))
		a, err := open(cmd, args, flags, version)
		if err != nil {
			report(err)
			return
		}
		report(show(a))
	})
}

var headerStyle = lipgloss.NewStyle().Bold(true)

var actionStyles = map[envcache.Action]lipgloss.Style{
	envcache.Create:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	envcache.Keep:     lipgloss.NewStyle().Faint(true),
	envcache.Recreate: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
}

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

type statusEntry struct {
	Name        string   `json:"name"`
	EnvDir      string   `json:"env_dir"`
	Interpreter string   `json:"interpreter,omitempty"`
	Action      string   `json:"action,omitempty"`
	Added       []string `json:"added,omitempty"`
	Removed     []string `json:"removed,omitempty"`
	Changed     []string `json:"changed,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func printStatus(w io.Writer, status []app.EnvStatus, asJSON bool) error {
	if asJSON {
		entries := make([]statusEntry, 0, len(status))
		for _, st := range status {
			e := statusEntry{
				Name:        st.Name,
				EnvDir:      st.EnvDir,
				Interpreter: st.Interpreter.Executable,
				Added:       st.Diff.Added,
				Removed:     st.Diff.Removed,
				Changed:     st.Diff.Changed,
			}
			if st.Err != nil {
				e.Error = st.Err.Error()
			} else {
				e.Action = st.Action.String()
			}
			entries = append(entries, e)
		}
		return emitJSON(w, entries)
	}

	// Styled text goes in the last column so escapes do not skew alignment.
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "NAME\tINTERPRETER\tACTION\n")
	for _, st := range status {
		if st.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Name, "-", errorStyle.Render("error: "+st.Err.Error()))
			continue
		}
		action := actionStyles[st.Action].Render(st.Action.String())
		if reason := diffSummary(st.Diff); reason != "" {
			action += " (" + reason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Name, st.Interpreter.Executable, action)
	}
	return tw.Flush()
}

func diffSummary(d envcache.Diff) string {
	var parts []string
	if len(d.Changed) > 0 {
		parts = append(parts, "changed: "+strings.Join(d.Changed, ","))
	}
	if len(d.Added) > 0 {
		parts = append(parts, "added: "+strings.Join(d.Added, ","))
	}
	if len(d.Removed) > 0 {
		parts = append(parts, "removed: "+strings.Join(d.Removed, ","))
	}
	return strings.Join(parts, "; ")
}

func emitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
