package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DeusData/symtab-snapshot/internal/config"
	clierr "github.com/DeusData/symtab-snapshot/internal/errors"
	"github.com/DeusData/symtab-snapshot/internal/store"
	"github.com/DeusData/symtab-snapshot/internal/tools"
)

var version = "dev"

// GlobalFlags are shared by every command.
type GlobalFlags struct {
	ConfigPath string
	DBPath     string
	Debug      bool
	JSON       bool
	NoColor    bool
	Quiet      bool
}

// app carries what PersistentPreRunE prepared for the command being run.
type app struct {
	globals GlobalFlags
	cfg     *config.Config
}

func (a *app) openStore() (*store.Store, error) {
	s, err := store.OpenPath(a.cfg.Store.Path)
	if err != nil {
		return nil, clierr.NewDatabaseError("Cannot open snapshot database", err.Error(),
			"Check store.path in the config or pass --db", err)
	}
	return s, nil
}

func setupLogging(g GlobalFlags) {
	level := slog.LevelInfo
	if g.Debug {
		level = slog.LevelDebug
	} else if g.Quiet || g.JSON {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "symtab-snapshot",
		Short: "Build scored snapshots of compiled symbol tables",
		Long: `symtab-snapshot imports compiled symbol tables of an org, turns them into a
snapshot of classes, triggers, methods, properties and references, and scores
how reachable each class and method is from outside the code.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(a.globals)
			cfg, err := config.Load(a.globals.ConfigPath)
			if err != nil {
				return clierr.NewConfigError("Cannot load configuration", err.Error(),
					"Fix the named key in "+a.globals.ConfigPath+" or the matching SYMTAB_ variable", err)
			}
			if a.globals.DBPath != "" {
				cfg.Store.Path = a.globals.DBPath
			}
			a.cfg = cfg
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.globals.ConfigPath, "config", "c", "symtab-snapshot.yaml", "config file")
	pf.StringVar(&a.globals.DBPath, "db", "", "snapshot database (overrides store.path)")
	pf.BoolVar(&a.globals.Debug, "debug", false, "debug logging")
	pf.BoolVar(&a.globals.JSON, "json", false, "machine-readable output")
	pf.BoolVar(&a.globals.NoColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&a.globals.Quiet, "quiet", "q", false, "no progress output")

	root.AddCommand(
		newImportCommand(a),
		newGenerateCommand(a),
		newSnapshotsCommand(a),
		newExportCommand(a),
		newServeCommand(a),
		newMCPCommand(a),
	)
	return root
}

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the snapshot tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			tools.Version = version
			return tools.NewServer(s, a.cfg.PipelineOptions()).Run(cmd.Context())
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCommand()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		jsonOut, _ := root.PersistentFlags().GetBool("json")
		noColor, _ := root.PersistentFlags().GetBool("no-color")
		code := clierr.Print(os.Stderr, err, jsonOut, noColor)
		if code == clierr.ExitSuccess {
			code = clierr.ExitInternal
		}
		os.Exit(code)
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := jsonEncoder(cmd.OutOrStdout())
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
