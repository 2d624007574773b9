package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/DeusData/symtab-snapshot/internal/errors"
	"github.com/DeusData/symtab-snapshot/internal/feed"
)

func newImportCommand(a *app) *cobra.Command {
	var of orgFlags
	cmd := &cobra.Command{
		Use:   "import [dir|members.db]",
		Short: "Import compiled members into the snapshot database",
		Long: `Import reads a container of compiled members and stores it as the input
of the next generate run. The source is either a directory holding
classes/*.json, triggers/*.json, an optional jobs.yaml and container.yaml,
or an exported SQLite database with a members table. Without an argument
store.source_path is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := a.cfg.Store.SourcePath
			if len(args) == 1 {
				src = args[0]
			}
			if src == "" {
				return clierr.NewInputError("Nothing to import", "no source given and store.source_path is empty",
					"Pass a bundle directory or an exported members database")
			}
			opts := feed.Options{ContainerID: of.ContainerID, OrgID: of.OrgID, Namespace: of.Namespace}
			if opts.OrgID == "" {
				opts.OrgID = a.cfg.Org.ID
			}

			bundle, err := load(cmd.Context(), src, opts)
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := feed.Import(cmd.Context(), s, bundle)
			if err != nil {
				return clierr.NewDatabaseError("Import failed", err.Error(), "Check the bundle's container and org ids", err)
			}

			classes, triggers := bundle.Counts()
			if a.globals.JSON {
				return printJSON(cmd, map[string]any{
					"container_id": id, "org_id": bundle.Container.OrgID,
					"classes": classes, "triggers": triggers, "scheduled_jobs": len(bundle.Jobs),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported container %s: %d classes, %d triggers, %d scheduled jobs\n",
				id, classes, triggers, len(bundle.Jobs))
			return nil
		},
	}
	cmd.Flags().AddFlagSet(of.flagSet())
	return cmd
}

func load(ctx context.Context, src string, opts feed.Options) (*feed.Bundle, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, clierr.NewNotFoundError("Import source not found", err.Error(), "Check the path")
	}
	var bundle *feed.Bundle
	if info.IsDir() {
		bundle, err = feed.LoadDir(ctx, src, opts)
	} else {
		switch strings.ToLower(filepath.Ext(src)) {
		case ".db", ".sqlite", ".sqlite3":
			bundle, err = feed.LoadSQLite(ctx, src, opts)
		default:
			return nil, clierr.NewInputError("Unsupported import source", src+" is neither a directory nor a SQLite database",
				"Pass a bundle directory or a .db file")
		}
	}
	if err != nil {
		return nil, clierr.NewInputError("Cannot load "+src, err.Error(),
			"Fix the reported member or pass --container and --org for databases without a manifest")
	}
	return bundle, nil
}
