package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	clierr "github.com/DeusData/symtab-snapshot/internal/errors"
	"github.com/DeusData/symtab-snapshot/internal/pipeline"
)

func newGenerateCommand(a *app) *cobra.Command {
	var of orgFlags
	var snapshotKey string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a snapshot from the latest imported container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.cfg.PipelineOptions()
			of.apply(&opts)
			opts.SnapshotKey = snapshotKey
			if opts.OrgID == "" && opts.ContainerID == "" {
				return clierr.NewInputError("No org selected", "neither --org, --container nor org.id is set",
					"Pass --org or set org.id in the config")
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			bar := newSpinner(a.globals, "generating")
			if bar != nil {
				opts.Progress = func(stage string, n int) {
					bar.Describe("generating " + stage)
					_ = bar.Add(n)
				}
			}
			res, err := pipeline.New(cmd.Context(), s, opts).Run()
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return err
			}
			return printResult(cmd, a, res)
		},
	}
	cmd.Flags().AddFlagSet(of.flagSet())
	cmd.Flags().StringVar(&snapshotKey, "snapshot-key", "", "rerun into an existing snapshot instead of creating one")
	return cmd
}

func printResult(cmd *cobra.Command, a *app, res *pipeline.Result) error {
	counts := map[string]int{}
	for k, n := range res.Counts {
		counts[k.String()] = n
	}
	if a.globals.JSON {
		return printJSON(cmd, map[string]any{
			"snapshot_id":  res.SnapshotID,
			"snapshot_key": res.SnapshotKey,
			"run_id":       res.RunID,
			"container_id": res.ContainerID,
			"counts":       counts,
			"elapsed":      res.Elapsed.String(),
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "snapshot %d (%s) from container %s in %s\n",
		res.SnapshotID, res.SnapshotKey, res.ContainerID, res.Elapsed.Round(time.Millisecond))
	for _, k := range entity.CommitOrder[1:] {
		fmt.Fprintf(out, "  %-24s %d\n", k, res.Counts[k])
	}
	if res.Generated.NoSymbolTable > 0 {
		fmt.Fprintf(out, "  %d members had no symbol table\n", res.Generated.NoSymbolTable)
	}
	return nil
}
