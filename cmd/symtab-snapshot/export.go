package main

import (
	"fmt"

	"github.com/spf13/cobra"

	clierr "github.com/DeusData/symtab-snapshot/internal/errors"
	"github.com/DeusData/symtab-snapshot/internal/export"
)

func newExportCommand(a *app) *cobra.Command {
	var dir, bucket string
	cmd := &cobra.Command{
		Use:   "export <snapshot-id>",
		Short: "Write a snapshot as JSON lines to a directory or a GCS bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			if bucket == "" {
				bucket = a.cfg.Export.GCSBucket
			}
			if dir == "" {
				dir = a.cfg.Export.Dir
			}

			var sink export.Sink = export.FileSink{Dir: dir}
			if bucket != "" {
				gcs, err := export.NewGCSSink(cmd.Context(), bucket)
				if err != nil {
					return clierr.NewConfigError("Cannot reach Cloud Storage", err.Error(),
						"Set up application default credentials or drop --gcs-bucket", err)
				}
				defer gcs.Close()
				sink = gcs
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			res, err := export.Write(cmd.Context(), s, sink, id)
			if err != nil {
				return err
			}
			if a.globals.JSON {
				return printJSON(cmd, map[string]any{"snapshot_id": res.SnapshotID, "records": res.Records, "location": res.Location})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", res.Records, res.Location)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (overrides export.dir)")
	cmd.Flags().StringVar(&bucket, "gcs-bucket", "", "write to this Cloud Storage bucket instead of a directory")
	return cmd
}
