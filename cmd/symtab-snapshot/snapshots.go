package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	clierr "github.com/DeusData/symtab-snapshot/internal/errors"
)

func newSnapshotsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect stored snapshots",
	}
	cmd.AddCommand(
		newSnapshotsListCommand(a),
		newSnapshotsShowCommand(a),
		newSnapshotsUnreferencedCommand(a),
		newSnapshotsCompareCommand(a),
	)
	return cmd
}

func parseSnapshotID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, clierr.NewInputError("Invalid snapshot id "+strconv.Quote(arg), "snapshot ids are positive integers",
			"Run: symtab-snapshot snapshots list")
	}
	return id, nil
}

func newSnapshotsListCommand(a *app) *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an org's snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if org == "" {
				org = a.cfg.Org.ID
			}
			if org == "" {
				return clierr.NewInputError("No org selected", "neither --org nor org.id is set", "Pass --org")
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			snaps, err := s.ListSnapshots(cmd.Context(), org)
			if err != nil {
				return err
			}
			if a.globals.JSON {
				if snaps == nil {
					snaps = []*entity.Record{}
				}
				return printJSON(cmd, snaps)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLATEST\tCREATED\tCONTAINER\tRUN")
			for _, sn := range snaps {
				latest := ""
				if sn.Bool(entity.FieldIsLatest) {
					latest = "*"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", sn.ID, latest, sn.String(entity.FieldCreatedAt),
					sn.String(entity.FieldContainerID), sn.String(entity.FieldRunID))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "org id (overrides org.id)")
	return cmd
}

func newSnapshotsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Show entity counts and score buckets of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			sum, err := s.SnapshotSummary(cmd.Context(), id)
			if err != nil {
				return clierr.NewNotFoundError("Snapshot not found", err.Error(), "Run: symtab-snapshot snapshots list")
			}
			if a.globals.JSON {
				return printJSON(cmd, sum)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot %d  org %s  latest %t  created %s\n", id,
				sum.Snapshot.String(entity.FieldOrgID), sum.Snapshot.Bool(entity.FieldIsLatest),
				sum.Snapshot.String(entity.FieldCreatedAt))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tCOUNT\tZERO\tLOW\tHIGH\tMAX")
			for _, k := range entity.CommitOrder[1:] {
				name := k.String()
				b, scored := sum.Scores[name]
				if !scored {
					fmt.Fprintf(tw, "%s\t%d\t\t\t\t\n", name, sum.Counts[name])
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", name, sum.Counts[name], b.Zero, b.Low, b.High, b.Maximum)
			}
			return tw.Flush()
		},
	}
}

func newSnapshotsUnreferencedCommand(a *app) *cobra.Command {
	var (
		maxScore float64
		kinds    []string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "unreferenced <snapshot-id>",
		Short: "List classes, triggers and methods scored at most --max-score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			var ks []entity.Kind
			for _, name := range kinds {
				k, err := entity.ParseKind(strings.TrimSpace(name))
				if err != nil {
					return clierr.NewInputError("Invalid --kind", err.Error(), "Use Class, Trigger or Method")
				}
				ks = append(ks, k)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			recs, err := s.Unreferenced(cmd.Context(), id, maxScore, ks, limit)
			if err != nil {
				return clierr.NewInputError("Cannot list unreferenced entities", err.Error(), "Use Class, Trigger or Method")
			}
			if a.globals.JSON {
				if recs == nil {
					recs = []*entity.Record{}
				}
				return printJSON(cmd, recs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tKIND\tNAME")
			for _, r := range recs {
				fmt.Fprintf(tw, "%g\t%s\t%s\n", r.Score(), r.Kind, r.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Float64Var(&maxScore, "max-score", 0, "highest score still listed")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "kinds to list (Class, Trigger, Method)")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func newSnapshotsCompareCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <from-id> <to-id>",
		Short: "Classes added, removed or changed between two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			to, err := parseSnapshotID(args[1])
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			cmp, err := s.CompareSnapshots(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			if a.globals.JSON {
				return printJSON(cmd, cmp)
			}
			out := cmd.OutOrStdout()
			for _, sec := range []struct {
				mark  string
				names []string
			}{{"+", cmp.Added}, {"-", cmp.Removed}, {"~", cmp.Changed}} {
				for _, n := range sec.names {
					fmt.Fprintf(out, "%s %s\n", sec.mark, n)
				}
			}
			fmt.Fprintf(out, "%d added, %d removed, %d changed\n", len(cmp.Added), len(cmp.Removed), len(cmp.Changed))
			return nil
		},
	}
}
