package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"docverify/internal/app"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and maintain local records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local records",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, _, err := newApp(ctx, "RecordsList")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		recs := a.Records(ctx)
		if len(recs) == 0 {
			fmt.Println("No records.")
			return nil
		}

		hashes := make([]string, 0, len(recs))
		for h := range recs {
			hashes = append(hashes, h)
		}
		sort.Slice(hashes, func(i, j int) bool {
			return recs[hashes[i]].Timestamp.Before(recs[hashes[j]].Timestamp)
		})
		for _, h := range hashes {
			r := recs[h]
			onLedger := " "
			if r.BlockchainStored {
				onLedger = "L"
			}
			fmt.Printf("%-16s  %-8s %s  %s  %s\n", shortHash(h), r.Status, onLedger, r.Timestamp.Format("2006-01-02 15:04:05"), r.FileName)
		}
		return nil
	},
}

var recordsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count local records by status",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, _, err := newApp(ctx, "RecordsStats")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		s := a.Stats(ctx)
		fmt.Printf("total:      %d\n", s.Total)
		fmt.Printf("verified:   %d\n", s.Verified)
		fmt.Printf("pending:    %d\n", s.Pending)
		fmt.Printf("failed:     %d\n", s.Failed)
		fmt.Printf("local only: %d\n", s.LocalOnly)
		return nil
	},
}

// batchCmd builds a maintenance subcommand that runs fn and reports how many
// records it changed.
func batchCmd(use, short, operation, verb string, fn func(ctx context.Context, cmd *cobra.Command, a *app.DocApp) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			a, _, err := newApp(ctx, operation)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a, &err)

			n, err := fn(ctx, cmd, a)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d record(s)\n", verb, n)
			return nil
		},
	}
}

var recordsMigrateCmd = batchCmd("migrate", "Move records stored under legacy keys", "RecordsMigrate", "Migrated",
	func(ctx context.Context, _ *cobra.Command, a *app.DocApp) (int, error) {
		return a.MigrateRecords(ctx)
	})

var recordsRepairCmd = batchCmd("repair", "Backfill or drop malformed records", "RecordsRepair", "Repaired",
	func(ctx context.Context, _ *cobra.Command, a *app.DocApp) (int, error) {
		return a.RepairRecords(ctx)
	})

var recordsCleanupCmd = batchCmd("cleanup", "Remove stale local-only records", "RecordsCleanup", "Removed",
	func(ctx context.Context, cmd *cobra.Command, a *app.DocApp) (int, error) {
		maxAge, _ := cmd.Flags().GetDuration("older-than")
		return a.CleanupRecords(ctx, maxAge)
	})

var recordsClearCmd = batchCmd("clear", "Remove every local record", "RecordsClear", "Removed",
	func(ctx context.Context, cmd *cobra.Command, a *app.DocApp) (int, error) {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return 0, errors.New("refusing to clear records without --yes")
		}
		return a.ClearRecords(ctx)
	})

func init() {
	recordsCleanupCmd.Flags().Duration("older-than", 30*24*time.Hour, "Only remove records older than this")
	recordsClearCmd.Flags().Bool("yes", false, "Confirm removal of every record")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsStatsCmd)
	recordsCmd.AddCommand(recordsMigrateCmd)
	recordsCmd.AddCommand(recordsRepairCmd)
	recordsCmd.AddCommand(recordsCleanupCmd)
	recordsCmd.AddCommand(recordsClearCmd)
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
