package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Back up and restore local records through the vaults",
}

var snapshotPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Seal the local records and upload them to every vault",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, _, err := newApp(ctx, "SnapshotPush")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		version, err := a.PushSnapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Pushed snapshot version %d\n", version)
		return nil
	},
}

var snapshotPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the local records with the newest snapshot",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, _, err := newApp(ctx, "SnapshotPull")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		res, err := a.PullSnapshot(ctx, passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Restored snapshot version %d: %d record(s), %d migrated, %d repaired\n",
			res.Version, res.Imported, res.Migrated, res.Repaired)
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotPushCmd)
	snapshotCmd.AddCommand(snapshotPullCmd)
}
