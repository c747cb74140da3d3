package cmd

import (
	"fmt"

	"github.com/ambre-sync/reconcile-core/internal/events"
	"github.com/ambre-sync/reconcile-core/internal/pull"
	"github.com/ambre-sync/reconcile-core/internal/push"
	"github.com/ambre-sync/reconcile-core/internal/scheduler"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push and pull reconciliation changes against the network store",
}

var syncPushCmd = &cobra.Command{
	Use:   "push <country>",
	Short: "Push pending local change-log entries to the network store under the global lock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, params, err := serviceContext(ctx)
		if err != nil {
			return err
		}
		stores, err := openCountryStores(args[0], params)
		if err != nil {
			return err
		}
		defer stores.Close()

		engine := push.New(svc, events.NopSink{})
		result, err := engine.PushPendingChanges(ctx, stores.pushCountry(), false)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
		fmt.Printf("push %s: processed=%d synced=%d skipped=%d\n", stores.ID, result.Processed, result.Synced, result.Skipped)
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull <country>",
	Short: "Pull network reconciliation rows newer than the local watermark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, params, err := serviceContext(ctx)
		if err != nil {
			return err
		}
		stores, err := openCountryStores(args[0], params)
		if err != nil {
			return err
		}
		defer stores.Close()

		engine := pull.New()
		result, err := engine.Pull(ctx, stores.pullCountry())
		if err != nil {
			return fmt.Errorf("pull: %w", err)
		}
		fmt.Printf("pull %s: inserted=%d updated=%d unchanged=%d\n", stores.ID, result.Inserted, result.Updated, result.Unchanged)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status <country>",
	Short: "Report whether a push or sync is currently in progress for a country",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		countryID := args[0]
		fmt.Printf("%s: push-in-progress=%v sync-in-progress=%v pending-unsynced=%s\n",
			countryID, syncScheduler().IsPushInProgress(countryID), syncScheduler().IsSynchronizationInProgress(countryID),
			countUnsyncedOrDash(cmd, countryID))
		return nil
	},
}

// countUnsyncedOrDash reports the country's pending change-log count, or
// "?" if the local store cannot be opened (e.g. never initialized).
func countUnsyncedOrDash(cmd *cobra.Command, countryID string) string {
	ctx := cmd.Context()
	_, params, err := serviceContext(ctx)
	if err != nil {
		return "?"
	}
	stores, err := openCountryStores(countryID, params)
	if err != nil {
		return "?"
	}
	defer stores.Close()
	n, err := stores.ChangeLog.CountUnsynced(ctx)
	if err != nil {
		return "?"
	}
	return fmt.Sprintf("%d", n)
}

var sharedScheduler *scheduler.Scheduler

// syncScheduler lazily builds the process-wide Sync Scheduler over the
// CLI's background task queue; the status subcommand reads its gates.
func syncScheduler() *scheduler.Scheduler {
	if sharedScheduler == nil {
		sharedScheduler = scheduler.New(queue)
	}
	return sharedScheduler
}

func init() {
	syncCmd.AddCommand(syncPushCmd, syncPullCmd, syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
