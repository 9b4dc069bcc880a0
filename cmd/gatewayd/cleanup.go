package main

import (
	"fmt"

	"github.com/emprops/job-gateway/pkg/admin"
	"github.com/emprops/job-gateway/pkg/client"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run an admin reconciliation pass against a running gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("gateway-addr")
		token, _ := cmd.Flags().GetString("token")
		resetWorkers, _ := cmd.Flags().GetBool("reset-workers")
		cleanupOrphans, _ := cmd.Flags().GetBool("cleanup-orphaned-jobs")
		resetWorker, _ := cmd.Flags().GetString("reset-worker")
		maxAge, _ := cmd.Flags().GetInt("max-job-age-minutes")

		c := client.NewClient(addr, token)
		result, err := c.Cleanup(admin.CleanupRequest{
			ResetWorkers:        resetWorkers,
			CleanupOrphanedJobs: cleanupOrphans,
			ResetSpecificWorker: resetWorker,
			MaxJobAgeMinutes:    maxAge,
		})
		if err != nil {
			return err
		}

		fmt.Printf("workers found: %v\n", result.WorkersFound)
		fmt.Printf("workers reset: %d\n", result.WorkersReset)
		fmt.Printf("jobs cleaned: %d\n", result.JobsCleaned)
		for _, d := range result.Details {
			fmt.Println(" -", d)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().String("gateway-addr", "http://localhost:8189", "Gateway base URL")
	cleanupCmd.Flags().String("token", "", "Admin token")
	cleanupCmd.Flags().Bool("reset-workers", false, "Reset all workers to idle")
	cleanupCmd.Flags().Bool("cleanup-orphaned-jobs", false, "Requeue orphaned in-flight jobs")
	cleanupCmd.Flags().String("reset-worker", "", "Reset a specific worker id")
	cleanupCmd.Flags().Int("max-job-age-minutes", 30, "Age threshold for orphan sweep")
}
