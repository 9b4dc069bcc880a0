package main

import (
	"fmt"

	"github.com/emprops/job-gateway/pkg/client"
	"github.com/spf13/cobra"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Machine administration commands",
}

var machineDeleteCmd = &cobra.Command{
	Use:   "delete <machine-id>",
	Short: "Delete a machine and requeue its workers' in-flight jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("gateway-addr")
		token, _ := cmd.Flags().GetString("token")

		c := client.NewClient(addr, token)
		resp, err := c.DeleteMachine(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("machine %s deleted (workers cleaned: %d, found: %v)\n", args[0], resp.WorkersCleaned, resp.WorkersFound)
		return nil
	},
}

func init() {
	machineCmd.PersistentFlags().String("gateway-addr", "http://localhost:8189", "Gateway base URL")
	machineCmd.PersistentFlags().String("token", "", "Admin token")
	machineCmd.AddCommand(machineDeleteCmd)
}
