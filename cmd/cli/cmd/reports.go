package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"planetoidgen/pkg/api"
)

var reportsCmd = &cobra.Command{
	Use:   "reports [connection_id]",
	Short: "Collect the tile reports of a connection",
	Long:  `Collect the tile reports posted for a connection. Collected reports are removed from the controller; --follow keeps polling.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		connectionID := args[0]
		follow, _ := cmd.Flags().GetBool("follow")
		interval, _ := cmd.Flags().GetDuration("interval")
		client := newClient()

		total := 0
		for {
			reports, err := client.DrainReports(connectionID)
			if err != nil {
				return err
			}
			total += len(reports)
			printReports(cmd, reports)

			if !follow {
				break
			}
			select {
			case <-cmd.Context().Done():
				return nil
			case <-time.After(interval):
			}
		}
		if total == 0 {
			cmd.Println("No reports found.")
		}
		return nil
	},
}

func printReports(cmd *cobra.Command, reports []api.ReportEntry) {
	if len(reports) == 0 {
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	for _, r := range reports {
		var tr api.TileReport
		if err := json.Unmarshal(r.Payload, &tr); err != nil {
			fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.CreatedAt.Format(time.RFC3339), string(r.Payload))
			continue
		}
		fmt.Fprintf(w, "%d\t%s\tP=%d Z=%d X=%d Y=%d\tstage %d\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), tr.PlanetoidID, tr.Z, tr.X, tr.Y, tr.AgentIndex)
	}
	w.Flush()
}

func init() {
	reportsCmd.Flags().BoolP("follow", "f", false, "Keep polling for new reports")
	reportsCmd.Flags().Duration("interval", 2*time.Second, "Poll interval with --follow")

	rootCmd.AddCommand(reportsCmd)
}
