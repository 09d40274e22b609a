package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"planetoidgen/pkg/api"
)

var planetoidsCmd = &cobra.Command{
	Use:   "planetoids",
	Short: "Create and list planetoids",
}

var planetoidsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a planetoid",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		seed, _ := cmd.Flags().GetInt64("seed")
		radius, _ := cmd.Flags().GetFloat64("radius")

		p, err := newClient().CreatePlanetoid(api.CreatePlanetoidRequest{Title: title, Seed: seed, Radius: radius})
		if err != nil {
			return err
		}
		cmd.Printf("Planetoid created: %d (%s)\n", p.ID, p.Title)
		return nil
	},
}

var planetoidsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List planetoids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		planetoids, err := newClient().ListPlanetoids()
		if err != nil {
			return err
		}
		if len(planetoids) == 0 {
			cmd.Println("No planetoids found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSEED\tRADIUS\tCREATED")
		for _, p := range planetoids {
			fmt.Fprintf(w, "%d\t%s\t%d\t%g\t%s\n", p.ID, p.Title, p.Seed, p.Radius, p.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// parsePlanetoidID reads the positional planetoid id.
func parsePlanetoidID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid planetoid id %q", arg)
	}
	return id, nil
}

func init() {
	planetoidsCreateCmd.Flags().String("title", "", "Planetoid title (required)")
	planetoidsCreateCmd.Flags().Int64("seed", 0, "Generation seed")
	planetoidsCreateCmd.Flags().Float64("radius", 0, "Radius in kilometers (required)")
	planetoidsCreateCmd.MarkFlagRequired("title")
	planetoidsCreateCmd.MarkFlagRequired("radius")

	planetoidsCmd.AddCommand(planetoidsCreateCmd, planetoidsListCmd)
	rootCmd.AddCommand(planetoidsCmd)
}
