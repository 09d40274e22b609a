package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"planetoidgen/internal/tile"
	"planetoidgen/pkg/api"
)

var generateCmd = &cobra.Command{
	Use:   "generate [planetoid_id]",
	Short: "Queue tiles for generation",
	Long: `Queue tiles of one zoom level through the planetoid's pipeline. Tiles are
given as x:y pairs, or --all queues the whole grid of the zoom level.

The printed connection id collects the reports of the queued tiles.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlanetoidID(args[0])
		if err != nil {
			return err
		}
		z, _ := cmd.Flags().GetInt16("z")
		specs, _ := cmd.Flags().GetStringArray("tile")
		all, _ := cmd.Flags().GetBool("all")
		connectionID, _ := cmd.Flags().GetString("connection")

		tiles, err := tileRequests(z, specs, all)
		if err != nil {
			return err
		}

		resp, err := newClient().GenerateTiles(api.GenerateTilesRequest{
			PlanetoidID:  id,
			ConnectionID: connectionID,
			Tiles:        tiles,
		})
		if err != nil {
			return err
		}
		cmd.Printf("Queued %d jobs for %d tiles\n", resp.QueuedJobs, len(tiles))
		cmd.Printf("Connection: %s\n", resp.ConnectionID)
		return nil
	},
}

// tileRequests builds the request tiles of zoom z from x:y specs, or the
// whole grid when all is set.
func tileRequests(z int16, specs []string, all bool) ([]api.TileRequest, error) {
	n := tile.Size(z)
	if n == 0 {
		return nil, fmt.Errorf("invalid zoom level %d", z)
	}
	if all {
		if len(specs) > 0 {
			return nil, fmt.Errorf("--all and --tile are mutually exclusive")
		}
		tiles := make([]api.TileRequest, 0, n*n)
		for y := int64(0); y < n; y++ {
			for x := int64(0); x < n; x++ {
				tiles = append(tiles, api.TileRequest{Z: z, X: x, Y: y})
			}
		}
		return tiles, nil
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one --tile or --all is required")
	}

	tiles := make([]api.TileRequest, 0, len(specs))
	for _, spec := range specs {
		xs, ys, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tile %q: expected x:y", spec)
		}
		x, errX := strconv.ParseInt(strings.TrimSpace(xs), 10, 64)
		y, errY := strconv.ParseInt(strings.TrimSpace(ys), 10, 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("invalid tile %q: expected x:y", spec)
		}
		if !(tile.Address{Z: z, X: x, Y: y}).Valid() {
			return nil, fmt.Errorf("tile %q is outside the %dx%d grid of zoom %d", spec, n, n, z)
		}
		tiles = append(tiles, api.TileRequest{Z: z, X: x, Y: y})
	}
	return tiles, nil
}

func init() {
	generateCmd.Flags().Int16("z", 0, "Zoom level")
	generateCmd.Flags().StringArray("tile", nil, "Tile as x:y (repeatable)")
	generateCmd.Flags().Bool("all", false, "Queue every tile of the zoom level")
	generateCmd.Flags().String("connection", "", "Connection id for reports (generated when empty)")

	rootCmd.AddCommand(generateCmd)
}
