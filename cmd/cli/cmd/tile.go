package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"planetoidgen/pkg/api"
)

var tileCmd = &cobra.Command{
	Use:   "tile [planetoid_id] [z] [x] [y]",
	Short: "Show the pipeline progress of a tile",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlanetoidID(args[0])
		if err != nil {
			return err
		}
		z, err := strconv.ParseInt(args[1], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid zoom %q", args[1])
		}
		x, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid x %q", args[2])
		}
		y, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid y %q", args[3])
		}

		t, err := newClient().GetTile(id, int16(z), x, y)
		if err != nil {
			return err
		}
		printTile(cmd, t)
		return nil
	},
}

func printTile(cmd *cobra.Command, t *api.TileResponse) {
	cmd.Printf("%sTile Details%s\n", colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, t.ID)
	cmd.Printf("%sAddress:%s     P=%d Z=%d X=%d Y=%d\n", colorDim, colorReset, t.PlanetoidID, t.Z, t.X, t.Y)
	cmd.Printf("%sCompleted:%s   %s\n", colorDim, colorReset, completedStages(t.LastIndexedAgent))

	if t.LastAgent != nil {
		cmd.Printf("%sRunning:%s     %sstage %d%s\n", colorDim, colorReset, colorYellow, *t.LastAgent, colorReset)
		cmd.Printf("%sLease:%s       %s\n", colorDim, colorReset, formatTimeWithRelative(t.ModifiedAt))
	} else {
		cmd.Printf("%sRunning:%s     -\n", colorDim, colorReset)
	}
	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&t.CreatedAt))
}

func completedStages(lastIndexed int) string {
	if lastIndexed < 0 {
		return "none"
	}
	return fmt.Sprintf("%sthrough stage %d%s", colorGreen, lastIndexed, colorReset)
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	case duration < time.Hour:
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func init() {
	rootCmd.AddCommand(tileCmd)
}
