package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var errNoTopics = errors.New("name the topics to delete or pass --all")

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Inspect and clean up broker topics",
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List broker topics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, err := newClient().ListTopics()
		if err != nil {
			return err
		}
		if len(topics) == 0 {
			cmd.Println("No topics found.")
			return nil
		}
		for _, t := range topics {
			cmd.Println(t)
		}
		return nil
	},
}

var topicsDeleteCmd = &cobra.Command{
	Use:   "delete [topic...]",
	Short: "Delete topics",
	Long:  `Delete the named topics. Without names, --all must be given and every topic on the broker is deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if len(args) == 0 && !all {
			return errNoTopics
		}
		deleted, err := newClient().DeleteTopics(args)
		if err != nil {
			return err
		}
		cmd.Printf("Deleted %d topics\n", len(deleted))
		for _, t := range deleted {
			cmd.Printf("  %s\n", t)
		}
		return nil
	},
}

var topicsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every stage topic and recreate the first one",
	Long:  `Drop every stage topic and recreate the first one. Queued jobs are lost.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := newClient().ResetAgentTopics()
		if err != nil {
			return err
		}
		cmd.Printf("Reset agent topics, %d deleted\n", len(deleted))
		return nil
	},
}

func init() {
	topicsDeleteCmd.Flags().Bool("all", false, "Delete every topic")

	topicsCmd.AddCommand(topicsListCmd, topicsDeleteCmd, topicsResetCmd)
	rootCmd.AddCommand(topicsCmd)
}
