package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"planetoidgen/pkg/api"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage planetoid pipelines",
}

var agentsGetCmd = &cobra.Command{
	Use:   "get [planetoid_id]",
	Short: "Show the pipeline of a planetoid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlanetoidID(args[0])
		if err != nil {
			return err
		}
		resp, err := newClient().GetAgents(id)
		if err != nil {
			return err
		}
		printAgents(cmd, resp)
		return nil
	},
}

// pipelineStage is one entry of a pipeline file.
type pipelineStage struct {
	Title             string    `yaml:"title"`
	Settings          yaml.Node `yaml:"settings"`
	ShouldRerunIfLast bool      `yaml:"should_rerun_if_last"`
}

// loadPipeline reads a YAML list of stages. Settings may be a string or a
// mapping; a mapping is sent re-encoded as YAML.
func loadPipeline(path string) ([]api.AgentRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	var stages []pipelineStage
	if err := yaml.Unmarshal(data, &stages); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline file: %w", err)
	}

	out := make([]api.AgentRequest, len(stages))
	for i, s := range stages {
		if s.Title == "" {
			return nil, fmt.Errorf("stage %d: title is required", i)
		}
		req := api.AgentRequest{Title: s.Title, ShouldRerunIfLast: s.ShouldRerunIfLast}
		switch s.Settings.Kind {
		case 0:
		case yaml.ScalarNode:
			req.Settings = s.Settings.Value
		default:
			b, err := yaml.Marshal(&s.Settings)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", i, err)
			}
			req.Settings = string(b)
		}
		out[i] = req
	}
	return out, nil
}

var agentsSetCmd = &cobra.Command{
	Use:   "set [planetoid_id]",
	Short: "Replace the pipeline of a planetoid",
	Long: `Replace the pipeline of a planetoid with the stages of a YAML file:

  - title: PlanetoidGen.DummyAgent
  - title: PlanetoidGen.DummyAgent
    settings:
      dependencies: [left, right]
  - title: PlanetoidGen.DataReportingAgent
    should_rerun_if_last: true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlanetoidID(args[0])
		if err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		stages, err := loadPipeline(file)
		if err != nil {
			return err
		}

		resp, err := newClient().SetAgents(id, api.SetAgentsRequest{Agents: stages})
		if err != nil {
			return err
		}
		printAgents(cmd, resp)
		return nil
	},
}

var agentsClearCmd = &cobra.Command{
	Use:   "clear [planetoid_id]",
	Short: "Remove every stage of a planetoid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlanetoidID(args[0])
		if err != nil {
			return err
		}
		n, err := newClient().ClearAgents(id)
		if err != nil {
			return err
		}
		cmd.Printf("Removed %d agents from planetoid %d\n", n, id)
		return nil
	},
}

var agentsCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the agent implementations workers can run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		impls, err := newClient().ListAgentImplementations()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TITLE\tDESCRIPTION")
		for _, a := range impls {
			fmt.Fprintf(w, "%s\t%s\n", a.Title, a.Description)
		}
		return w.Flush()
	},
}

func printAgents(cmd *cobra.Command, resp *api.AgentsResponse) {
	if len(resp.Agents) == 0 {
		cmd.Printf("Planetoid %d has no agents.\n", resp.PlanetoidID)
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTITLE\tRERUN\tSETTINGS")
	for _, a := range resp.Agents {
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", a.IndexID, a.Title, a.ShouldRerunIfLast, oneLine(a.Settings))
	}
	w.Flush()
}

// oneLine shortens multi-line settings for the table view.
func oneLine(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' {
			r = ' '
		}
		out = append(out, r)
	}
	if len(out) > 50 {
		return string(out[:47]) + "..."
	}
	return string(out)
}

func init() {
	agentsSetCmd.Flags().StringP("file", "f", "", "Pipeline YAML file (required)")
	agentsSetCmd.MarkFlagRequired("file")

	agentsCmd.AddCommand(agentsGetCmd, agentsSetCmd, agentsClearCmd, agentsCatalogCmd)
	rootCmd.AddCommand(agentsCmd)
}
