package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "planetctl",
	Short: "planetctl is a command line tool for driving the planetoidgen tile pipeline",
	Long: `planetctl is the command-line interface for the planetoidgen controller.

A planetoid has a pipeline of agents. Generating a tile queues one job per
pipeline stage, plus the neighbor stages each agent depends on; workers run
the stages in order and record progress per tile.

Common workflows:

  Create a planetoid:
    planetctl planetoids create --title terra --seed 42 --radius 6371

  Configure its pipeline from a YAML file:
    planetctl agents set 1 --file pipeline.yaml

  Queue tiles at zoom 3:
    planetctl generate 1 --z 3 --tile 0:0 --tile 1:0

  Check a tile's progress:
    planetctl tile 1 3 0 0

  Collect reports for a connection:
    planetctl reports <connection-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    PLANETOIDGEN_URL      Controller URL (default: http://localhost:6161)
    PLANETOIDGEN_TOKEN    Admin API key`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which --follow loops honor.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newClient() *Client {
	return NewClient(viper.GetString("url"), viper.GetString("token"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".planetctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".planetctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "PLANETOIDGEN_VARNAME"
	viper.SetEnvPrefix("PLANETOIDGEN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.planetctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "planetoidgen controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Admin API key")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
