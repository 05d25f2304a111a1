// Package cmd provides the Remus client's command-line interface.
package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// Verbose enables verbose output when set to true.
	Verbose bool

	cliCmd = &cobra.Command{
		Use:   "remus",
		Short: "Submit and track mesh-generation jobs",
		Long:  "remus is a command-line client for the Remus mesh-generation broker.",
	}
)

// Execute runs the root command.
func Execute() {
	if err := cliCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	addCommands()

	cliCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config", "",
		"config file (default is $HOME/.remus/client.yaml)",
	)
	cliCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "broker client endpoint (overrides config)")
	cliCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", cliCmd.PersistentFlags().Lookup("verbose")); err != nil {
		log.Fatal(err)
	}
	viper.SetDefault("verbose", false)
}

func addCommands() {
	cliCmd.AddCommand(configCmd)
	cliCmd.AddCommand(canMeshCmd)
	cliCmd.AddCommand(submitCmd)
	cliCmd.AddCommand(statusCmd)
	cliCmd.AddCommand(retrieveCmd)
	cliCmd.AddCommand(terminateCmd)
	cliCmd.AddCommand(versionCmd)
}
