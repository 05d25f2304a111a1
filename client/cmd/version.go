package cmd

import (
	"fmt"

	"github.com/geoffjay/remus/core"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Long:  "Print the Remus client version.",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(core.VERSION)
	},
}
