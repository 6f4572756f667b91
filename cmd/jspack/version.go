package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at link time via -ldflags "-X main.version=...";
// "dev" otherwise, matching driver.Driver.Version()'s own fallback.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the jspack version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
