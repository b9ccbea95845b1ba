package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanet-platform/sdnctl/controlplane/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "sdnctl",
	Short:   "SDN controller for OpenFlow switches",
	Version: version.Version(),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(logLevelCmd)
	rootCmd.AddCommand(attachCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
