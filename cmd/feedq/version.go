package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "feedq %s\n", Version)
		fmt.Fprintln(out, "Feed relay queue")
		fmt.Fprintln(out, "github.com/pders01/feedq")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
