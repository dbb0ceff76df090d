package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dGrid/cmd/bench"
	"github.com/spf13/cobra"
)

const (
	Version = "0.9.2"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dgrid",
		Short: "transactional key-value data grid engine",
		Long: fmt.Sprintf(`dGrid (v%s)

An embeddable transactional key-value data grid engine written in Go,
with versioned entries, per-key locks, ttl sweeping and tiered storage.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dGrid",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dGrid v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
