// Command aquadoggod runs one node of the append-only log network: the
// store, publish pipeline, materializer and replication engine, using a
// cobra root command with persistent flags and one subcommand file per
// verb.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "aquadoggod",
	Short: "A node in an append-only, content-addressed log network",
	Long: `aquadoggod runs the store, publish pipeline, materializer and
replication engine as one long-lived process ("serve"), plus a one-shot
"query" subcommand that talks to the same store directly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (default: built-in defaults + AQUADOGGO_* env overrides)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
