package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/cmd/dkg/commands"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
)

var rootCmd = &cobra.Command{
	Use:   "dkg",
	Short: "dkg - Dataset Knowledge Graph",
	Long: `dkg - Dataset Knowledge Graph

dkg selects datasets from a DCAT registry, probes their distributions, loads
data dumps into a temporary QLever SPARQL endpoint when a dataset has none,
and describes every dataset with VoID statistics.

Available commands:
  run      - Analyze the datasets in the registry
  import   - Import one data dump and serve it until interrupted
  config   - Show or validate the configuration
  history  - List recorded runs
  version  - Show version information

Examples:
  dkg run -v                         # Analyze all datasets, reporting progress
  dkg run --json > events.jsonl      # Machine-readable progress
  dkg import https://example.com/dump.nt.gz --media-type application/n-triples
  dkg config show --format yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit logs and progress as JSON")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default: dkg.toml lookup)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ImportCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
