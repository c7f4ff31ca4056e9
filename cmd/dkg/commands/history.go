package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/writer"
)

// HistoryCmd lists runs recorded in the ledger
var HistoryCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs",
	Long: `List the most recent runs recorded in the ledger (writer.ledger.path), or
the datasets written during one run.

Examples:
  dkg history                  # Last 20 runs
  dkg history --limit 5
  dkg history 0b6f...          # Datasets written in a run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyLimitFlag int

func init() {
	HistoryCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Writer.Ledger.Path == "" {
		return errors.WithHint(errors.New("no ledger configured"), "set writer.ledger.path")
	}

	ledger, err := writer.OpenLedger(cfg.Writer.Ledger.Path, nil)
	if err != nil {
		return err
	}
	defer ledger.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()

	if len(args) == 1 {
		writes, err := ledger.Writes(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(writes)
		}
		data := pterm.TableData{{"Dataset", "Triples", "Written"}}
		for _, w := range writes {
			data = append(data, []string{w.Dataset, fmt.Sprint(w.Triples), w.WrittenAt.Local().Format(time.DateTime)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	runs, err := ledger.Runs(ctx, historyLimitFlag)
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(runs)
	}
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded")
		return nil
	}
	data := pterm.TableData{{"Run", "Started", "Duration", "Datasets", "Succeeded", "Failed", "Not supported", "Writes"}}
	for _, r := range runs {
		duration := "running"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		data = append(data, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			fmt.Sprint(r.Datasets),
			fmt.Sprint(r.Succeeded),
			fmt.Sprint(r.Failed),
			fmt.Sprint(r.NotSupported),
			fmt.Sprint(r.Writes),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
