package pulse

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
)

// CLIEmitter outputs pretty-printed progress to terminal using pterm
type CLIEmitter struct {
	verbosity int
}

// NewCLIEmitter creates a CLI progress emitter for terminal output
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity}
}

// EmitStage prints a stage announcement to terminal
func (e *CLIEmitter) EmitStage(stage string, message string) {
	pterm.Printf("%s %s\n", pterm.LightCyan(stage), message)
}

// EmitProgress prints a count out of total
func (e *CLIEmitter) EmitProgress(count, total int, metadata map[string]interface{}) {
	itemType := "items"
	if t, ok := metadata["type"].(string); ok {
		itemType = t
	}
	pterm.Printf("  %s/%d %s\n", pterm.Green(fmt.Sprintf("%d", count)), total, itemType)
}

// EmitComplete prints completion summary
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	pterm.Success.Println("Run complete")
	if e.verbosity < 1 {
		return
	}
	keys := make([]string, 0, len(summary))
	for key := range summary {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		pterm.Printf("  %s: %v\n", key, summary[key])
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Error.Printf("%s: %v\n", stage, err)
}

// EmitInfo prints informational message
func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Info.Println(message)
	}
}
