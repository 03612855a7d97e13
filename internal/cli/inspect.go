package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/fabric/blockjson"
	"github.com/vietddude/orchestrator/internal/orchestrator/filter"
	"github.com/vietddude/orchestrator/internal/orchestrator/parser"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [block.json]",
	Short: "Print the events a block would trigger, without invoking anything",
	Args:  cobra.ExactArgs(1),
	Run:   runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) {
	cfg, closeLog := loadConfig()
	defer closeLog()

	data, err := os.ReadFile(args[0])
	if err != nil {
		slog.Error("Failed to read block file", "error", err)
		os.Exit(1)
	}
	block, err := blockjson.Decode(data)
	if err != nil {
		slog.Error("Failed to decode block", "error", err)
		os.Exit(1)
	}

	qualified, err := inspectBlock(os.Stdout, block, filter.New(cfg.Orchestrator.EventNames))
	if err != nil {
		slog.Error("Block is malformed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("\n%d invocation(s) would be issued for block %d\n", qualified, block.Number)
}

// inspectBlock writes one row per event record and returns how many qualify.
// Rows before a malformed action are still written.
func inspectBlock(out io.Writer, block *domain.Block, f filter.Filter) (int, error) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	defer w.Flush()

	_, _ = fmt.Fprintln(w, "ENVELOPE\tACTION\tTX\tCHAINCODE\tEVENT\tINVOKE")
	qualified := 0
	for rec, err := range parser.New(slog.Default()).Parse(block) {
		if err != nil {
			return qualified, err
		}
		ok := f.Qualifies(rec.Event)
		if ok {
			qualified++
		}
		name := rec.Event.Name
		if name == "" {
			name = "-"
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%t\n",
			rec.EnvelopeIndex, rec.ActionIndex, rec.TxID, rec.Event.ChaincodeID, name, ok)
	}
	return qualified, nil
}
