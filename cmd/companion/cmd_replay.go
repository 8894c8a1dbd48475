package main

import (
	"fmt"

	"companion/internal/replay"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	replayBuiltin bool
	replayWorkers int
	replayJSON    bool
)

// replayCmd replays scripted transcripts against the configured catalog.
var replayCmd = &cobra.Command{
	Use:   "replay [transcript.yaml...]",
	Short: "Replay scripted conversations and report mismatches",
	Long: `Runs every scripted conversation through the pipeline and compares each
turn with its expectations. Exits non-zero when any turn does not match.

Example:
  companion replay --builtin
  companion replay scenarios/*.yaml`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayBuiltin, "builtin", false, "Include the built-in scenario corpus")
	replayCmd.Flags().IntVar(&replayWorkers, "workers", 0, "Conversations in flight (default: replay.workers from config)")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print the report as JSON")
}

func runReplay(cmd *cobra.Command, args []string) error {
	var convs []replay.Conversation
	if replayBuiltin || len(args) == 0 {
		builtin, err := replay.Builtin()
		if err != nil {
			return err
		}
		convs = append(convs, builtin...)
	}
	if len(args) > 0 {
		loaded, err := replay.LoadFiles(args...)
		if err != nil {
			return err
		}
		convs = append(convs, loaded...)
	}

	_, p, err := buildPipeline()
	if err != nil {
		return err
	}

	workers := replayWorkers
	if workers <= 0 {
		workers = cfg.Replay.Workers
	}
	report, err := replay.Run(commandContext(cmd), p, convs, workers)
	if err != nil {
		return err
	}
	logger.Info("Replay finished",
		zap.Int("conversations", len(report.Results)),
		zap.Int("turns", report.Turns),
		zap.Int("mismatches", report.Mismatches))

	w := cmd.OutOrStdout()
	if replayJSON {
		if err := writeJSON(w, report); err != nil {
			return err
		}
	} else {
		for _, m := range report.Failures() {
			fmt.Fprintln(w, warnStyle.Render("MISMATCH")+" "+m.String())
		}
		status := okStyle.Render("OK")
		if !report.OK() {
			status = warnStyle.Render("FAIL")
		}
		fmt.Fprintf(w, "%s %d conversations, %d turns, %d mismatches\n",
			status, len(report.Results), report.Turns, report.Mismatches)
	}

	if !report.OK() {
		return fmt.Errorf("replay found %d mismatches", report.Mismatches)
	}
	return nil
}
