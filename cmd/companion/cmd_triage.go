package main

import (
	"fmt"
	"strings"

	"companion/internal/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	triageJSON   bool
	triageRegion string
)

// triageCmd runs one message through the pipeline without storing anything.
var triageCmd = &cobra.Command{
	Use:   "triage [message...]",
	Short: "Classify a single message and show the rendered response",
	Long: `Runs one message through triage, mode selection and template rendering as
the first turn of a fresh conversation. Nothing is stored.

Example:
  companion triage "My cat got out last night and hasn't come home"
  companion triage --json --region GB "I just want to die"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTriage,
}

func init() {
	triageCmd.Flags().BoolVar(&triageJSON, "json", false, "Print the full turn output as JSON")
	triageCmd.Flags().StringVar(&triageRegion, "region", "", "Treat this region as already known")
}

func runTriage(cmd *cobra.Command, args []string) error {
	_, p, err := buildPipeline()
	if err != nil {
		return err
	}

	in := pipeline.NewState()
	in.Message = joinArgs(args)
	if triageRegion != "" {
		in.Facts.Region = strings.ToUpper(strings.TrimSpace(triageRegion))
	}
	out := p.Process(in)
	logger.Info("Message triaged",
		zap.String("category", string(out.Analysis.Category)),
		zap.String("tier", string(out.Tier)),
		zap.String("mode", string(out.Mode)),
		zap.Bool("escalate", out.RequiresEscalation))

	w := cmd.OutOrStdout()
	if triageJSON {
		return writeJSON(w, out)
	}

	fmt.Fprintln(w, statusLine(out))
	fmt.Fprintf(w, "rule: %s  region: %s  suicide risk: %s\n",
		out.Analysis.Rule, out.Region, out.Analysis.SuicideRiskLevel)
	if d := directives(out.UI); len(d) > 0 {
		fmt.Fprintf(w, "ui: %s\n", strings.Join(d, ", "))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, out.ResponseTemplate)
	if out.NextQuestionText != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, out.NextQuestionText)
	}
	return nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
