package main

import (
	"fmt"
	"sort"

	"companion/internal/usage"

	"github.com/spf13/cobra"
)

var usageJSON bool

// usageCmd shows recorded generator usage
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show generator calls, fallbacks and token counts",
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	tracker, err := usage.NewTracker(dataDir)
	if err != nil {
		return err
	}
	stats := tracker.Stats()

	w := cmd.OutOrStdout()
	if usageJSON {
		return writeJSON(w, stats)
	}
	if stats.Total.Calls == 0 {
		fmt.Fprintln(w, "No generator calls recorded.")
		return nil
	}

	fmt.Fprintln(w, heading("Generators"))
	for _, name := range sortedKeys(stats.ByGenerator) {
		c := stats.ByGenerator[name]
		fmt.Fprintf(w, "  %-32s %6d calls %6d fallbacks %8d tokens\n", name, c.Calls, c.Fallbacks, c.TotalTokens())
	}
	if len(stats.ByFallback) > 0 {
		fmt.Fprintln(w, heading("Fallbacks"))
		for _, reason := range sortedKeys(stats.ByFallback) {
			fmt.Fprintf(w, "  %-12s %d\n", reason, stats.ByFallback[reason])
		}
	}
	fmt.Fprintf(w, "Total: %d calls, %d fallbacks, %d tokens across %d conversations\n",
		stats.Total.Calls, stats.Total.Fallbacks, stats.Total.TotalTokens(), len(stats.ByConversation))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
