package main

import (
	"fmt"
	"os"
	"path/filepath"

	"companion/internal/catalog"
	"companion/internal/templates"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	catalogJSON  bool
	catalogOut   string
	catalogForce bool
)

// catalogCmd groups catalog maintenance commands
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and export the response catalog",
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check [catalog.yaml]",
	Short: "Validate a catalog and audit every rendered template",
	Long: `Loads the catalog (the argument, the configured path, or the built-in
default), then renders every template, fallback and question for every
hotline region and reports forbidden phrases, missing required text and
unresolved placeholders. Exits non-zero on any finding.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalogCheck,
}

var catalogDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write the built-in catalog as YAML",
	RunE:  runCatalogDump,
}

func init() {
	catalogCheckCmd.Flags().BoolVar(&catalogJSON, "json", false, "Print the audit report as JSON")
	catalogDumpCmd.Flags().StringVarP(&catalogOut, "out", "o", "", "Write to this file instead of stdout")
	catalogDumpCmd.Flags().BoolVar(&catalogForce, "force", false, "Overwrite an existing file")
	catalogCmd.AddCommand(catalogCheckCmd, catalogDumpCmd)
}

func runCatalogCheck(cmd *cobra.Command, args []string) error {
	path := cfg.Catalog.Path
	if len(args) == 1 {
		path = args[0]
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}

	report := templates.Audit(cat)
	logger.Info("Catalog audited",
		zap.String("source", cat.Source()),
		zap.Int("rendered", report.Rendered),
		zap.Int("violations", len(report.Violations)))

	w := cmd.OutOrStdout()
	if catalogJSON {
		if err := writeJSON(w, report); err != nil {
			return err
		}
	} else {
		for _, v := range report.Violations {
			fmt.Fprintln(w, warnStyle.Render("VIOLATION")+" "+v.String())
		}
		status := okStyle.Render("OK")
		if !report.OK() {
			status = warnStyle.Render("FAIL")
		}
		fmt.Fprintf(w, "%s catalog %s (version %s): %d renders across %d regions, %d violations\n",
			status, cat.Source(), cat.Version(), report.Rendered, len(report.Regions), len(report.Violations))
	}

	if !report.OK() {
		return fmt.Errorf("catalog audit found %d violations", len(report.Violations))
	}
	return nil
}

func runCatalogDump(cmd *cobra.Command, args []string) error {
	data := catalog.DefaultYAML()
	if catalogOut == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := writeNewFile(catalogOut, data, catalogForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", catalogOut)
	return nil
}

// writeNewFile writes data to path, refusing to replace an existing file
// unless force is set.
func writeNewFile(path string, data []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
