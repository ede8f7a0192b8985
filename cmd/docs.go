package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var docsCmd = &cobra.Command{
	Use:    "docs",
	Short:  "Generate documentation",
	Long:   `Generate man pages, markdown or YAML reference documentation for mts.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   generateDocs,
}

var (
	docsOutputDir string
	docsFormat    string
)

func init() {
	rootCmd.AddCommand(docsCmd)

	docsCmd.Flags().StringVar(&docsOutputDir, "output", "./docs", "Output directory for documentation")
	docsCmd.Flags().StringVar(&docsFormat, "format", "man", "Documentation format: man, md, yaml")
}

func generateDocs(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(docsOutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	root := cmd.Root()
	root.DisableAutoGenTag = true

	switch docsFormat {
	case "man":
		header := &doc.GenManHeader{
			Title:   "MTS",
			Section: "1",
			Source:  "mts " + root.Version,
			Manual:  "medieteknik.com Search Tool Manual",
		}
		return doc.GenManTree(root, header, docsOutputDir)
	case "md":
		return doc.GenMarkdownTree(root, docsOutputDir)
	case "yaml":
		return doc.GenYamlTree(root, docsOutputDir)
	default:
		return fmt.Errorf("unsupported format: %s (supported: man, md, yaml)", docsFormat)
	}
}
