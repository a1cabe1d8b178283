package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/pipeline"
	"github.com/kosarica/feed-service/internal/types"
)

var previewOutput string

// previewCmd represents the preview command
var previewCmd = &cobra.Command{
	Use:   "preview <file-or-url>",
	Short: "Parse a feed and suggest a field mapping",
	Long: `Retrieve and parse a feed without touching the database. The output shows
the detected format, the observed field names, the suggested mapping and the
values the suggestion extracts from the first item.`,
	Example: `  feed-service preview ./data/products.csv
  feed-service preview https://shop.example/google-feed.xml --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVar(&previewOutput, "output", "table", "Output format: table or json")
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, closer, err := openSource(args[0])
	if err != nil {
		return err
	}
	defer closer.Close()

	svc, err := services(ctx)
	if err != nil {
		return err
	}

	preview, err := svc.Pipeline.Preview(ctx, src)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	switch strings.ToLower(previewOutput) {
	case "json":
		return outputJSON(preview)
	case "table":
		outputPreviewTable(preview)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", previewOutput)
	}
}

func outputPreviewTable(p *pipeline.Preview) {
	fmt.Printf("\nFeed Preview (%s", p.Kind)
	if p.Flavor != "" {
		fmt.Printf(", %s", p.Flavor)
	}
	if p.Fallback {
		fmt.Print(", fallback parser")
	}
	fmt.Printf(")\n%s\n", strings.Repeat("-", 60))

	fmt.Printf("Items:  %d\n", p.ItemCount)
	fmt.Printf("Fields: %s\n\n", strings.Join(p.Fields, ", "))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Attribute\tSelector\tFirst value\n")
	fmt.Fprintf(w, "---------\t--------\t-----------\n")
	for _, attr := range types.Attributes {
		fmt.Fprintf(w, "%s\t%s\t%s\n", attr, p.SuggestedMapping.Get(attr), truncate(p.Sample[attr], 40))
	}
	w.Flush()

	for _, warning := range p.Retrieval.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
}

func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
