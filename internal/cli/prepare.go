package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/shockeval/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	prepareEvents eventFlags
	prepareIDs    string
	prepareOut    string
)

// prepareCmd represents the prepare command
var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Chunk documents and match chunks to known events",
	Long: `Prepare loads extracted documents, splits them into overlapping page
windows and assigns every window a tier per event:
- TIER1: a canonical passage of the event appears verbatim
- TIER2: the act is named, decomposed, cited by law number, or its keywords co-occur
- NEGATIVE: no event matched

Chunks and matches are stored by content address and reused on later runs.

Example:
  shockeval prepare --events events.yaml --source-dir data/extracted
  shockeval prepare --shocks parsed_shocks.json --labels parsed_labels.json --ids docs.txt
  shockeval prepare --events events.yaml --source s3 --window 40 --overlap 8`,
	Args: cobra.NoArgs,
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)

	prepareEvents.register(prepareCmd)
	prepareCmd.Flags().StringVar(&prepareIDs, "ids", "", "file of document IDs, one per line (default: list the source)")
	prepareCmd.Flags().StringVar(&prepareOut, "out", "", "corpus output path (default: <output-dir>/corpus.json)")
	prepareCmd.Flags().Int("window", 0, "pages per chunk")
	prepareCmd.Flags().Int("overlap", 0, "pages shared by consecutive chunks")

	_ = viper.BindPFlag("chunking.window_size", prepareCmd.Flags().Lookup("window"))
	_ = viper.BindPFlag("chunking.overlap", prepareCmd.Flags().Lookup("overlap"))
}

func runPrepare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	events, err := prepareEvents.load()
	if err != nil {
		return err
	}

	p, ids, err := prepareInputs(ctx, cfg, prepareIDs)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Preparing %d documents against %d events\n", len(ids), len(events))
		fmt.Fprintf(os.Stderr, "Window: %d pages, overlap: %d\n\n", cfg.Chunking.WindowSize, cfg.Chunking.Overlap)
	}

	res, err := p.Prepare(ctx, ids, events)
	if err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}

	r := pipeline.NewRenderer(os.Stderr)
	path := outputFile(cfg, prepareOut, "corpus.json")
	if err := r.RenderJSON(res, path); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	r.RenderPrepareSummary(res)
	fmt.Fprintf(os.Stderr, "✓ Wrote corpus: %s\n", path)

	return nil
}
