package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regchat/cli/internal/chunk"
	"github.com/regchat/cli/internal/extract"
	"github.com/regchat/cli/internal/ingest"
)

var (
	ingestCheckpoint string
	ingestBatchSize  int
	ingestDumpDir    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [pdf]",
	Short: "Extract, chunk, embed, and index a regulations PDF",
	Long: `Reads a PDF, splits it into overlapping chunks, embeds each chunk,
and upserts the vectors into the index. Safe to re-run: existing chunks are
overwritten in place, and with --checkpoint an interrupted run resumes
without re-embedding completed chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCheckpoint, "checkpoint", "", "checkpoint file for resumable ingestion")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "chunks per embedding request (default from config)")
	ingestCmd.Flags().StringVar(&ingestDumpDir, "dump-dir", "", "write extracted pages and chunks as JSON to this directory")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	idx, err := newIndex(cfg, database)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := idx.EnsureSchema(ctx, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDims); err != nil {
		return err
	}

	splitter := chunk.NewSplitter(cfg.Processing.ChunkSize, cfg.Processing.ChunkOverlap)
	pipeline := ingest.NewPipeline(extract.NewPDFExtractor(), splitter, embedder, idx,
		cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDims)

	batchSize := ingestBatchSize
	if batchSize <= 0 {
		batchSize = cfg.Processing.EmbedBatchSize
	}

	report, err := pipeline.Run(ctx, args[0], ingest.Options{
		CheckpointPath: ingestCheckpoint,
		BatchSize:      batchSize,
		DumpDir:        ingestDumpDir,
	})
	if report != nil {
		fmt.Printf("Document %s (%s): %d pages, %d chunks, %d embedded, %d skipped\n",
			report.DocumentID, report.Source, report.Pages, report.TotalChunks, report.Embedded, report.Skipped)
		if len(report.Pending) > 0 {
			fmt.Printf("%d chunks still pending; re-run with the same --checkpoint to resume\n", len(report.Pending))
		}
	}
	return err
}
