package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/regchat/cli/internal/chunk"
	"github.com/regchat/cli/internal/extract"
	"github.com/regchat/cli/internal/logger"
)

// Extractor turns a file on disk into a paged document.
type Extractor interface {
	Extract(path string) (*extract.Document, error)
}

// Embedder converts a batch of texts into vectors, one per input in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer persists embedded chunks and reports which IDs failed.
type Indexer interface {
	Upsert(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) (failed []string, err error)
}

// Options configures one ingest run.
type Options struct {
	// CheckpointPath enables resumable ingestion when non-empty.
	CheckpointPath string
	// BatchSize bounds how many chunks go to the embedder per call.
	BatchSize int
	// DumpDir, when set, writes extracted pages, chunks, and embeddings
	// as JSON for inspection alongside the index.
	DumpDir string
}

type embeddingRecord struct {
	ChunkID string    `json:"chunk_id"`
	Model   string    `json:"model"`
	Vector  []float32 `json:"vector"`
}

// Report summarizes an ingest run.
type Report struct {
	DocumentID  string
	Source      string
	Pages       int
	TotalChunks int
	Embedded    int
	Skipped     int
	Pending     []string
}

// Pipeline drives extract, chunk, embed, and index for one document.
type Pipeline struct {
	extractor  Extractor
	splitter   *chunk.Splitter
	embedder   Embedder
	indexer    Indexer
	model      string
	dimensions int
}

func NewPipeline(extractor Extractor, splitter *chunk.Splitter, embedder Embedder, indexer Indexer, model string, dimensions int) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		splitter:   splitter,
		embedder:   embedder,
		indexer:    indexer,
		model:      model,
		dimensions: dimensions,
	}
}

// Run ingests a single PDF. Re-running on the same file is idempotent:
// chunk IDs are derived from content position, the index upserts, and the
// checkpoint skips already-completed batches. On failure the checkpoint
// survives and the report lists the chunk IDs still pending.
func (p *Pipeline) Run(ctx context.Context, path string, opts Options) (*Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}

	release, err := AcquireLock(opts.CheckpointPath)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := p.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	logger.Info("extracted %d pages from %s", len(doc.Pages), doc.Source)

	chunks := p.splitter.SplitDocument(doc)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %s", doc.Source)
	}
	logger.Info("split into %d chunks", len(chunks))

	if opts.DumpDir != "" {
		if err := dumpJSON(opts.DumpDir, doc.ID+"_pages.json", doc.Pages); err != nil {
			return nil, err
		}
		if err := dumpJSON(opts.DumpDir, doc.ID+"_chunks.json", chunks); err != nil {
			return nil, err
		}
	}

	cp, err := LoadCheckpoint(opts.CheckpointPath, doc.Source, p.model, p.dimensions)
	if err != nil {
		return nil, err
	}

	report := &Report{
		DocumentID:  doc.ID,
		Source:      doc.Source,
		Pages:       len(doc.Pages),
		TotalChunks: len(chunks),
	}

	var pending []chunk.Chunk
	for _, c := range chunks {
		if cp.IsDone(c.ID) {
			report.Skipped++
			continue
		}
		pending = append(pending, c)
	}
	if report.Skipped > 0 {
		logger.Info("checkpoint: skipping %d already-indexed chunks", report.Skipped)
	}

	var embedded []embeddingRecord
	for start := 0; start < len(pending); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(pending))
		batch := pending[start:end]

		vectors, err := p.runBatch(ctx, batch, cp)
		if opts.DumpDir != "" {
			for i := range vectors {
				embedded = append(embedded, embeddingRecord{ChunkID: batch[i].ID, Model: p.model, Vector: vectors[i]})
			}
		}
		if err != nil {
			for _, c := range pending[start:] {
				if !cp.IsDone(c.ID) {
					report.Pending = append(report.Pending, c.ID)
				}
			}
			return report, err
		}
		report.Embedded += len(batch)
		logger.Debug("indexed batch %d-%d of %d", start, end, len(pending))
	}

	if opts.DumpDir != "" {
		if err := dumpJSON(opts.DumpDir, doc.ID+"_embeddings.json", embedded); err != nil {
			return report, err
		}
	}

	if err := cp.Remove(); err != nil {
		logger.Warn("failed to remove checkpoint: %v", err)
	}
	return report, nil
}

func (p *Pipeline) runBatch(ctx context.Context, batch []chunk.Chunk, cp *Checkpoint) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}

	failed, err := p.indexer.Upsert(ctx, batch, vectors)
	if err != nil {
		return vectors, fmt.Errorf("failed to index batch: %w", err)
	}

	var done []string
	failedSet := make(map[string]bool, len(failed))
	for _, id := range failed {
		failedSet[id] = true
	}
	for _, c := range batch {
		if !failedSet[c.ID] {
			done = append(done, c.ID)
		}
	}
	cp.MarkDone(done)
	if err := cp.Save(); err != nil {
		return vectors, err
	}

	if len(failed) > 0 {
		return vectors, fmt.Errorf("failed to index %d chunks (first: %s)", len(failed), failed[0])
	}
	return vectors, nil
}

func dumpJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
