package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Checkpoint records which chunk IDs have already been embedded and
// indexed for a source file, so an interrupted run resumes without
// re-billing completed work. The ledger is only trusted when the
// embedding model and dimensions match the current run.
type Checkpoint struct {
	Source     string          `json:"source"`
	Model      string          `json:"model"`
	Dimensions int             `json:"dimensions"`
	Done       map[string]bool `json:"done"`

	path string
}

// LoadCheckpoint reads a ledger from path. A missing file yields a fresh
// ledger for the given model. A ledger written by a different model or
// dimension count is discarded rather than reused.
func LoadCheckpoint(path, source, model string, dimensions int) (*Checkpoint, error) {
	cp := &Checkpoint{
		Source:     source,
		Model:      model,
		Dimensions: dimensions,
		Done:       make(map[string]bool),
		path:       path,
	}
	if path == "" {
		return cp, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var saved Checkpoint
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", path, err)
	}
	if saved.Model != model || saved.Dimensions != dimensions || saved.Source != source {
		return cp, nil
	}
	if saved.Done != nil {
		cp.Done = saved.Done
	}
	return cp, nil
}

func (c *Checkpoint) IsDone(chunkID string) bool {
	return c.Done[chunkID]
}

func (c *Checkpoint) MarkDone(chunkIDs []string) {
	for _, id := range chunkIDs {
		c.Done[id] = true
	}
}

// Save writes the ledger atomically via a temp file and rename, so a
// crash mid-write never truncates a valid ledger.
func (c *Checkpoint) Save() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Remove deletes the ledger file after a fully successful run.
func (c *Checkpoint) Remove() error {
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// AcquireLock takes a single-writer advisory lock next to the checkpoint
// file. A second ingester racing on the same checkpoint fails fast instead
// of corrupting the ledger. The returned release function removes the lock.
func AcquireLock(checkpointPath string) (func(), error) {
	if checkpointPath == "" {
		return func() {}, nil
	}
	lockPath := checkpointPath + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("another ingest holds %s; remove it if no ingest is running", filepath.Base(lockPath))
		}
		return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { os.Remove(lockPath) }, nil
}
