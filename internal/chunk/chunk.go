// Package chunk splits page text into overlapping fixed-size passages with
// provenance metadata. Chunk ids are a pure function of document, page and
// sequence index so re-chunking the same input yields identical ids.
package chunk

import (
	"fmt"

	"github.com/regchat/cli/internal/extract"
)

// DefaultSize is the default chunk size in characters.
const DefaultSize = 1000

// DefaultOverlap is the default number of overlapping characters.
const DefaultOverlap = 100

// Chunk is a bounded-length slice of page text, the unit of embedding and
// retrieval. Overlap is the number of leading characters shared with the
// previous chunk of the same page.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	PageNumber int    `json:"page_number"`
	Seq        int    `json:"seq"`
	Text       string `json:"text"`
	Overlap    int    `json:"overlap"`
}

// Splitter produces chunks of at most Size characters with Overlap characters
// shared between consecutive chunks of a page.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter. Non-positive sizes fall back to defaults and
// an overlap that would reach or exceed the size is clamped to a quarter of it,
// which keeps the split walk strictly advancing.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Splitter{size: size, overlap: overlap}
}

// ID derives the stable chunk identifier for a (document, page, seq) triple.
func ID(documentID string, pageNumber, seq int) string {
	return fmt.Sprintf("%s:p%d:%d", documentID, pageNumber, seq)
}

// SplitPage splits one page into ordered chunks. An empty or whitespace-only
// page yields no chunks. Sequence indexes are zero-based and strictly
// increasing; the last chunk of a page may be shorter than the target size.
func (s *Splitter) SplitPage(source string, page extract.Page) []Chunk {
	runes := []rune(page.Text)
	if len(runes) == 0 || blank(runes) {
		return nil
	}

	step := s.size - s.overlap
	var chunks []Chunk
	for start, seq := 0, 0; start < len(runes); start, seq = start+step, seq+1 {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		overlap := 0
		if seq > 0 {
			overlap = s.overlap
		}
		chunks = append(chunks, Chunk{
			ID:         ID(page.DocumentID, page.Number, seq),
			DocumentID: page.DocumentID,
			Source:     source,
			PageNumber: page.Number,
			Seq:        seq,
			Text:       string(runes[start:end]),
			Overlap:    overlap,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// SplitDocument splits every page of a document, preserving page order.
func (s *Splitter) SplitDocument(doc *extract.Document) []Chunk {
	var chunks []Chunk
	for _, page := range doc.Pages {
		chunks = append(chunks, s.SplitPage(doc.Source, page)...)
	}
	return chunks
}

func blank(runes []rune) bool {
	for _, r := range runes {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
		default:
			return false
		}
	}
	return true
}
