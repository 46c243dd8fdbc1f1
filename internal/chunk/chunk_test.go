package chunk

import (
	"strings"
	"testing"

	"github.com/regchat/cli/internal/extract"
)

func page(docID string, number int, text string) extract.Page {
	return extract.Page{DocumentID: docID, Number: number, Text: text}
}

func TestSplitPage_Empty(t *testing.T) {
	s := NewSplitter(1000, 100)
	if got := s.SplitPage("doc.pdf", page("d1", 1, "")); got != nil {
		t.Fatalf("expected no chunks for empty page, got %d", len(got))
	}
	if got := s.SplitPage("doc.pdf", page("d1", 1, "  \n\t ")); got != nil {
		t.Fatalf("expected no chunks for whitespace page, got %d", len(got))
	}
}

func TestSplitPage_ShortPage(t *testing.T) {
	s := NewSplitter(1000, 100)
	text := strings.Repeat("a", 50)
	chunks := s.SplitPage("doc.pdf", page("d1", 1, text))

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("chunk text does not match page text")
	}
	if chunks[0].Overlap != 0 {
		t.Errorf("expected zero overlap, got %d", chunks[0].Overlap)
	}
	if chunks[0].Seq != 0 {
		t.Errorf("expected seq 0, got %d", chunks[0].Seq)
	}
}

func TestSplitPage_ExactSize(t *testing.T) {
	s := NewSplitter(1000, 100)
	chunks := s.SplitPage("doc.pdf", page("d1", 1, strings.Repeat("x", 1000)))

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for page of exactly chunk size, got %d", len(chunks))
	}
}

// The two-page ingestion scenario: 50 characters on page 1, 2200 on page 2,
// chunk size 1000, overlap 100.
func TestSplitDocument_TwoPages(t *testing.T) {
	s := NewSplitter(1000, 100)
	doc := &extract.Document{
		ID:     "d1",
		Source: "doc.pdf",
		Pages: []extract.Page{
			page("d1", 1, strings.Repeat("a", 50)),
			page("d1", 2, strings.Repeat("b", 2200)),
		},
	}
	chunks := s.SplitDocument(doc)

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks total, got %d", len(chunks))
	}
	if chunks[0].PageNumber != 1 || chunks[0].Seq != 0 {
		t.Errorf("page 1 chunk misnumbered: %+v", chunks[0])
	}
	for i, want := range []int{0, 1, 2} {
		c := chunks[1+i]
		if c.PageNumber != 2 || c.Seq != want {
			t.Errorf("page 2 chunk %d: got page %d seq %d", i, c.PageNumber, c.Seq)
		}
	}
	// Lengths: full, full, remainder 2200 - 2*900 = 400.
	if len(chunks[1].Text) != 1000 || len(chunks[2].Text) != 1000 || len(chunks[3].Text) != 400 {
		t.Errorf("unexpected chunk lengths %d/%d/%d",
			len(chunks[1].Text), len(chunks[2].Text), len(chunks[3].Text))
	}
}

func TestSplitPage_Reconstruction(t *testing.T) {
	cases := []int{0, 50, 1000, 2200, 3567}
	s := NewSplitter(1000, 100)

	for _, n := range cases {
		text := deterministicText(n)
		chunks := s.SplitPage("doc.pdf", page("d1", 1, text))

		var rebuilt strings.Builder
		for i, c := range chunks {
			runes := []rune(c.Text)
			if i == 0 {
				rebuilt.WriteString(c.Text)
			} else {
				rebuilt.WriteString(string(runes[c.Overlap:]))
			}
			if len(runes) > 1000 {
				t.Errorf("len=%d: chunk %d exceeds target size: %d", n, i, len(runes))
			}
		}
		if rebuilt.String() != text {
			t.Errorf("len=%d: reconstruction mismatch", n)
		}
	}
}

func TestSplitPage_Idempotent(t *testing.T) {
	s := NewSplitter(1000, 100)
	p := page("d1", 3, deterministicText(2500))

	first := s.SplitPage("doc.pdf", p)
	second := s.SplitPage("doc.pdf", p)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Text != second[i].Text {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
	if first[0].ID != "d1:p3:0" {
		t.Errorf("unexpected id format: %s", first[0].ID)
	}
}

func TestSplitPage_MultibyteText(t *testing.T) {
	s := NewSplitter(10, 2)
	text := strings.Repeat("héllo wörld ", 5)
	chunks := s.SplitPage("doc.pdf", page("d1", 1, text))

	var rebuilt strings.Builder
	for i, c := range chunks {
		if i == 0 {
			rebuilt.WriteString(c.Text)
		} else {
			rebuilt.WriteString(string([]rune(c.Text)[c.Overlap:]))
		}
	}
	if rebuilt.String() != text {
		t.Errorf("multibyte reconstruction mismatch")
	}
}

func TestNewSplitter_ClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 150)
	if s.overlap >= s.size {
		t.Errorf("overlap %d not clamped below size %d", s.overlap, s.size)
	}
}

// deterministicText builds n characters of varied but reproducible text.
func deterministicText(n int) string {
	const alphabet = "abcdefghij klmnopqrst uvwxyz.\n"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}
