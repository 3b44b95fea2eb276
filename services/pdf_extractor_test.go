package services

import (
	"strings"
	"testing"
)

func TestSplitPageTextParagraphBoundaries(t *testing.T) {
	e := NewPDFExtractor(120)

	text := strings.Repeat("Net operating income grew year over year.\n\n", 10)
	pieces := e.splitPageText(text)

	if len(pieces) < 2 {
		t.Fatalf("got %d pieces, want the page split across several chunks", len(pieces))
	}
	for i, piece := range pieces {
		if len(piece) > 200 {
			t.Fatalf("piece %d is %d chars, want bounded near the chunk size", i, len(piece))
		}
	}
}

func TestSplitPageTextMergesSmallFragments(t *testing.T) {
	e := NewPDFExtractor(1200)

	pieces := e.splitPageText("Section header\n\nA fuller paragraph with enough text to stand on its own as a retrievable chunk of the document.")
	if len(pieces) != 1 {
		t.Fatalf("got %d pieces, want fragments merged into 1", len(pieces))
	}
}

func TestSplitPageTextEmptyPage(t *testing.T) {
	e := NewPDFExtractor(1200)

	if pieces := e.splitPageText("   \n\n  \n"); len(pieces) != 0 {
		t.Fatalf("got %v, want nothing from a blank page", pieces)
	}
}
