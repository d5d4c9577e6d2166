package document

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Source describes where a passage came from: an uploaded manual or a link.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Document represents one knowledge source (a manual file or a linked page)
// that can be chunked and indexed under a corpus fingerprint.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
	HTML    bool   `json:"html,omitempty"` // content needs HTML cleanup before chunking
}

// Passage is an indexed slice of a document. Passages are immutable once
// retrieved; the pipeline only replaces the set it holds.
type Passage struct {
	Content  string `json:"content"`
	Source   string `json:"source,omitempty"`
	Position int    `json:"position,omitempty"`
}

// Text joins passages into one context blob for generation.
func Text(passages []Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, p.Content)
	}
	return strings.Join(parts, "\n\n")
}

var docCounter atomic.Int64

// EnsureDocumentID makes sure every document has a stable identifier.
func EnsureDocumentID(doc *Document) {
	if doc == nil || doc.ID != "" {
		return
	}
	doc.ID = fmt.Sprintf("doc_%d", docCounter.Add(1))
}
