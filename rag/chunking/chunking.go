// Package chunking splits extracted document text into retrieval passages.
//
// The default pass cuts on paragraph and sentence boundaries at a character
// budget, so passages never start mid-sentence. An optional second pass,
// enabled with WithTokensPerChunk, re-windows oversized passages by token
// count so the embedder sees uniform inputs regardless of source
// formatting. The token pass loads its BPE table lazily; it is off by
// default so plain ingestion stays self-contained.
package chunking

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Chunker turns document text into an ordered list of passages.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Encoder maps text to token IDs and back. tiktoken.Tiktoken satisfies it.
type Encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithCharSize sets the character budget for the boundary pass.
func WithCharSize(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.charSize = n
		}
	}
}

// WithTokensPerChunk sets the token window and enables the re-window pass.
func WithTokensPerChunk(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.tokensPerChunk = n
		}
	}
}

// WithEncoder overrides the tiktoken encoder used by the re-window pass.
func WithEncoder(enc Encoder) Option {
	return func(s *Splitter) {
		if enc != nil {
			s.enc = enc
		}
	}
}

// WithEncoding sets the tiktoken encoding name.
func WithEncoding(name string) Option {
	return func(s *Splitter) {
		if name != "" {
			s.encoding = name
		}
	}
}

// Splitter is the default Chunker.
type Splitter struct {
	charSize       int
	tokensPerChunk int
	encoding       string
	enc            Encoder
}

// NewSplitter returns a Splitter producing 1000-char boundary chunks. The
// token re-window pass runs only when WithTokensPerChunk sets a window.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		charSize: 1000,
		encoding: "cl100k_base",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ Chunker = (*Splitter)(nil)

// Chunk runs the configured passes and drops empty passages.
func (s *Splitter) Chunk(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	coarse := s.splitByBoundary(text)
	if s.tokensPerChunk <= 0 {
		return coarse, nil
	}

	enc := s.enc
	if enc == nil {
		loaded, err := tiktoken.GetEncoding(s.encoding)
		if err != nil {
			return nil, err
		}
		s.enc = loaded
		enc = loaded
	}

	var out []string
	for _, c := range coarse {
		ids := enc.Encode(c, nil, nil)
		if len(ids) <= s.tokensPerChunk {
			out = append(out, c)
			continue
		}
		for start := 0; start < len(ids); start += s.tokensPerChunk {
			end := start + s.tokensPerChunk
			if end > len(ids) {
				end = len(ids)
			}
			piece := strings.TrimSpace(enc.Decode(ids[start:end]))
			if piece != "" {
				out = append(out, piece)
			}
		}
	}
	return out, nil
}

// splitByBoundary cuts at paragraph breaks first, then sentences, then
// words, accumulating up to the character budget.
func (s *Splitter) splitByBoundary(text string) []string {
	units := splitUnits(text, s.charSize)

	var chunks []string
	var buf strings.Builder
	for _, u := range units {
		if buf.Len() > 0 && buf.Len()+len(u)+1 > s.charSize {
			chunks = append(chunks, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(u)
	}
	if strings.TrimSpace(buf.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(buf.String()))
	}
	return chunks
}

func splitUnits(text string, budget int) []string {
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= budget {
			units = append(units, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if len(sent) <= budget {
				units = append(units, sent)
				continue
			}
			// degenerate case, cut on words
			words := strings.Fields(sent)
			var b strings.Builder
			for _, w := range words {
				if b.Len() > 0 && b.Len()+len(w)+1 > budget {
					units = append(units, b.String())
					b.Reset()
				}
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(w)
			}
			if b.Len() > 0 {
				units = append(units, b.String())
			}
		}
	}
	return units
}

func splitSentences(para string) []string {
	var sents []string
	var b strings.Builder
	for _, r := range para {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sents = append(sents, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sents = append(sents, s)
	}
	return sents
}
