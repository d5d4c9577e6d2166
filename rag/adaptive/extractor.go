package adaptive

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/AiQura/ama-app/llm"
	"github.com/AiQura/ama-app/message"
)

// NoPartsSentinel is the extractor's in-band signal that the answer has no
// extractable part numbers, matched case-insensitively as a substring.
const NoPartsSentinel = "no part numbers available"

// maxExtractionLen caps the price-lookup query length.
const maxExtractionLen = 350

// extractor turns an accepted answer into a price-lookup query, or the
// no-parts sentinel. Pure transformation, no loop.
type extractor struct {
	llm    llm.Client
	prompt string
	logger *slog.Logger
}

func newExtractor(client llm.Client, cfg *Config, logger *slog.Logger) *extractor {
	return &extractor{
		llm:    client,
		prompt: cfg.ExtractionPrompt,
		logger: logger,
	}
}

// Extract returns either the sentinel or a non-empty query of at most 350
// characters. Model failure degrades to the sentinel so the run still
// completes without a price lookup.
func (e *extractor) Extract(ctx context.Context, generation string) string {
	if e.llm == nil {
		return NoPartsSentinel
	}
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, e.prompt),
		message.NewMessage(message.RoleUser, generation),
	}
	reply, err := e.llm.Generate(ctx, msgs)
	if err != nil {
		e.logger.Warn("spare parts extraction failed, skipping price lookup", "error", err)
		return NoPartsSentinel
	}
	query := strings.TrimSpace(reply.Text())
	if query == "" || HasNoParts(query) {
		return NoPartsSentinel
	}
	if len(query) > maxExtractionLen {
		cut := maxExtractionLen
		for cut > 0 && !utf8.RuneStart(query[cut]) {
			cut--
		}
		query = query[:cut]
	}
	return query
}

// HasNoParts reports whether the extraction contains the no-parts
// sentinel.
func HasNoParts(extraction string) bool {
	return strings.Contains(strings.ToLower(extraction), NoPartsSentinel)
}
