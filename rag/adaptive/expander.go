package adaptive

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AiQura/ama-app/llm"
	"github.com/AiQura/ama-app/message"
)

const maxExpandedQueries = 8

// expander turns one question into related search variants. The last
// variant asks for a step-by-step solution and anchors reranking.
type expander struct {
	llm    llm.Client
	prompt string
	logger *slog.Logger
}

func newExpander(client llm.Client, cfg *Config, logger *slog.Logger) *expander {
	return &expander{
		llm:    client,
		prompt: cfg.ExpansionPrompt,
		logger: logger,
	}
}

// Expand returns 0 to 8 related questions. Model failure degrades to an
// empty set so the run continues with single-query retrieval.
func (e *expander) Expand(ctx context.Context, question string) []string {
	if e.llm == nil {
		return nil
	}
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, e.prompt),
		message.NewMessage(message.RoleUser, question),
	}
	reply, err := e.llm.Generate(ctx, msgs)
	if err != nil {
		e.logger.Warn("query expansion failed, using single query", "error", err)
		return nil
	}
	return parseQuestions(reply.Text())
}

func parseQuestions(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		q := strings.TrimSpace(line)
		q = strings.TrimLeft(q, "-*0123456789.) ")
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == maxExpandedQueries {
			break
		}
	}
	return out
}
