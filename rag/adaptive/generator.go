package adaptive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AiQura/ama-app/llm"
	"github.com/AiQura/ama-app/message"
	"github.com/AiQura/ama-app/pkg/errors"
	"github.com/AiQura/ama-app/rag/document"
)

// generator produces the structured answer. The first round gets the
// question plus the passage context; later rounds get the latest critique,
// plus any passages fetched since the previous round, as the next user
// turn over the full history, so the model revises instead of restarting.
type generator struct {
	llm    llm.Client
	prompt string
	logger *slog.Logger
}

func newGenerator(client llm.Client, cfg *Config, logger *slog.Logger) *generator {
	return &generator{
		llm:    client,
		prompt: cfg.GenerationPrompt,
		logger: logger,
	}
}

// Generate runs one answer round against the run state, appending the
// prompt turn and the reply to the history and overwriting Generation.
func (g *generator) Generate(ctx context.Context, st *RunState) error {
	if g.llm == nil {
		return fmt.Errorf("%w: generator client not configured", errors.ErrGenerationFailed)
	}

	var turn string
	if len(st.History) == 0 {
		turn = firstRoundPrompt(st)
		st.History = append(st.History, message.NewMessage(message.RoleSystem, g.prompt))
	} else {
		turn = revisionPrompt(st)
	}
	st.contextMark = len(st.Documents)
	st.History = append(st.History, message.NewMessage(message.RoleUser, turn))

	reply, err := g.llm.Generate(ctx, st.History)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrGenerationFailed, err)
	}
	text := reply.Text()
	if text == "" {
		return fmt.Errorf("%w: empty model response", errors.ErrGenerationFailed)
	}

	st.History = append(st.History, message.NewMessage(message.RoleAssistant, text))
	st.Generation = text
	g.logger.Debug("generation round complete",
		"round", st.ReflectionRound, "answer", trimForLog(text, 120))
	return nil
}

func firstRoundPrompt(st *RunState) string {
	context := contextBlob(st.Documents)
	if context == "" {
		return fmt.Sprintf("Question: %s\n\nReference material: none was found for this question. State that the available documentation is insufficient and ask the user to clarify or provide sources. Do not invent any part numbers.", st.Question)
	}
	return fmt.Sprintf("Question: %s\n\nReference material:\n%s", st.Question, context)
}

func revisionPrompt(st *RunState) string {
	prompt := fmt.Sprintf("Revise your previous answer based on this review:\n%s", st.ReflectionResult)
	if fresh := st.freshDocuments(); len(fresh) > 0 {
		prompt += fmt.Sprintf("\n\nNew reference material:\n%s", contextBlob(fresh))
	}
	return prompt
}

func contextBlob(passages []*document.Passage) string {
	vals := make([]document.Passage, 0, len(passages))
	for _, p := range passages {
		vals = append(vals, *p)
	}
	return document.Text(vals)
}
