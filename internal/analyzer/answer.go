package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/BerylCAtieno/audit-auto-api/internal/llm"
	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
)

// Answerer answers free-text questions from retrieved context.
type Answerer interface {
	Answer(ctx context.Context, question, contextText string) string
}

type questionAnswerer struct {
	gen    llm.Generator
	model  string
	logger *utils.Logger
}

func NewQuestionAnswerer(gen llm.Generator, model string, logger *utils.Logger) Answerer {
	return &questionAnswerer{
		gen:    gen,
		model:  model,
		logger: logger,
	}
}

func BuildQuestionPrompt(question, contextText string) string {
	return fmt.Sprintf("Context: %s\nQuestion: %s", contextText, question)
}

// Answer returns the trimmed model reply, or an "Error: ..." string.
func (q *questionAnswerer) Answer(ctx context.Context, question, contextText string) string {
	response, err := q.gen.Generate(ctx, q.model, BuildQuestionPrompt(question, contextText))
	if err != nil {
		q.logger.Error("Question answering failed", "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return strings.TrimSpace(response)
}
