package analyzer

import (
	"context"
	"fmt"

	"github.com/BerylCAtieno/audit-auto-api/internal/llm"
	"github.com/BerylCAtieno/audit-auto-api/internal/models"
	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
)

// MaxPromptChars bounds how much document text is sent to the model.
const MaxPromptChars = 30000

const auditPromptTemplate = `Analyze the following financial/audit data.
DATA: %s

OUTPUT JSON FORMAT ONLY:
{ "score": 0-100, "status": "PASSED/FAILED", "summary": "...", "risks": [], "recommendations": [] }`

// Analyzer produces an audit assessment for document text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) *models.AuditResult
}

type auditAnalyzer struct {
	gen    llm.Generator
	model  string
	logger *utils.Logger
}

func NewAuditAnalyzer(gen llm.Generator, model string, logger *utils.Logger) Analyzer {
	return &auditAnalyzer{
		gen:    gen,
		model:  model,
		logger: logger,
	}
}

// Analyze never fails: gateway exhaustion and unparseable output both
// produce an ERROR result.
func (a *auditAnalyzer) Analyze(ctx context.Context, text string) *models.AuditResult {
	prompt := BuildAuditPrompt(text)

	response, err := a.gen.Generate(ctx, a.model, prompt)
	if err != nil {
		a.logger.Error("Audit analysis failed", "error", err)
		return models.ErrorResult(fmt.Sprintf("AI Error: %v", err), err.Error())
	}

	result, err := ParseAuditResult(response)
	if err != nil {
		a.logger.Error("Failed to parse audit response", "error", err, "response_length", len(response))
		return models.ErrorResult(fmt.Sprintf("AI Error: %v", err), err.Error())
	}

	return result
}

func BuildAuditPrompt(text string) string {
	return fmt.Sprintf(auditPromptTemplate, truncateChars(text, MaxPromptChars))
}

func truncateChars(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
