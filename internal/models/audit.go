package models

import (
	"fmt"
	"time"
)

type AuditStatus string

const (
	StatusPassed AuditStatus = "PASSED"
	StatusFailed AuditStatus = "FAILED"
	StatusError  AuditStatus = "ERROR"
)

// AuditResult is the assessment of one uploaded document.
type AuditResult struct {
	Score           int         `json:"score"`
	Status          AuditStatus `json:"status"`
	Summary         string      `json:"summary"`
	Risks           []string    `json:"risks"`
	Recommendations []string    `json:"recommendations"`
}

// PassedScan is the result synthesized for a CSV with no suspicious rows.
func PassedScan(totalRows int) *AuditResult {
	return &AuditResult{
		Score:           100,
		Status:          StatusPassed,
		Summary:         fmt.Sprintf("Scanned %d rows. No anomalies found.", totalRows),
		Risks:           []string{},
		Recommendations: []string{"No action needed."},
	}
}

// ErrorResult reports a failed audit without raising.
func ErrorResult(summary string, risks ...string) *AuditResult {
	if risks == nil {
		risks = []string{}
	}
	return &AuditResult{
		Score:           0,
		Status:          StatusError,
		Summary:         summary,
		Risks:           risks,
		Recommendations: []string{},
	}
}

type UploadRequest struct {
	File        []byte
	Filename    string
	ContentType string
}

type AuditResponse struct {
	Filename        string      `json:"filename"`
	Score           int         `json:"score"`
	Status          AuditStatus `json:"status"`
	Summary         string      `json:"summary"`
	Risks           []string    `json:"risks"`
	Recommendations []string    `json:"recommendations"`
}

func NewAuditResponse(filename string, r *AuditResult) *AuditResponse {
	return &AuditResponse{
		Filename:        filename,
		Score:           r.Score,
		Status:          r.Status,
		Summary:         r.Summary,
		Risks:           nonNil(r.Risks),
		Recommendations: nonNil(r.Recommendations),
	}
}

type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse answers a question. Notices (no match, failed search) carry
// only Answer; an answered question always carries Sources, empty or not.
type AskResponse struct {
	Question string         `json:"question,omitempty"`
	Answer   string         `json:"answer"`
	Sources  map[string]any `json:"sources,omitzero"`
}

// NewAskNotice is an answer-only response.
func NewAskNotice(answer string) *AskResponse {
	return &AskResponse{Answer: answer}
}

// NewAskAnswer is a full response. A nil sources map is sent as {}.
func NewAskAnswer(question, answer string, sources map[string]any) *AskResponse {
	if sources == nil {
		sources = map[string]any{}
	}
	return &AskResponse{Question: question, Answer: answer, Sources: sources}
}

// Document is the registry entry for an uploaded file. It does not carry
// the audit result.
type Document struct {
	ID          string    `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	FileSize    int64     `json:"file_size" db:"file_size"`
	ContentType string    `json:"content_type" db:"content_type"`
	StorageKey  string    `json:"storage_key" db:"storage_key"`
	ChunkCount  int       `json:"chunk_count" db:"chunk_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ChunkMetadata is stored alongside every chunk in the vector store.
type ChunkMetadata struct {
	DocumentID string      `json:"document_id"`
	Filename   string      `json:"filename"`
	Score      int         `json:"score"`
	Status     AuditStatus `json:"status"`
	UploadTime string      `json:"upload_time"`
	ChunkIndex int         `json:"chunk_index"`
}

// Map flattens the metadata for stores that only accept scalar maps.
func (m ChunkMetadata) Map() map[string]any {
	return map[string]any{
		"document_id": m.DocumentID,
		"filename":    m.Filename,
		"score":       m.Score,
		"status":      string(m.Status),
		"upload_time": m.UploadTime,
		"chunk_index": m.ChunkIndex,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
