package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerylCAtieno/audit-auto-api/internal/analyzer"
	"github.com/BerylCAtieno/audit-auto-api/internal/chunker"
	"github.com/BerylCAtieno/audit-auto-api/internal/extractor"
	"github.com/BerylCAtieno/audit-auto-api/internal/models"
	"github.com/BerylCAtieno/audit-auto-api/internal/repository"
	"github.com/BerylCAtieno/audit-auto-api/internal/storage"
	"github.com/BerylCAtieno/audit-auto-api/internal/transactions"
	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
	"github.com/BerylCAtieno/audit-auto-api/internal/vectorstore"
)

const (
	noDocumentsAnswer = "No relevant documents found."
	uploadTimeLayout  = "2006-01-02 15:04:05.000000"
)

type AuditService interface {
	AuditFile(ctx context.Context, req *models.UploadRequest) (*models.AuditResponse, error)
	Ask(ctx context.Context, question string) *models.AskResponse
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, limit int) ([]models.Document, error)
	DownloadDocument(ctx context.Context, id string) (*models.Document, []byte, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Dependencies are the collaborators of the audit service. Storage may be
// nil, in which case uploads are not archived.
type Dependencies struct {
	Repo     repository.Repository
	Storage  storage.Storage
	Scanner  *transactions.Scanner
	Analyzer analyzer.Analyzer
	Answerer analyzer.Answerer
	Store    vectorstore.Store
	Chunker  *chunker.Chunker
	Logger   *utils.Logger

	BatchSize    int
	QueryResults int

	// Now defaults to time.Now.
	Now func() time.Time
}

type auditService struct {
	Dependencies
}

func NewAuditService(deps Dependencies) AuditService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = vectorstore.DefaultBatchSize
	}
	if deps.QueryResults <= 0 {
		deps.QueryResults = 3
	}
	return &auditService{Dependencies: deps}
}

// AuditFile audits one upload. Archive, registry and vector-store failures
// are logged and never change the returned result. Uploads rejected as
// empty or unreadable leave no archive object or registry row behind.
func (s *auditService) AuditFile(ctx context.Context, req *models.UploadRequest) (*models.AuditResponse, error) {
	var (
		result *models.AuditResult
		text   string
	)

	if extractor.Ext(req.Filename) == ".csv" {
		scan := s.Scanner.ScanBytes(req.File)
		s.Logger.Info("CSV scanned",
			"filename", req.Filename,
			"total_rows", scan.TotalRows,
			"suspicious_rows", scan.SuspiciousRows,
			"skipped_rows", scan.SkippedRows)

		if scan.Clean() {
			// nothing to explain; skip the model call
			result = models.PassedScan(scan.TotalRows)
			text = fmt.Sprintf("Clean CSV Audit: %s. %d rows checked.", req.Filename, scan.TotalRows)
		} else {
			text = csvReport(req.Filename, scan)
		}
	} else {
		extracted, err := extractor.Extract(req.Filename, req.File)
		if err != nil {
			s.Logger.Warn("Failed to extract text", "filename", req.Filename, "error", err)
		}
		if strings.TrimSpace(extracted) == "" {
			return nil, utils.NewBadRequestError("Empty or unreadable file.")
		}
		text = extracted
	}

	docID := utils.GenerateID()
	now := s.Now()

	storageKey := s.archive(ctx, docID, req)
	s.register(ctx, &models.Document{
		ID:          docID,
		Filename:    req.Filename,
		FileSize:    int64(len(req.File)),
		ContentType: req.ContentType,
		StorageKey:  storageKey,
		CreatedAt:   now.UTC(),
	})

	if result == nil {
		result = s.Analyzer.Analyze(ctx, text)
	}

	s.index(ctx, docID, req.Filename, text, result, now)

	s.Logger.Info("Document audited",
		"id", docID,
		"filename", req.Filename,
		"status", result.Status,
		"score", result.Score)

	return models.NewAuditResponse(req.Filename, result), nil
}

func csvReport(filename string, scan transactions.ScanResult) string {
	payload, err := json.MarshalIndent(scan.Payload, "", "  ")
	if err != nil {
		payload = []byte("[]")
	}
	return fmt.Sprintf("AUDIT REPORT: %s\nTotal Rows: %d\nSuspicious: %d\nDATA:\n%s",
		filename, scan.TotalRows, scan.SuspiciousRows, payload)
}

func (s *auditService) archive(ctx context.Context, docID string, req *models.UploadRequest) string {
	if s.Storage == nil {
		return ""
	}
	key := storage.ObjectKey(docID, req.Filename)
	if err := s.Storage.Upload(ctx, key, req.File, req.ContentType); err != nil {
		s.Logger.Error("Failed to archive upload", "error", err, "key", key)
		return ""
	}
	return key
}

func (s *auditService) register(ctx context.Context, doc *models.Document) {
	if s.Repo == nil {
		return
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		s.Logger.Error("Failed to save document to database", "error", err, "doc_id", doc.ID)
	}
}

// index chunks text and writes it to the vector store with the audit
// outcome attached to every chunk.
func (s *auditService) index(ctx context.Context, docID, filename, text string, result *models.AuditResult, now time.Time) {
	chunks := s.Chunker.Split(text)
	if len(chunks) == 0 {
		return
	}

	uploadTime := now.Format(uploadTimeLayout)
	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ID:       fmt.Sprintf("%s_%s_%d", filename, utils.GenerateID(), i),
			Document: chunk,
			Metadata: models.ChunkMetadata{
				DocumentID: docID,
				Filename:   filename,
				Score:      result.Score,
				Status:     result.Status,
				UploadTime: uploadTime,
				ChunkIndex: i,
			}.Map(),
		}
	}

	if err := vectorstore.AddInBatches(ctx, s.Store, records, s.BatchSize); err != nil {
		s.Logger.Error("Failed to index document", "error", err, "doc_id", docID, "chunks", len(records))
		return
	}

	if s.Repo != nil {
		if err := s.Repo.SetChunkCount(ctx, docID, len(records)); err != nil {
			s.Logger.Error("Failed to update chunk count", "error", err, "doc_id", docID)
		}
	}
}

// Ask answers question from the most similar indexed chunks. Failures are
// reported in the answer text.
func (s *auditService) Ask(ctx context.Context, question string) *models.AskResponse {
	matches, err := s.Store.Query(ctx, question, s.QueryResults)
	if err != nil {
		s.Logger.Error("Vector search failed", "error", err)
		return models.NewAskNotice(fmt.Sprintf("Error searching database: %v", err))
	}
	if len(matches) == 0 {
		return models.NewAskNotice(noDocumentsAnswer)
	}

	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Document
	}

	answer := s.Answerer.Answer(ctx, question, strings.Join(docs, " "))

	return models.NewAskAnswer(question, answer, matches[0].Metadata)
}

func (s *auditService) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		s.Logger.Error("Failed to get document", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve document")
	}
	if doc == nil {
		return nil, utils.NewNotFoundError("Document not found")
	}

	return doc, nil
}

func (s *auditService) ListDocuments(ctx context.Context, limit int) ([]models.Document, error) {
	docs, err := s.Repo.List(ctx, limit)
	if err != nil {
		s.Logger.Error("Failed to list documents", "error", err)
		return nil, utils.NewInternalError("Failed to list documents")
	}
	return docs, nil
}

// DownloadDocument returns the registry entry and the archived bytes of an
// upload.
func (s *auditService) DownloadDocument(ctx context.Context, id string) (*models.Document, []byte, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.Storage == nil || doc.StorageKey == "" {
		return nil, nil, utils.NewNotFoundError("Original file was not archived")
	}

	data, err := s.Storage.Download(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, utils.NewNotFoundError("Original file was not archived")
	}
	if err != nil {
		s.Logger.Error("Failed to download archived file", "error", err, "id", id, "key", doc.StorageKey)
		return nil, nil, utils.NewInternalError("Failed to retrieve file")
	}
	return doc, data, nil
}

// DeleteDocument removes a document's indexed chunks, its archived upload
// and finally its registry row, so a failed delete can be retried.
func (s *auditService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteDocument(ctx, id); err != nil {
		s.Logger.Error("Failed to delete document chunks", "error", err, "id", id)
		return utils.NewInternalError("Failed to delete document")
	}

	if s.Storage != nil && doc.StorageKey != "" {
		if err := s.Storage.Delete(ctx, doc.StorageKey); err != nil {
			s.Logger.Error("Failed to delete archived file", "error", err, "id", id, "key", doc.StorageKey)
			return utils.NewInternalError("Failed to delete document")
		}
	}

	deleted, err := s.Repo.Delete(ctx, id)
	if err != nil {
		s.Logger.Error("Failed to delete document", "error", err, "id", id)
		return utils.NewInternalError("Failed to delete document")
	}
	if !deleted {
		return utils.NewNotFoundError("Document not found")
	}

	s.Logger.Info("Document deleted", "id", id, "filename", doc.Filename)
	return nil
}
