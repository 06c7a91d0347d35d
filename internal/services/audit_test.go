package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/audit-auto-api/internal/chunker"
	"github.com/BerylCAtieno/audit-auto-api/internal/models"
	"github.com/BerylCAtieno/audit-auto-api/internal/storage"
	"github.com/BerylCAtieno/audit-auto-api/internal/transactions"
	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
	"github.com/BerylCAtieno/audit-auto-api/internal/vectorstore"
)

type fakeAnalyzer struct {
	result *models.AuditResult
	texts  []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, text string) *models.AuditResult {
	f.texts = append(f.texts, text)
	return f.result
}

type fakeAnswerer struct {
	question, context string
}

func (f *fakeAnswerer) Answer(_ context.Context, question, contextText string) string {
	f.question, f.context = question, contextText
	return "Acme was paid five times."
}

type fakeStore struct {
	records  []vectorstore.Record
	addErr   error
	matches  []vectorstore.Match
	queryErr error
	queried  int
	deleted  []string
	delErr   error
}

func (f *fakeStore) Add(_ context.Context, records []vectorstore.Record) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeStore) Query(_ context.Context, _ string, n int) ([]vectorstore.Match, error) {
	f.queried = n
	return f.matches, f.queryErr
}

func (f *fakeStore) DeleteDocument(_ context.Context, documentID string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, documentID)
	return nil
}

type fakeStorage struct {
	keys    []string
	objects map[string][]byte
	err     error
}

func (f *fakeStorage) Upload(_ context.Context, key string, data []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.keys = append(f.keys, key)
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Download(_ context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.objects, key)
	return nil
}

type fakeRepo struct {
	mu     sync.Mutex
	docs   map[string]*models.Document
	err    error
	counts map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: map[string]*models.Document{}, counts: map[string]int{}}
}

func (f *fakeRepo) Create(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[id], nil
}

func (f *fakeRepo) SetChunkCount(_ context.Context, id string, count int) error {
	f.counts[id] = count
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.docs[id]
	delete(f.docs, id)
	return ok, nil
}

func (f *fakeRepo) List(context.Context, int) ([]models.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Document{}
	for _, d := range f.docs {
		out = append(out, *d)
	}
	return out, nil
}

type fixture struct {
	svc      AuditService
	analyzer *fakeAnalyzer
	answerer *fakeAnswerer
	store    *fakeStore
	storage  *fakeStorage
	repo     *fakeRepo
}

var failedResult = &models.AuditResult{
	Score:           35,
	Status:          models.StatusFailed,
	Summary:         "Repeated round payments.",
	Risks:           []string{"Split invoices"},
	Recommendations: []string{"Review Acme"},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := chunker.New(chunker.WithChunkSize(100), chunker.WithOverlap(20))
	require.NoError(t, err)

	f := &fixture{
		analyzer: &fakeAnalyzer{result: failedResult},
		answerer: &fakeAnswerer{},
		store:    &fakeStore{},
		storage:  &fakeStorage{},
		repo:     newFakeRepo(),
	}
	f.svc = NewAuditService(Dependencies{
		Repo:         f.repo,
		Storage:      f.storage,
		Scanner:      transactions.NewScanner(utils.NewDiscardLogger()),
		Analyzer:     f.analyzer,
		Answerer:     f.answerer,
		Store:        f.store,
		Chunker:      c,
		Logger:       utils.NewDiscardLogger(),
		BatchSize:    2,
		QueryResults: 3,
		Now:          func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) },
	})
	return f
}

func onlyDocID(t *testing.T, r *fakeRepo) string {
	t.Helper()
	require.Len(t, r.docs, 1)
	for id := range r.docs {
		return id
	}
	return ""
}

func upload(name, body string) *models.UploadRequest {
	return &models.UploadRequest{File: []byte(body), Filename: name, ContentType: "application/octet-stream"}
}

func TestAuditFile_CleanCSVSkipsAnalyzer(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.AuditFile(context.Background(), upload("ledger.csv", "vendor,amount\nAcme,12.50\nGlobex,99\n"))
	require.NoError(t, err)

	assert.Empty(t, f.analyzer.texts)
	assert.Equal(t, "ledger.csv", resp.Filename)
	assert.Equal(t, 100, resp.Score)
	assert.Equal(t, models.StatusPassed, resp.Status)
	assert.Equal(t, "Scanned 2 rows. No anomalies found.", resp.Summary)
	assert.Equal(t, []string{}, resp.Risks)
	assert.Equal(t, []string{"No action needed."}, resp.Recommendations)

	require.Len(t, f.store.records, 1)
	rec := f.store.records[0]
	assert.Equal(t, "Clean CSV Audit: ledger.csv. 2 rows checked.", rec.Document)
	assert.Equal(t, "PASSED", rec.Metadata["status"])
	assert.Equal(t, 100, rec.Metadata["score"])
	assert.Equal(t, "2024-05-01 09:30:00.000000", rec.Metadata["upload_time"])
}

func TestAuditFile_SuspiciousCSV(t *testing.T) {
	f := newFixture(t)
	body := "vendor,amount\n" + strings.Repeat("Acme,\"$5000\"\n", 5)

	resp, err := f.svc.AuditFile(context.Background(), upload("acme.csv", body))
	require.NoError(t, err)

	require.Len(t, f.analyzer.texts, 1)
	text := f.analyzer.texts[0]
	assert.True(t, strings.HasPrefix(text, "AUDIT REPORT: acme.csv\nTotal Rows: 5\nSuspicious: 5\nDATA:\n[\n  {"))
	assert.Contains(t, text, `"vendor": "Acme"`)
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, 35, resp.Score)

	// every chunk carries the audit outcome
	require.NotEmpty(t, f.store.records)
	for i, rec := range f.store.records {
		assert.Equal(t, "FAILED", rec.Metadata["status"])
		assert.Equal(t, 35, rec.Metadata["score"])
		assert.Equal(t, i, rec.Metadata["chunk_index"])
		assert.True(t, strings.HasPrefix(rec.ID, "acme.csv_"))
		assert.True(t, strings.HasSuffix(rec.ID, "_"+strconv.Itoa(i)))
	}
}

func TestAuditFile_TextDocument(t *testing.T) {
	f := newFixture(t)
	body := strings.Repeat("Payment to Acme for consulting. ", 10)

	resp, err := f.svc.AuditFile(context.Background(), upload("notes.txt", body))
	require.NoError(t, err)

	require.Len(t, f.analyzer.texts, 1)
	assert.Equal(t, strings.TrimSpace(body), f.analyzer.texts[0])
	assert.Equal(t, models.StatusFailed, resp.Status)

	// 320 runes with size 100 / overlap 20 gives windows at 0, 80, 160, 240
	assert.Len(t, f.store.records, 4)
	require.Len(t, f.storage.keys, 1)
	assert.True(t, strings.HasSuffix(f.storage.keys[0], "/notes.txt"))

	require.Len(t, f.repo.docs, 1)
	for id, doc := range f.repo.docs {
		assert.Equal(t, "notes.txt", doc.Filename)
		assert.Equal(t, f.storage.keys[0], doc.StorageKey)
		assert.Equal(t, 4, f.repo.counts[id])
		assert.Equal(t, id, f.store.records[0].Metadata["document_id"])
	}
}

func TestAuditFile_EmptyOrUnreadable(t *testing.T) {
	for _, name := range []string{"blank.txt", "scan.pdf", "photo.png", "noext"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.AuditFile(context.Background(), upload(name, "   "))

			var appErr *utils.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
			assert.Equal(t, "Empty or unreadable file.", appErr.Message)
			assert.Empty(t, f.analyzer.texts)
			assert.Empty(t, f.store.records)
			assert.Empty(t, f.storage.keys, "rejected uploads are not archived")
			assert.Empty(t, f.repo.docs, "rejected uploads are not registered")
		})
	}
}

func TestAuditFile_SideEffectFailuresAreSilent(t *testing.T) {
	f := newFixture(t)
	f.store.addErr = errors.New("collection unavailable")
	f.storage.err = errors.New("disk full")
	f.repo.err = errors.New("database locked")

	resp, err := f.svc.AuditFile(context.Background(), upload("notes.txt", "Wire transfer of 9000 to Acme."))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, "Repeated round payments.", resp.Summary)
	assert.Empty(t, f.repo.counts)
}

func TestAuditFile_AnalyzerErrorResult(t *testing.T) {
	f := newFixture(t)
	f.analyzer.result = models.ErrorResult("AI Error: max retries exceeded", "max retries exceeded")

	resp, err := f.svc.AuditFile(context.Background(), upload("notes.md", "# Ledger\n\nAcme 9000"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, 0, resp.Score)
	assert.Equal(t, "ERROR", f.store.records[0].Metadata["status"])
}

func TestAsk(t *testing.T) {
	f := newFixture(t)
	f.store.matches = []vectorstore.Match{
		{ID: "a", Document: "Acme 5000", Metadata: map[string]any{"filename": "acme.csv"}, Score: 0.9},
		{ID: "b", Document: "Acme 5000 again", Metadata: map[string]any{"filename": "other.csv"}, Score: 0.8},
	}

	resp := f.svc.Ask(context.Background(), "Who got paid?")

	assert.Equal(t, 3, f.store.queried)
	assert.Equal(t, "Who got paid?", resp.Question)
	assert.Equal(t, "Acme was paid five times.", resp.Answer)
	assert.Equal(t, map[string]any{"filename": "acme.csv"}, resp.Sources)
	assert.Equal(t, "Acme 5000 Acme 5000 again", f.answerer.context)
}

func TestAsk_NilMetadataSourcesEncodeAsObject(t *testing.T) {
	f := newFixture(t)
	f.store.matches = []vectorstore.Match{{ID: "a", Document: "Acme 5000"}}

	resp := f.svc.Ask(context.Background(), "Who got paid?")
	assert.Equal(t, map[string]any{}, resp.Sources)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"question":"Who got paid?","answer":"Acme was paid five times.","sources":{}}`, string(body))
}

func TestAsk_NoMatches(t *testing.T) {
	f := newFixture(t)

	resp := f.svc.Ask(context.Background(), "anything?")
	assert.Equal(t, &models.AskResponse{Answer: "No relevant documents found."}, resp)
	assert.Empty(t, f.answerer.question)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"No relevant documents found."}`, string(body))
}

func TestAsk_StoreError(t *testing.T) {
	f := newFixture(t)
	f.store.queryErr = errors.New("connection refused")

	resp := f.svc.Ask(context.Background(), "anything?")
	assert.Equal(t, "Error searching database: connection refused", resp.Answer)
	assert.Empty(t, resp.Question)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"Error searching database: connection refused"}`, string(body))
}

func TestGetDocument(t *testing.T) {
	f := newFixture(t)
	f.repo.docs["d1"] = &models.Document{ID: "d1", Filename: "a.csv"}

	doc, err := f.svc.GetDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "a.csv", doc.Filename)

	_, err = f.svc.GetDocument(context.Background(), "missing")
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)

	f.repo.err = errors.New("boom")
	_, err = f.svc.ListDocuments(context.Background(), 10)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
}

func TestDownloadDocument(t *testing.T) {
	f := newFixture(t)
	body := "Payment to Acme for consulting."
	_, err := f.svc.AuditFile(context.Background(), upload("notes.txt", body))
	require.NoError(t, err)

	id := onlyDocID(t, f.repo)
	doc, data, err := f.svc.DownloadDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, body, string(data))

	var appErr *utils.AppError
	f.repo.docs["bare"] = &models.Document{ID: "bare", Filename: "x.txt"}
	_, _, err = f.svc.DownloadDocument(context.Background(), "bare")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)

	f.repo.docs["gone"] = &models.Document{ID: "gone", StorageKey: "gone/x.txt"}
	_, _, err = f.svc.DownloadDocument(context.Background(), "gone")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)

	f.storage.err = errors.New("connection reset")
	_, _, err = f.svc.DownloadDocument(context.Background(), id)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AuditFile(context.Background(), upload("notes.txt", "Payment to Acme for consulting."))
	require.NoError(t, err)

	id := onlyDocID(t, f.repo)
	key := f.repo.docs[id].StorageKey
	require.Contains(t, f.storage.objects, key)

	require.NoError(t, f.svc.DeleteDocument(context.Background(), id))
	assert.Equal(t, []string{id}, f.store.deleted)
	assert.NotContains(t, f.storage.objects, key)
	assert.Empty(t, f.repo.docs)

	var appErr *utils.AppError
	err = f.svc.DeleteDocument(context.Background(), id)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
}

func TestDeleteDocument_StoreFailureKeepsRow(t *testing.T) {
	f := newFixture(t)
	f.repo.docs["d1"] = &models.Document{ID: "d1", Filename: "a.csv", StorageKey: "d1/a.csv"}
	f.storage.objects = map[string][]byte{"d1/a.csv": []byte("x")}
	f.store.delErr = errors.New("collection unavailable")

	err := f.svc.DeleteDocument(context.Background(), "d1")
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.Contains(t, f.repo.docs, "d1")
	assert.Contains(t, f.storage.objects, "d1/a.csv")
}
