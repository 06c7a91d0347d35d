package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/BerylCAtieno/audit-auto-api/internal/models"
	"github.com/BerylCAtieno/audit-auto-api/internal/services"
	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
)

// DefaultMaxFileSize bounds an upload when none is configured.
const DefaultMaxFileSize = 20 << 20

type AuditHandler struct {
	service     services.AuditService
	logger      *utils.Logger
	maxFileSize int64
}

func NewAuditHandler(service services.AuditService, logger *utils.Logger, maxFileSize int64) *AuditHandler {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &AuditHandler{
		service:     service,
		logger:      logger,
		maxFileSize: maxFileSize,
	}
}

func (h *AuditHandler) sizeError() error {
	return utils.NewBadRequestError(fmt.Sprintf("File size exceeds %dMB limit", h.maxFileSize>>20))
}

// AuditFile accepts a multipart upload in the "file" field.
func (h *AuditHandler) AuditFile(w http.ResponseWriter, r *http.Request) {
	// Check Content-Length header first to reject oversized requests early
	if r.ContentLength > h.maxFileSize+(1<<20) {
		respondError(h.logger, w, h.sizeError())
		return
	}

	// Multipart framing needs some room beyond the file itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+(1<<20))

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(h.logger, w, h.sizeError())
			return
		}
		respondError(h.logger, w, utils.NewBadRequestError("Invalid form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(h.logger, w, utils.NewBadRequestError("No file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		respondError(h.logger, w, utils.NewInternalError("Failed to read file"))
		return
	}
	if int64(len(data)) > h.maxFileSize {
		respondError(h.logger, w, h.sizeError())
		return
	}

	contentType := determineContentType(header.Filename, header.Header.Get("Content-Type"))

	h.logger.Info("File upload",
		"filename", header.Filename,
		"content_type", contentType,
		"size", len(data))

	resp, err := h.service.AuditFile(r.Context(), &models.UploadRequest{
		File:        data,
		Filename:    header.Filename,
		ContentType: contentType,
	})
	if err != nil {
		respondError(h.logger, w, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, resp)
}

// Ask takes the question from the query string on GET and from a JSON body
// on POST.
func (h *AuditHandler) Ask(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")

	if r.Method == http.MethodPost {
		var req models.AskRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			respondError(h.logger, w, utils.NewBadRequestError("Invalid request body"))
			return
		}
		question = req.Question
	}

	question = strings.TrimSpace(question)
	if question == "" {
		respondError(h.logger, w, utils.NewBadRequestError("Question is required"))
		return
	}

	respondJSON(h.logger, w, http.StatusOK, h.service.Ask(r.Context(), question))
}

func (h *AuditHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		respondError(h.logger, w, utils.NewBadRequestError("Document ID is required"))
		return
	}

	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		respondError(h.logger, w, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, doc)
}

// DownloadDocument streams the archived upload back as an attachment.
func (h *AuditHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, data, err := h.service.DownloadDocument(r.Context(), id)
	if err != nil {
		respondError(h.logger, w, err)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write download", "error", err, "id", id)
	}
}

func (h *AuditHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.service.DeleteDocument(r.Context(), id); err != nil {
		respondError(h.logger, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuditHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(h.logger, w, utils.NewBadRequestError("limit must be a non-negative integer"))
			return
		}
		limit = v
	}

	docs, err := h.service.ListDocuments(r.Context(), limit)
	if err != nil {
		respondError(h.logger, w, err)
		return
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]any{"documents": docs})
}

// determineContentType prefers the extension over the client's header.
func determineContentType(filename, headerContentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".md", ".markdown":
		return "text/markdown"
	}

	if headerContentType != "" {
		return headerContentType
	}
	return "application/octet-stream"
}
