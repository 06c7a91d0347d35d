package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/BerylCAtieno/audit-auto-api/internal/models"
)

// DefaultListLimit caps List when no positive limit is given.
const DefaultListLimit = 50

type Repository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	SetChunkCount(ctx context.Context, id string, count int) error
	List(ctx context.Context, limit int) ([]models.Document, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, filename, file_size, content_type, storage_key, chunk_count, created_at)
		VALUES (:id, :filename, :file_size, :content_type, :storage_key, :chunk_count, :created_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, doc)
	return err
}

// GetByID returns nil, nil when no document has the given id.
func (r *repository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	query := `
		SELECT id, filename, file_size, content_type, storage_key, chunk_count, created_at
		FROM documents
		WHERE id = ?
	`

	err := r.db.GetContext(ctx, &doc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *repository) SetChunkCount(ctx context.Context, id string, count int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE documents SET chunk_count = ? WHERE id = ?`, count, id)
	return err
}

// List returns the most recent documents first.
func (r *repository) List(ctx context.Context, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	docs := []models.Document{}
	query := `
		SELECT id, filename, file_size, content_type, storage_key, chunk_count, created_at
		FROM documents
		ORDER BY created_at DESC, id
		LIMIT ?
	`
	if err := r.db.SelectContext(ctx, &docs, query, limit); err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes the document row and reports whether one existed.
func (r *repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
