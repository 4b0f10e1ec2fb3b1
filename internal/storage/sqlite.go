package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bull/knowledge-rag/internal/storage/migrations"
)

// SQLiteStore is the default on-disk backend.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and runs
// pending migrations. Use ":memory:" for a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func buildDSN(path string) string {
	pragmas := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

// migrate applies every NNN_*.up.sql file newer than the recorded version.
func (s *SQLiteStore) migrate(ctx context.Context, fsys embed.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ==================== Documents ====================

func (s *SQLiteStore) InsertDocument(ctx context.Context, doc *Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, title, content, category, source, is_public, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.UserID, doc.Title, doc.Content, doc.Category, doc.Source,
		boolToInt(doc.IsPublic), toMillis(doc.CreatedAt))
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: document %s", ErrDuplicateID, doc.ID)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

const documentColumns = "id, user_id, title, content, category, source, is_public, created_at"

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, userID, category string) ([]*Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE user_id = ?"
	args := []any{userID}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_chunks WHERE document_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc       Document
		isPublic  int
		createdAt int64
	)
	if err := row.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.Category,
		&doc.Source, &isPublic, &createdAt); err != nil {
		return nil, err
	}
	doc.IsPublic = isPublic != 0
	doc.CreatedAt = fromMillis(createdAt)
	return &doc, nil
}

// ==================== Chunks ====================

func (s *SQLiteStore) InsertChunk(ctx context.Context, chunk *Chunk) error {
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_chunks
			(id, document_id, user_id, content, embedding, chunk_index, section, word_count, model, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chunk.ID, chunk.DocumentID, chunk.UserID, chunk.Content, float32SliceToBytes(chunk.Embedding),
		chunk.Metadata.ChunkIndex, chunk.Metadata.Section, chunk.Metadata.WordCount,
		chunk.Model, chunk.TokenCount, toMillis(chunk.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("%w: chunk %s references %s", ErrDocumentNotFound, chunk.ID, chunk.DocumentID)
		}
		if isConstraintError(err) {
			return fmt.Errorf("%w: chunk %s", ErrDuplicateID, chunk.ID)
		}
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, user_id, content, embedding, chunk_index, section, word_count, model, token_count, created_at
		FROM document_chunks WHERE id = ?
	`, id)

	var (
		chunk     Chunk
		blob      []byte
		createdAt int64
	)
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.UserID, &chunk.Content, &blob,
		&chunk.Metadata.ChunkIndex, &chunk.Metadata.Section, &chunk.Metadata.WordCount,
		&chunk.Model, &chunk.TokenCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	chunk.Embedding = bytesToFloat32Slice(blob)
	chunk.Metadata.DocumentID = chunk.DocumentID
	chunk.CreatedAt = fromMillis(createdAt)
	return &chunk, nil
}

func (s *SQLiteStore) ListChunkEmbeddings(ctx context.Context, userID string, documentIDs []string) ([]ChunkEmbedding, error) {
	if documentIDs != nil && len(documentIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, document_id, embedding, model FROM document_chunks
		WHERE user_id = ? AND embedding IS NOT NULL`
	args := []any{userID}
	if documentIDs != nil {
		query += " AND document_id IN (" + questionList(len(documentIDs)) + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY document_id, chunk_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk embeddings: %w", err)
	}
	defer rows.Close()

	var out []ChunkEmbedding
	for rows.Next() {
		var (
			ce   ChunkEmbedding
			blob []byte
		)
		if err := rows.Scan(&ce.ChunkID, &ce.DocumentID, &blob, &ce.Model); err != nil {
			return nil, fmt.Errorf("failed to scan chunk embedding: %w", err)
		}
		ce.Embedding = bytesToFloat32Slice(blob)
		if len(ce.Embedding) == 0 {
			continue
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ChunkStats(ctx context.Context, userID string) (*ChunkStats, error) {
	var stats ChunkStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN embedding IS NOT NULL AND length(embedding) > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(token_count), 0)
		FROM document_chunks WHERE user_id = ?
	`, userID).Scan(&stats.Chunks, &stats.Embeddings, &stats.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to compute chunk stats: %w", err)
	}
	return &stats, nil
}

// ==================== Processing status ====================

func (s *SQLiteStore) CreateStatus(ctx context.Context, status *ProcessingStatus) error {
	now := s.now()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = status.CreatedAt
	}
	status.Progress = clampProgress(status.Progress)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_queue (id, user_id, document_id, operation, status, progress, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, status.ID, status.UserID, status.DocumentID, string(status.Operation), string(status.Status),
		status.Progress, status.Error, toMillis(status.CreatedAt), toMillis(status.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert processing status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, patch StatusPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status, err := scanStatus(tx.QueryRowContext(ctx, "SELECT "+statusColumns+" FROM processing_queue WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStatusNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load processing status: %w", err)
	}
	patch.Apply(status, s.now())

	_, err = tx.ExecContext(ctx, `
		UPDATE processing_queue
		SET document_id = ?, operation = ?, status = ?, progress = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, status.DocumentID, string(status.Operation), string(status.Status), status.Progress,
		status.Error, toMillis(status.UpdatedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update processing status: %w", err)
	}
	return tx.Commit()
}

const statusColumns = "id, user_id, document_id, operation, status, progress, error, created_at, updated_at"

func (s *SQLiteStore) GetStatus(ctx context.Context, id string) (*ProcessingStatus, error) {
	status, err := scanStatus(s.db.QueryRowContext(ctx, "SELECT "+statusColumns+" FROM processing_queue WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processing status: %w", err)
	}
	return status, nil
}

func (s *SQLiteStore) ListStatuses(ctx context.Context, userID string) ([]*ProcessingStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+statusColumns+" FROM processing_queue WHERE user_id = ? ORDER BY created_at DESC, id ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing statuses: %w", err)
	}
	defer rows.Close()

	var out []*ProcessingStatus
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processing status: %w", err)
		}
		out = append(out, status)
	}
	return out, rows.Err()
}

func scanStatus(row rowScanner) (*ProcessingStatus, error) {
	var (
		st                   ProcessingStatus
		operation, status    string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&st.ID, &st.UserID, &st.DocumentID, &operation, &status,
		&st.Progress, &st.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st.Operation = Operation(operation)
	st.Status = Status(status)
	st.CreatedAt = fromMillis(createdAt)
	st.UpdatedAt = fromMillis(updatedAt)
	return &st, nil
}

// ==================== Helpers ====================

// float32SliceToBytes encodes a vector as little-endian float32s.
func float32SliceToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice decodes a vector written by float32SliceToBytes.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func questionList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraintError(err error) bool {
	return strings.Contains(err.Error(), "constraint failed")
}
