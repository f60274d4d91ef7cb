package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/repoassist/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrStaleChunk is returned by SetEmbedding when the row was replaced
	// or its content hash changed since the embedding was requested
	ErrStaleChunk = errors.New("chunk changed since embedding was requested")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single connection: one writer, and :memory: databases stay shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func toHash(b []byte) ([32]byte, error) {
	var h [32]byte
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// File operations

const fileColumns = `file_path, relative_path, mod_time, size_bytes, file_hash, max_tokens, tokenizer, indexed_at`

func scanFile(sc scanner) (*types.File, error) {
	var (
		file               types.File
		modTime, indexedAt int64
		hash               []byte
	)
	if err := sc.Scan(&file.Path, &file.RelativePath, &modTime, &file.Size, &hash, &file.MaxTokens, &file.Tokenizer, &indexedAt); err != nil {
		return nil, err
	}
	h, err := toHash(hash)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", file.Path, err)
	}
	file.Hash = h
	file.ModTime = fromNanos(modTime)
	file.IndexedAt = fromNanos(indexedAt)
	return &file, nil
}

func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier) ([]*types.File, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+fileColumns+` FROM files ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*types.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context) ([]*types.File, error) {
	return s.listFilesWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *types.File) error {
	if file.Path == "" {
		return types.ErrMissingFilePath
	}
	if file.IndexedAt.IsZero() {
		file.IndexedAt = time.Now()
	}
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			relative_path = excluded.relative_path,
			mod_time = excluded.mod_time,
			size_bytes = excluded.size_bytes,
			file_hash = excluded.file_hash,
			max_tokens = excluded.max_tokens,
			tokenizer = excluded.tokenizer,
			indexed_at = excluded.indexed_at
	`
	_, err := q.ExecContext(ctx, query,
		file.Path, file.RelativePath, toNanos(file.ModTime), file.Size,
		file.Hash[:], file.MaxTokens, file.Tokenizer, toNanos(file.IndexedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

// touchFileWithQuerier records a new modification time for a file whose
// content is unchanged, on the file record and all of its chunk rows.
func (s *SQLiteStorage) touchFileWithQuerier(ctx context.Context, q querier, path string, modTime time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE files SET mod_time = ?, indexed_at = ? WHERE file_path = ?`,
		toNanos(modTime), toNanos(time.Now()), path)
	if err != nil {
		return fmt.Errorf("failed to touch file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if _, err := q.ExecContext(ctx, `UPDATE chunks SET mod_time = ? WHERE file_path = ?`, toNanos(modTime), path); err != nil {
		return fmt.Errorf("failed to touch chunks: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) TouchFile(ctx context.Context, path string, modTime time.Time) error {
	return s.withTx(ctx, func(q querier) error {
		return s.touchFileWithQuerier(ctx, q, path, modTime)
	})
}

// deleteFileWithQuerier removes a file record; its chunks go with it via
// ON DELETE CASCADE.
func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, path string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE file_path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, path string) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), path)
}

// replaceFileWithQuerier swaps a file's rows for chunks. New rows without an
// embedding inherit one from a current row with the same content hash.
func (s *SQLiteStorage) replaceFileWithQuerier(ctx context.Context, q querier, file *types.File, chunks []*types.Chunk) error {
	if err := s.upsertFileWithQuerier(ctx, q, file); err != nil {
		return err
	}
	old, err := s.listChunksByFileWithQuerier(ctx, q, file.Path)
	if err != nil {
		return err
	}
	byHash := make(map[[32]byte]*types.Chunk, len(old))
	for _, c := range old {
		if c.HasEmbedding() {
			byHash[c.ContentHash] = c
		}
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, file.Path); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	for _, chunk := range chunks {
		if chunk.FilePath != file.Path {
			return fmt.Errorf("chunk %s belongs to %s, not %s", chunk.Span(), chunk.FilePath, file.Path)
		}
		if chunk.ModTime.IsZero() {
			chunk.ModTime = file.ModTime
		}
		if o, ok := byHash[chunk.ContentHash]; ok && !chunk.HasEmbedding() {
			chunk.Embedding = o.Embedding
			chunk.EmbeddingModel = o.EmbeddingModel
		}
		if err := s.insertChunkWithQuerier(ctx, q, chunk); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceFile runs replaceFileWithQuerier in one transaction, so readers
// never observe a file with part of its rows.
func (s *SQLiteStorage) ReplaceFile(ctx context.Context, file *types.File, chunks []*types.Chunk) error {
	return s.withTx(ctx, func(q querier) error {
		return s.replaceFileWithQuerier(ctx, q, file, chunks)
	})
}

// Chunk operations

const chunkColumns = `id, file_path, relative_path, line_start, line_end, token_count, mod_time, hash, embedding, embedding_model`

func scanChunk(sc scanner) (*types.Chunk, error) {
	var (
		chunk     types.Chunk
		modTime   int64
		hash      []byte
		embedding []byte
		model     sql.NullString
	)
	err := sc.Scan(&chunk.ID, &chunk.FilePath, &chunk.RelativePath,
		&chunk.StartLine, &chunk.EndLine, &chunk.TokenCount,
		&modTime, &hash, &embedding, &model)
	if err != nil {
		return nil, err
	}
	h, err := toHash(hash)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", chunk.ID, err)
	}
	chunk.ContentHash = h
	chunk.ModTime = fromNanos(modTime)
	if len(embedding) > 0 {
		chunk.Embedding = deserializeVector(embedding)
		chunk.EmbeddingModel = model.String
	}
	return &chunk, nil
}

func collectChunks(rows *sql.Rows) ([]*types.Chunk, error) {
	defer func() { _ = rows.Close() }()
	var chunks []*types.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) insertChunkWithQuerier(ctx context.Context, q querier, chunk *types.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return fmt.Errorf("invalid chunk %s:%s: %w", chunk.FilePath, chunk.Span(), err)
	}

	var (
		embedding  []byte
		dim        sql.NullInt64
		model      sql.NullString
		embeddedAt sql.NullInt64
	)
	if chunk.HasEmbedding() {
		embedding = serializeVector(chunk.Embedding)
		dim = sql.NullInt64{Int64: int64(len(chunk.Embedding)), Valid: true}
		model = sql.NullString{String: chunk.EmbeddingModel, Valid: true}
		embeddedAt = sql.NullInt64{Int64: time.Now().UnixNano(), Valid: true}
	}

	query := `
		INSERT INTO chunks (file_path, relative_path, line_start, line_end, token_count,
		                    mod_time, hash, embedding, embedding_dim, embedding_model, embedded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := q.ExecContext(ctx, query,
		chunk.FilePath, chunk.RelativePath, chunk.StartLine, chunk.EndLine, chunk.TokenCount,
		toNanos(chunk.ModTime), chunk.ContentHash[:], embedding, dim, model, embeddedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chunk %s:%s: %w", chunk.FilePath, chunk.Span(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	chunk.ID = id
	return nil
}

func (s *SQLiteStorage) listChunksByFileWithQuerier(ctx context.Context, q querier, path string) ([]*types.Chunk, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE file_path = ? ORDER BY line_start`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return collectChunks(rows)
}

func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, path string) ([]*types.Chunk, error) {
	return s.listChunksByFileWithQuerier(ctx, s.querier(), path)
}

// listChunksMissingEmbeddingWithQuerier returns rows without an embedding in
// file and line order. A non-positive limit returns all of them.
func (s *SQLiteStorage) listChunksMissingEmbeddingWithQuerier(ctx context.Context, q querier, limit int) ([]*types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE embedding IS NULL ORDER BY file_path, line_start`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks missing embeddings: %w", err)
	}
	return collectChunks(rows)
}

func (s *SQLiteStorage) ListChunksMissingEmbedding(ctx context.Context, limit int) ([]*types.Chunk, error) {
	return s.listChunksMissingEmbeddingWithQuerier(ctx, s.querier(), limit)
}

func (s *SQLiteStorage) countChunksWithQuerier(ctx context.Context, q querier) (*ChunkCounts, error) {
	var counts ChunkCounts
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM chunks`).Scan(&counts.Total, &counts.Embedded)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	return &counts, nil
}

func (s *SQLiteStorage) CountChunks(ctx context.Context) (*ChunkCounts, error) {
	return s.countChunksWithQuerier(ctx, s.querier())
}

// countEmbeddedWithQuerier counts rows carrying an embedding from model at
// dimension. An empty model or a zero dimension matches any.
func (s *SQLiteStorage) countEmbeddedWithQuerier(ctx context.Context, q querier, model string, dimension int) (int, error) {
	query := `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`
	var args []interface{}
	if model != "" {
		query += " AND embedding_model = ?"
		args = append(args, model)
	}
	if dimension > 0 {
		query += " AND embedding_dim = ?"
		args = append(args, dimension)
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) CountEmbedded(ctx context.Context, model string, dimension int) (int, error) {
	return s.countEmbeddedWithQuerier(ctx, s.querier(), model, dimension)
}

// Embedding operations

// setEmbeddingWithQuerier writes an embedding only if the row still exists
// with the content hash the embedding was computed from.
func (s *SQLiteStorage) setEmbeddingWithQuerier(ctx context.Context, q querier, chunkID int64, contentHash [32]byte, vector []float32, model string) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty embedding for chunk %d", chunkID)
	}
	query := `
		UPDATE chunks
		SET embedding = ?, embedding_dim = ?, embedding_model = ?, embedded_at = ?
		WHERE id = ? AND hash = ?
	`
	res, err := q.ExecContext(ctx, query,
		serializeVector(vector), len(vector), model, time.Now().UnixNano(),
		chunkID, contentHash[:])
	if err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleChunk
	}
	return nil
}

func (s *SQLiteStorage) SetEmbedding(ctx context.Context, chunkID int64, contentHash [32]byte, vector []float32, model string) error {
	return s.setEmbeddingWithQuerier(ctx, s.querier(), chunkID, contentHash, vector, model)
}

// clearEmbeddingsWithQuerier drops embeddings that were not produced by
// keepModel at keepDimension. An empty keepModel clears everything; a zero
// keepDimension matches any dimension.
func (s *SQLiteStorage) clearEmbeddingsWithQuerier(ctx context.Context, q querier, keepModel string, keepDimension int) (int64, error) {
	query := `
		UPDATE chunks
		SET embedding = NULL, embedding_dim = NULL, embedding_model = NULL, embedded_at = NULL
		WHERE embedding IS NOT NULL
	`
	var (
		conds []string
		args  []interface{}
	)
	if keepModel != "" {
		conds = append(conds, "embedding_model IS NOT ?")
		args = append(args, keepModel)
		if keepDimension > 0 {
			conds = append(conds, "embedding_dim IS NOT ?")
			args = append(args, keepDimension)
		}
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear embeddings: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStorage) ClearEmbeddings(ctx context.Context, keepModel string, keepDimension int) (int64, error) {
	return s.clearEmbeddingsWithQuerier(ctx, s.querier(), keepModel, keepDimension)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), vector, limit, filters)
}

// Run operations

func (s *SQLiteStorage) recordRunWithQuerier(ctx context.Context, q querier, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Kind == "" {
		return fmt.Errorf("run kind is required")
	}
	query := `
		INSERT INTO runs (id, kind, started_at, finished_at, files_indexed, files_skipped, files_pruned,
		                  chunks_written, embeddings_reused, embeddings_written, embeddings_failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := q.ExecContext(ctx, query,
		run.ID, string(run.Kind), toNanos(run.StartedAt), toNanos(run.FinishedAt),
		run.FilesIndexed, run.FilesSkipped, run.FilesPruned, run.ChunksWritten,
		run.EmbeddingsReused, run.EmbeddingsWritten, run.EmbeddingsFailed, runErr)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	for _, w := range run.Warnings {
		_, err := q.ExecContext(ctx, `
			INSERT INTO run_warnings (run_id, kind, file_path, line_start, line_end, message)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID, string(w.Kind), w.FilePath, w.StartLine, w.EndLine, w.Message)
		if err != nil {
			return fmt.Errorf("failed to record run warning: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) RecordRun(ctx context.Context, run *Run) error {
	return s.withTx(ctx, func(q querier) error {
		return s.recordRunWithQuerier(ctx, q, run)
	})
}

func (s *SQLiteStorage) latestRunWithQuerier(ctx context.Context, q querier, kind RunKind) (*Run, error) {
	query := `
		SELECT id, kind, started_at, finished_at, files_indexed, files_skipped, files_pruned,
		       chunks_written, embeddings_reused, embeddings_written, embeddings_failed, error
		FROM runs
		WHERE kind = ?
		ORDER BY finished_at DESC
		LIMIT 1
	`
	var (
		run                 Run
		kindStr             string
		startedAt, finished int64
		runErr              sql.NullString
	)
	err := q.QueryRowContext(ctx, query, string(kind)).Scan(
		&run.ID, &kindStr, &startedAt, &finished,
		&run.FilesIndexed, &run.FilesSkipped, &run.FilesPruned, &run.ChunksWritten,
		&run.EmbeddingsReused, &run.EmbeddingsWritten, &run.EmbeddingsFailed, &runErr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	run.Kind = RunKind(kindStr)
	run.StartedAt = fromNanos(startedAt)
	run.FinishedAt = fromNanos(finished)
	run.Error = runErr.String

	run.Warnings, err = s.listRunWarningsWithQuerier(ctx, q, run.ID)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStorage) LatestRun(ctx context.Context, kind RunKind) (*Run, error) {
	return s.latestRunWithQuerier(ctx, s.querier(), kind)
}

func (s *SQLiteStorage) listRunWarningsWithQuerier(ctx context.Context, q querier, runID string) ([]types.Warning, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT kind, file_path, line_start, line_end, message
		FROM run_warnings
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run warnings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var warnings []types.Warning
	for rows.Next() {
		var (
			w        types.Warning
			kind     string
			filePath sql.NullString
			start    sql.NullInt64
			end      sql.NullInt64
		)
		if err := rows.Scan(&kind, &filePath, &start, &end, &w.Message); err != nil {
			return nil, fmt.Errorf("failed to scan run warning: %w", err)
		}
		w.Kind = types.WarningKind(kind)
		w.FilePath = filePath.String
		w.StartLine = int(start.Int64)
		w.EndLine = int(end.Int64)
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{}

	version, err := schemaVersion(ctx, q)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&status.FilesCount); err != nil {
		return nil, err
	}

	counts, err := s.countChunksWithQuerier(ctx, q)
	if err != nil {
		return nil, err
	}
	status.ChunksCount = counts.Total
	status.EmbeddingsCount = counts.Embedded

	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT embedding_model FROM chunks WHERE embedding IS NOT NULL AND embedding_model IS NOT NULL ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding models: %w", err)
	}
	for rows.Next() {
		var model string
		if err := rows.Scan(&model); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.EmbeddingModels = append(status.EmbeddingModels, model)
	}
	_ = rows.Close()

	// Calculate database size
	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	if run, err := s.latestRunWithQuerier(ctx, q, RunIndex); err == nil {
		status.LastIndex = run
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if run, err := s.latestRunWithQuerier(ctx, q, RunEmbed); err == nil {
		status.LastEmbed = run
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: counts.Embedded > 0,
		EmbeddingsComplete:  counts.Missing() == 0,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}
