package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// DatabaseFile is the file name of the SQLite database inside the store directory.
const DatabaseFile = "vectors.db"

const buildingSuffix = ".building"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chunks (
		id        TEXT PRIMARY KEY,
		idx       INTEGER NOT NULL,
		source    TEXT NOT NULL,
		content   TEXT NOT NULL,
		embedding BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

var registerOnce sync.Once

// registerFunctions makes vec_cosine available on connections opened afterwards.
func registerFunctions() {
	registerOnce.Do(func() {
		_ = sqlite.RegisterDeterministicScalarFunction("vec_cosine", 2, vecCosine)
	})
}

func vecCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_cosine: expected 2 arguments, got %d", len(args))
	}
	a, aok := args[0].([]byte)
	b, bok := args[1].([]byte)
	if !aok || !bok {
		return nil, nil
	}
	va, err := DecodeEmbedding(a)
	if err != nil {
		return nil, err
	}
	vb, err := DecodeEmbedding(b)
	if err != nil {
		return nil, err
	}
	sim, err := CosineSimilarity(va, vb)
	if err != nil {
		return nil, err
	}
	return sim, nil
}

func openDB(path string) (*sql.DB, error) {
	registerFunctions()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps the registered function and pragmas consistent.
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteBackend keeps the store in a directory holding one SQLite database.
type SQLiteBackend struct {
	dir    string
	logger *slog.Logger
}

// NewSQLiteBackend returns a backend rooted at dir.
func NewSQLiteBackend(dir string, logger *slog.Logger) *SQLiteBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteBackend{dir: dir, logger: logger}
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

// Dir returns the store directory.
func (b *SQLiteBackend) Dir() string { return b.dir }

// Exists reports whether the store directory is present. The file inside is
// not checked; a directory without a database fails later on Open.
func (b *SQLiteBackend) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(b.dir)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", b.dir, err)
}

// Create starts a build in a sibling directory that is renamed into place on Commit.
func (b *SQLiteBackend) Create(ctx context.Context, dimension int) (Builder, error) {
	exists, err := b.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrStoreExists, b.dir)
	}

	tmp := b.dir + buildingSuffix
	if err := os.RemoveAll(tmp); err != nil {
		return nil, fmt.Errorf("clear %s: %w", tmp, err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", tmp, err)
	}

	db, err := openDB(filepath.Join(tmp, DatabaseFile))
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &sqliteBuilder{backend: b, db: db, tmp: tmp, dimension: dimension}, nil
}

// Open opens a committed store for reading.
func (b *SQLiteBackend) Open(ctx context.Context) (Store, error) {
	path := filepath.Join(b.dir, DatabaseFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, path: path, logger: b.logger}

	info, err := s.Info(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	s.dimension = info.Dimension
	return s, nil
}

// Remove deletes the store directory and any leftover partial build.
func (b *SQLiteBackend) Remove(ctx context.Context) error {
	if err := os.RemoveAll(b.dir + buildingSuffix); err != nil {
		return err
	}
	return os.RemoveAll(b.dir)
}

type sqliteBuilder struct {
	backend   *SQLiteBackend
	db        *sql.DB
	tmp       string
	dimension int
	count     int
}

func (w *sqliteBuilder) AddChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, chunk := range chunks {
		if len(chunk.Embedding) != w.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), w.dimension)
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks(id, idx, source, content, embedding) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.Index, chunk.Source, chunk.Content,
			EncodeEmbedding(chunk.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	w.count += len(chunks)
	return nil
}

func (w *sqliteBuilder) SetInfo(ctx context.Context, info *IndexInfo) error {
	values := map[string]string{
		"embedding_model": info.EmbeddingModel,
		"dimension":       strconv.Itoa(info.Dimension),
		"chunks":          strconv.Itoa(info.Chunks),
		"source":          info.Source,
		"built_at":        info.BuiltAt.UTC().Format(time.RFC3339),
	}
	for key, value := range values {
		if _, err := w.db.ExecContext(ctx,
			`INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value); err != nil {
			return fmt.Errorf("write meta %s: %w", key, err)
		}
	}
	return nil
}

func (w *sqliteBuilder) Commit(ctx context.Context) (Store, error) {
	if err := w.db.Close(); err != nil {
		return nil, fmt.Errorf("close build database: %w", err)
	}
	if err := os.Rename(w.tmp, w.backend.dir); err != nil {
		return nil, fmt.Errorf("publish store: %w", err)
	}
	w.backend.logger.Debug("Published vector store", "dir", w.backend.dir, "chunks", w.count)
	return w.backend.Open(ctx)
}

func (w *sqliteBuilder) Abort(ctx context.Context) error {
	_ = w.db.Close()
	return os.RemoveAll(w.tmp)
}

// SQLiteStore answers similarity queries from a committed SQLite store.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	dimension int
	logger    *slog.Logger
}

// Search ranks every chunk with vec_cosine inside SQLite.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error) {
	if s.dimension > 0 && len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, idx, source, content, vec_cosine(embedding, ?) AS score
		FROM chunks
		ORDER BY score DESC, idx ASC
		LIMIT ?`,
		EncodeEmbedding(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []*ScoredChunk
	for rows.Next() {
		chunk := &Chunk{}
		var score sql.NullFloat64
		if err := rows.Scan(&chunk.ID, &chunk.Index, &chunk.Source, &chunk.Content, &score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		results = append(results, &ScoredChunk{Chunk: chunk, Score: score.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	return results, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Info(ctx context.Context) (*IndexInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("read meta: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	info := &IndexInfo{
		EmbeddingModel: values["embedding_model"],
		Source:         values["source"],
	}
	if v, ok := values["dimension"]; ok {
		if info.Dimension, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse dimension %q: %w", v, err)
		}
	}
	if v, ok := values["chunks"]; ok {
		if info.Chunks, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse chunk count %q: %w", v, err)
		}
	}
	if v, ok := values["built_at"]; ok {
		info.BuiltAt, _ = time.Parse(time.RFC3339, v)
	}
	return info, nil
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
