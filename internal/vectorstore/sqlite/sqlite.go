// Package sqlite is a single-file vector store for local use. Similarity is computed in
// process over every stored embedding.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"nexus/internal/domain"
	"nexus/internal/vectorstore"
	"nexus/internal/vectorstore/sqlite/migrations"
)

var _ vectorstore.Storage = (*Store)(nil)

const migrationsTable = "nexus_schema_migrations"

// Store keeps records in <dataDir>/nexus.db.
type Store struct {
	db        *sql.DB
	path      string
	dimension int
}

// NewStore opens (and migrates) the database under dataDir, defaulting to ~/.nexus/data.
func NewStore(dataDir string, dimension int) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".nexus", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "nexus.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: dbPath, dimension: dimension}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// migrate brings the schema up to date with golang-migrate. The driver owns db, so
// only the source is closed here.
func (s *Store) migrate(fsys fs.FS) error {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	defer src.Close()
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("init migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// InsertMany writes all records in one transaction.
func (s *Store) InsertMany(ctx context.Context, records []domain.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.ValidateRecords(records, s.dimension); err != nil {
		return vectorstore.Failed("insert", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.Failed("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (id, content, embedding, dimension, metadata, source) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return vectorstore.Failed("prepare insert", err)
	}
	defer stmt.Close()

	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return vectorstore.Failed("encode metadata", err)
		}
		source, _ := r.Metadata[domain.MetaSource].(string)
		if _, err := stmt.ExecContext(ctx, id, r.Content, float32SliceToBytes(r.Embedding), len(r.Embedding), string(meta), source); err != nil {
			return vectorstore.Failed(fmt.Sprintf("insert record %d", i), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return vectorstore.Failed("commit", err)
	}
	return nil
}

func (s *Store) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.Match, error) {
	if len(embedding) == 0 {
		return nil, vectorstore.Failed("search", vectorstore.ErrEmptyQuery)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT content, embedding, metadata FROM records WHERE dimension = ?`, len(embedding))
	if err != nil {
		return nil, vectorstore.Failed("search", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var (
			content string
			blob    []byte
			meta    string
		)
		if err := rows.Scan(&content, &blob, &meta); err != nil {
			return nil, vectorstore.Failed("scan", err)
		}
		sim := vectorstore.Cosine(bytesToFloat32Slice(blob), embedding)
		if sim < threshold {
			continue
		}
		m := domain.Match{Content: content, Similarity: sim}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, vectorstore.Failed("decode metadata", err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, vectorstore.Failed("search", err)
	}
	return vectorstore.Rank(matches, threshold, limit), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, vectorstore.Failed("count", err)
	}
	return n, nil
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
