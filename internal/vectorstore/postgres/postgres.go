// Package postgres stores records in a pgvector-enabled Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"nexus/internal/domain"
	"nexus/internal/vectorstore"
)

var _ vectorstore.Storage = (*Store)(nil)

// Dimension is the vector width fixed by the schema migrations.
const Dimension = 1536

// Store persists records in the documents table.
type Store struct {
	DB        *sql.DB
	dimension int
}

// New wraps an open database handle. dimension 0 means Dimension.
func New(db *sql.DB, dimension int) *Store {
	if dimension <= 0 {
		dimension = Dimension
	}
	return &Store{DB: db, dimension: dimension}
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string, dimension int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db, dimension), nil
}

const insertSQL = `INSERT INTO documents (id, content, embedding, metadata) VALUES ($1, $2, $3::vector, $4)`

// InsertMany writes all records in one transaction.
func (s *Store) InsertMany(ctx context.Context, records []domain.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.ValidateRecords(records, s.dimension); err != nil {
		return vectorstore.Failed("insert", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.Failed("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, insertSQL)
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
		if _, err := stmt.ExecContext(ctx, id, r.Content, encodeVectorLiteral(r.Embedding), meta); err != nil {
			return vectorstore.Failed(fmt.Sprintf("insert record %d", i), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return vectorstore.Failed("commit", err)
	}
	return nil
}

const searchSQL = `SELECT content, metadata, similarity FROM match_documents($1::vector, $2, $3)`

// SimilaritySearch ranks by cosine distance (`<=>`) in the match_documents function.
func (s *Store) SimilaritySearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]domain.Match, error) {
	if len(embedding) == 0 {
		return nil, vectorstore.Failed("search", vectorstore.ErrEmptyQuery)
	}
	if limit <= 0 {
		limit = vectorstore.DefaultLimit
	}
	rows, err := s.DB.QueryContext(ctx, searchSQL, encodeVectorLiteral(embedding), threshold, limit)
	if err != nil {
		return nil, vectorstore.Failed("search", err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		var (
			m         domain.Match
			metaBytes []byte
		)
		if err := rows.Scan(&m.Content, &metaBytes, &m.Similarity); err != nil {
			return nil, vectorstore.Failed("scan", err)
		}
		if len(metaBytes) > 0 {
			if err := json.Unmarshal(metaBytes, &m.Metadata); err != nil {
				return nil, vectorstore.Failed("decode metadata", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, vectorstore.Failed("search", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, vectorstore.Failed("count", err)
	}
	return n, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func encodeVectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
