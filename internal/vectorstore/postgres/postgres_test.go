package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/domain"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, 2), mock
}

func TestInsertManyCommitsOneTransaction(t *testing.T) {
	st, mock := newMock(t)
	records := []domain.Record{
		{ID: "0b8f1c1e-2f7c-4a55-9b8e-6f0f0f0f0f01", Content: "first", Embedding: []float32{0.1, 0.2}, Metadata: map[string]any{"source": "a.txt", "chunkIndex": 0}},
		{Content: "second", Embedding: []float32{1, -0.5}, Metadata: map[string]any{"source": "a.txt", "chunkIndex": 1}},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(insertSQL))
	prep.ExpectExec().
		WithArgs("0b8f1c1e-2f7c-4a55-9b8e-6f0f0f0f0f01", "first", "[0.1,0.2]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "second", "[1,-0.5]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, st.InsertMany(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertManyRollsBackOnFailure(t *testing.T) {
	st, mock := newMock(t)
	records := []domain.Record{
		{Content: "first", Embedding: []float32{1, 0}},
		{Content: "second", Embedding: []float32{0, 1}},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(insertSQL))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := st.InsertMany(context.Background(), records)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertManyRejectsWrongDimensionBeforeWriting(t *testing.T) {
	st, mock := newMock(t)
	err := st.InsertMany(context.Background(), []domain.Record{{Content: "x", Embedding: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimilaritySearch(t *testing.T) {
	st, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"content", "metadata", "similarity"}).
		AddRow("best", []byte(`{"source":"a.txt","chunkIndex":0}`), 0.91).
		AddRow("next", []byte(`{"source":"b.md","chunkIndex":3}`), 0.62)
	mock.ExpectQuery(regexp.QuoteMeta(searchSQL)).
		WithArgs("[1,0]", 0.5, 5).
		WillReturnRows(rows)

	got, err := st.SimilaritySearch(context.Background(), []float32{1, 0}, 0.5, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "best", got[0].Content)
	assert.Equal(t, "a.txt", got[0].Source())
	assert.InDelta(t, 0.91, got[0].Similarity, 1e-9)
	assert.Equal(t, "b.md", got[1].Source())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimilaritySearchError(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(searchSQL)).WillReturnError(errors.New("relation \"documents\" does not exist"))

	_, err := st.SimilaritySearch(context.Background(), []float32{1, 0}, 0.5, 5)
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestCount(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM documents`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestEncodeVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.1,0.2,-3]", encodeVectorLiteral([]float32{0.1, 0.2, -3}))
	assert.Equal(t, "[]", encodeVectorLiteral(nil))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "1_create_documents.up.sql")
	assert.Contains(t, names, "2_match_documents.up.sql")
}
