package vectorstore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanobook/nanobook/internal/testutil"
	"github.com/nanobook/nanobook/internal/vectorstore"
)

// unitVec builds a Dimension-length unit vector pointing along the given
// axis. Cosine similarity between distinct axes is exactly 0, which makes
// ordering assertions unambiguous.
func unitVec(axis int) []float32 {
	v := make([]float32, vectorstore.Dimension)
	v[axis] = 1
	return v
}

// blend mixes two axes so similarity to axis a is cos(theta) = wa / |v|.
func blend(a, b int, wa, wb float32) []float32 {
	v := make([]float32, vectorstore.Dimension)
	v[a] = wa
	v[b] = wb
	return v
}

func record(id, docID string, seq int, embedding []float32) vectorstore.Record {
	return vectorstore.Record{
		ID:           id,
		DocumentID:   docID,
		DocumentName: docID + ".txt",
		MediaType:    "text/plain",
		Seq:          seq,
		StartOffset:  seq * 400,
		EndOffset:    seq*400 + 500,
		Content:      fmt.Sprintf("content of %s", id),
		Embedding:    embedding,
	}
}

func TestStoreSearchOrdering(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.New(tdb.Pool, testutil.DiscardLogger())

	require.NoError(t, store.Upsert(ctx, record("doc-a:0", "doc-a", 0, unitVec(0))))
	require.NoError(t, store.Upsert(ctx, record("doc-a:1", "doc-a", 1, blend(0, 1, 3, 4))))
	require.NoError(t, store.Upsert(ctx, record("doc-b:0", "doc-b", 0, unitVec(1))))

	hits, err := store.Search(ctx, unitVec(0), 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "doc-a:0", hits[0].Record.ID)
	assert.Equal(t, "doc-a:1", hits[1].Record.ID)
	assert.Equal(t, "doc-b:0", hits[2].Record.ID)

	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)
	assert.InDelta(t, 0.6, hits[1].Similarity, 1e-4)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-4)

	assert.Equal(t, "doc-a.txt", hits[0].Record.DocumentName)
	assert.Equal(t, "content of doc-a:0", hits[0].Record.Content)
}

func TestStoreSearchTieBreakByID(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.New(tdb.Pool, testutil.DiscardLogger())

	// Identical embeddings: equal distance, so chunk ID decides the order.
	require.NoError(t, store.Upsert(ctx, record("doc-z:0", "doc-z", 0, unitVec(2))))
	require.NoError(t, store.Upsert(ctx, record("doc-a:0", "doc-a", 0, unitVec(2))))

	hits, err := store.Search(ctx, unitVec(2), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-a:0", hits[0].Record.ID)
	assert.Equal(t, "doc-z:0", hits[1].Record.ID)
}

func TestStoreSearchRespectsLimit(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.New(tdb.Pool, testutil.DiscardLogger())

	for i := range 5 {
		id := fmt.Sprintf("doc-a:%d", i)
		require.NoError(t, store.Upsert(ctx, record(id, "doc-a", i, unitVec(i))))
	}

	hits, err := store.Search(ctx, unitVec(0), 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = store.Search(ctx, unitVec(0), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStoreUpsertReplacesByID(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.New(tdb.Pool, testutil.DiscardLogger())

	rec := record("doc-a:0", "doc-a", 0, unitVec(0))
	require.NoError(t, store.Upsert(ctx, rec))

	rec.Content = "revised content"
	rec.Embedding = unitVec(1)
	require.NoError(t, store.Upsert(ctx, rec))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	hits, err := store.Search(ctx, unitVec(1), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "revised content", hits[0].Record.Content)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)
}

func TestStoreDeleteByDocument(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.New(tdb.Pool, testutil.DiscardLogger())

	require.NoError(t, store.Upsert(ctx, record("doc-a:0", "doc-a", 0, unitVec(0))))
	require.NoError(t, store.Upsert(ctx, record("doc-a:1", "doc-a", 1, unitVec(1))))
	require.NoError(t, store.Upsert(ctx, record("doc-b:0", "doc-b", 0, unitVec(2))))

	deleted, err := store.DeleteByDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	hits, err := store.Search(ctx, unitVec(2), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b:0", hits[0].Record.ID)
}

func TestStoreReset(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.New(tdb.Pool, testutil.DiscardLogger())

	require.NoError(t, store.Upsert(ctx, record("doc-a:0", "doc-a", 0, unitVec(0))))
	require.NoError(t, store.Upsert(ctx, record("doc-b:0", "doc-b", 0, unitVec(1))))

	cleared, err := store.Reset(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cleared)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Reset on an empty collection is a no-op.
	cleared, err = store.Reset(ctx)
	require.NoError(t, err)
	assert.Zero(t, cleared)
}

func TestStoreDimensionMismatch(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.New(tdb.Pool, testutil.DiscardLogger())

	rec := record("doc-a:0", "doc-a", 0, []float32{1, 0, 0})
	err := store.Upsert(ctx, rec)
	require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	_, err = store.Search(ctx, []float32{1, 0, 0}, 5)
	require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}
