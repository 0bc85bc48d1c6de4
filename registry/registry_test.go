package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/medirag/types"
)

func openTestRegistry(t *testing.T) *DocumentRegistry {
	t.Helper()
	r, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)

	docID, err := r.Register(types.DocumentInfo{
		Title:      "Gray's Anatomy",
		SourcePath: "/data/anatomy.pdf",
		TotalPages: 1247,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, docID, "missing doc_id gets a generated UUID")

	doc, err := r.Get(docID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Gray's Anatomy", doc.Title)
	assert.Equal(t, 1247, doc.TotalPages)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	doc, err := r.Get("no-such-doc")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRegistry_RegisterUpsert(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)

	_, err := r.Register(types.DocumentInfo{DocID: "d1", Title: "first edition"})
	require.NoError(t, err)
	_, err = r.Register(types.DocumentInfo{DocID: "d1", Title: "second edition"})
	require.NoError(t, err)

	docs, err := r.List()
	require.NoError(t, err)
	require.Len(t, docs, 1, "same doc_id overwrites")
	assert.Equal(t, "second edition", docs[0].Title)
}

func TestRegistry_ListOrder(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		_, err := r.Register(types.DocumentInfo{
			DocID:     id,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	docs, err := r.List()
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "new", docs[0].DocID, "newest first")
	assert.Equal(t, "old", docs[2].DocID)
}

func TestRegistry_ExistsAndRemove(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)

	_, err := r.Register(types.DocumentInfo{DocID: "d1"})
	require.NoError(t, err)

	exists, err := r.Exists("d1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, r.Remove("d1"))
	exists, err = r.Exists("d1")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, r.Remove("d1"), "removing an absent doc is not an error")
}
