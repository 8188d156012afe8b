package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func entry(segID, docID, category string, vector []float32) Entry {
	return Entry{
		SegmentID: segID,
		Vector:    vector,
		Meta: Metadata{
			DocumentID: docID,
			Title:      "Doc " + docID,
			Source:     category + "/" + docID + ".md",
			Category:   category,
			Text:       "segment " + segID,
		},
	}
}

func testEntries() []Entry {
	return []Entry{
		entry("s1", "d1", "tax", []float32{1, 0, 0, 0}),
		entry("s2", "d1", "tax", []float32{0.9, 0.1, 0, 0}),
		entry("s3", "d2", "traffic", []float32{0, 1, 0, 0}),
		entry("s4", "d2", "traffic", []float32{0, 0.9, 0.1, 0}),
		entry("s5", "d3", "labor", []float32{0, 0, 1, 0}),
	}
}

func TestLocal_BuildAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	hits, err := s.Query(ctx, []float32{1, 0, 0, 0}, QueryOptions{K: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "s1", hits[0].SegmentID)
	assert.Equal(t, "s2", hits[1].SegmentID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestLocal_QueryNeverExceedsK(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	hits, err := s.Query(ctx, []float32{1, 1, 1, 1}, QueryOptions{K: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), 3)

	// Only inserted segments come back.
	inserted := map[string]bool{"s1": true, "s2": true, "s3": true, "s4": true, "s5": true}
	for _, h := range hits {
		assert.True(t, inserted[h.SegmentID], "unexpected segment %s", h.SegmentID)
	}
}

func TestLocal_TiesBrokenByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")

	// Two identical vectors: identical similarity to any query.
	require.NoError(t, s.Build(ctx, []Entry{
		entry("first", "d1", "tax", []float32{1, 0, 0, 0}),
		entry("second", "d2", "tax", []float32{1, 0, 0, 0}),
	}))

	hits, err := s.Query(ctx, []float32{1, 0, 0, 0}, QueryOptions{K: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "first", hits[0].SegmentID)
	assert.Equal(t, "second", hits[1].SegmentID)
}

func TestLocal_ThresholdMonotonicity(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	query := []float32{1, 0.5, 0, 0}
	prev := len(testEntries()) + 1
	for _, threshold := range []float64{0, 0.2, 0.5, 0.8, 0.99} {
		hits, err := s.Query(ctx, query, QueryOptions{K: 10, Threshold: threshold})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(hits), prev,
			"raising threshold to %v increased result count", threshold)
		prev = len(hits)
	}
}

func TestLocal_ThresholdAboveMaxReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	hits, err := s.Query(ctx, []float32{1, 0, 0, 0}, QueryOptions{K: 5, Threshold: 1.01})
	require.NoError(t, err, "no hits is a valid outcome, not an error")
	assert.Empty(t, hits)
}

func TestLocal_CategoryFilterBeforeCutoff(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	// The query is closest to traffic segments; with a tax filter the
	// tax segments must still come back rather than being crowded out.
	hits, err := s.Query(ctx, []float32{0.1, 1, 0, 0}, QueryOptions{K: 2, Category: "tax"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "tax", h.Meta.Category)
	}
}

func TestLocal_DimensionMismatchAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	bad := []Entry{
		entry("ok", "d9", "tax", []float32{1, 0, 0, 0}),
		entry("bad", "d9", "tax", []float32{1, 0}),
	}
	err := s.Upsert(ctx, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// The valid entry in the rejected batch must not have been added.
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testEntries()), count)

	_, err = s.Query(ctx, []float32{1, 0}, QueryOptions{K: 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLocal_UpsertReplacesBySegmentID(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	replacement := entry("s1", "d1", "tax", []float32{0, 0, 0, 1})
	require.NoError(t, s.Upsert(ctx, []Entry{replacement}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testEntries()), count, "replacement must not grow the store")

	hits, err := s.Query(ctx, []float32{0, 0, 0, 1}, QueryOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].SegmentID)
}

func TestLocal_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	require.NoError(t, s.DeleteDocument(ctx, "d1"))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := s.Query(ctx, []float32{1, 0, 0, 0}, QueryOptions{K: 10})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "d1", h.Meta.DocumentID)
	}
}

func TestLocal_BuildIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")

	require.NoError(t, s.Build(ctx, testEntries()))
	first, err := s.Query(ctx, []float32{0.5, 0.5, 0, 0}, QueryOptions{K: 5})
	require.NoError(t, err)

	require.NoError(t, s.Build(ctx, testEntries()))
	second, err := s.Query(ctx, []float32{0.5, 0.5, 0, 0}, QueryOptions{K: 5})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].SegmentID, second[i].SegmentID)
		assert.InDelta(t, first[i].Score, second[i].Score, 1e-9)
	}
}

func TestLocal_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	s := NewLocal("test-model", testDim, path)
	require.NoError(t, s.Build(ctx, testEntries()))
	require.NoError(t, s.Save())

	loaded, err := OpenLocal(path, "test-model", testDim)
	require.NoError(t, err)

	query := []float32{0.7, 0.3, 0.1, 0}
	before, err := s.Query(ctx, query, QueryOptions{K: 5})
	require.NoError(t, err)
	after, err := loaded.Query(ctx, query, QueryOptions{K: 5})
	require.NoError(t, err)

	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].SegmentID, after[i].SegmentID)
		assert.InDelta(t, before[i].Score, after[i].Score, 1e-9)
		assert.Equal(t, before[i].Meta, after[i].Meta)
	}
}

func TestLocal_LoadRejectsModelMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	s := NewLocal("model-a", testDim, path)
	require.NoError(t, s.Build(ctx, testEntries()))
	require.NoError(t, s.Save())

	_, err := OpenLocal(path, "model-b", testDim)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelMismatch)

	_, err = OpenLocal(path, "model-a", testDim+1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLocal_OpenMissingFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	s, err := OpenLocal(path, "test-model", testDim)
	require.NoError(t, err)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLocal_Documents(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "d1", docs[0].DocumentID)
	assert.Equal(t, 2, docs[0].Segments)
	assert.Equal(t, "tax", docs[0].Category)
}

func TestLocal_ConcurrentQueriesDuringRebuild(t *testing.T) {
	ctx := context.Background()
	s := NewLocal("test-model", testDim, "")
	require.NoError(t, s.Build(ctx, testEntries()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hits, err := s.Query(ctx, []float32{1, 0, 0, 0}, QueryOptions{K: 3})
				assert.NoError(t, err)
				// Either the old or the new index, never a partial one.
				assert.LessOrEqual(t, len(hits), 3)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			entries := testEntries()
			for j := range entries {
				entries[j].SegmentID = fmt.Sprintf("%s-r%d", entries[j].SegmentID, n)
			}
			assert.NoError(t, s.Build(ctx, entries))
		}(i)
	}
	wg.Wait()
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := normalize([]float32{0, 0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0, 0}, v)
	assert.Zero(t, dot(v, []float32{1, 1, 1, 1}))
}
