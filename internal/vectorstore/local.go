package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Local is an exact brute-force cosine similarity store. The legal
// corpus is small enough that a linear scan beats the operational cost
// of an approximate index. Vectors are L2-normalized at insert and
// query time, so similarity is a dot product.
//
// Reads take a shared lock and never block each other; Build prepares
// the new index outside the lock and swaps it in, so concurrent queries
// always see a fully consistent index.
type Local struct {
	mu        sync.RWMutex
	model     string
	dimension int
	path      string // persistence target, "" disables Save on Close
	entries   []Entry
}

// NewLocal creates an empty store for the given embedding model. path
// may be empty for a purely in-memory store.
func NewLocal(model string, dimension int, path string) *Local {
	return &Local{model: model, dimension: dimension, path: path}
}

// OpenLocal loads the persisted store at path if it exists, after
// validating its manifest against the expected model and dimension.
// A missing file yields an empty store; a mismatched manifest is an
// error, never silently wrong results.
func OpenLocal(path, model string, dimension int) (*Local, error) {
	s := NewLocal(model, dimension, path)

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}

	var file indexFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}
	if file.Manifest.Model != model {
		return nil, fmt.Errorf("%w: index built with %q, embedder is %q",
			ErrModelMismatch, file.Manifest.Model, model)
	}
	if file.Manifest.Dimension != dimension {
		return nil, fmt.Errorf("%w: index has %d dimensions, embedder produces %d",
			ErrDimensionMismatch, file.Manifest.Dimension, dimension)
	}

	s.entries = file.Entries
	return s, nil
}

// indexFile is the durable representation: manifest first so external
// processes can validate before loading entries.
type indexFile struct {
	Manifest Manifest `json:"manifest"`
	Entries  []Entry  `json:"entries"`
}

// Build replaces the whole index with the given entries.
func (s *Local) Build(ctx context.Context, entries []Entry) error {
	fresh, err := s.normalizeAll(entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = fresh
	s.mu.Unlock()
	return nil
}

// Upsert adds entries, replacing any that share a segment id in place
// so the original insertion order is preserved for tie-breaking.
func (s *Local) Upsert(ctx context.Context, entries []Entry) error {
	fresh, err := s.normalizeAll(entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		byID[e.SegmentID] = i
	}
	for _, e := range fresh {
		if i, ok := byID[e.SegmentID]; ok {
			s.entries[i] = e
		} else {
			byID[e.SegmentID] = len(s.entries)
			s.entries = append(s.entries, e)
		}
	}
	return nil
}

// Query scans all entries, applying the category filter before the K
// cutoff so category matches are never crowded out by unrelated noise.
func (s *Local) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Scored, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}
	k := opts.K
	if k <= 0 {
		k = DefaultTopK
	}
	q := normalize(vector)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Scored
	for _, e := range s.entries {
		if opts.Category != "" && e.Meta.Category != opts.Category {
			continue
		}
		score := dot(e.Vector, q)
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		hits = append(hits, Scored{Entry: e, Score: score})
	}

	// Stable sort keeps insertion order on equal scores.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteDocument removes every segment of the given document.
func (s *Local) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Meta.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// Documents lists indexed documents in first-seen order.
func (s *Local) Documents(ctx context.Context) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	var docs []DocumentInfo
	for _, e := range s.entries {
		if i, ok := index[e.Meta.DocumentID]; ok {
			docs[i].Segments++
			continue
		}
		index[e.Meta.DocumentID] = len(docs)
		docs = append(docs, DocumentInfo{
			DocumentID: e.Meta.DocumentID,
			Title:      e.Meta.Title,
			Source:     e.Meta.Source,
			Category:   e.Meta.Category,
			Segments:   1,
		})
	}
	return docs, nil
}

// Count reports the entry count.
func (s *Local) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Manifest describes the store's current contents.
func (s *Local) Manifest() Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Manifest{
		Model:     s.model,
		Dimension: s.dimension,
		Entries:   len(s.entries),
		SavedAt:   time.Now().UTC(),
	}
}

// Save writes the store to its configured path atomically (temp file
// then rename), so a crash mid-write never corrupts the index.
func (s *Local) Save() error {
	if s.path == "" {
		return nil
	}
	return s.SaveTo(s.path)
}

// SaveTo writes the durable representation to the given path.
func (s *Local) SaveTo(path string) error {
	s.mu.RLock()
	file := indexFile{
		Manifest: Manifest{
			Model:     s.model,
			Dimension: s.dimension,
			Entries:   len(s.entries),
			SavedAt:   time.Now().UTC(),
		},
		Entries: s.entries,
	}
	raw, err := json.Marshal(file)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish index: %w", err)
	}
	return nil
}

// Health always succeeds: the local store has no remote dependency.
func (s *Local) Health(ctx context.Context) error { return nil }

// Close flushes the store to disk when a path is configured.
func (s *Local) Close() error { return s.Save() }

// normalizeAll validates dimensions and normalizes vectors into a fresh
// slice. Any invalid entry rejects the whole batch before mutation.
func (s *Local) normalizeAll(entries []Entry) ([]Entry, error) {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Vector) != s.dimension {
			return nil, fmt.Errorf("%w: segment %s has %d dimensions, store expects %d",
				ErrDimensionMismatch, e.SegmentID, len(e.Vector), s.dimension)
		}
		out[i] = e
		out[i].Vector = normalize(e.Vector)
	}
	return out, nil
}

// normalize returns an L2-normalized copy. Zero vectors are returned
// as-is and score 0 against everything.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
