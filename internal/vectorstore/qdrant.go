package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// CollectionName holds all legal segments plus one manifest point.
	CollectionName = "law_segments"

	// manifestID is the fixed point id of the manifest. Segment ids are
	// UUIDs, so a fixed UUID can never collide with one.
	manifestID = "00000000-0000-0000-0000-000000000001"

	qdrantBatchSize = 100
)

// Qdrant implements Store against a Qdrant server. Atomic visibility of
// builds and per-call mutations is delegated to Qdrant's own consistency
// guarantees; the manifest point carries the embedding model identity so
// model drift is detected before querying.
type Qdrant struct {
	client    *qdrant.Client
	model     string
	dimension int
}

// NewQdrant connects to Qdrant, verifies health with retry, ensures the
// collection exists and validates its manifest against the given model.
func NewQdrant(host string, port int, model string, dimension int) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &Qdrant{client: client, model: model, dimension: dimension}

	ctx := context.Background()
	if err := s.healthWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Qdrant) healthWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check.
func (s *Qdrant) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// ensureCollection creates the collection and manifest on first use and
// validates the manifest thereafter. Idempotent.
func (s *Qdrant) ensureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == CollectionName {
			return s.validateManifest(ctx)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			"content": {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Payload indexes for the filterable fields; without them category
	// and document filters degrade to full scans.
	for _, field := range []string{"type", "document_id", "category"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", field, err)
		}
	}

	return s.writeManifest(ctx)
}

func (s *Qdrant) writeManifest(ctx context.Context) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(manifestID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":      "manifest",
			"model":     s.model,
			"dimension": int64(s.dimension),
			"saved_at":  time.Now().UTC().Format(time.RFC3339),
		}),
	}
	return s.upsertWithRetry(ctx, []*qdrant.PointStruct{point})
}

// validateManifest compares the stored manifest against this store's
// model and dimension. A collection without a manifest predates this
// schema and is treated as model drift.
func (s *Qdrant) validateManifest(ctx context.Context) error {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(manifestID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if len(result) == 0 {
		return fmt.Errorf("%w: collection %s has no manifest", ErrModelMismatch, CollectionName)
	}

	payload := result[0].Payload
	if model := payload["model"].GetStringValue(); model != s.model {
		return fmt.Errorf("%w: index built with %q, embedder is %q", ErrModelMismatch, model, s.model)
	}
	if dim := int(payload["dimension"].GetIntegerValue()); dim != s.dimension {
		return fmt.Errorf("%w: index has %d dimensions, embedder produces %d", ErrDimensionMismatch, dim, s.dimension)
	}
	return nil
}

// Build drops and recreates the collection, then indexes the entries.
func (s *Qdrant) Build(ctx context.Context, entries []Entry) error {
	if err := s.validateDimensions(entries); err != nil {
		return err
	}
	if err := s.client.DeleteCollection(ctx, CollectionName); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	return s.Upsert(ctx, entries)
}

// Upsert stores entries in batches, replacing points with the same
// segment id.
func (s *Qdrant) Upsert(ctx context.Context, entries []Entry) error {
	if err := s.validateDimensions(entries); err != nil {
		return err
	}

	for i := 0; i < len(entries); i += qdrantBatchSize {
		end := min(i+qdrantBatchSize, len(entries))
		batch := entries[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, e := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(e.SegmentID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					"content": qdrant.NewVector(e.Vector...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"type":        "segment",
					"document_id": e.Meta.DocumentID,
					"title":       e.Meta.Title,
					"source":      e.Meta.Source,
					"category":    e.Meta.Category,
					"section":     e.Meta.Section,
					"index":       int64(e.Meta.Index),
					"start":       int64(e.Meta.Start),
					"end":         int64(e.Meta.End),
					"text":        e.Meta.Text,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (s *Qdrant) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// Query performs similarity search with type/category filters pushed
// down to Qdrant.
func (s *Qdrant) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Scored, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}
	k := opts.K
	if k <= 0 {
		k = DefaultTopK
	}

	must := []*qdrant.Condition{qdrant.NewMatch("type", "segment")}
	if opts.Category != "" {
		must = append(must, qdrant.NewMatch("category", opts.Category))
	}

	vectorName := "content"
	query := &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Using:          &vectorName,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if opts.Threshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(float32(opts.Threshold))
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}

	hits := make([]Scored, 0, len(results))
	for _, r := range results {
		payload := r.Payload
		hits = append(hits, Scored{
			Entry: Entry{
				SegmentID: r.Id.GetUuid(),
				Meta: Metadata{
					DocumentID: payload["document_id"].GetStringValue(),
					Title:      payload["title"].GetStringValue(),
					Source:     payload["source"].GetStringValue(),
					Category:   payload["category"].GetStringValue(),
					Section:    payload["section"].GetStringValue(),
					Index:      int(payload["index"].GetIntegerValue()),
					Start:      int(payload["start"].GetIntegerValue()),
					End:        int(payload["end"].GetIntegerValue()),
					Text:       payload["text"].GetStringValue(),
				},
			},
			Score: float64(r.Score),
		})
	}
	return hits, nil
}

// DeleteDocument removes all segments of a document by payload filter.
func (s *Qdrant) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("type", "segment"),
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// Documents scrolls all segments aggregating per-document counts.
func (s *Qdrant) Documents(ctx context.Context) ([]DocumentInfo, error) {
	index := make(map[string]int)
	var docs []DocumentInfo
	var offset *qdrant.PointId

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: CollectionName,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch("type", "segment")},
			},
			Limit:       qdrant.PtrOf(uint32(qdrantBatchSize)),
			Offset:      offset,
			WithPayload: qdrant.NewWithPayloadInclude("document_id", "title", "source", "category"),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll segments: %w", err)
		}

		for _, r := range results {
			payload := r.Payload
			docID := payload["document_id"].GetStringValue()
			if i, ok := index[docID]; ok {
				docs[i].Segments++
				continue
			}
			index[docID] = len(docs)
			docs = append(docs, DocumentInfo{
				DocumentID: docID,
				Title:      payload["title"].GetStringValue(),
				Source:     payload["source"].GetStringValue(),
				Category:   payload["category"].GetStringValue(),
				Segments:   1,
			})
		}

		if uint32(len(results)) < qdrantBatchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	return docs, nil
}

// Count reports the segment count, excluding the manifest point.
func (s *Qdrant) Count(ctx context.Context) (int, error) {
	collection, err := s.client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return 0, fmt.Errorf("get collection info: %w", err)
	}
	count := int(collection.GetPointsCount())
	if count > 0 {
		count-- // manifest point
	}
	return count, nil
}

// Close closes the underlying client connection.
func (s *Qdrant) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Qdrant) validateDimensions(entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: segment %s has %d dimensions, store expects %d",
				ErrDimensionMismatch, e.SegmentID, len(e.Vector), s.dimension)
		}
	}
	return nil
}
