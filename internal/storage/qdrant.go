package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Point types sharing one collection. Documents and statuses carry no
// vector; chunks carry the named "content" vector.
const (
	pointTypeDocument = "document"
	pointTypeChunk    = "chunk"
	pointTypeStatus   = "status"

	vectorName = "content"
	scrollPage = uint32(256)
)

// QdrantConfig configures the Qdrant backend.
type QdrantConfig struct {
	Host            string
	Port            int
	Collection      string // Defaults to CollectionName
	VectorDimension int    // Defaults to VectorDimension
}

// QdrantStore stores documents, chunks and statuses as points in a single
// Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	now        func() time.Time
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore connects to Qdrant and fails fast if it stays unreachable
// after a bounded retry.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = CollectionName
	}
	if cfg.VectorDimension <= 0 {
		cfg.VectorDimension = VectorDimension
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.VectorDimension,
		now:        time.Now,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	return s, nil
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, newRetryBackoff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes if they
// do not exist yet. Idempotent.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for _, field := range []string{"type", "user_id", "category", "document_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// pointID maps a record id onto a Qdrant UUID. UUIDs pass through; any
// other id (chunk ids in particular) gets a stable UUIDv5.
func pointID(id string) *qdrant.PointId {
	if u, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(u.String())
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func (s *QdrantStore) upsertWithRetry(ctx context.Context, points ...*qdrant.PointStruct) error {
	wait := true
	op := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		return err
	}
	return backoff.Retry(op, newRetryBackoff(ctx))
}

func (s *QdrantStore) getPoint(ctx context.Context, id, pointType string, withVectors bool) (*qdrant.RetrievedPoint, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || result[0].Payload["type"].GetStringValue() != pointType {
		return nil, nil
	}
	return result[0], nil
}

// scrollAll pages through every point matching filter.
func (s *QdrantStore) scrollAll(ctx context.Context, filter *qdrant.Filter, payload *qdrant.WithPayloadSelector, withVectors bool) ([]*qdrant.RetrievedPoint, error) {
	var (
		out    []*qdrant.RetrievedPoint
		offset *qdrant.PointId
	)
	for {
		page, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(scrollPage),
			Offset:         offset,
			WithPayload:    payload,
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == nil || len(page) == 0 {
			return out, nil
		}
		offset = next
	}
}

// ==================== Documents ====================

func (s *QdrantStore) InsertDocument(ctx context.Context, doc *Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	point := &qdrant.PointStruct{
		Id:      pointID(doc.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":       pointTypeDocument,
			"id":         doc.ID,
			"user_id":    doc.UserID,
			"title":      doc.Title,
			"content":    doc.Content,
			"category":   doc.Category,
			"source":     doc.Source,
			"is_public":  doc.IsPublic,
			"created_at": toMillis(doc.CreatedAt),
		}),
	}
	if err := s.upsertWithRetry(ctx, point); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func documentFromPayload(payload map[string]*qdrant.Value) *Document {
	return &Document{
		ID:        payload["id"].GetStringValue(),
		UserID:    payload["user_id"].GetStringValue(),
		Title:     payload["title"].GetStringValue(),
		Content:   payload["content"].GetStringValue(),
		Category:  payload["category"].GetStringValue(),
		Source:    payload["source"].GetStringValue(),
		IsPublic:  payload["is_public"].GetBoolValue(),
		CreatedAt: fromMillis(payload["created_at"].GetIntegerValue()),
	}
}

func (s *QdrantStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	point, err := s.getPoint(ctx, id, pointTypeDocument, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if point == nil {
		return nil, ErrDocumentNotFound
	}
	return documentFromPayload(point.Payload), nil
}

func (s *QdrantStore) ListDocuments(ctx context.Context, userID, category string) ([]*Document, error) {
	must := []*qdrant.Condition{
		qdrant.NewMatch("type", pointTypeDocument),
		qdrant.NewMatch("user_id", userID),
	}
	if category != "" {
		must = append(must, qdrant.NewMatch("category", category))
	}

	points, err := s.scrollAll(ctx, &qdrant.Filter{Must: must}, qdrant.NewWithPayload(true), false)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll documents: %w", err)
	}

	docs := make([]*Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, documentFromPayload(p.Payload))
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// DeleteDocument removes the chunks first so no chunk ever outlives its
// document.
func (s *QdrantStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("type", pointTypeChunk),
				qdrant.NewMatch("document_id", id),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointID(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ==================== Chunks ====================

func (s *QdrantStore) InsertChunk(ctx context.Context, chunk *Chunk) error {
	if len(chunk.Embedding) != s.dimension {
		return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
			ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), s.dimension)
	}
	if _, err := s.GetDocument(ctx, chunk.DocumentID); err != nil {
		return fmt.Errorf("chunk %s references %s: %w", chunk.ID, chunk.DocumentID, err)
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = s.now()
	}

	point := &qdrant.PointStruct{
		Id: pointID(chunk.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
			vectorName: qdrant.NewVector(chunk.Embedding...),
		}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":        pointTypeChunk,
			"chunk_id":    chunk.ID,
			"document_id": chunk.DocumentID,
			"user_id":     chunk.UserID,
			"content":     chunk.Content,
			"chunk_index": chunk.Metadata.ChunkIndex,
			"section":     chunk.Metadata.Section,
			"word_count":  chunk.Metadata.WordCount,
			"model":       chunk.Model,
			"token_count": chunk.TokenCount,
			"created_at":  toMillis(chunk.CreatedAt),
		}),
	}
	if err := s.upsertWithRetry(ctx, point); err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

func denseVector(point *qdrant.RetrievedPoint) []float32 {
	named := point.GetVectors().GetVectors().GetVectors()
	v, ok := named[vectorName]
	if !ok {
		return nil
	}
	if dense := v.GetDense(); dense != nil {
		return dense.GetData()
	}
	return v.GetData()
}

func (s *QdrantStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	point, err := s.getPoint(ctx, id, pointTypeChunk, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	if point == nil {
		return nil, ErrChunkNotFound
	}

	payload := point.Payload
	docID := payload["document_id"].GetStringValue()
	return &Chunk{
		ID:         payload["chunk_id"].GetStringValue(),
		DocumentID: docID,
		UserID:     payload["user_id"].GetStringValue(),
		Content:    payload["content"].GetStringValue(),
		Embedding:  denseVector(point),
		Metadata: ChunkMetadata{
			DocumentID: docID,
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
			Section:    payload["section"].GetStringValue(),
			WordCount:  int(payload["word_count"].GetIntegerValue()),
		},
		Model:      payload["model"].GetStringValue(),
		TokenCount: int(payload["token_count"].GetIntegerValue()),
		CreatedAt:  fromMillis(payload["created_at"].GetIntegerValue()),
	}, nil
}

func (s *QdrantStore) ListChunkEmbeddings(ctx context.Context, userID string, documentIDs []string) ([]ChunkEmbedding, error) {
	if documentIDs != nil && len(documentIDs) == 0 {
		return nil, nil
	}

	must := []*qdrant.Condition{
		qdrant.NewMatch("type", pointTypeChunk),
		qdrant.NewMatch("user_id", userID),
	}
	if documentIDs != nil {
		must = append(must, qdrant.NewMatchKeywords("document_id", documentIDs...))
	}

	points, err := s.scrollAll(ctx, &qdrant.Filter{Must: must},
		qdrant.NewWithPayloadInclude("chunk_id", "document_id", "model", "chunk_index"), true)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll chunks: %w", err)
	}

	// Scroll order follows point ids; restore document order for stable ranking.
	sort.SliceStable(points, func(i, j int) bool {
		di := points[i].Payload["document_id"].GetStringValue()
		dj := points[j].Payload["document_id"].GetStringValue()
		if di != dj {
			return di < dj
		}
		return points[i].Payload["chunk_index"].GetIntegerValue() < points[j].Payload["chunk_index"].GetIntegerValue()
	})

	out := make([]ChunkEmbedding, 0, len(points))
	for _, p := range points {
		vec := denseVector(p)
		if len(vec) == 0 {
			continue
		}
		out = append(out, ChunkEmbedding{
			ChunkID:    p.Payload["chunk_id"].GetStringValue(),
			DocumentID: p.Payload["document_id"].GetStringValue(),
			Embedding:  vec,
			Model:      p.Payload["model"].GetStringValue(),
		})
	}
	return out, nil
}

func (s *QdrantStore) ChunkStats(ctx context.Context, userID string) (*ChunkStats, error) {
	points, err := s.scrollAll(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("type", pointTypeChunk),
			qdrant.NewMatch("user_id", userID),
		},
	}, qdrant.NewWithPayloadInclude("token_count"), false)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll chunks: %w", err)
	}

	stats := &ChunkStats{Chunks: len(points), Embeddings: len(points)}
	for _, p := range points {
		stats.TotalTokens += int(p.Payload["token_count"].GetIntegerValue())
	}
	return stats, nil
}

// ==================== Processing status ====================

func statusPoint(st *ProcessingStatus) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      pointID(st.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":        pointTypeStatus,
			"id":          st.ID,
			"user_id":     st.UserID,
			"document_id": st.DocumentID,
			"operation":   string(st.Operation),
			"status":      string(st.Status),
			"progress":    st.Progress,
			"error":       st.Error,
			"created_at":  toMillis(st.CreatedAt),
			"updated_at":  toMillis(st.UpdatedAt),
		}),
	}
}

func statusFromPayload(payload map[string]*qdrant.Value) *ProcessingStatus {
	return &ProcessingStatus{
		ID:         payload["id"].GetStringValue(),
		UserID:     payload["user_id"].GetStringValue(),
		DocumentID: payload["document_id"].GetStringValue(),
		Operation:  Operation(payload["operation"].GetStringValue()),
		Status:     Status(payload["status"].GetStringValue()),
		Progress:   int(payload["progress"].GetIntegerValue()),
		Error:      payload["error"].GetStringValue(),
		CreatedAt:  fromMillis(payload["created_at"].GetIntegerValue()),
		UpdatedAt:  fromMillis(payload["updated_at"].GetIntegerValue()),
	}
}

func (s *QdrantStore) CreateStatus(ctx context.Context, status *ProcessingStatus) error {
	if status.CreatedAt.IsZero() {
		status.CreatedAt = s.now()
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = status.CreatedAt
	}
	status.Progress = clampProgress(status.Progress)
	if err := s.upsertWithRetry(ctx, statusPoint(status)); err != nil {
		return fmt.Errorf("failed to upsert processing status: %w", err)
	}
	return nil
}

func (s *QdrantStore) UpdateStatus(ctx context.Context, id string, patch StatusPatch) error {
	status, err := s.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	patch.Apply(status, s.now())
	if err := s.upsertWithRetry(ctx, statusPoint(status)); err != nil {
		return fmt.Errorf("failed to update processing status: %w", err)
	}
	return nil
}

func (s *QdrantStore) GetStatus(ctx context.Context, id string) (*ProcessingStatus, error) {
	point, err := s.getPoint(ctx, id, pointTypeStatus, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get processing status: %w", err)
	}
	if point == nil {
		return nil, ErrStatusNotFound
	}
	return statusFromPayload(point.Payload), nil
}

func (s *QdrantStore) ListStatuses(ctx context.Context, userID string) ([]*ProcessingStatus, error) {
	points, err := s.scrollAll(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("type", pointTypeStatus),
			qdrant.NewMatch("user_id", userID),
		},
	}, qdrant.NewWithPayload(true), false)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll processing statuses: %w", err)
	}

	out := make([]*ProcessingStatus, 0, len(points))
	for _, p := range points {
		out = append(out, statusFromPayload(p.Payload))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
