package storage

import (
	"fmt"
	"time"
)

// Document is a user's uploaded text. Documents are immutable once created;
// the only mutation is deletion, which cascades to their chunks.
type Document struct {
	ID        string    // UUID
	UserID    string    // Owning user
	Title     string    // Display title
	Content   string    // Full text as ingested
	Category  string    // Free-form tag: "manual_input", "pdf_upload", ...
	Source    string    // Optional origin label: "uploaded_pdf_report.pdf"
	IsPublic  bool      // Visibility flag, false for user uploads
	CreatedAt time.Time // Creation time
}

// ChunkMetadata describes where a chunk came from inside its document.
type ChunkMetadata struct {
	DocumentID string // Source document id
	ChunkIndex int    // Ordinal within the document, continues across sections
	Section    string // Section title, empty when the section had none
	WordCount  int    // Words in the chunk window (summed when merged)
}

// Chunk is a retrieval-sized passage with its embedding.
type Chunk struct {
	ID         string // "<documentID>_chunk_<index>"
	DocumentID string // Owning document
	UserID     string // Denormalized owner for user-scoped reads
	Content    string // Passage text, prefixed with "<section>\n\n" when titled
	Embedding  []float32
	Metadata   ChunkMetadata
	Model      string // Embedding model that produced Embedding
	TokenCount int    // Tokens the provider reported for Embedding
	CreatedAt  time.Time
}

// ChunkEmbedding is the slice of a chunk needed for ranking.
type ChunkEmbedding struct {
	ChunkID    string
	DocumentID string
	Embedding  []float32
	Model      string
}

// Operation names a stage of the ingestion pipeline.
type Operation string

const (
	OperationUpload    Operation = "upload"
	OperationChunking  Operation = "chunking"
	OperationEmbedding Operation = "embedding"
)

// Status is the state of a processing record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ProcessingStatus is a passive progress record written by the ingestion
// pipeline. It is patched in place and never deleted here.
type ProcessingStatus struct {
	ID         string
	UserID     string
	DocumentID string // Empty until the document is persisted
	Operation  Operation
	Status     Status
	Progress   int    // 0-100
	Error      string // Set when Status is failed
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StatusPatch holds the fields to change on a ProcessingStatus. Nil fields
// are left as they are.
type StatusPatch struct {
	DocumentID *string
	Operation  *Operation
	Status     *Status
	Progress   *int
	Error      *string
}

// Apply copies the set fields of p onto s and bumps UpdatedAt.
func (p StatusPatch) Apply(s *ProcessingStatus, now time.Time) {
	if p.DocumentID != nil {
		s.DocumentID = *p.DocumentID
	}
	if p.Operation != nil {
		s.Operation = *p.Operation
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Progress != nil {
		s.Progress = clampProgress(*p.Progress)
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
	s.UpdatedAt = now
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ChunkStats aggregates a user's chunks.
type ChunkStats struct {
	Chunks      int // All chunks
	Embeddings  int // Chunks carrying a non-empty vector
	TotalTokens int // Sum of TokenCount
}

// ChunkID builds the identifier of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// CollectionName is the default Qdrant collection for all records.
const CollectionName = "knowledge"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536
