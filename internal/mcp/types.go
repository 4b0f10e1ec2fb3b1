// Package mcp exposes the knowledge base over the Model Context Protocol.
package mcp

import "time"

// SearchInput defines the input parameters for the search_knowledge tool.
type SearchInput struct {
	// Query is the natural-language question.
	Query string `json:"query" jsonschema:"The natural-language query to match against the knowledge base"`
	// UserID scopes the search. Defaults to the server's configured user.
	UserID string `json:"user_id,omitempty" jsonschema:"Owner of the knowledge base to search (defaults to the server user)"`
	// Category restricts the search to documents of one category.
	Category string `json:"category,omitempty" jsonschema:"Only search documents in this category"`
	// Limit is the maximum number of passages to return.
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of passages to return (default 5)"`
}

// SearchOutput contains the ranked passages.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
	// Message is set when nothing matched.
	Message string `json:"message,omitempty"`
}

// SearchResult is one ranked passage.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Section    string  `json:"section,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// IngestInput defines the input parameters for the ingest_document tool.
type IngestInput struct {
	Content  string `json:"content" jsonschema:"The document text to index"`
	Title    string `json:"title,omitempty" jsonschema:"Display title of the document"`
	Category string `json:"category,omitempty" jsonschema:"Category tag (defaults to manual_input)"`
	UserID   string `json:"user_id,omitempty" jsonschema:"Owner of the document (defaults to the server user)"`
}

// IngestOutput reports the outcome of an ingestion.
type IngestOutput struct {
	Success         bool   `json:"success"`
	DocumentID      string `json:"document_id,omitempty"`
	ChunksProcessed int    `json:"chunks_processed"`
	ChunksSaved     int    `json:"chunks_saved"`
	TotalTokens     int    `json:"total_tokens"`
	Error           string `json:"error,omitempty"`
}

// ListDocumentsInput defines the input parameters for the list_documents tool.
type ListDocumentsInput struct {
	UserID   string `json:"user_id,omitempty" jsonschema:"Owner of the documents (defaults to the server user)"`
	Category string `json:"category,omitempty" jsonschema:"Only list documents in this category"`
}

// ListDocumentsOutput lists document metadata, newest first.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// DocumentInfo is document metadata without its content.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DeleteInput defines the input parameters for the delete_document tool.
type DeleteInput struct {
	DocumentID string `json:"document_id" jsonschema:"Identifier of the document to delete"`
	UserID     string `json:"user_id,omitempty" jsonschema:"Owner of the document (defaults to the server user)"`
}

// DeleteOutput reports whether the document was removed.
type DeleteOutput struct {
	DocumentID string `json:"document_id"`
	Deleted    bool   `json:"deleted"`
	Message    string `json:"message,omitempty"`
}

// UserInput is the input of tools that only take an optional user.
type UserInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Owner of the knowledge base (defaults to the server user)"`
}

// StatsOutput summarises a knowledge base.
type StatsOutput struct {
	TotalDocuments  int            `json:"total_documents"`
	TotalChunks     int            `json:"total_chunks"`
	TotalEmbeddings int            `json:"total_embeddings"`
	TotalTokens     int            `json:"total_tokens"`
	Categories      map[string]int `json:"categories"`
}

// CategoriesOutput lists the distinct document categories.
type CategoriesOutput struct {
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
}

// QueueOutput lists unfinished processing records.
type QueueOutput struct {
	Items []QueueItem `json:"items"`
	Count int         `json:"count"`
}

// QueueItem is one processing record.
type QueueItem struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id,omitempty"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
