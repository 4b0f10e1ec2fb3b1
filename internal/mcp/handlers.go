package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/knowledge-rag/internal/indexer"
	"github.com/bull/knowledge-rag/internal/knowledge"
	"github.com/bull/knowledge-rag/internal/retrieval"
)

// userOrDefault returns id, or the server's default user when id is blank.
func (s *Server) userOrDefault(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.defaultUser
}

// handleSearch implements search_knowledge. Search never fails; an empty
// result carries a hint instead.
func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	results := s.knowledge.Search(ctx, retrieval.Request{
		UserID:   s.userOrDefault(input.UserID),
		Query:    input.Query,
		Category: input.Category,
		Limit:    input.Limit,
	})

	out := SearchOutput{Results: make([]SearchResult, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchResult{
			ChunkID:    r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Section:    r.Chunk.Metadata.Section,
			Content:    r.Chunk.Content,
			Similarity: r.Similarity,
		})
	}
	if len(out.Results) == 0 {
		out.Message = "No matching passages found. Try broader search terms or ingest more documents."
	}
	return nil, out, nil
}

// handleIngest implements ingest_document. Pipeline failures are reported in
// the output rather than as tool errors so partial results stay visible.
func (s *Server) handleIngest(ctx context.Context, req *mcp.CallToolRequest, input IngestInput) (
	*mcp.CallToolResult, IngestOutput, error,
) {
	user := s.userOrDefault(input.UserID)

	var res *indexer.IngestResult
	if input.Category == "" {
		res = s.knowledge.IngestText(ctx, user, input.Title, input.Content)
	} else {
		res = s.knowledge.IngestDocument(ctx, indexer.IngestRequest{
			UserID:   user,
			Title:    input.Title,
			Content:  input.Content,
			Category: input.Category,
			Source:   knowledge.SourceDashboard,
		})
	}

	return nil, IngestOutput{
		Success:         res.Success,
		DocumentID:      res.DocumentID,
		ChunksProcessed: res.ChunksProcessed,
		ChunksSaved:     res.ChunksSaved,
		TotalTokens:     res.TotalTokens,
		Error:           res.Error,
	}, nil
}

// handleListDocuments implements list_documents.
func (s *Server) handleListDocuments(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
	*mcp.CallToolResult, ListDocumentsOutput, error,
) {
	docs, err := s.knowledge.ListDocuments(ctx, s.userOrDefault(input.UserID), input.Category)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}

	out := ListDocumentsOutput{Documents: make([]DocumentInfo, 0, len(docs)), Count: len(docs)}
	for _, d := range docs {
		out.Documents = append(out.Documents, DocumentInfo{
			ID:        d.ID,
			Title:     d.Title,
			Category:  d.Category,
			Source:    d.Source,
			CreatedAt: d.CreatedAt,
		})
	}
	return nil, out, nil
}

// handleDelete implements delete_document. An unknown document, or one that
// belongs to another user, is reported with Deleted false.
func (s *Server) handleDelete(ctx context.Context, req *mcp.CallToolRequest, input DeleteInput) (
	*mcp.CallToolResult, DeleteOutput, error,
) {
	out := DeleteOutput{DocumentID: input.DocumentID}
	err := s.knowledge.DeleteDocument(ctx, s.userOrDefault(input.UserID), input.DocumentID)
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		out.Message = "Document not found."
		return nil, out, nil
	case err != nil:
		return nil, DeleteOutput{}, fmt.Errorf("failed to delete document: %w", err)
	}
	out.Deleted = true
	return nil, out, nil
}

// handleStats implements knowledge_stats.
func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest, input UserInput) (
	*mcp.CallToolResult, StatsOutput, error,
) {
	stats, err := s.knowledge.Stats(ctx, s.userOrDefault(input.UserID))
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{
		TotalDocuments:  stats.TotalDocuments,
		TotalChunks:     stats.TotalChunks,
		TotalEmbeddings: stats.TotalEmbeddings,
		TotalTokens:     stats.TotalTokens,
		Categories:      stats.Categories,
	}, nil
}

// handleCategories implements list_categories.
func (s *Server) handleCategories(ctx context.Context, req *mcp.CallToolRequest, input UserInput) (
	*mcp.CallToolResult, CategoriesOutput, error,
) {
	categories, err := s.knowledge.Categories(ctx, s.userOrDefault(input.UserID))
	if err != nil {
		return nil, CategoriesOutput{}, err
	}
	return nil, CategoriesOutput{Categories: categories, Count: len(categories)}, nil
}

// handleQueue implements processing_queue.
func (s *Server) handleQueue(ctx context.Context, req *mcp.CallToolRequest, input UserInput) (
	*mcp.CallToolResult, QueueOutput, error,
) {
	records, err := s.knowledge.ProcessingQueue(ctx, s.userOrDefault(input.UserID))
	if err != nil {
		return nil, QueueOutput{}, err
	}

	out := QueueOutput{Items: make([]QueueItem, 0, len(records)), Count: len(records)}
	for _, r := range records {
		out.Items = append(out.Items, QueueItem{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			Operation:  string(r.Operation),
			Status:     string(r.Status),
			Progress:   r.Progress,
			Error:      r.Error,
			UpdatedAt:  r.UpdatedAt,
		})
	}
	return nil, out, nil
}
