package indexer

import (
	"context"
	"log/slog"

	"github.com/bull/knowledge-rag/internal/storage"
)

// statusTracker writes the processing record of one ingestion. Write
// failures are logged and otherwise ignored; the record is informational.
type statusTracker struct {
	store  storage.StatusStore
	logger *slog.Logger
	id     string // empty when the record could not be created
	op     storage.Operation
}

func (p *Pipeline) startStatus(ctx context.Context, userID string) *statusTracker {
	now := p.now()
	rec := &storage.ProcessingStatus{
		ID:        p.newID(),
		UserID:    userID,
		Operation: storage.OperationUpload,
		Status:    storage.StatusProcessing,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t := &statusTracker{store: p.store, logger: p.logger, op: rec.Operation}
	if err := p.store.CreateStatus(ctx, rec); err != nil {
		p.logger.Warn("Failed to create processing status", "user_id", userID, "error", err)
		return t
	}
	t.id = rec.ID
	return t
}

// advance moves the record to op at progress. documentID is set when
// non-empty.
func (t *statusTracker) advance(ctx context.Context, op storage.Operation, progress int, documentID string) {
	t.op = op
	status := storage.StatusProcessing
	patch := storage.StatusPatch{Operation: &op, Status: &status, Progress: &progress}
	if documentID != "" {
		patch.DocumentID = &documentID
	}
	t.update(ctx, patch)
}

func (t *statusTracker) complete(ctx context.Context) {
	status := storage.StatusCompleted
	progress := 100
	t.update(ctx, storage.StatusPatch{Status: &status, Progress: &progress})
}

func (t *statusTracker) fail(ctx context.Context, err error) {
	status := storage.StatusFailed
	msg := err.Error()
	t.update(ctx, storage.StatusPatch{Status: &status, Error: &msg})
}

func (t *statusTracker) update(ctx context.Context, patch storage.StatusPatch) {
	if t.id == "" {
		return
	}
	if err := t.store.UpdateStatus(ctx, t.id, patch); err != nil {
		t.logger.Warn("Failed to update processing status",
			"status_id", t.id, "operation", t.op, "error", err)
	}
}
