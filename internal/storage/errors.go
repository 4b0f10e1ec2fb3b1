package storage

import "errors"

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrChunkNotFound      = errors.New("chunk not found")
	ErrStatusNotFound     = errors.New("processing status not found")
	ErrDuplicateID        = errors.New("record already exists")
)
