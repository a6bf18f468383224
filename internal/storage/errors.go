package storage

import "errors"

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrStoreNotFound      = errors.New("vector store not found")
	ErrStoreCorrupt       = errors.New("vector store is unreadable")
	ErrStoreExists        = errors.New("vector store already exists")
)
