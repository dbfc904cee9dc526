package model

import (
	"context"
)

// MemoryItem is one document returned by a similarity search.
// Score orders results (higher is closer) and is not a probability.
type MemoryItem struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

type MemoryStore interface {
	// Store embeds and saves texts into a collection, returning their ids.
	Store(ctx context.Context, collection string, texts []string, metadatas []map[string]string) ([]string, error)

	// Search returns up to k items closest to query, optionally filtered by exact metadata matches.
	Search(ctx context.Context, collection, query string, k int, filter map[string]string) ([]MemoryItem, error)

	// Delete removes the given ids from a collection.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteAll removes every document in a collection but keeps it registered.
	DeleteAll(ctx context.Context, collection string) error

	// DeleteCollection drops a collection entirely.
	DeleteCollection(ctx context.Context, collection string) error
}

type RunAuditRepository interface {
	// Append records a finished run for a scope.
	Append(ctx context.Context, rec RunRecord) error

	// List returns the most recent runs for a scope, newest last.
	List(ctx context.Context, scopeID string, limit int) ([]RunRecord, error)

	// Clear removes the audit trail for a scope.
	Clear(ctx context.Context, scopeID string) error
}
