// Package store is the persistence boundary for reconciled documents. The
// engine only depends on the Store interface; bbolt and remote HTTP
// implementations ship alongside it.
package store

import (
	"context"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/reconcile"
)

// Store persists nodes and the last-synced raw content per document. Apply
// must land the whole change-set and the content as one atomic unit; partial
// application is not a supported outcome.
type Store interface {
	// Nodes returns the persisted nodes for a document, ordered by sortOrder.
	Nodes(ctx context.Context, docID string) ([]fragment.Node, error)
	// Content returns the last-synced raw text, "" when the document is new.
	Content(ctx context.Context, docID string) (string, error)
	// Apply applies an ordered change-set and records the content it was
	// derived from, atomically. Inserts with an unassigned id get one.
	Apply(ctx context.Context, docID, content string, changes []reconcile.Change) error
	// UpdateMetadata patches user metadata on one node. This is the only
	// write path for status, tags and word goals.
	UpdateMetadata(ctx context.Context, docID, nodeID string, patch MetaPatch) error
	Close() error
}

// MetaPatch is a partial update of user metadata. Nil fields are untouched.
type MetaPatch struct {
	Status   *string   `json:"status,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	WordGoal *int      `json:"word_goal,omitempty"`
}
