// Package reconcile matches freshly parsed fragments against persisted nodes
// and emits the ordered change-set that brings the store in line with the
// document. It is a pure function over two already-valid lists.
package reconcile

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kerim/docsync/internal/fragment"
)

// Op is the change-set operation type.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// DefaultWindow is the proximity-match distance bound. A heuristic, not a
// load-bearing invariant; tunable via configuration.
const DefaultWindow = 3

// FieldDiff lists the parse-derived fields an update touches. Nil pointers
// mean "unchanged". User metadata never appears here.
type FieldDiff struct {
	Title     *string               `json:"title,omitempty"`
	Level     *int                  `json:"level,omitempty"`
	IsPseudo  *bool                 `json:"is_pseudo,omitempty"`
	SortOrder *float64              `json:"sort_order,omitempty"`
	Content   *string               `json:"content,omitempty"`
	WordCount *int                  `json:"word_count,omitempty"`
	Start     *int                  `json:"start,omitempty"`
	Managed   *fragment.ManagedKind `json:"managed,omitempty"`
}

// Empty reports whether the diff changes nothing. An empty diff must never
// become an Update.
func (d *FieldDiff) Empty() bool {
	return d.Title == nil && d.Level == nil && d.IsPseudo == nil &&
		d.SortOrder == nil && d.Content == nil && d.WordCount == nil &&
		d.Start == nil && d.Managed == nil
}

// ApplyTo writes the changed fields onto a node.
func (d *FieldDiff) ApplyTo(n *fragment.Node) {
	if d.Title != nil {
		n.Title = *d.Title
	}
	if d.Level != nil {
		n.Level = *d.Level
	}
	if d.IsPseudo != nil {
		n.IsPseudo = *d.IsPseudo
	}
	if d.SortOrder != nil {
		n.SortOrder = *d.SortOrder
	}
	if d.Content != nil {
		n.Content = *d.Content
	}
	if d.WordCount != nil {
		n.WordCount = *d.WordCount
	}
	if d.Start != nil {
		n.Start = *d.Start
	}
	if d.Managed != nil {
		n.Managed = *d.Managed
	}
}

// Change is one element of the ordered change-set the store applies
// atomically.
type Change struct {
	Op   Op             `json:"op"`
	ID   string         `json:"id"`
	Node *fragment.Node `json:"node,omitempty"` // inserts
	Diff *FieldDiff     `json:"diff,omitempty"` // updates
}

// Reconciler matches fragments to prior nodes with a three-tier strategy:
// exact position first (in-place edits), title identity second (drag
// reordering, skipped for pseudo-breaks), bounded proximity last (batched
// inserts and deletes shifting everything after them).
type Reconciler struct {
	window float64
}

// New returns a reconciler with the given proximity window; zero or negative
// selects DefaultWindow.
func New(window int) *Reconciler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Reconciler{window: float64(window)}
}

// Reconcile consumes prior nodes into an available pool (each matches at
// most one fragment) and emits inserts/updates in document order followed by
// deletes for every node no fragment consumed.
func (r *Reconciler) Reconcile(frags []fragment.Fragment, prior []fragment.Node) []Change {
	used := make([]bool, len(prior))
	var changes []Change

	for _, f := range frags {
		idx := r.match(f, prior, used)
		if idx < 0 {
			node := NewNode(f)
			changes = append(changes, Change{Op: OpInsert, ID: node.ID, Node: node})
			continue
		}
		used[idx] = true
		if d := diff(f, prior[idx]); !d.Empty() {
			changes = append(changes, Change{Op: OpUpdate, ID: prior[idx].ID, Diff: d})
		}
	}
	for i := range prior {
		if !used[i] {
			changes = append(changes, Change{Op: OpDelete, ID: prior[i].ID})
		}
	}
	return changes
}

func (r *Reconciler) match(f fragment.Fragment, prior []fragment.Node, used []bool) int {
	pos := float64(f.Position)

	// Exact position only counts as identity when the label agrees;
	// otherwise a reordered section would capture the node that merely
	// occupies its old slot.
	for i := range prior {
		if !used[i] && prior[i].SortOrder == pos &&
			prior[i].Title == f.Title && prior[i].Level == f.Level {
			return i
		}
	}

	// Pseudo-breaks lack distinguishing titles, so title identity is only
	// trusted for everything else.
	if f.Kind != fragment.KindPseudoBreak && f.Title != "" {
		for i := range prior {
			if !used[i] && prior[i].Title == f.Title && prior[i].Level == f.Level {
				return i
			}
		}
	}

	best := -1
	var bestDist float64
	for i := range prior {
		if used[i] {
			continue
		}
		d := math.Abs(prior[i].SortOrder - pos)
		if d > r.window {
			continue
		}
		if best < 0 || d < bestDist || (d == bestDist && prior[i].SortOrder < prior[best].SortOrder) {
			best, bestDist = i, d
		}
	}
	return best
}

// NewNode builds a fresh persisted node from a fragment. Metadata fields are
// left at type defaults; only explicit user action sets them.
func NewNode(f fragment.Fragment) *fragment.Node {
	return &fragment.Node{
		ID:        uuid.NewString(),
		Title:     f.Title,
		Level:     f.Level,
		IsPseudo:  f.IsPseudo(),
		Kind:      f.Kind,
		Content:   f.Content,
		WordCount: f.WordCount,
		Start:     f.Start,
		SortOrder: float64(f.Position),
		Managed:   f.Managed,
		CreatedAt: time.Now().UTC(),
	}
}

func diff(f fragment.Fragment, n fragment.Node) *FieldDiff {
	d := &FieldDiff{}
	if f.Title != n.Title {
		d.Title = &f.Title
	}
	if f.Level != n.Level {
		d.Level = &f.Level
	}
	if f.IsPseudo() != n.IsPseudo {
		v := f.IsPseudo()
		d.IsPseudo = &v
	}
	if float64(f.Position) != n.SortOrder {
		v := float64(f.Position)
		d.SortOrder = &v
	}
	if f.Content != n.Content {
		d.Content = &f.Content
	}
	if f.WordCount != n.WordCount {
		d.WordCount = &f.WordCount
	}
	if f.Start != n.Start {
		d.Start = &f.Start
	}
	if f.Managed != n.Managed {
		d.Managed = &f.Managed
	}
	return d
}
