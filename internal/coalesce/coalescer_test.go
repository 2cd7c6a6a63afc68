package coalesce

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/fragmenter"
	"github.com/kerim/docsync/internal/managed"
	"github.com/kerim/docsync/internal/reconcile"
	"github.com/kerim/docsync/internal/store"
)

// fakeStore is an in-memory Store with the same transaction semantics as the
// bolt implementation, plus hooks for failure injection.
type fakeStore struct {
	mu       sync.Mutex
	nodes    map[string][]fragment.Node
	content  map[string]string
	applies  int
	failNext bool
	onApply  func() // called once, outside the lock, on the first Apply
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:   map[string][]fragment.Node{},
		content: map[string]string{},
	}
}

func (s *fakeStore) Nodes(ctx context.Context, docID string) ([]fragment.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fragment.Node, len(s.nodes[docID]))
	copy(out, s.nodes[docID])
	return out, nil
}

func (s *fakeStore) Content(ctx context.Context, docID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content[docID], nil
}

func (s *fakeStore) Apply(ctx context.Context, docID, content string, changes []reconcile.Change) error {
	s.mu.Lock()
	if s.failNext {
		s.failNext = false
		s.mu.Unlock()
		return errors.New("injected apply failure")
	}
	byID := map[string]*fragment.Node{}
	var order []string
	for i := range s.nodes[docID] {
		n := s.nodes[docID][i]
		byID[n.ID] = &n
		order = append(order, n.ID)
	}
	for _, c := range changes {
		switch c.Op {
		case reconcile.OpInsert:
			n := *c.Node
			if n.ID == "" {
				n.ID = uuid.NewString()
			}
			byID[n.ID] = &n
			order = append(order, n.ID)
		case reconcile.OpUpdate:
			if n, ok := byID[c.ID]; ok {
				c.Diff.ApplyTo(n)
			}
		case reconcile.OpDelete:
			delete(byID, c.ID)
		}
	}
	var out []fragment.Node
	for _, id := range order {
		if n, ok := byID[id]; ok {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	s.nodes[docID] = out
	s.content[docID] = content
	s.applies++
	hook := s.onApply
	s.onApply = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (s *fakeStore) UpdateMetadata(ctx context.Context, docID, nodeID string, patch store.MetaPatch) error {
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) applyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applies
}

func newTestCoalescer(st store.Store, debounce time.Duration) *Coalescer {
	c := New(fragmenter.Section{}, reconcile.New(0), managed.Config{BibliographyTitle: "References"}, debounce, slog.Default())
	c.Configure(st, "doc-1")
	return c
}

func TestCoalescer_DebouncedSync(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, 20*time.Millisecond)

	c.ContentChanged("# A\n\nhello\n")
	require.Equal(t, StatePendingSync, c.State())

	require.Eventually(t, func() bool {
		return st.applyCount() == 1 && c.State() == StateIdle
	}, 2*time.Second, 5*time.Millisecond)

	nodes, err := st.Nodes(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "A", nodes[0].Title)
}

func TestCoalescer_RapidEditsCollapseToOneSync(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, 40*time.Millisecond)

	c.ContentChanged("# A\n\nv1\n")
	c.ContentChanged("# A\n\nv2\n")
	c.ContentChanged("# A\n\nv3\n")

	require.Eventually(t, func() bool {
		return c.State() == StateIdle && st.applyCount() > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, 1, st.applyCount())
	content, err := st.Content(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, "# A\n\nv3\n", content)
}

func TestCoalescer_FlushBypassesDebounce(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, time.Hour)

	c.ContentChanged("# A\n\nbody\n")
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, 1, st.applyCount())
	require.Equal(t, StateIdle, c.State())

	// Idempotent with the timer path: nothing pending, nothing happens.
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, 1, st.applyCount())
}

func TestCoalescer_SyncedContentDoesNotRetrigger(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, time.Hour)

	c.ContentChanged("# A\n\nbody\n")
	require.NoError(t, c.Flush(context.Background()))

	// A generator echoing the buffer back must not start a new cycle.
	c.ContentChanged("# A\n\nbody\n")
	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, 1, st.applyCount())
}

func TestCoalescer_SuppressionShortCircuits(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, 20*time.Millisecond)

	c.SetSuppressed(true)
	c.ContentChanged("# A\n\nduring drag\n")
	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, 0, st.applyCount())

	c.SetSuppressed(false)
	c.ContentChanged("# A\n\nafter drag\n")
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, 1, st.applyCount())
}

func TestCoalescer_SuppressionCancelsPendingTimer(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, 20*time.Millisecond)

	c.ContentChanged("# A\n\nv1\n")
	c.SetSuppressed(true)
	require.Equal(t, StateIdle, c.State())

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 0, st.applyCount())
}

func TestCoalescer_ApplyFailureRetriesOnNextEdit(t *testing.T) {
	st := newFakeStore()
	st.failNext = true
	c := newTestCoalescer(st, time.Hour)

	c.ContentChanged("# A\n\nbody\n")
	require.Error(t, c.Flush(context.Background()))
	require.Equal(t, StateIdle, c.State())

	// The baseline was not advanced, so the same content syncs again.
	c.ContentChanged("# A\n\nbody\n")
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, 1, st.applyCount())
}

func TestCoalescer_EditDuringSyncSchedulesFollowUp(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, 20*time.Millisecond)
	st.onApply = func() { c.ContentChanged("# A\n\nv2\n") }

	c.ContentChanged("# A\n\nv1\n")

	require.Eventually(t, func() bool {
		return st.applyCount() == 2 && c.State() == StateIdle
	}, 2*time.Second, 5*time.Millisecond)

	content, err := st.Content(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, "# A\n\nv2\n", content)
}

func TestCoalescer_ManagedRegionWithheldFromPool(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, time.Hour)

	c.ContentChanged("# Intro\n\ntext\n\n# References\n\n- Smith 2020\n")
	require.NoError(t, c.Flush(context.Background()))

	nodes, err := st.Nodes(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, fragment.ManagedNone, nodes[0].Managed)
	require.Equal(t, fragment.ManagedBibliography, nodes[1].Managed)
	require.Equal(t, "References", nodes[1].Title)
}

func TestCoalescer_RenamedManagedHeadingKeepsID(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, time.Hour)

	c.ContentChanged("# Intro\n\ntext\n\n# References\n\n- Smith 2020\n")
	require.NoError(t, c.Flush(context.Background()))
	nodes, err := st.Nodes(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	bibID := nodes[1].ID

	// Renaming the heading dissolves the managed region; the node is
	// demoted to an ordinary section without losing its identity.
	c.ContentChanged("# Intro\n\ntext\n\n# Sources\n\n- Smith 2020\n")
	require.NoError(t, c.Flush(context.Background()))

	nodes, err = st.Nodes(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, bibID, nodes[1].ID)
	require.Equal(t, "Sources", nodes[1].Title)
	require.Equal(t, fragment.ManagedNone, nodes[1].Managed)
}

func TestCoalescer_ResetDiscardsPendingWork(t *testing.T) {
	st := newFakeStore()
	c := newTestCoalescer(st, 20*time.Millisecond)

	c.ContentChanged("# A\n\nbody\n")
	c.Reset()

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 0, st.applyCount())
	require.Equal(t, StateIdle, c.State())
}
