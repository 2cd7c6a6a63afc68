// Package session tracks open documents: each one owns a text buffer, an
// edit coalescer, and a debounced generator pass. Idle documents are flushed
// and evicted on a timer.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kerim/docsync/internal/coalesce"
	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/fragmenter"
	"github.com/kerim/docsync/internal/generate"
	"github.com/kerim/docsync/internal/managed"
	"github.com/kerim/docsync/internal/reconcile"
	"github.com/kerim/docsync/internal/store"
)

// Config carries the per-document tunables.
type Config struct {
	Granularity       fragmenter.Granularity
	ProximityWindow   int
	Debounce          time.Duration
	GeneratorDebounce time.Duration // generators settle slower than the primary pipeline
	IdleTTL           time.Duration
	Managed           managed.Config
}

// Manager is the open-document registry.
type Manager struct {
	cfg  Config
	st   store.Store
	log  *slog.Logger
	frag fragmenter.Interface
	rec  *reconcile.Reconciler
	gens []generate.Generator

	mu   sync.Mutex
	docs map[string]*Document

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds the registry and its shared pipeline components.
func NewManager(cfg Config, st store.Store, log *slog.Logger) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.GeneratorDebounce <= 0 {
		cfg.GeneratorDebounce = 3 * time.Second
	}
	return &Manager{
		cfg:  cfg,
		st:   st,
		log:  log,
		frag: fragmenter.New(cfg.Granularity),
		rec:  reconcile.New(cfg.ProximityWindow),
		gens: []generate.Generator{
			generate.Bibliography{Title: cfg.Managed.BibliographyTitle},
			generate.Notes{Title: cfg.Managed.NotesTitle},
		},
		docs: make(map[string]*Document),
	}
}

// Start launches the idle-eviction loop.
func (m *Manager) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.Cleanup()
			}
		}
	}()
}

// Stop halts eviction and flushes every open document.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	docs := make([]*Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	m.docs = make(map[string]*Document)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, d := range docs {
		d.close(ctx)
	}
}

// Document returns the open document, loading its last-synced content from
// the store on first access.
func (m *Manager) Document(ctx context.Context, id string) (*Document, error) {
	m.mu.Lock()
	if d, ok := m.docs[id]; ok {
		d.touch()
		m.mu.Unlock()
		return d, nil
	}
	m.mu.Unlock()

	content, err := m.st.Content(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok { // lost the race, keep the winner
		d.touch()
		return d, nil
	}
	coal := coalesce.New(m.frag, m.rec, m.cfg.Managed, m.cfg.Debounce, m.log)
	coal.Configure(m.st, id)
	d := &Document{
		id:       id,
		mgr:      m,
		content:  content,
		coal:     coal,
		lastUsed: time.Now(),
	}
	m.docs[id] = d
	return d, nil
}

// Cleanup flushes and evicts documents idle past the TTL.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	var idle []*Document
	now := time.Now()
	for id, d := range m.docs {
		if now.Sub(d.idleSince()) > m.cfg.IdleTTL {
			idle = append(idle, d)
			delete(m.docs, id)
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, d := range idle {
		m.log.Info("evicting idle document", "doc_id", d.id)
		d.close(ctx)
	}
}

// Document is one open document.
type Document struct {
	id  string
	mgr *Manager

	mu         sync.Mutex
	content    string
	suppressed bool
	genTimer   *time.Timer
	lastUsed   time.Time

	coal *coalesce.Coalescer
}

// ID returns the document id.
func (d *Document) ID() string { return d.id }

// Content returns the current buffer.
func (d *Document) Content() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// SetContent replaces the buffer, feeds the coalescer, and schedules the
// generator pass on its longer settle timer.
func (d *Document) SetContent(content string) {
	d.mu.Lock()
	d.content = content
	d.lastUsed = time.Now()
	suppressed := d.suppressed
	if !suppressed {
		if d.genTimer != nil {
			d.genTimer.Stop()
		}
		d.genTimer = time.AfterFunc(d.mgr.cfg.GeneratorDebounce, d.runGenerators)
	}
	d.mu.Unlock()

	d.coal.ContentChanged(content)
}

// SetSuppressed gives a structural drag exclusive access: no reconciliation
// and no generator pass may run until the caller clears the flag and forces
// a flush.
func (d *Document) SetSuppressed(v bool) {
	d.mu.Lock()
	d.suppressed = v
	if v && d.genTimer != nil {
		d.genTimer.Stop()
		d.genTimer = nil
	}
	d.mu.Unlock()
	d.coal.SetSuppressed(v)
}

// Flush runs any pending reconciliation synchronously.
func (d *Document) Flush(ctx context.Context) error {
	return d.coal.Flush(ctx)
}

// State exposes the coalescer state for observability.
func (d *Document) State() coalesce.State { return d.coal.State() }

// Fragments parses the current buffer with the managed carve-out applied.
func (d *Document) Fragments() ([]fragment.Fragment, []managed.Region) {
	content := d.Content()
	frags := d.mgr.frag.Parse(content)
	return managed.Carve(content, frags, d.mgr.cfg.Managed)
}

// runGenerators re-derives the managed regions and feeds any change back
// into the buffer as an ordinary edit. The second pass over its own output
// is a no-op, which keeps the feedback loop bounded.
func (d *Document) runGenerators() {
	d.mu.Lock()
	if d.suppressed {
		d.mu.Unlock()
		return
	}
	content := d.content
	d.mu.Unlock()

	next, changed := generate.Run(content, d.mgr.frag, d.mgr.cfg.Managed, d.mgr.gens)
	if !changed {
		return
	}
	d.mu.Lock()
	stale := d.content != content
	d.mu.Unlock()
	if stale {
		// The user kept typing; the rescheduled timer will catch up.
		return
	}
	d.mgr.log.Debug("generator pass rewrote managed regions", "doc_id", d.id)
	d.SetContent(next)
}

func (d *Document) touch() {
	d.mu.Lock()
	d.lastUsed = time.Now()
	d.mu.Unlock()
}

func (d *Document) idleSince() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastUsed
}

func (d *Document) close(ctx context.Context) {
	d.mu.Lock()
	if d.genTimer != nil {
		d.genTimer.Stop()
		d.genTimer = nil
	}
	d.mu.Unlock()
	if err := d.coal.Flush(ctx); err != nil {
		d.mgr.log.Error("flush on close failed", "doc_id", d.id, "error", err)
	}
	d.coal.Reset()
}
