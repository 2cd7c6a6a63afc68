// Package coalesce schedules reconciliation for one open document. Content
// changes arrive at arbitrary frequency; a cancellable debounce timer is the
// only suspension point before the parse-reconcile-apply pipeline runs.
package coalesce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/fragmenter"
	"github.com/kerim/docsync/internal/managed"
	"github.com/kerim/docsync/internal/reconcile"
	"github.com/kerim/docsync/internal/store"
)

// State is the coalescer's scheduling state.
type State string

const (
	StateIdle        State = "idle"
	StatePendingSync State = "pending_sync"
	StateSyncing     State = "syncing"
)

// DefaultDebounce is the settle time for the primary document pipeline.
const DefaultDebounce = 300 * time.Millisecond

// Coalescer debounces content-changed events and drives the pipeline:
// fragmenter, managed-region carve-out, reconciler, store-apply. There is at
// most one in-flight reconciliation per document; a sync that starts is
// never cancelled, and further edits are picked up after it completes.
type Coalescer struct {
	frag     fragmenter.Interface
	rec      *reconcile.Reconciler
	mcfg     managed.Config
	debounce time.Duration
	log      *slog.Logger

	// syncMu serializes the actual pipeline runs (timer path and Flush).
	syncMu sync.Mutex

	mu           sync.Mutex
	state        State
	timer        *time.Timer
	st           store.Store
	docID        string
	pending      string
	pendingValid bool
	lastSynced   string
	haveBaseline bool
	suppressed   bool
}

// New builds an unconfigured coalescer. Configure must be called before
// content events are accepted.
func New(frag fragmenter.Interface, rec *reconcile.Reconciler, mcfg managed.Config, debounce time.Duration, log *slog.Logger) *Coalescer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coalescer{
		frag:     frag,
		rec:      rec,
		mcfg:     mcfg,
		debounce: debounce,
		log:      log,
		state:    StateIdle,
	}
}

// Configure binds the coalescer to a store and document and resets all
// scheduling state.
func (c *Coalescer) Configure(st store.Store, docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.st = st
	c.docID = docID
	c.state = StateIdle
	c.pending = ""
	c.pendingValid = false
	c.lastSynced = ""
	c.haveBaseline = false
	c.suppressed = false
}

// Reset detaches the coalescer from its document. Pending work is discarded;
// callers that care should Flush first.
func (c *Coalescer) Reset() {
	c.Configure(nil, "")
}

// State returns the current scheduling state.
func (c *Coalescer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetSuppressed toggles the structural-drag suppression flag. While set,
// every transition is a no-op; the caller is expected to clear it and force
// a flush once the drag completes.
func (c *Coalescer) SetSuppressed(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressed = v
	if v {
		c.stopTimerLocked()
		if c.state == StatePendingSync {
			c.state = StateIdle
		}
	}
}

// Suppressed reports the suppression flag.
func (c *Coalescer) Suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed
}

// ContentChanged records a new buffer snapshot and (re)starts the debounce
// timer. Content byte-identical to the last completed sync is ignored, which
// is what bounds the generator feedback loop.
func (c *Coalescer) ContentChanged(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suppressed || c.st == nil {
		return
	}
	if c.state == StateIdle && c.haveBaseline && content == c.lastSynced {
		return
	}
	c.pending = content
	c.pendingValid = true
	switch c.state {
	case StateIdle, StatePendingSync:
		c.stopTimerLocked()
		c.timer = time.AfterFunc(c.debounce, c.fire)
		c.state = StatePendingSync
	case StateSyncing:
		// Picked up by finish() once the in-flight sync completes; a started
		// store-apply is never interleaved with the next one.
	}
}

// Flush bypasses the debounce timer and reconciles synchronously. It waits
// for any in-flight sync, then syncs whatever is still pending. Flushing
// with nothing pending is a no-op, so it is idempotent with the timer path.
func (c *Coalescer) Flush(ctx context.Context) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	c.mu.Lock()
	if c.suppressed || c.st == nil {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	if !c.pendingValid || (c.haveBaseline && c.pending == c.lastSynced) {
		c.state = StateIdle
		c.mu.Unlock()
		return nil
	}
	content := c.pending
	c.state = StateSyncing
	c.mu.Unlock()

	err := c.runSync(ctx, content)
	c.finish(content, err)
	return err
}

// fire is the debounce timer callback. Cancellation (a stopped timer or a
// state change before syncMu is acquired) must not run a partial sync.
func (c *Coalescer) fire() {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	c.mu.Lock()
	if c.state != StatePendingSync || c.suppressed || c.st == nil {
		c.mu.Unlock()
		return
	}
	content := c.pending
	c.state = StateSyncing
	c.mu.Unlock()

	err := c.runSync(context.Background(), content)
	c.finish(content, err)
}

// finish records the outcome of a sync. On failure the baseline is left
// untouched so the next content event retries reconciliation from scratch.
func (c *Coalescer) finish(content string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Error("sync failed; will retry on next edit",
			"doc_id", c.docID,
			"error", err,
		)
		c.state = StateIdle
		return
	}
	c.lastSynced = content
	c.haveBaseline = true
	if c.pending == content {
		c.pendingValid = false
	}
	if c.pendingValid && !c.suppressed {
		// Content moved on while we were syncing: schedule the next round.
		c.timer = time.AfterFunc(c.debounce, c.fire)
		c.state = StatePendingSync
	} else {
		c.state = StateIdle
	}
}

// runSync is the pipeline: parse, carve, reconcile, apply.
func (c *Coalescer) runSync(ctx context.Context, content string) error {
	frags := c.frag.Parse(content)
	frags, regions := managed.Carve(content, frags, c.mcfg)

	prior, err := c.st.Nodes(ctx, c.docID)
	if err != nil {
		return err
	}

	// Managed nodes whose region is still present are withheld from the
	// ordinary pool; a managed node whose kind vanished (the user renamed
	// its heading) is demoted into the pool so its id survives as an
	// ordinary section. Demotion re-seats the node at the fragment now
	// covering its old offset, since its managed sortOrder is far outside
	// the proximity window.
	present := map[fragment.ManagedKind]bool{}
	for _, r := range regions {
		present[r.Kind] = true
	}
	var pool, managedPrior []fragment.Node
	for _, n := range prior {
		if n.Managed != fragment.ManagedNone {
			if present[n.Managed] {
				managedPrior = append(managedPrior, n)
				continue
			}
			n.SortOrder = demotedPosition(frags, n.Start)
		}
		pool = append(pool, n)
	}

	changes := c.rec.Reconcile(frags, pool)
	changes = append(changes, reconcile.RegionChanges(regions, managedPrior)...)

	if err := c.st.Apply(ctx, c.docID, content, changes); err != nil {
		return err
	}
	c.log.Debug("synced",
		"doc_id", c.docID,
		"fragments", len(frags),
		"regions", len(regions),
		"changes", len(changes),
	)
	return nil
}

// demotedPosition finds the position of the fragment covering a byte offset
// from the previous revision of the document.
func demotedPosition(frags []fragment.Fragment, start int) float64 {
	for _, f := range frags {
		if start < f.End {
			return float64(f.Position)
		}
	}
	if n := len(frags); n > 0 {
		return float64(n - 1)
	}
	return 0
}

func (c *Coalescer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
