// Package tracker keeps a per-session, in-memory collection of records
// consistent with the remote store under optimistic local mutation.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Record is the minimal contract a tracked entity must satisfy.
type Record interface {
	Key() string
	Owner() string
}

// RemoteStore is the narrow persistence surface a tracker writes through.
// Insert returns the canonical row so store-assigned identities replace
// locally generated ones.
type RemoteStore[R Record] interface {
	List(ctx context.Context) ([]R, error)
	Insert(ctx context.Context, record R) (R, error)
	Update(ctx context.Context, record R) error
	Delete(ctx context.Context, id string) error
}

// State describes where a record sits in its write lifecycle.
type State int

const (
	StateClean State = iota
	StatePendingWrite
	StateReverting
)

func (s State) String() string {
	switch s {
	case StatePendingWrite:
		return "PENDING_WRITE"
	case StateReverting:
		return "REVERTING"
	default:
		return "CLEAN"
	}
}

// Hooks receive record deltas after the remote write succeeds. Both are
// optional; notification rules plug in here.
type Hooks[R Record] struct {
	RecordCreated func(ctx context.Context, record R)
	RecordUpdated func(ctx context.Context, old, updated R)
}

// Tracker holds the collection for one session. All exported methods are
// safe for concurrent use; the mutex is never held across a remote call.
type Tracker[R Record] struct {
	remote RemoteStore[R]
	hooks  Hooks[R]

	mu      sync.Mutex
	records []R
	states  map[string]State
	loading bool
	gen     uint64
	openID  string
}

func New[R Record](remote RemoteStore[R], hooks Hooks[R]) *Tracker[R] {
	return &Tracker[R]{
		remote: remote,
		hooks:  hooks,
		states: make(map[string]State),
	}
}

// Load fetches the full collection from the remote store. The loading flag
// is raised only while the collection is empty so refreshes do not flicker.
// A load that was superseded by a newer load or a local mutation publishes
// nothing; the generation token decides, not arrival order.
func (t *Tracker[R]) Load(ctx context.Context) error {
	t.mu.Lock()
	t.gen++
	token := t.gen
	if len(t.records) == 0 {
		t.loading = true
	}
	t.mu.Unlock()

	rows, err := t.remote.List(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		log.Printf("tracker: load failed, keeping prior collection: %v", err)
		return fmt.Errorf("load records: %w", err)
	}
	if token != t.gen {
		return nil
	}
	t.records = rows
	t.states = make(map[string]State, len(rows))
	return nil
}

// Create inserts the record at the head of the collection before the remote
// write. On remote failure the local entry stays put, the error is surfaced
// and a reconciling reload runs; availability of the just-created item wins
// over strict consistency.
func (t *Tracker[R]) Create(ctx context.Context, record R) error {
	key := record.Key()

	t.mu.Lock()
	t.gen++
	t.records = append([]R{record}, t.records...)
	t.states[key] = StatePendingWrite
	t.mu.Unlock()

	canonical, err := t.remote.Insert(ctx, record)
	if err != nil {
		t.reload(ctx)
		return fmt.Errorf("create record: %w", err)
	}

	t.mu.Lock()
	t.gen++
	for i := range t.records {
		if t.records[i].Key() == key {
			t.records[i] = canonical
			break
		}
	}
	delete(t.states, key)
	t.states[canonical.Key()] = StateClean
	if t.openID == key {
		t.openID = canonical.Key()
	}
	t.mu.Unlock()

	if t.hooks.RecordCreated != nil {
		t.hooks.RecordCreated(ctx, canonical)
	}
	return nil
}

// Update replaces the local entry immediately, then writes the mutable
// fields remotely. On failure the record enters Reverting and a reload
// serves as the rollback.
func (t *Tracker[R]) Update(ctx context.Context, record R) error {
	key := record.Key()

	t.mu.Lock()
	idx := -1
	for i := range t.records {
		if t.records[i].Key() == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return fmt.Errorf("update record: unknown id %q", key)
	}
	old := t.records[idx]
	t.gen++
	t.records[idx] = record
	t.states[key] = StatePendingWrite
	t.mu.Unlock()

	if err := t.remote.Update(ctx, record); err != nil {
		t.mu.Lock()
		t.states[key] = StateReverting
		t.mu.Unlock()
		t.reload(ctx)
		return fmt.Errorf("update record: %w", err)
	}

	t.mu.Lock()
	t.states[key] = StateClean
	t.mu.Unlock()

	if t.hooks.RecordUpdated != nil {
		t.hooks.RecordUpdated(ctx, old, record)
	}
	return nil
}

// Remove deletes remotely first and purges the local entry only on success.
// A failed delete leaves the collection and the open detail untouched.
func (t *Tracker[R]) Remove(ctx context.Context, id string) error {
	if err := t.remote.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	kept := t.records[:0]
	for _, r := range t.records {
		if r.Key() != id {
			kept = append(kept, r)
		}
	}
	t.records = kept
	delete(t.states, id)
	if t.openID == id {
		t.openID = ""
	}
	return nil
}

// Visible filters the collection for a viewer. Elevated roles see every
// record, everyone else only their own. The underlying collection is never
// mutated.
func (t *Tracker[R]) Visible(identity string, elevated bool) []R {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]R, 0, len(t.records))
	for _, r := range t.records {
		if elevated || r.Owner() == identity {
			out = append(out, r)
		}
	}
	return out
}

// Get returns a record by id regardless of viewer; callers apply Visible
// semantics themselves when serving reads.
func (t *Tracker[R]) Get(id string) (R, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		if r.Key() == id {
			return r, true
		}
	}
	var zero R
	return zero, false
}

// State reports a record's write state. Unknown ids are Clean.
func (t *Tracker[R]) State(id string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[id]
}

// Loading reports whether an initial load is in flight.
func (t *Tracker[R]) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// SetOpen records which detail view the session has open.
func (t *Tracker[R]) SetOpen(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openID = id
}

// OpenID returns the id of the open detail view, empty when none.
func (t *Tracker[R]) OpenID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openID
}

// reload is the reconciling re-fetch after a failed write. Best effort.
func (t *Tracker[R]) reload(ctx context.Context) {
	if err := t.Load(ctx); err != nil {
		log.Printf("tracker: reconciling reload failed: %v", err)
	}
}
