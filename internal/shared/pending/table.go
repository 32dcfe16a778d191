package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrTimeout indicates no response arrived within the request window
	ErrTimeout = errors.New("request timed out")

	// ErrDuplicateID indicates an id collision between in-flight requests
	ErrDuplicateID = errors.New("duplicate request id")
)

// Outcome is the settlement of a single request
type Outcome struct {
	Result interface{}
	Err    error
}

type entry struct {
	id        string
	createdAt time.Time
	timer     *time.Timer
	done      chan Outcome
}

// Table correlates asynchronous responses to in-flight requests by id.
// Safe for concurrent use; every entry settles exactly once.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewTable creates an empty correlation table
func NewTable() *Table {
	return &Table{
		entries: make(map[string]*entry),
	}
}

// Register adds an in-flight request and arms its timeout.
// The returned channel receives exactly one Outcome.
func (t *Table) Register(id string, timeout time.Duration) (<-chan Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	e := &entry{
		id:        id,
		createdAt: time.Now(),
		done:      make(chan Outcome, 1),
	}

	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			t.Fail(id, fmt.Errorf("%w after %s", ErrTimeout, timeout))
		})
	}

	t.entries[id] = e
	return e.done, nil
}

// Resolve settles a request with a result.
// Returns false when the id is unknown (late or duplicate response).
func (t *Table) Resolve(id string, result interface{}) bool {
	e := t.remove(id)
	if e == nil {
		return false
	}
	e.done <- Outcome{Result: result}
	return true
}

// Fail settles a request with an error.
// Returns false when the id is unknown.
func (t *Table) Fail(id string, err error) bool {
	e := t.remove(id)
	if e == nil {
		return false
	}
	e.done <- Outcome{Err: err}
	return true
}

// RejectAll settles every in-flight request with err and empties the table.
// Returns the number of requests rejected.
func (t *Table) RejectAll(err error) int {
	t.mu.Lock()
	drained := make([]*entry, 0, len(t.entries))
	for id, e := range t.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		drained = append(drained, e)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	for _, e := range drained {
		e.done <- Outcome{Err: err}
	}
	return len(drained)
}

// Count reports the number of in-flight requests
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Wait blocks until the request settles or ctx is done.
// A ctx cancellation purges the entry so the table count stays accurate.
func (t *Table) Wait(ctx context.Context, id string, done <-chan Outcome) (interface{}, error) {
	select {
	case out := <-done:
		return out.Result, out.Err
	case <-ctx.Done():
		t.Fail(id, ctx.Err())
		// The entry settles on the buffered channel either way; drain it
		// so the Outcome does not linger.
		out := <-done
		return out.Result, out.Err
	}
}

// remove detaches an entry under lock and disarms its timer
func (t *Table) remove(id string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(t.entries, id)
	return e
}
