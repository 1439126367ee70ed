package txn

import (
	"context"
	"errors"

	"github.com/roach88/noderepo/internal/ir"
)

// ErrCompleted is returned when a finished transaction is used again.
var ErrCompleted = errors.New("transaction already completed")

// Hook runs before the transaction commits.
type Hook func(ctx context.Context) error

type hookEntry struct {
	key any
	fn  Hook
}

// Transaction is the per-operation unit of work.
type Transaction struct {
	id        string
	resources map[any]any
	hooks     []hookEntry
	queued    map[any]bool
	pending   map[ir.NodeRef]int
	done      bool
}

// New creates a transaction with the given id.
func New(id string) *Transaction {
	return &Transaction{
		id:        id,
		resources: make(map[any]any),
		queued:    make(map[any]bool),
		pending:   make(map[ir.NodeRef]int),
	}
}

// ID returns the transaction id.
func (t *Transaction) ID() string {
	return t.id
}

// Resource returns the value bound to key.
func (t *Transaction) Resource(key any) (any, bool) {
	v, ok := t.resources[key]
	return v, ok
}

// SetResource binds v to key for the rest of the transaction.
func (t *Transaction) SetResource(key, v any) {
	t.resources[key] = v
}

// Bind returns the resource bound to key, creating it with create on first use.
func Bind[T any](t *Transaction, key any, create func() T) T {
	if v, ok := t.resources[key]; ok {
		return v.(T)
	}
	v := create()
	t.resources[key] = v
	return v
}

// OnBeforeCommit queues fn to run before commit. A hook already queued
// under the same key is not queued twice; once it has run, the key may be
// queued again.
func (t *Transaction) OnBeforeCommit(key any, fn Hook) {
	if t.queued[key] {
		return
	}
	t.queued[key] = true
	t.hooks = append(t.hooks, hookEntry{key: key, fn: fn})
}

// RunBeforeCommit runs queued hooks in order until none remain. Hooks may
// queue further hooks. The first error stops the run.
func (t *Transaction) RunBeforeCommit(ctx context.Context) error {
	if t.done {
		return ErrCompleted
	}
	for len(t.hooks) > 0 {
		h := t.hooks[0]
		t.hooks = t.hooks[1:]
		delete(t.queued, h.key)
		if err := h.fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Complete marks the transaction finished. Pending hooks are discarded.
func (t *Transaction) Complete() {
	t.done = true
	t.hooks = nil
	clear(t.queued)
}

// Done reports whether Complete has been called.
func (t *Transaction) Done() bool {
	return t.done
}

// MarkPendingDeletion records that ref's delete has started. Calls nest.
func (t *Transaction) MarkPendingDeletion(ref ir.NodeRef) {
	t.pending[ref]++
}

// ClearPendingDeletion undoes one MarkPendingDeletion.
func (t *Transaction) ClearPendingDeletion(ref ir.NodeRef) {
	if t.pending[ref] <= 1 {
		delete(t.pending, ref)
		return
	}
	t.pending[ref]--
}

// IsPendingDeletion reports whether ref is being deleted.
func (t *Transaction) IsPendingDeletion(ref ir.NodeRef) bool {
	return t.pending[ref] > 0
}

type contextKey struct{}

// WithTransaction returns a context carrying t.
func WithTransaction(ctx context.Context, t *Transaction) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the transaction carried by ctx.
func FromContext(ctx context.Context) (*Transaction, bool) {
	t, ok := ctx.Value(contextKey{}).(*Transaction)
	return t, ok && t != nil
}
