package policy

import (
	"context"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/txn"
)

// firingKey identifies one (behaviour, event arguments) pair.
type firingKey struct {
	behaviour *Behaviour
	args      string
}

func keyOf(b *Behaviour, ev Event) (firingKey, error) {
	args, err := ir.ExecutionKey(b.ID, string(ev.Policy()), ev.Args())
	if err != nil {
		return firingKey{}, err
	}
	return firingKey{behaviour: b, args: args}, nil
}

// firedLog records FirstEvent firings for one transaction.
type firedLog struct {
	fired map[firingKey]bool
}

type firedLogKey struct{}

func newFiredLog() *firedLog {
	return &firedLog{fired: make(map[firingKey]bool)}
}

// firstFiring reports whether b has not yet fired for ev in the
// transaction, and records that it now has.
func firstFiring(ctx context.Context, b *Behaviour, ev Event) (bool, error) {
	t, ok := txn.FromContext(ctx)
	if !ok {
		return false, noTransaction("first_event behaviour " + b.ID)
	}
	key, err := keyOf(b, ev)
	if err != nil {
		return false, err
	}
	log := txn.Bind(t, firedLogKey{}, newFiredLog)
	if log.fired[key] {
		return false, nil
	}
	log.fired[key] = true
	return true, nil
}

type queuedFiring struct {
	behaviour *Behaviour
	event     Event
}

// commitQueue holds TransactionCommit firings in arrival order. A
// (behaviour, arguments) pair is queued at most once per transaction.
type commitQueue struct {
	items []queuedFiring
	seen  map[firingKey]bool
}

type commitQueueKey struct{}

func newCommitQueue() *commitQueue {
	return &commitQueue{seen: make(map[firingKey]bool)}
}

func (q *commitQueue) pop() (queuedFiring, bool) {
	if len(q.items) == 0 {
		return queuedFiring{}, false
	}
	item := q.items[0]
	q.items[0] = queuedFiring{}
	q.items = q.items[1:]
	return item, true
}

// enqueueCommit queues b for ev and makes sure the transaction drains the
// queue before commit. Firings queued while draining run in the same pass.
func (d *Dispatcher) enqueueCommit(ctx context.Context, b *Behaviour, ev Event) error {
	t, ok := txn.FromContext(ctx)
	if !ok {
		return noTransaction("transaction_commit behaviour " + b.ID)
	}
	key, err := keyOf(b, ev)
	if err != nil {
		return err
	}
	q := txn.Bind(t, commitQueueKey{}, newCommitQueue)
	if q.seen[key] {
		return nil
	}
	q.seen[key] = true
	q.items = append(q.items, queuedFiring{behaviour: b, event: ev})
	t.OnBeforeCommit(commitQueueKey{}, func(ctx context.Context) error {
		for {
			item, ok := q.pop()
			if !ok {
				return nil
			}
			if err := d.run(ctx, item.behaviour, item.event); err != nil {
				return err
			}
		}
	})
	return nil
}
