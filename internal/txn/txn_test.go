package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/ir"
)

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	tx := New("tx-1")
	ctx := WithTransaction(context.Background(), tx)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, tx, got)
	assert.Equal(t, "tx-1", got.ID())
}

func TestBindCreatesOnce(t *testing.T) {
	tx := New("tx")
	calls := 0
	mk := func() *[]string {
		calls++
		return &[]string{}
	}

	a := Bind(tx, "log", mk)
	*a = append(*a, "x")
	b := Bind(tx, "log", mk)

	assert.Equal(t, 1, calls)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"x"}, *b)
}

func TestRunBeforeCommitDrainsHooksQueuedByHooks(t *testing.T) {
	tx := New("tx")
	var order []string

	tx.OnBeforeCommit("a", func(ctx context.Context) error {
		order = append(order, "a")
		tx.OnBeforeCommit("b", func(ctx context.Context) error {
			order = append(order, "b")
			return nil
		})
		// Re-queue a after it has started running.
		tx.OnBeforeCommit("a", func(ctx context.Context) error {
			order = append(order, "a2")
			return nil
		})
		return nil
	})
	// Same key while still queued is ignored.
	tx.OnBeforeCommit("a", func(ctx context.Context) error {
		order = append(order, "ignored")
		return nil
	})

	require.NoError(t, tx.RunBeforeCommit(context.Background()))
	assert.Equal(t, []string{"a", "b", "a2"}, order)
}

func TestRunBeforeCommitStopsOnError(t *testing.T) {
	tx := New("tx")
	boom := errors.New("boom")
	ran := false
	tx.OnBeforeCommit("fail", func(ctx context.Context) error { return boom })
	tx.OnBeforeCommit("next", func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := tx.RunBeforeCommit(context.Background())
	assert.Same(t, boom, err, "hook errors are returned unchanged")
	assert.False(t, ran)
}

func TestCompleteDiscardsHooks(t *testing.T) {
	tx := New("tx")
	tx.OnBeforeCommit("a", func(ctx context.Context) error { return nil })
	tx.Complete()

	assert.True(t, tx.Done())
	assert.ErrorIs(t, tx.RunBeforeCommit(context.Background()), ErrCompleted)
}

func TestPendingDeletionNests(t *testing.T) {
	tx := New("tx")
	ref := ir.NodeRef{Store: ir.NewStoreRef(ir.ProtocolWorkspace, "main"), ID: "n1"}

	assert.False(t, tx.IsPendingDeletion(ref))
	tx.MarkPendingDeletion(ref)
	tx.MarkPendingDeletion(ref)
	tx.ClearPendingDeletion(ref)
	assert.True(t, tx.IsPendingDeletion(ref))
	tx.ClearPendingDeletion(ref)
	assert.False(t, tx.IsPendingDeletion(ref))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7GeneratorSortable(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
