package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/policy"
)

func TestCreateStore(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateStore(f.ctx, workspace)
	requireCode(t, err, ErrCodeStoreExists)

	root, err := f.svc.RootNode(f.ctx, workspace)
	require.NoError(t, err)
	assert.Equal(t, f.root, root)
	typ, err := f.svc.Type(f.ctx, root)
	require.NoError(t, err)
	assert.Equal(t, "store_root", typ.Local)
	assert.Len(t, f.aspects(t, root), 1)

	_, err = f.svc.RootNode(f.ctx, otherStore)
	requireCode(t, err, ErrCodeInvalidStoreRef)

	_, err = f.svc.CreateStore(f.ctx, otherStore)
	require.NoError(t, err)
	stores, err := f.svc.Stores(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.StoreRef{workspace, otherStore}, stores)
	ok, err := f.svc.StoreExists(f.ctx, archiveStore)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInTransaction_RollsBackOnError(t *testing.T) {
	f := newFixture(t)
	var created ir.NodeRef

	err := f.svc.InTransaction(f.ctx, func(ctx context.Context) error {
		a, err := f.svc.CreateNode(ctx, f.root, assocParts, cm("x"), typeDoc, nil)
		if err != nil {
			return err
		}
		created = a.Child
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.False(t, f.exists(t, created))
}

func TestInTransaction_CommitBehavioursRunOnceBeforeCommit(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, nil)

	inBody := false
	var calls []bool
	b := policy.NewBehaviour("commit", policy.TransactionCommit, func(context.Context, policy.Event) error {
		calls = append(calls, inBody)
		return nil
	})
	require.NoError(t, f.classes.Bind(policy.OnUpdateNode, typeDoc, b))

	err := f.svc.InTransaction(f.ctx, func(ctx context.Context) error {
		inBody = true
		defer func() { inBody = false }()
		if err := f.svc.SetProperty(ctx, n, propCode, ir.Text("a")); err != nil {
			return err
		}
		return f.svc.SetProperty(ctx, n, propCode, ir.Text("b"))
	})
	require.NoError(t, err)

	assert.Equal(t, []bool{false}, calls, "once, after the body returned")
	assert.Equal(t, ir.Text("b"), f.props(t, n)[propCode])
}

func TestInTransaction_CommitBehaviourErrorUnchanged(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, nil)
	b := policy.NewBehaviour("veto", policy.TransactionCommit, func(context.Context, policy.Event) error {
		return assert.AnError
	})
	require.NoError(t, f.classes.Bind(policy.OnUpdateNode, typeDoc, b))

	err := f.svc.SetProperty(f.ctx, n, propCode, ir.Text("a"))
	assert.Same(t, assert.AnError, err)
	assert.Nil(t, f.props(t, n)[propCode], "rolled back")
}

func TestInTransaction_FirstEvent(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, nil)

	calls := 0
	b := policy.NewBehaviour("first", policy.FirstEvent, func(context.Context, policy.Event) error {
		calls++
		return nil
	})
	require.NoError(t, f.classes.Bind(policy.BeforeUpdateNode, typeDoc, b))

	err := f.svc.InTransaction(f.ctx, func(ctx context.Context) error {
		for i := range 3 {
			if err := f.svc.SetProperty(ctx, n, propStamp, ir.Int(int64(i))); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, f.svc.SetProperty(f.ctx, n, propCode, ir.Text("x")))
	assert.Equal(t, 2, calls, "a new transaction fires again")
}

func TestNodeClasses(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeRecord, nil)

	err := f.svc.InTransaction(f.ctx, func(ctx context.Context) error {
		c, ok, err := f.svc.NodeClasses(ctx, n)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, typeRecord, c.Type)
		assert.Equal(t, []ir.QName{aspAudited, aspStamped}, c.Aspects)

		_, ok, err = f.svc.NodeClasses(ctx, ir.NewNodeRef(workspace, "missing"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	_, _, err = f.svc.NodeClasses(f.ctx, n)
	assert.Error(t, err, "outside a transaction")
}
