package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/policy"
)

func TestDeleteNode_CascadesPrimaryChildrenOnly(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, a, typeContainer, nil)
	c := f.child(t, b, typeContainer, nil)
	d := f.child(t, c, typeContainer, nil)
	e := f.child(t, f.root, typeContainer, nil)
	_, err := f.svc.AddChild(f.ctx, e, c, dictionary.AssocChildren, cm("link"))
	require.NoError(t, err)
	f.traceAll(t)

	require.NoError(t, f.svc.DeleteNode(f.ctx, a))

	for _, n := range []ir.NodeRef{a, b, c, d} {
		assert.False(t, f.exists(t, n), n.ID)
	}
	assert.True(t, f.exists(t, e), "secondary parent survives")
	kids, err := f.svc.ChildAssocs(f.ctx, e)
	require.NoError(t, err)
	assert.Empty(t, kids)
	assertGoldenTrace(t, "delete_cascade", f.trace)
}

func TestDeleteNode_RemovesPeerAssociations(t *testing.T) {
	f := newFixture(t)
	src := f.child(t, f.root, typeDoc, nil)
	dst := f.child(t, f.root, typeDoc, nil)
	_, err := f.svc.CreateAssociation(f.ctx, src, dst, assocLinks)
	require.NoError(t, err)
	_, err = f.svc.CreateAssociation(f.ctx, dst, src, assocLinks)
	require.NoError(t, err)
	f.traceAll(t)

	require.NoError(t, f.svc.DeleteNode(f.ctx, dst))

	assert.True(t, f.exists(t, src))
	targets, err := f.svc.TargetAssocs(f.ctx, src)
	require.NoError(t, err)
	assert.Empty(t, targets)
	assert.Equal(t, []string{
		"BeforeDeleteNode n3",
		"BeforeDeleteAssociation n3 n2",
		"OnDeleteAssociation n3 n2",
		"BeforeDeleteAssociation n2 n3",
		"OnDeleteAssociation n2 n3",
		"OnDeleteNode n3",
	}, f.trace)
}

func TestDeleteNode_Root(t *testing.T) {
	f := newFixture(t)

	err := f.svc.DeleteNode(f.ctx, f.root)
	requireCode(t, err, ErrCodeRootNode)

	err = f.svc.DeleteNode(f.ctx, ir.NewNodeRef(workspace, "missing"))
	requireCode(t, err, ErrCodeInvalidNodeRef)
}

func TestDeleteNode_BehaviourErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, a, typeDoc, nil)
	f.bind(t, policy.OnDeleteNode, typeDoc, func(context.Context, policy.Event) error {
		return assert.AnError
	})

	err := f.svc.DeleteNode(f.ctx, a)
	require.ErrorIs(t, err, assert.AnError)

	assert.True(t, f.exists(t, a))
	assert.True(t, f.exists(t, b))
}

func TestDeleteNode_CreateUnderPendingSubtreeFails(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeDoc, nil)
	f.bind(t, policy.BeforeDeleteNode, typeDoc, func(ctx context.Context, ev policy.Event) error {
		_, err := f.svc.CreateNode(ctx, ev.Subject(), dictionary.AssocChildren, cm("late"), typeDoc, nil)
		return err
	})

	err := f.svc.DeleteNode(f.ctx, a)
	requireCode(t, err, ErrCodeSubtreePendingDeletion)
	assert.True(t, IsSubtreePendingDeletion(err))

	assert.True(t, f.exists(t, a), "the delete is aborted")
	kids, err := f.svc.ChildAssocs(f.ctx, a)
	require.NoError(t, err)
	assert.Empty(t, kids)
}

func TestDeleteNode_LinkUnderPendingSubtreeFails(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, a, typeDoc, nil)
	other := f.child(t, f.root, typeDoc, nil)
	f.bind(t, policy.BeforeDeleteNode, typeDoc, func(ctx context.Context, ev policy.Event) error {
		_, err := f.svc.AddChild(ctx, a, other, dictionary.AssocChildren, cm("late"))
		return err
	})

	err := f.svc.DeleteNode(f.ctx, a)
	requireCode(t, err, ErrCodeSubtreePendingDeletion)
	assert.True(t, f.exists(t, b))
}

func TestDeleteNode_MoveOutOfPendingSubtreeFails(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, a, typeDoc, nil)
	c := f.child(t, a, typeContainer, nil)
	x := f.child(t, f.root, typeContainer, nil)
	f.bind(t, policy.BeforeDeleteNode, typeDoc, func(ctx context.Context, _ policy.Event) error {
		_, err := f.svc.MoveNode(ctx, c, x, dictionary.AssocChildren, cm("escaped"))
		return err
	})

	err := f.svc.DeleteNode(f.ctx, a)
	requireCode(t, err, ErrCodeSubtreePendingDeletion)

	for _, n := range []ir.NodeRef{a, b, c, x} {
		assert.True(t, f.exists(t, n), n.ID)
	}
	parent, err := f.svc.PrimaryParent(f.ctx, c)
	require.NoError(t, err)
	assert.Equal(t, a, parent.Parent)
	kids, err := f.svc.ChildAssocs(f.ctx, x)
	require.NoError(t, err)
	assert.Empty(t, kids)
}

func TestMoveNode_PendingNodeFails(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeDoc, nil)
	x := f.child(t, f.root, typeContainer, nil)
	f.bind(t, policy.BeforeDeleteNode, typeDoc, func(ctx context.Context, ev policy.Event) error {
		_, err := f.svc.MoveNode(ctx, ev.Subject(), x, dictionary.AssocChildren, cm("escaped"))
		return err
	})

	err := f.svc.DeleteNode(f.ctx, a)
	requireCode(t, err, ErrCodeSubtreePendingDeletion)
	assert.True(t, f.exists(t, a))
}

func TestDeleteNode_NestedDeleteOfPendingNodeIsNoop(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, a, typeDoc, nil)
	calls := 0
	f.bind(t, policy.OnDeleteNode, typeDoc, func(ctx context.Context, _ policy.Event) error {
		calls++
		return f.svc.DeleteNode(ctx, a)
	})

	require.NoError(t, f.svc.DeleteNode(f.ctx, a))

	assert.Equal(t, 1, calls)
	assert.False(t, f.exists(t, a))
	assert.False(t, f.exists(t, b))
}

func TestDeleteNode_OnDeleteSeesSnapshotClasses(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, nil)
	require.NoError(t, f.svc.AddAspect(f.ctx, n, aspTitled, nil))

	var fired []policy.Event
	f.bind(t, policy.OnDeleteNode, aspTitled, func(_ context.Context, ev policy.Event) error {
		fired = append(fired, ev)
		return nil
	})

	require.NoError(t, f.svc.DeleteNode(f.ctx, n))

	require.Len(t, fired, 1)
	ev := fired[0].(policy.DeleteNodeEvent)
	assert.Equal(t, n, ev.Assoc.Child)
	assert.Equal(t, f.root, ev.Assoc.Parent)
	assert.False(t, ev.IsArchived)
}
