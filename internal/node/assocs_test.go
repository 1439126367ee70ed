package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
)

func TestAddChild_Secondary(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, f.root, typeDoc, nil)
	f.traceAll(t)

	link, err := f.svc.AddChild(f.ctx, a, b, dictionary.AssocChildren, cm("link"))
	require.NoError(t, err)

	assert.False(t, link.Primary)
	assert.Equal(t, []string{
		"BeforeUpdateNode n2",
		"BeforeCreateChildAssociation n2 n3",
		"OnCreateChildAssociation n2 n3",
		"OnUpdateNode n2",
	}, f.trace)

	parents, err := f.svc.ParentAssocs(f.ctx, b)
	require.NoError(t, err)
	require.Len(t, parents, 2)
	assert.True(t, parents[0].Primary)
	assert.Equal(t, f.root, parents[0].Parent)
	assert.Equal(t, a, parents[1].Parent)

	byType, err := f.svc.ChildAssocsByType(f.ctx, a, dictionary.AssocChildren)
	require.NoError(t, err)
	assert.Len(t, byType, 1)
	byType, err = f.svc.ChildAssocsByType(f.ctx, a, dictionary.AssocContains)
	require.NoError(t, err)
	assert.Empty(t, byType)
}

func TestAddChild_RejectsCycles(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, a, typeContainer, nil)
	c := f.child(t, f.root, typeContainer, nil)
	_, err := f.svc.AddChild(f.ctx, c, a, dictionary.AssocChildren, cm("link"))
	require.NoError(t, err)

	_, err = f.svc.AddChild(f.ctx, b, a, dictionary.AssocChildren, cm("up"))
	requireCode(t, err, ErrCodeCyclicChildRelationship)

	_, err = f.svc.AddChild(f.ctx, b, c, dictionary.AssocChildren, cm("up"))
	requireCode(t, err, ErrCodeCyclicChildRelationship)

	_, err = f.svc.AddChild(f.ctx, a, a, dictionary.AssocChildren, cm("self"))
	requireCode(t, err, ErrCodeCyclicChildRelationship)
}

func TestAddChild_UniqueTypeReturnsExisting(t *testing.T) {
	f := newFixture(t)
	folder := f.named(t, f.root, dictionary.TypeFolder, "docs")
	doc := f.named(t, f.root, typeDoc, "plan")

	first, err := f.svc.AddChild(f.ctx, folder, doc, dictionary.AssocContains, cm("plan"))
	require.NoError(t, err)
	second, err := f.svc.AddChild(f.ctx, folder, doc, dictionary.AssocContains, cm("plan"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	kids, err := f.svc.ChildAssocs(f.ctx, folder)
	require.NoError(t, err)
	assert.Len(t, kids, 1)

	clash := f.child(t, f.root, typeDoc, ir.PropertyMap{dictionary.PropName: ir.Text("PLAN")})
	_, err = f.svc.AddChild(f.ctx, folder, clash, dictionary.AssocContains, cm("other"))
	requireCode(t, err, ErrCodeDuplicateChildNodeName)

	// The qname alone does not make an edge a duplicate.
	memo := f.named(t, f.root, typeDoc, "memo")
	third, err := f.svc.AddChild(f.ctx, folder, memo, dictionary.AssocContains, cm("plan"))
	require.NoError(t, err)
	assert.Equal(t, memo, third.Child)
	kids, err = f.svc.ChildAssocs(f.ctx, folder)
	require.NoError(t, err)
	assert.Len(t, kids, 2)
}

func TestRemoveSecondaryChildAssociation(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, f.root, typeDoc, nil)
	link, err := f.svc.AddChild(f.ctx, a, b, dictionary.AssocChildren, cm("link"))
	require.NoError(t, err)

	removed, err := f.svc.RemoveSecondaryChildAssociation(f.ctx, link)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.svc.RemoveSecondaryChildAssociation(f.ctx, link)
	require.NoError(t, err)
	assert.False(t, removed)

	primary, err := f.svc.PrimaryParent(f.ctx, b)
	require.NoError(t, err)
	_, err = f.svc.RemoveSecondaryChildAssociation(f.ctx, primary)
	requireCode(t, err, ErrCodeInvalidAssociation)
	assert.True(t, f.exists(t, b))
}

func TestRemoveChild(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeContainer, nil)
	b := f.child(t, a, typeDoc, nil)
	c := f.child(t, f.root, typeDoc, nil)
	_, err := f.svc.AddChild(f.ctx, a, c, dictionary.AssocChildren, cm("link"))
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveChild(f.ctx, a, c))
	assert.True(t, f.exists(t, c), "secondary child is unlinked only")

	require.NoError(t, f.svc.RemoveChild(f.ctx, a, b))
	assert.False(t, f.exists(t, b), "primary child is deleted")
}

func TestPrimaryParent_Root(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.PrimaryParent(f.ctx, f.root)
	require.NoError(t, err)
	assert.Equal(t, ir.ChildAssocRef{Child: f.root}, a)
}

func TestPeerAssociations(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeDoc, nil)
	b := f.child(t, f.root, typeDoc, nil)
	f.traceAll(t)

	ab, err := f.svc.CreateAssociation(f.ctx, a, b, assocLinks)
	require.NoError(t, err)
	_, err = f.svc.CreateAssociation(f.ctx, b, a, assocLinks)
	require.NoError(t, err, "peer associations may cycle")
	_, err = f.svc.CreateAssociation(f.ctx, a, a, assocLinks)
	require.NoError(t, err)

	_, err = f.svc.CreateAssociation(f.ctx, a, b, assocLinks)
	requireCode(t, err, ErrCodeAssociationExists)
	_, err = f.svc.CreateAssociation(f.ctx, a, b, dictionary.AssocChildren)
	requireCode(t, err, ErrCodeInvalidAssociation)

	assert.Contains(t, f.aspects(t, a), aspLinked)
	assert.Contains(t, f.trace, "OnCreateAssociation n2 n3")

	sources, err := f.svc.SourceAssocs(f.ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []ir.AssocRef{ab}, sources)

	require.NoError(t, f.svc.RemoveAssociation(f.ctx, ab))
	require.NoError(t, f.svc.RemoveAssociation(f.ctx, ab))
	targets, err := f.svc.TargetAssocs(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []ir.AssocRef{{Source: a, Target: a, Type: assocLinks}}, targets)
}

func TestDeleteNode_SelfAssociationRemovedOnce(t *testing.T) {
	f := newFixture(t)
	a := f.child(t, f.root, typeDoc, nil)
	_, err := f.svc.CreateAssociation(f.ctx, a, a, assocLinks)
	require.NoError(t, err)
	f.traceAll(t)

	require.NoError(t, f.svc.DeleteNode(f.ctx, a))

	assert.Equal(t, []string{
		"BeforeDeleteNode n2",
		"BeforeDeleteAssociation n2 n2",
		"OnDeleteAssociation n2 n2",
		"OnDeleteNode n2",
	}, f.trace)
}
