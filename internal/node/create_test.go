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

func TestCreateNode_EventTrace(t *testing.T) {
	f := newFixture(t)
	f.traceAll(t)

	a, err := f.svc.CreateNode(f.ctx, f.root, dictionary.AssocChildren, cm("r"), typeRecord,
		ir.PropertyMap{propCode: ir.Text("x")})
	require.NoError(t, err)

	assert.Equal(t, "n2", a.Child.ID)
	assert.True(t, a.Primary)
	assert.Equal(t, f.root, a.Parent)
	assertGoldenTrace(t, "create_node", f.trace)
}

func TestCreateNode_ComposesMandatoryAspectsAndDefaults(t *testing.T) {
	f := newFixture(t)

	n := f.child(t, f.root, typeRecord, ir.PropertyMap{propCode: ir.Text("x")})

	assert.Equal(t, []ir.QName{aspAudited, aspStamped}, f.aspects(t, n))
	assert.Equal(t, ir.PropertyMap{
		propCode:  ir.Text("x"),
		propAudit: ir.Text("system"),
		propStamp: ir.Int(0),
	}, f.props(t, n))
}

func TestCreateNode_GivenPropertiesBeatDefaults(t *testing.T) {
	f := newFixture(t)

	n := f.child(t, f.root, typeRecord, ir.PropertyMap{propAudit: ir.Text("alice")})

	assert.Equal(t, ir.Text("alice"), f.props(t, n)[propAudit])
}

func TestCreateNode_PropertyImpliesAspect(t *testing.T) {
	f := newFixture(t)

	n := f.child(t, f.root, typeDoc, ir.PropertyMap{propTitle: ir.Text("Plan")})

	assert.Equal(t, []ir.QName{aspTitled}, f.aspects(t, n))
	assert.Equal(t, ir.PropertyMap{
		propTitle: ir.Text("Plan"),
		propDesc:  ir.Text("None"),
	}, f.props(t, n))
}

func TestCreateNode_Errors(t *testing.T) {
	f := newFixture(t)
	missing := ir.NewNodeRef(workspace, "missing")

	_, err := f.svc.CreateNode(f.ctx, f.root, dictionary.AssocChildren, cm("x"), aspTitled, nil)
	requireCode(t, err, ErrCodeInvalidType)

	_, err = f.svc.CreateNode(f.ctx, f.root, assocLinks, cm("x"), typeDoc, nil)
	requireCode(t, err, ErrCodeInvalidAssociation)

	_, err = f.svc.CreateNode(f.ctx, missing, dictionary.AssocChildren, cm("x"), typeDoc, nil)
	requireCode(t, err, ErrCodeInvalidNodeRef)
	assert.True(t, IsInvalidNodeRef(err))
}

func TestCreateNode_DuplicateName(t *testing.T) {
	f := newFixture(t)
	folder := f.named(t, f.root, dictionary.TypeFolder, "docs")
	f.named(t, folder, typeDoc, "Plan")
	f.traceAll(t)

	_, err := f.svc.CreateNode(f.ctx, folder, dictionary.AssocContains, cm("plan"), typeDoc,
		ir.PropertyMap{dictionary.PropName: ir.Text("PLAN")})
	requireCode(t, err, ErrCodeDuplicateChildNodeName)
	assert.Empty(t, f.trace, "no events for a rejected create")

	kids, err := f.svc.ChildAssocs(f.ctx, folder)
	require.NoError(t, err)
	assert.Len(t, kids, 1)
}

func TestCreateNode_DuplicateNamesAllowedWhereDeclared(t *testing.T) {
	f := newFixture(t)
	props := ir.PropertyMap{dictionary.PropName: ir.Text("same")}

	f.child(t, f.root, typeDoc, props)
	f.child(t, f.root, typeDoc, props)

	kids, err := f.svc.ChildAssocs(f.ctx, f.root)
	require.NoError(t, err)
	assert.Len(t, kids, 2)
}

func TestCreateNode_BehaviourErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	boom := assert.AnError
	f.bind(t, policy.OnCreateNode, typeDoc, func(context.Context, policy.Event) error {
		return boom
	})

	_, err := f.svc.CreateNode(f.ctx, f.root, dictionary.AssocChildren, cm("x"), typeDoc, nil)
	require.ErrorIs(t, err, boom)

	kids, err := f.svc.ChildAssocs(f.ctx, f.root)
	require.NoError(t, err)
	assert.Empty(t, kids)
}

func TestSetType(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, nil)
	f.traceAll(t)

	require.NoError(t, f.svc.SetType(f.ctx, n, typeRecord))

	typ, err := f.svc.Type(f.ctx, n)
	require.NoError(t, err)
	assert.Equal(t, typeRecord, typ)
	assert.Equal(t, []ir.QName{aspAudited, aspStamped}, f.aspects(t, n))
	assert.Equal(t, []string{
		"BeforeUpdateNode n2",
		"BeforeAddAspect n2 test:audited",
		"OnAddAspect n2 test:audited",
		"BeforeAddAspect n2 test:stamped",
		"OnAddAspect n2 test:stamped",
		"OnSetNodeType n2",
		"OnUpdateNode n2",
		"OnUpdateProperties n2",
	}, f.trace)

	f.resetTrace()
	require.NoError(t, f.svc.SetType(f.ctx, n, typeRecord))
	assert.Empty(t, f.trace)

	requireCode(t, f.svc.SetType(f.ctx, n, aspTitled), ErrCodeInvalidType)
}
