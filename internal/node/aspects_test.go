package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/ir"
)

func TestAspectDefaults_RemoveAndReAdd(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeContainer, nil)
	defaults := ir.PropertyMap{propTitle: ir.Text("Untitled"), propDesc: ir.Text("None")}

	require.NoError(t, f.svc.AddAspect(f.ctx, n, aspTitled, nil))
	assert.Equal(t, defaults, f.props(t, n))

	require.NoError(t, f.svc.AddProperties(f.ctx, n, ir.PropertyMap{
		propTitle: ir.Text("X"),
		propDesc:  ir.Text("Y"),
	}))
	require.NoError(t, f.svc.AddAspect(f.ctx, n, aspTitled, nil))
	assert.Equal(t, ir.Text("X"), f.props(t, n)[propTitle], "re-adding keeps explicit values")

	require.NoError(t, f.svc.RemoveAspect(f.ctx, n, aspTitled))
	assert.Empty(t, f.props(t, n))
	assert.Empty(t, f.aspects(t, n))

	require.NoError(t, f.svc.AddAspect(f.ctx, n, aspTitled, nil))
	assert.Equal(t, defaults, f.props(t, n))
}

func TestAspectDefaults_ExplicitValueWinsEitherOrder(t *testing.T) {
	f := newFixture(t)

	t.Run("property first", func(t *testing.T) {
		n := f.child(t, f.root, typeDoc, nil)
		require.NoError(t, f.svc.SetProperty(f.ctx, n, propTitle, ir.Text("Z")))

		assert.Equal(t, []ir.QName{aspTitled}, f.aspects(t, n))
		assert.Equal(t, ir.Text("Z"), f.props(t, n)[propTitle])
		assert.Equal(t, ir.Text("None"), f.props(t, n)[propDesc])
	})

	t.Run("with the aspect", func(t *testing.T) {
		n := f.child(t, f.root, typeDoc, nil)
		require.NoError(t, f.svc.AddAspect(f.ctx, n, aspTitled, ir.PropertyMap{propTitle: ir.Text("Z")}))

		assert.Equal(t, ir.Text("Z"), f.props(t, n)[propTitle])
		assert.Equal(t, ir.Text("None"), f.props(t, n)[propDesc])
	})
}

func TestAddAspect_MandatoryCycleTerminates(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, nil)
	f.traceAll(t)

	require.NoError(t, f.svc.AddAspect(f.ctx, n, aspAudited, nil))

	assert.Equal(t, []ir.QName{aspAudited, aspStamped}, f.aspects(t, n))
	assert.Equal(t, []string{
		"BeforeUpdateNode n2",
		"BeforeAddAspect n2 test:audited",
		"OnAddAspect n2 test:audited",
		"BeforeAddAspect n2 test:stamped",
		"OnAddAspect n2 test:stamped",
		"OnUpdateNode n2",
		"OnUpdateProperties n2",
	}, f.trace)

	f.resetTrace()
	require.NoError(t, f.svc.AddAspect(f.ctx, n, aspStamped, nil))
	assert.Empty(t, f.trace, "adding a present aspect fires nothing")
}

func TestRemoveAspect(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, ir.PropertyMap{propCode: ir.Text("c")})
	require.NoError(t, f.svc.AddAspect(f.ctx, n, aspAudited, nil))
	f.traceAll(t)

	require.NoError(t, f.svc.RemoveAspect(f.ctx, n, aspAudited))

	assert.Equal(t, []ir.QName{aspStamped}, f.aspects(t, n), "mandated aspects stay")
	assert.Equal(t, ir.PropertyMap{
		propCode:  ir.Text("c"),
		propStamp: ir.Int(0),
	}, f.props(t, n))
	assert.Equal(t, []string{
		"BeforeUpdateNode n2",
		"BeforeRemoveAspect n2 test:audited",
		"OnRemoveAspect n2 test:audited",
		"OnUpdateNode n2",
		"OnUpdateProperties n2",
	}, f.trace)

	f.resetTrace()
	require.NoError(t, f.svc.RemoveAspect(f.ctx, n, aspAudited))
	assert.Empty(t, f.trace)

	requireCode(t, f.svc.RemoveAspect(f.ctx, n, typeDoc), ErrCodeInvalidAspect)
}

func TestRemoveAspect_RemovesItsAssociations(t *testing.T) {
	f := newFixture(t)
	p := f.child(t, f.root, typeDoc, nil)
	part, err := f.svc.CreateNode(f.ctx, p, assocParts, cm("part"), typeDoc, nil)
	require.NoError(t, err)
	assert.Contains(t, f.aspects(t, p), aspLinked, "declaring aspect added to the parent")

	linked := f.child(t, f.root, typeDoc, nil)
	_, err = f.svc.AddChild(f.ctx, p, linked, assocParts, cm("linked"))
	require.NoError(t, err)
	target := f.child(t, f.root, typeDoc, nil)
	_, err = f.svc.CreateAssociation(f.ctx, p, target, assocLinks)
	require.NoError(t, err)
	kid := f.child(t, p, typeDoc, nil)

	require.NoError(t, f.svc.RemoveAspect(f.ctx, p, aspLinked))

	assert.False(t, f.exists(t, part.Child), "primary child via the aspect's association is deleted")
	assert.True(t, f.exists(t, linked))
	assert.True(t, f.exists(t, target))
	assert.True(t, f.exists(t, kid), "children via other associations stay")

	parents, err := f.svc.ParentAssocs(f.ctx, linked)
	require.NoError(t, err)
	assert.Len(t, parents, 1)
	targets, err := f.svc.TargetAssocs(f.ctx, p)
	require.NoError(t, err)
	assert.Empty(t, targets)
	assert.NotContains(t, f.aspects(t, p), aspLinked)
}
