package node

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/policy"
)

func TestProperties_SetAddRemove(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, ir.PropertyMap{propCode: ir.Text("a")})

	require.NoError(t, f.svc.AddProperties(f.ctx, n, ir.PropertyMap{dictionary.PropName: ir.Text("doc")}))
	assert.Equal(t, ir.PropertyMap{
		propCode:            ir.Text("a"),
		dictionary.PropName: ir.Text("doc"),
	}, f.props(t, n))

	require.NoError(t, f.svc.SetProperties(f.ctx, n, ir.PropertyMap{propCode: ir.Text("b")}))
	assert.Equal(t, ir.PropertyMap{propCode: ir.Text("b")}, f.props(t, n))

	require.NoError(t, f.svc.RemoveProperty(f.ctx, n, propCode))
	assert.Empty(t, f.props(t, n))

	v, err := f.svc.Property(f.ctx, n, propCode)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = f.svc.Properties(f.ctx, ir.NewNodeRef(workspace, "missing"))
	requireCode(t, err, ErrCodeInvalidNodeRef)
}

func TestProperties_UpdateEvents(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, ir.PropertyMap{propCode: ir.Text("a")})

	var got policy.UpdatePropertiesEvent
	f.bind(t, policy.OnUpdateProperties, typeDoc, func(_ context.Context, ev policy.Event) error {
		got = ev.(policy.UpdatePropertiesEvent)
		return nil
	})
	f.traceAll(t)

	require.NoError(t, f.svc.SetProperty(f.ctx, n, propCode, ir.Text("b")))

	assert.Equal(t, ir.PropertyMap{propCode: ir.Text("a")}, got.Before)
	assert.Equal(t, ir.PropertyMap{propCode: ir.Text("b")}, got.After)
	assert.Equal(t, []string{
		"BeforeUpdateNode n2",
		"OnUpdateNode n2",
		"OnUpdateProperties n2",
	}, f.trace)
}

func TestProperties_RenameKeepsNamesUnique(t *testing.T) {
	f := newFixture(t)
	folder := f.named(t, f.root, dictionary.TypeFolder, "docs")
	f.named(t, folder, typeDoc, "a")
	b := f.named(t, folder, typeDoc, "b")

	err := f.svc.SetProperty(f.ctx, b, dictionary.PropName, ir.Text("A"))
	requireCode(t, err, ErrCodeDuplicateChildNodeName)
	assert.True(t, IsDuplicateChildNodeName(err))
	assert.Equal(t, ir.Text("b"), f.props(t, b)[dictionary.PropName], "rejected rename is rolled back")

	require.NoError(t, f.svc.SetProperty(f.ctx, b, dictionary.PropName, ir.Text("c")))

	found, ok, err := f.svc.ChildByName(f.ctx, folder, dictionary.AssocContains, "C")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, found)

	_, ok, err = f.svc.ChildByName(f.ctx, folder, dictionary.AssocContains, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, FoldName("Straße"), FoldName("STRASSE"))
	assert.Equal(t, FoldName("caf\u00e9"), FoldName("Cafe\u0301"))
	assert.NotEqual(t, FoldName("a"), FoldName("b"))
}

func TestFoldName_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, "strasse", FoldName("STRAßE"))
			}
		}()
	}
	wg.Wait()
}
