package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
)

func TestArchive_AndRestore(t *testing.T) {
	f := newFixture(t, WithArchiveStore(workspace, archiveStore))
	folder := f.named(t, f.root, dictionary.TypeFolder, "docs")
	doc := f.named(t, folder, dictionary.TypeContent, "plan.txt")
	outside := f.named(t, f.root, dictionary.TypeContent, "index")
	_, err := f.svc.CreateAssociation(f.ctx, outside, doc, assocRefs)
	require.NoError(t, err)
	f.traceAll(t)

	require.NoError(t, f.svc.DeleteNode(f.ctx, folder))

	archivedFolder := ir.NewNodeRef(archiveStore, folder.ID)
	archivedDoc := ir.NewNodeRef(archiveStore, doc.ID)
	assert.False(t, f.exists(t, folder))
	assert.False(t, f.exists(t, doc))
	assert.True(t, f.exists(t, archivedFolder))
	assert.True(t, f.exists(t, archivedDoc))
	assert.Contains(t, f.aspects(t, archivedFolder), dictionary.AspectArchived)
	assert.Contains(t, f.aspects(t, archivedDoc), dictionary.AspectArchivedAssocs)
	assert.Contains(t, f.trace, "OnDeleteNode "+folder.ID+" archived")
	assert.NotContains(t, f.trace, "BeforeDeleteNode "+doc.ID, "descendants move with the node")

	targets, err := f.svc.TargetAssocs(f.ctx, outside)
	require.NoError(t, err)
	assert.Empty(t, targets, "boundary associations are detached")

	archiveRoot, err := f.svc.RootNode(f.ctx, archiveStore)
	require.NoError(t, err)
	parent, err := f.svc.PrimaryParent(f.ctx, archivedFolder)
	require.NoError(t, err)
	assert.Equal(t, archiveRoot, parent.Parent)

	f.resetTrace()
	restored, err := f.svc.RestoreNode(f.ctx, archivedFolder, ir.NodeRef{}, ir.QName{}, ir.QName{})
	require.NoError(t, err)

	assert.Equal(t, folder, restored.Child)
	assert.Equal(t, f.root, restored.Parent)
	assert.Equal(t, dictionary.AssocContains, restored.Type)
	assert.True(t, f.exists(t, doc))
	assert.False(t, f.exists(t, archivedFolder))
	assert.NotContains(t, f.aspects(t, folder), dictionary.AspectArchived)
	assert.NotContains(t, f.aspects(t, doc), dictionary.AspectArchivedAssocs)
	assert.NotContains(t, f.props(t, folder), dictionary.PropArchivedOriginalParentAssoc)
	assert.Contains(t, f.trace, "OnRestoreNode "+folder.ID)

	targets, err = f.svc.TargetAssocs(f.ctx, outside)
	require.NoError(t, err)
	assert.Equal(t, []ir.AssocRef{{Source: outside, Target: doc, Type: assocRefs}}, targets)

	found, ok, err := f.svc.ChildByName(f.ctx, folder, dictionary.AssocContains, "PLAN.TXT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, found)
}

func TestArchive_RestoreSkipsVanishedEnds(t *testing.T) {
	f := newFixture(t, WithArchiveStore(workspace, archiveStore))
	doc := f.named(t, f.root, dictionary.TypeContent, "a")
	other := f.child(t, f.root, typeBox, nil)
	_, err := f.svc.CreateAssociation(f.ctx, doc, other, assocRefs)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteNode(f.ctx, doc))
	require.NoError(t, f.svc.DeleteNode(f.ctx, other))

	_, err = f.svc.RestoreNode(f.ctx, ir.NewNodeRef(archiveStore, doc.ID), ir.NodeRef{}, ir.QName{}, ir.QName{})
	require.NoError(t, err)

	targets, err := f.svc.TargetAssocs(f.ctx, doc)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestArchive_Exemptions(t *testing.T) {
	f := newFixture(t, WithArchiveStore(workspace, archiveStore))

	t.Run("type not archivable", func(t *testing.T) {
		n := f.child(t, f.root, typeBox, nil)
		require.NoError(t, f.svc.DeleteNode(f.ctx, n))
		assert.False(t, f.exists(t, ir.NewNodeRef(archiveStore, n.ID)))
	})

	t.Run("temporary", func(t *testing.T) {
		n := f.child(t, f.root, typeDoc, nil)
		require.NoError(t, f.svc.AddAspect(f.ctx, n, dictionary.AspectTemporary, nil))
		require.NoError(t, f.svc.DeleteNode(f.ctx, n))
		assert.False(t, f.exists(t, ir.NewNodeRef(archiveStore, n.ID)))
	})

	t.Run("archived node deleted again", func(t *testing.T) {
		n := f.child(t, f.root, typeDoc, nil)
		require.NoError(t, f.svc.DeleteNode(f.ctx, n))
		archived := ir.NewNodeRef(archiveStore, n.ID)
		require.True(t, f.exists(t, archived))

		require.NoError(t, f.svc.DeleteNode(f.ctx, archived))
		assert.False(t, f.exists(t, archived))
	})
}

func TestRestoreNode_NotArchived(t *testing.T) {
	f := newFixture(t)
	n := f.child(t, f.root, typeDoc, nil)

	_, err := f.svc.RestoreNode(f.ctx, n, ir.NodeRef{}, ir.QName{}, ir.QName{})
	requireCode(t, err, ErrCodeNotArchived)
}

func TestRestoreNode_ToNewParent(t *testing.T) {
	f := newFixture(t, WithArchiveStore(workspace, archiveStore))
	doc := f.child(t, f.root, typeDoc, nil)
	dest := f.child(t, f.root, typeContainer, nil)
	require.NoError(t, f.svc.DeleteNode(f.ctx, doc))

	a, err := f.svc.RestoreNode(f.ctx, ir.NewNodeRef(archiveStore, doc.ID), dest, dictionary.AssocChildren, cm("back"))
	require.NoError(t, err)

	assert.Equal(t, dest, a.Parent)
	assert.Equal(t, cm("back"), a.QName)
	p, err := f.svc.Path(f.ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "/cm:child/cm:back", f.svc.PathString(p))
}
