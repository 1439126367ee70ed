package policy

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/testutil"
)

func ids(bs []*Behaviour) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func TestClassRegistry_ResolveOrder(t *testing.T) {
	f := newFixture(t)
	f.bind(t, OnCreateNode, ir.AnyQName, "any", EveryEvent)
	f.bind(t, OnCreateNode, aspMarker, "marker", EveryEvent)
	f.bind(t, OnCreateNode, typeDoc, "doc-1", EveryEvent)
	f.bind(t, OnCreateNode, typeDoc, "doc-2", EveryEvent)
	f.bind(t, OnCreateNode, typeReport, "report", EveryEvent)
	f.bind(t, OnUpdateNode, typeReport, "other-policy", EveryEvent)

	got := f.classes.Resolve(OnCreateNode, []ir.QName{typeReport, typeDoc, aspMarker})

	assert.Equal(t, []string{"report", "doc-1", "doc-2", "marker", "any"}, ids(got))
}

func TestClassRegistry_ResolveDoesNotExpandAncestors(t *testing.T) {
	f := newFixture(t)
	f.bind(t, OnCreateNode, typeDoc, "doc", EveryEvent)

	assert.Empty(t, f.classes.Resolve(OnCreateNode, []ir.QName{typeReport}))
}

func TestClassRegistry_SameBehaviourOnTwoQNamesFiresOnce(t *testing.T) {
	f := newFixture(t)
	b := f.rec.behaviour("shared", EveryEvent)
	require.NoError(t, f.classes.Bind(OnCreateNode, aspTagged, b))
	require.NoError(t, f.classes.Bind(OnCreateNode, aspFlagged, b))
	require.NoError(t, f.classes.Bind(OnCreateNode, ir.AnyQName, b))

	got := f.classes.Resolve(OnCreateNode, []ir.QName{aspFlagged, aspTagged})
	assert.Equal(t, []string{"shared"}, ids(got))
}

func TestClassRegistry_EmptyQNamesStillResolvesWildcards(t *testing.T) {
	f := newFixture(t)
	f.bind(t, OnDeleteNode, ir.AnyQName, "any", EveryEvent)

	assert.Equal(t, []string{"any"}, ids(f.classes.Resolve(OnDeleteNode, nil)))
}

func TestClassRegistry_BindErrors(t *testing.T) {
	f := newFixture(t)
	b := f.rec.behaviour("b", EveryEvent)

	err := f.classes.Bind(OnCreateNode, testutil.QName("undefined"), b)
	assert.True(t, IsUnknownQNameError(err))

	err = f.classes.Bind(OnCreateChildAssociation, typeDoc, b)
	assert.True(t, IsWrongPolicyKindError(err))

	err = f.classes.Bind(Name("OnSomething"), typeDoc, b)
	assert.True(t, IsWrongPolicyKindError(err))

	err = f.classes.Bind(OnCreateNode, typeDoc, nil)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidBehaviour, re.Code)

	assert.Equal(t, 0, f.classes.Len())
}

func TestClassRegistry_Sealed(t *testing.T) {
	f := newFixture(t)
	f.bind(t, OnCreateNode, typeDoc, "before-seal", EveryEvent)
	f.classes.Seal()

	err := f.classes.Bind(OnCreateNode, typeDoc, f.rec.behaviour("late", EveryEvent))
	assert.True(t, IsRegistrySealedError(err))
	assert.Equal(t, 1, f.classes.Len())
}

func TestClassRegistry_ConcurrentResolve(t *testing.T) {
	f := newFixture(t)
	f.bind(t, OnCreateNode, typeDoc, "doc", EveryEvent)
	f.classes.Seal()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, f.classes.Resolve(OnCreateNode, []ir.QName{typeDoc}), 1)
		}()
	}
	wg.Wait()
}

func TestAssociationRegistry_Resolve(t *testing.T) {
	f := newFixture(t)
	bind := func(class, assoc ir.QName, id string) {
		require.NoError(t, f.assocs.Bind(OnCreateChildAssociation, class, assoc, f.rec.behaviour(id, EveryEvent)))
	}
	bind(ir.AnyQName, ir.AnyQName, "any-any")
	bind(ir.AnyQName, assocParts, "any-parts")
	bind(typeDoc, ir.AnyQName, "doc-any")
	bind(typeDoc, assocParts, "doc-parts")
	bind(typeDoc, dictionary.AssocChildren, "doc-children")

	got := f.assocs.Resolve(OnCreateChildAssociation, []ir.QName{typeDoc}, assocParts)
	assert.Equal(t, []string{"doc-parts", "doc-any", "any-parts", "any-any"}, ids(got))

	got = f.assocs.Resolve(OnCreateChildAssociation, []ir.QName{typeReport}, dictionary.AssocChildren)
	assert.Equal(t, []string{"any-any"}, ids(got), "no association-type inheritance, class must be in the set")
}

func TestAssociationRegistry_BindErrors(t *testing.T) {
	f := newFixture(t)
	b := NewBehaviour("b", EveryEvent, func(context.Context, Event) error { return nil })

	assert.True(t, IsWrongPolicyKindError(f.assocs.Bind(OnCreateNode, typeDoc, assocParts, b)))
	assert.True(t, IsUnknownQNameError(f.assocs.Bind(OnCreateAssociation, typeDoc, testutil.QName("nope"), b)))

	f.assocs.Seal()
	assert.True(t, IsRegistrySealedError(f.assocs.Bind(OnCreateAssociation, typeDoc, assocLinks, b)))
}

func TestParseNameAndFrequency(t *testing.T) {
	n, err := ParseName("OnAddAspect")
	require.NoError(t, err)
	assert.Equal(t, OnAddAspect, n)
	assert.Equal(t, ClassScoped, n.Kind())
	assert.Equal(t, AssociationScoped, OnDeleteAssociation.Kind())

	_, err = ParseName("OnExplode")
	assert.Error(t, err)

	freq, err := ParseFrequency("transaction_commit")
	require.NoError(t, err)
	assert.Equal(t, TransactionCommit, freq)
	freq, err = ParseFrequency("")
	require.NoError(t, err)
	assert.Equal(t, EveryEvent, freq)
	_, err = ParseFrequency("sometimes")
	assert.Error(t, err)

	assert.Len(t, Names(), 24)
}
