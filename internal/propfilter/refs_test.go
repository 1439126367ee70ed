package propfilter

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/node"
	"github.com/roach88/noderepo/internal/policy"
	"github.com/roach88/noderepo/internal/store"
	"github.com/roach88/noderepo/internal/testutil"
)

var (
	typeDoc  = testutil.QName("doc")
	propRef  = testutil.QName("ref")
	propRefs = testutil.QName("refs")
	children = ir.NewQName(dictionary.SystemNamespace, "children")
)

func newService(t *testing.T) (*node.Service, ir.NodeRef) {
	t.Helper()
	dict := testutil.Dictionary(t)
	st, err := store.Open(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := node.New(st, dict, policy.NewClassRegistry(dict), policy.NewAssociationRegistry(dict),
		node.WithIDGenerator(testutil.NewSequenceGenerator("n")),
		node.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	root, err := svc.CreateStore(context.Background(), workspace)
	require.NoError(t, err)
	return svc, root
}

func createDoc(t *testing.T, svc *node.Service, parent ir.NodeRef) ir.NodeRef {
	t.Helper()
	a, err := svc.CreateNode(context.Background(), parent, children, ir.NewQName(dictionary.ContentNamespace, "doc"), typeDoc, nil)
	require.NoError(t, err)
	return a.Child
}

func TestRefFilter(t *testing.T) {
	ctx := context.Background()
	svc, root := newService(t)
	p := New(svc, NewRefFilter(svc))

	doc := createDoc(t, svc, root)
	keep := createDoc(t, svc, root)
	gone := createDoc(t, svc, root)

	require.NoError(t, p.AddProperties(ctx, doc, ir.PropertyMap{
		propRef:  ir.Ref(gone),
		propRefs: ir.List(ir.Ref(keep), ir.Ref(gone)),
	}))
	require.NoError(t, svc.DeleteNode(ctx, gone))

	props, err := p.Properties(ctx, doc)
	require.NoError(t, err)
	assert.NotContains(t, props, propRef)
	assert.Equal(t, ir.List(ir.Ref(keep)), props[propRefs])

	raw, err := svc.Properties(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, ir.Ref(gone), raw[propRef], "the stored value is untouched")

	err = p.SetProperty(ctx, doc, propRefs, ir.List(ir.Ref(keep), ir.Ref(gone)))
	require.Error(t, err)
	assert.True(t, node.IsInvalidNodeRef(err))
}

func TestPipeline_OverNodeService(t *testing.T) {
	ctx := context.Background()
	svc, root := newService(t)
	p := New(svc,
		NewLocaleFilter(svc.Dictionary(), language.English),
		NewRefFilter(svc),
	)
	doc := createDoc(t, svc, root)

	require.NoError(t, p.SetProperty(ctx, doc, propLabel, ir.Text("Hello")))
	require.NoError(t, p.SetProperty(WithLocale(ctx, language.German), doc, propLabel, ir.Text("Hallo")))

	raw, err := svc.Property(ctx, doc, propLabel)
	require.NoError(t, err)
	assert.Equal(t, ir.MLTextValue{"en": "Hello", "de": "Hallo"}, raw)

	got, err := p.Property(WithLocale(ctx, language.MustParse("de-AT")), doc, propLabel)
	require.NoError(t, err)
	assert.Equal(t, ir.Text("Hallo"), got)
}
