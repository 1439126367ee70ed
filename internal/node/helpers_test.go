package node

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/policy"
	"github.com/roach88/noderepo/internal/store"
	"github.com/roach88/noderepo/internal/testutil"
)

var (
	workspace    = ir.NewStoreRef(ir.ProtocolWorkspace, "main")
	otherStore   = ir.NewStoreRef(ir.ProtocolWorkspace, "other")
	archiveStore = ir.NewStoreRef(ir.ProtocolArchive, "main")

	typeDoc    = testutil.QName("doc")
	typeRecord = testutil.QName("record")
	typeBox    = testutil.QName("box")
	aspTitled  = testutil.QName("titled")
	aspAudited = testutil.QName("audited")
	aspStamped = testutil.QName("stamped")
	aspLinked  = testutil.QName("linked")
	propCode   = testutil.QName("code")
	propTitle  = testutil.QName("title")
	propDesc   = testutil.QName("description")
	propAudit  = testutil.QName("auditor")
	propStamp  = testutil.QName("stamp")
	assocParts = testutil.QName("parts")
	assocLinks = testutil.QName("links")

	typeContainer = ir.NewQName(dictionary.SystemNamespace, "container")
	assocRefs     = ir.NewQName(dictionary.ContentNamespace, "references")
)

func cm(local string) ir.QName { return ir.NewQName(dictionary.ContentNamespace, local) }

type fixture struct {
	ctx     context.Context
	svc     *Service
	dict    *dictionary.Dictionary
	classes *policy.ClassRegistry
	assocs  *policy.AssociationRegistry
	root    ir.NodeRef
	trace   []string
}

// newFixture opens a fresh repository whose workspace root is n1. Node ids
// continue n2, n3 and so on.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dict := testutil.Dictionary(t)
	st, err := store.Open(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		ctx:     context.Background(),
		dict:    dict,
		classes: policy.NewClassRegistry(dict),
		assocs:  policy.NewAssociationRegistry(dict),
	}
	opts = append([]Option{
		WithIDGenerator(testutil.NewSequenceGenerator("n")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	f.svc = New(st, dict, f.classes, f.assocs, opts...)

	f.root, err = f.svc.CreateStore(f.ctx, workspace)
	require.NoError(t, err)
	return f
}

// traceAll records every event of every node.
func (f *fixture) traceAll(t *testing.T) {
	t.Helper()
	b := policy.NewBehaviour("trace", policy.EveryEvent, func(_ context.Context, ev policy.Event) error {
		f.trace = append(f.trace, f.describe(ev))
		return nil
	})
	for _, p := range policy.Names() {
		if p.Kind() == policy.AssociationScoped {
			require.NoError(t, f.assocs.Bind(p, ir.AnyQName, ir.AnyQName, b))
			continue
		}
		require.NoError(t, f.classes.Bind(p, ir.AnyQName, b))
	}
}

func (f *fixture) describe(ev policy.Event) string {
	line := fmt.Sprintf("%s %s", ev.Policy(), ev.Subject().ID)
	switch e := ev.(type) {
	case policy.AspectEvent:
		line += " " + f.dict.Prefixed(e.Aspect)
	case policy.DeleteNodeEvent:
		if e.IsArchived {
			line += " archived"
		}
	case policy.ChildAssocEvent:
		line += " " + e.Assoc.Child.ID
		if e.IsNewNode {
			line += " new"
		}
	case policy.AssocEvent:
		line += " " + e.Assoc.Target.ID
	}
	return line
}

func (f *fixture) resetTrace() { f.trace = nil }

// bind registers a class behaviour running fn.
func (f *fixture) bind(t *testing.T, p policy.Name, class ir.QName, fn policy.HandlerFunc) {
	t.Helper()
	require.NoError(t, f.classes.Bind(p, class, policy.NewBehaviour(string(p)+"-test", policy.EveryEvent, fn)))
}

// child creates a node under parent with a sys:children association.
func (f *fixture) child(t *testing.T, parent ir.NodeRef, typ ir.QName, props ir.PropertyMap) ir.NodeRef {
	t.Helper()
	a, err := f.svc.CreateNode(f.ctx, parent, dictionary.AssocChildren, cm("child"), typ, props)
	require.NoError(t, err)
	return a.Child
}

// named creates a node named name under parent with a cm:contains
// association.
func (f *fixture) named(t *testing.T, parent ir.NodeRef, typ ir.QName, name string) ir.NodeRef {
	t.Helper()
	a, err := f.svc.CreateNode(f.ctx, parent, dictionary.AssocContains, cm(name), typ,
		ir.PropertyMap{dictionary.PropName: ir.Text(name)})
	require.NoError(t, err)
	return a.Child
}

func (f *fixture) exists(t *testing.T, ref ir.NodeRef) bool {
	t.Helper()
	ok, err := f.svc.Exists(f.ctx, ref)
	require.NoError(t, err)
	return ok
}

func (f *fixture) props(t *testing.T, ref ir.NodeRef) ir.PropertyMap {
	t.Helper()
	p, err := f.svc.Properties(f.ctx, ref)
	require.NoError(t, err)
	return p
}

func (f *fixture) aspects(t *testing.T, ref ir.NodeRef) []ir.QName {
	t.Helper()
	a, err := f.svc.Aspects(f.ctx, ref)
	require.NoError(t, err)
	return a
}

func assertGoldenTrace(t *testing.T, name string, trace []string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(strings.Join(trace, "\n")+"\n"))
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "error: %v", err)
}
