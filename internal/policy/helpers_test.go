package policy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/testutil"
	"github.com/roach88/noderepo/internal/txn"
)

var (
	workspace = ir.NewStoreRef(ir.ProtocolWorkspace, "main")
	system    = ir.NewStoreRef(ir.ProtocolSystem, "system")

	typeDoc    = testutil.QName("doc")
	typeReport = testutil.QName("report")
	aspMarker  = testutil.QName("marker")
	aspTagged  = testutil.QName("tagged")
	aspFlagged = testutil.QName("flagged")
	aspTitled  = testutil.QName("titled")
	aspLinked  = testutil.QName("linked")
	assocParts = testutil.QName("parts")
	assocLinks = testutil.QName("links")
)

func ref(id string) ir.NodeRef {
	return ir.NewNodeRef(workspace, id)
}

// fakeNodes is a NodeSource over a fixed map.
type fakeNodes map[ir.NodeRef]Classes

func (f fakeNodes) NodeClasses(_ context.Context, r ir.NodeRef) (Classes, bool, error) {
	c, ok := f[r]
	return c, ok, nil
}

// recorder collects "<policy> <behaviour>" lines.
type recorder struct {
	calls []string
}

func (r *recorder) behaviour(id string, freq Frequency) *Behaviour {
	return NewBehaviour(id, freq, func(ctx context.Context, ev Event) error {
		r.calls = append(r.calls, fmt.Sprintf("%s %s", ev.Policy(), id))
		return nil
	})
}

type fixture struct {
	dict    *dictionary.Dictionary
	classes *ClassRegistry
	assocs  *AssociationRegistry
	nodes   fakeNodes
	rec     *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testutil.Dictionary(t)
	return &fixture{
		dict:    d,
		classes: NewClassRegistry(d),
		assocs:  NewAssociationRegistry(d),
		nodes:   fakeNodes{},
		rec:     &recorder{},
	}
}

func (f *fixture) bind(t *testing.T, p Name, class ir.QName, id string, freq Frequency) *Behaviour {
	t.Helper()
	b := f.rec.behaviour(id, freq)
	require.NoError(t, f.classes.Bind(p, class, b))
	return b
}

func (f *fixture) dispatcher(opts ...Option) *Dispatcher {
	return NewDispatcher(f.dict, f.classes, f.assocs, f.nodes, opts...)
}

func inTxn() (context.Context, *txn.Transaction) {
	t := txn.New("tx-1")
	return txn.WithTransaction(context.Background(), t), t
}
