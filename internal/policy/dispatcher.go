package policy

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/noderepo/internal/ir"
)

const tracerName = "noderepo.policy"

// Classes is a node's type and aspects.
type Classes struct {
	Type    ir.QName
	Aspects []ir.QName
}

// NodeSource reads a node's current classes. ok is false when the node does
// not exist.
type NodeSource interface {
	NodeClasses(ctx context.Context, ref ir.NodeRef) (c Classes, ok bool, err error)
}

// TenantService maps a tenant-specific store to its base store.
type TenantService interface {
	BaseStore(store ir.StoreRef) ir.StoreRef
}

type identityTenant struct{}

func (identityTenant) BaseStore(store ir.StoreRef) ir.StoreRef { return store }

// Dispatcher is the per-event entry point into behaviour dispatch.
//
// Every method computes the subject's key-class groups, drops them all when
// the subject's base store is excluded, drops disabled ones according to the
// transaction's Filter, resolves the behaviours bound to the remaining
// effective qname set and invokes them in order. The first behaviour error
// is returned unchanged.
//
// A subject node that no longer exists has no classes: only AnyQName
// behaviours fire for it.
//
// Thread-safety: a Dispatcher is safe for concurrent use once its
// registries are sealed. Each call must run on the goroutine that owns the
// transaction in ctx.
type Dispatcher struct {
	lattice     Lattice
	classes     *ClassRegistry
	assocs      *AssociationRegistry
	nodes       NodeSource
	tenant      TenantService
	excluded    map[ir.StoreRef]bool
	versionable ir.QName
	depth       DepthGuard
	metrics     *Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithExcludedStores suppresses dispatch for events in the given base stores.
func WithExcludedStores(stores ...ir.StoreRef) Option {
	return func(d *Dispatcher) {
		for _, s := range stores {
			d.excluded[s] = true
		}
	}
}

// WithVersionableAspect sets the aspect whose OnDeleteNode behaviours still
// fire in excluded stores.
func WithVersionableAspect(q ir.QName) Option {
	return func(d *Dispatcher) {
		d.versionable = q
	}
}

// WithMaxDepth sets the nested dispatch limit.
//
// Default: 64 (DefaultMaxDepth)
func WithMaxDepth(n int) Option {
	return func(d *Dispatcher) {
		d.depth = NewDepthGuard(n)
	}
}

// WithTenantService sets the store normaliser used for exclusion checks.
func WithTenantService(t TenantService) Option {
	return func(d *Dispatcher) {
		d.tenant = t
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a dispatcher over the given registries.
func NewDispatcher(l Lattice, classes *ClassRegistry, assocs *AssociationRegistry, nodes NodeSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		lattice:  l,
		classes:  classes,
		assocs:   assocs,
		nodes:    nodes,
		tenant:   identityTenant{},
		excluded: make(map[ir.StoreRef]bool),
		depth:    NewDepthGuard(DefaultMaxDepth),
		tracer:   otel.Tracer(tracerName),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = NewMetrics(nil)
	}
	return d
}

// Classes returns the class scoped registry.
func (d *Dispatcher) Classes() *ClassRegistry { return d.classes }

// Associations returns the association scoped registry.
func (d *Dispatcher) Associations() *AssociationRegistry { return d.assocs }

// Lattice returns the class lattice.
func (d *Dispatcher) Lattice() Lattice { return d.lattice }

// IsExcluded reports whether events in store are suppressed.
func (d *Dispatcher) IsExcluded(store ir.StoreRef) bool {
	return d.excluded[d.tenant.BaseStore(store)]
}

type groupsFunc func(ctx context.Context) ([]Group, error)

type resolveFunc func(qnames []ir.QName) []*Behaviour

// groupsOf reads node's current classes.
func (d *Dispatcher) groupsOf(node ir.NodeRef) groupsFunc {
	return func(ctx context.Context) ([]Group, error) {
		c, ok, err := d.nodes.NodeClasses(ctx, node)
		if err != nil || !ok {
			return nil, err
		}
		return EffectiveQNameGroups(d.lattice, c.Type, c.Aspects), nil
	}
}

// fixedGroups keys the dispatch on one explicit class.
func (d *Dispatcher) fixedGroups(class ir.QName) groupsFunc {
	return func(context.Context) ([]Group, error) {
		return []Group{groupOf(d.lattice, class)}, nil
	}
}

func (d *Dispatcher) byClass(p Name) resolveFunc {
	return func(qnames []ir.QName) []*Behaviour {
		return d.classes.Resolve(p, qnames)
	}
}

func (d *Dispatcher) byAssoc(p Name, assocType ir.QName) resolveFunc {
	return func(qnames []ir.QName) []*Behaviour {
		return d.assocs.Resolve(p, qnames, assocType)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event, store ir.StoreRef, groups groupsFunc, resolve resolveFunc) error {
	if d.IsExcluded(store) {
		d.metrics.recordSuppressed(ev.Policy(), reasonExcludedStore)
		return nil
	}
	gs, err := groups(ctx)
	if err != nil {
		return err
	}
	return d.fire(ctx, ev, gs, resolve)
}

func (d *Dispatcher) fire(ctx context.Context, ev Event, groups []Group, resolve resolveFunc) error {
	f := existingFilter(ctx)
	subject := ev.Subject()
	if !f.IsEnabled(subject) {
		d.metrics.recordSuppressed(ev.Policy(), reasonFiltered)
		return nil
	}
	qnames := Flatten(f.apply(d.lattice, subject, groups))
	return d.invoke(ctx, ev, resolve(qnames))
}

func (d *Dispatcher) invoke(ctx context.Context, ev Event, behaviours []*Behaviour) error {
	if len(behaviours) == 0 {
		return nil
	}
	p := ev.Policy()
	start := time.Now()
	defer func() {
		d.metrics.recordDuration(p, time.Since(start))
	}()

	for _, b := range behaviours {
		switch b.Frequency {
		case FirstEvent:
			first, err := firstFiring(ctx, b, ev)
			if err != nil {
				return err
			}
			if !first {
				d.metrics.recordSuppressed(p, reasonFirstEvent)
				continue
			}
		case TransactionCommit:
			if err := d.enqueueCommit(ctx, b, ev); err != nil {
				return err
			}
			continue
		}
		if err := d.run(ctx, b, ev); err != nil {
			return err
		}
	}
	return nil
}

// run invokes one behaviour one level deeper.
func (d *Dispatcher) run(ctx context.Context, b *Behaviour, ev Event) error {
	p := ev.Policy()
	ctx, err := d.depth.Enter(ctx, p)
	if err != nil {
		d.logger.Error("dispatch depth exceeded",
			"policy", p,
			"behaviour", b.ID,
			"subject", ev.Subject().String(),
			"limit", d.depth.Max(),
		)
		return err
	}

	ctx, span := d.tracer.Start(ctx, "policy."+string(p),
		trace.WithAttributes(
			attribute.String("policy.behaviour", b.ID),
			attribute.String("policy.frequency", b.Frequency.String()),
			attribute.String("policy.subject", ev.Subject().String()),
			attribute.Int("policy.depth", Depth(ctx)),
		),
	)
	defer span.End()

	d.logger.Debug("invoking behaviour",
		"policy", p,
		"behaviour", b.ID,
		"subject", ev.Subject().String(),
		"depth", Depth(ctx),
	)
	d.metrics.recordInvoked(p, b.Frequency)

	if err := b.Handle(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.recordFailed(p)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// BeforeCreateStore fires before a store is created, keyed on the store
// root's type.
func (d *Dispatcher) BeforeCreateStore(ctx context.Context, rootType ir.QName, store ir.StoreRef) error {
	ev := StoreEvent{policy: BeforeCreateStore, Store: store}
	return d.dispatch(ctx, ev, store, d.fixedGroups(rootType), d.byClass(BeforeCreateStore))
}

// OnCreateStore fires after a store and its root node exist.
func (d *Dispatcher) OnCreateStore(ctx context.Context, root ir.NodeRef) error {
	ev := StoreEvent{policy: OnCreateStore, Store: root.Store, Root: root}
	return d.dispatch(ctx, ev, root.Store, d.groupsOf(root), d.byClass(OnCreateStore))
}

// BeforeCreateNode fires before a node of nodeType is created under parent.
func (d *Dispatcher) BeforeCreateNode(ctx context.Context, parent ir.NodeRef, assocType, assocQName, nodeType ir.QName) error {
	ev := BeforeCreateNodeEvent{Parent: parent, AssocType: assocType, AssocQName: assocQName, NodeType: nodeType}
	return d.dispatch(ctx, ev, parent.Store, d.fixedGroups(nodeType), d.byClass(BeforeCreateNode))
}

// OnCreateNode fires after a node and its primary association exist.
func (d *Dispatcher) OnCreateNode(ctx context.Context, assoc ir.ChildAssocRef) error {
	ev := NodeAssocEvent{policy: OnCreateNode, Assoc: assoc}
	return d.dispatch(ctx, ev, assoc.Child.Store, d.groupsOf(assoc.Child), d.byClass(OnCreateNode))
}

// BeforeUpdateNode fires before any change to a node's properties, aspects
// or child associations.
func (d *Dispatcher) BeforeUpdateNode(ctx context.Context, node ir.NodeRef) error {
	return d.nodeEvent(ctx, BeforeUpdateNode, node)
}

// OnUpdateNode fires after a node's properties, aspects or child
// associations changed.
func (d *Dispatcher) OnUpdateNode(ctx context.Context, node ir.NodeRef) error {
	return d.nodeEvent(ctx, OnUpdateNode, node)
}

// BeforeDeleteNode fires before a node's cascade delete starts.
func (d *Dispatcher) BeforeDeleteNode(ctx context.Context, node ir.NodeRef) error {
	return d.nodeEvent(ctx, BeforeDeleteNode, node)
}

func (d *Dispatcher) nodeEvent(ctx context.Context, p Name, node ir.NodeRef) error {
	ev := NodeEvent{policy: p, Node: node}
	return d.dispatch(ctx, ev, node.Store, d.groupsOf(node), d.byClass(p))
}

// OnUpdateProperties fires with the property maps before and after a change.
func (d *Dispatcher) OnUpdateProperties(ctx context.Context, node ir.NodeRef, before, after ir.PropertyMap) error {
	ev := UpdatePropertiesEvent{Node: node, Before: before, After: after}
	return d.dispatch(ctx, ev, node.Store, d.groupsOf(node), d.byClass(OnUpdateProperties))
}

// OnDeleteNode fires after a node was removed or archived. The node no
// longer exists at its old ref, so its classes are passed in.
//
// In an excluded store the event still fires, keyed on the versionable
// aspect alone, when the node carried that aspect.
func (d *Dispatcher) OnDeleteNode(ctx context.Context, assoc ir.ChildAssocRef, classes Classes, isArchived bool) error {
	ev := DeleteNodeEvent{Assoc: assoc, IsArchived: isArchived}
	node := assoc.Child
	if !d.IsExcluded(node.Store) {
		groups := EffectiveQNameGroups(d.lattice, classes.Type, classes.Aspects)
		return d.fire(ctx, ev, groups, d.byClass(OnDeleteNode))
	}
	if d.versionable.IsZero() || !slices.Contains(classes.Aspects, d.versionable) {
		d.metrics.recordSuppressed(OnDeleteNode, reasonExcludedStore)
		return nil
	}
	d.logger.Info("store excluded, dispatching versionable aspect only",
		"policy", OnDeleteNode,
		"node", node.String(),
		"aspect", d.versionable.String(),
	)
	groups := []Group{{Key: d.versionable, Chain: []ir.QName{d.versionable}}}
	return d.fire(ctx, ev, groups, func(qnames []ir.QName) []*Behaviour {
		var res resolver
		d.classes.resolveExact(&res, OnDeleteNode, qnames)
		return res.out
	})
}

// OnRestoreNode fires after an archived node was restored.
func (d *Dispatcher) OnRestoreNode(ctx context.Context, assoc ir.ChildAssocRef) error {
	ev := NodeAssocEvent{policy: OnRestoreNode, Assoc: assoc}
	return d.dispatch(ctx, ev, assoc.Child.Store, d.groupsOf(assoc.Child), d.byClass(OnRestoreNode))
}

// BeforeAddAspect fires before aspect is added to node, keyed on aspect.
func (d *Dispatcher) BeforeAddAspect(ctx context.Context, node ir.NodeRef, aspect ir.QName) error {
	return d.aspectEvent(ctx, BeforeAddAspect, node, aspect)
}

// OnAddAspect fires after aspect was added to node, keyed on aspect.
func (d *Dispatcher) OnAddAspect(ctx context.Context, node ir.NodeRef, aspect ir.QName) error {
	return d.aspectEvent(ctx, OnAddAspect, node, aspect)
}

// BeforeRemoveAspect fires before aspect is removed from node, keyed on
// aspect.
func (d *Dispatcher) BeforeRemoveAspect(ctx context.Context, node ir.NodeRef, aspect ir.QName) error {
	return d.aspectEvent(ctx, BeforeRemoveAspect, node, aspect)
}

// OnRemoveAspect fires after aspect was removed from node, keyed on aspect.
func (d *Dispatcher) OnRemoveAspect(ctx context.Context, node ir.NodeRef, aspect ir.QName) error {
	return d.aspectEvent(ctx, OnRemoveAspect, node, aspect)
}

func (d *Dispatcher) aspectEvent(ctx context.Context, p Name, node ir.NodeRef, aspect ir.QName) error {
	ev := AspectEvent{policy: p, Node: node, Aspect: aspect}
	return d.dispatch(ctx, ev, node.Store, d.fixedGroups(aspect), d.byClass(p))
}

// OnSetNodeType fires after node's type changed, keyed on its new classes.
func (d *Dispatcher) OnSetNodeType(ctx context.Context, node ir.NodeRef, before, after ir.QName) error {
	ev := SetNodeTypeEvent{Node: node, Before: before, After: after}
	return d.dispatch(ctx, ev, node.Store, d.groupsOf(node), d.byClass(OnSetNodeType))
}

// BeforeMoveNode fires before old.Child moves. proposed carries the new
// parent, association type and qname.
func (d *Dispatcher) BeforeMoveNode(ctx context.Context, old, proposed ir.ChildAssocRef) error {
	ev := MoveNodeEvent{policy: BeforeMoveNode, Old: old, New: proposed}
	return d.dispatch(ctx, ev, old.Child.Store, d.groupsOf(old.Child), d.byClass(BeforeMoveNode))
}

// OnMoveNode fires after a move with the old and new primary associations.
func (d *Dispatcher) OnMoveNode(ctx context.Context, old, moved ir.ChildAssocRef) error {
	ev := MoveNodeEvent{policy: OnMoveNode, Old: old, New: moved}
	return d.dispatch(ctx, ev, moved.Child.Store, d.groupsOf(moved.Child), d.byClass(OnMoveNode))
}

// BeforeCreateChildAssociation fires before a child association is
// created, keyed on the parent and the association type.
func (d *Dispatcher) BeforeCreateChildAssociation(ctx context.Context, assoc ir.ChildAssocRef, isNewNode bool) error {
	return d.childAssocEvent(ctx, BeforeCreateChildAssociation, assoc, isNewNode)
}

// OnCreateChildAssociation fires after a child association was created.
// isNewNode distinguishes a node created under the parent from one linked
// in.
func (d *Dispatcher) OnCreateChildAssociation(ctx context.Context, assoc ir.ChildAssocRef, isNewNode bool) error {
	return d.childAssocEvent(ctx, OnCreateChildAssociation, assoc, isNewNode)
}

// BeforeDeleteChildAssociation fires before a child association is removed.
func (d *Dispatcher) BeforeDeleteChildAssociation(ctx context.Context, assoc ir.ChildAssocRef) error {
	return d.childAssocEvent(ctx, BeforeDeleteChildAssociation, assoc, false)
}

// OnDeleteChildAssociation fires after a child association was removed.
func (d *Dispatcher) OnDeleteChildAssociation(ctx context.Context, assoc ir.ChildAssocRef) error {
	return d.childAssocEvent(ctx, OnDeleteChildAssociation, assoc, false)
}

func (d *Dispatcher) childAssocEvent(ctx context.Context, p Name, assoc ir.ChildAssocRef, isNewNode bool) error {
	ev := ChildAssocEvent{policy: p, Assoc: assoc, IsNewNode: isNewNode}
	return d.dispatch(ctx, ev, assoc.Parent.Store, d.groupsOf(assoc.Parent), d.byAssoc(p, assoc.Type))
}

// OnCreateAssociation fires after a peer association was created, keyed on
// the source and the association type.
func (d *Dispatcher) OnCreateAssociation(ctx context.Context, assoc ir.AssocRef) error {
	return d.assocEvent(ctx, OnCreateAssociation, assoc)
}

// BeforeDeleteAssociation fires before a peer association is removed.
func (d *Dispatcher) BeforeDeleteAssociation(ctx context.Context, assoc ir.AssocRef) error {
	return d.assocEvent(ctx, BeforeDeleteAssociation, assoc)
}

// OnDeleteAssociation fires after a peer association was removed.
func (d *Dispatcher) OnDeleteAssociation(ctx context.Context, assoc ir.AssocRef) error {
	return d.assocEvent(ctx, OnDeleteAssociation, assoc)
}

func (d *Dispatcher) assocEvent(ctx context.Context, p Name, assoc ir.AssocRef) error {
	ev := AssocEvent{policy: p, Assoc: assoc}
	return d.dispatch(ctx, ev, assoc.Source.Store, d.groupsOf(assoc.Source), d.byAssoc(p, assoc.Type))
}
