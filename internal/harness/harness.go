package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"golang.org/x/text/language"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/node"
	"github.com/roach88/noderepo/internal/policy"
	"github.com/roach88/noderepo/internal/propfilter"
	"github.com/roach88/noderepo/internal/store"
	"github.com/roach88/noderepo/internal/tenant"
	"github.com/roach88/noderepo/internal/testutil"
)

// RootAlias names the root of the workspace every scenario starts with.
const RootAlias = "root"

// DefaultStore is created before the first step.
var DefaultStore = ir.NewStoreRef(ir.ProtocolWorkspace, "main")

// ErrBehaviourFailed is returned by behaviours with the fail action.
var ErrBehaviourFailed = errors.New("behaviour failed")

// Harness runs one scenario against a fresh in-memory repository.
//
// Node ids come from a sequence generator, so traces are reproducible and
// nodes without an alias render as n1, n2 and so on.
type Harness struct {
	svc     *node.Service
	props   *propfilter.Pipeline
	dict    *dictionary.Dictionary
	aliases map[string]ir.NodeRef
	names   map[ir.NodeRef]string
	firings []firing
	// archives maps a store to the store its deleted nodes move to.
	archives map[ir.StoreRef]ir.StoreRef
	logger   *slog.Logger
}

type firing struct {
	policy    policy.Name
	behaviour string
	subject   ir.NodeRef
}

type options struct {
	logger       *slog.Logger
	dispatchOpts []policy.Option
	defaults     Defaults
}

// Defaults is the repository configuration a scenario starts from. The
// scenario's own config is layered on top: its excluded stores and
// archive entries are added, its other settings replace these.
type Defaults struct {
	ExcludedStores []ir.StoreRef
	// VersionableAspect is resolved against the scenario's models.
	VersionableAspect string
	MaxDepth          int
	Archives          map[ir.StoreRef]ir.StoreRef
	// Locale is the fallback of localized property reads. Und means
	// English.
	Locale language.Tag
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger of the repository under test.
//
// Default: discard
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDefaults sets the configuration every scenario starts from.
func WithDefaults(d Defaults) Option {
	return func(o *options) {
		o.defaults = d
	}
}

// WithDispatchOptions passes extra options to the dispatcher, after the
// ones derived from the scenario config.
func WithDispatchOptions(opts ...policy.Option) Option {
	return func(o *options) {
		o.dispatchOpts = append(o.dispatchOpts, opts...)
	}
}

// Run executes a scenario and returns its result. An error means the
// scenario could not be set up: its models, config or behaviours are
// invalid. Failed steps and assertions are reported in the Result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	o := &options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	dirs := make([]string, len(s.Models))
	for i, m := range s.Models {
		dirs[i] = s.modelDir(m)
	}
	dict, err := dictionary.NewFromDirs(dirs...)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		dict:     dict,
		aliases:  make(map[string]ir.NodeRef),
		names:    make(map[ir.NodeRef]string),
		archives: make(map[ir.StoreRef]ir.StoreRef),
		logger:   o.logger,
	}

	classes := policy.NewClassRegistry(dict)
	assocs := policy.NewAssociationRegistry(dict)
	if err := h.bindBehaviours(s.Behaviours, classes, assocs); err != nil {
		return nil, err
	}
	classes.Seal()
	assocs.Seal()

	nodeOpts, err := h.serviceOptions(o.defaults, s.Config)
	if err != nil {
		return nil, err
	}
	locale, err := scenarioLocale(o.defaults, s.Config)
	if err != nil {
		return nil, err
	}
	nodeOpts = append(nodeOpts,
		node.WithLogger(o.logger),
		node.WithDispatchOptions(o.dispatchOpts...),
	)
	h.svc = node.New(st, dict, classes, assocs, nodeOpts...)
	h.props = propfilter.New(h.svc, propfilter.NewLocaleFilter(dict, locale))

	root, err := h.svc.CreateStore(ctx, DefaultStore)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", DefaultStore, err)
	}
	h.alias(RootAlias, root)

	result := NewResult(s.Name)
	for i, step := range s.Steps {
		err := h.runStep(ctx, step)
		switch {
		case err == nil && step.ExpectError != "":
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got success", i, step.Op, step.ExpectError))
		case err != nil && step.ExpectError == "":
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Op, err))
		case err != nil && ErrorCode(err) != step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s (%v)", i, step.Op, step.ExpectError, ErrorCode(err), err))
		}
		h.logger.Debug("scenario step", "scenario", s.Name, "step", i, "op", step.Op, "error", err)
	}

	result.Trace = h.traceLines()
	for _, msg := range h.evaluate(ctx, s.Assertions, result.Trace) {
		result.AddError(msg)
	}
	return result, nil
}

// ErrorCode names the category of a step error for expect_error: a node
// service code, a dispatch code, BEHAVIOUR_FAILED or ERROR.
func ErrorCode(err error) string {
	if code := node.CodeOf(err); code != "" {
		return string(code)
	}
	if policy.IsDepthError(err) {
		return string(policy.ErrCodeDepthExceeded)
	}
	var re *policy.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	if errors.Is(err, ErrBehaviourFailed) {
		return "BEHAVIOUR_FAILED"
	}
	return "ERROR"
}

func (h *Harness) serviceOptions(base Defaults, cfg ScenarioConfig) ([]node.Option, error) {
	opts := []node.Option{node.WithIDGenerator(testutil.NewSequenceGenerator("n"))}
	dispatch := []policy.Option{policy.WithTenantService(tenant.Service{})}

	excluded := append([]ir.StoreRef(nil), base.ExcludedStores...)
	for _, s := range cfg.ExcludedStores {
		ref, err := ir.ParseStoreRef(s)
		if err != nil {
			return nil, fmt.Errorf("config.excluded_stores: %w", err)
		}
		excluded = append(excluded, ref)
	}
	if len(excluded) > 0 {
		dispatch = append(dispatch, policy.WithExcludedStores(excluded...))
	}

	versionable := base.VersionableAspect
	if cfg.VersionableAspect != "" {
		versionable = cfg.VersionableAspect
	}
	if versionable != "" {
		q, err := h.dict.Resolve(versionable)
		if err != nil {
			return nil, fmt.Errorf("config.versionable_aspect: %w", err)
		}
		dispatch = append(dispatch, policy.WithVersionableAspect(q))
	}

	depth := base.MaxDepth
	if cfg.MaxDepth > 0 {
		depth = cfg.MaxDepth
	}
	if depth > 0 {
		dispatch = append(dispatch, policy.WithMaxDepth(depth))
	}

	maps.Copy(h.archives, base.Archives)
	for _, a := range cfg.Archive {
		from, err := ir.ParseStoreRef(a.Store)
		if err != nil {
			return nil, fmt.Errorf("config.archive: %w", err)
		}
		to, err := ir.ParseStoreRef(a.Archive)
		if err != nil {
			return nil, fmt.Errorf("config.archive: %w", err)
		}
		h.archives[from] = to
	}
	for from, to := range h.archives {
		opts = append(opts, node.WithArchiveStore(from, to))
	}
	return append(opts, node.WithDispatchOptions(dispatch...)), nil
}

// scenarioLocale picks the fallback locale of localized reads.
func scenarioLocale(base Defaults, cfg ScenarioConfig) (language.Tag, error) {
	if cfg.DefaultLocale != "" {
		tag, err := language.Parse(cfg.DefaultLocale)
		if err != nil {
			return language.Und, fmt.Errorf("config.default_locale: %w", err)
		}
		return tag, nil
	}
	if base.Locale == language.Und {
		return language.English, nil
	}
	return base.Locale, nil
}

func (h *Harness) bindBehaviours(defs []BehaviourSpec, classes *policy.ClassRegistry, assocs *policy.AssociationRegistry) error {
	for _, def := range defs {
		p, err := policy.ParseName(def.Policy)
		if err != nil {
			return fmt.Errorf("behaviour %s: %w", def.ID, err)
		}
		freq, err := policy.ParseFrequency(def.Frequency)
		if err != nil {
			return fmt.Errorf("behaviour %s: %w", def.ID, err)
		}
		class, err := h.classQName(def.Class)
		if err != nil {
			return fmt.Errorf("behaviour %s: class: %w", def.ID, err)
		}
		childType := dictionary.TypeContent
		if def.ChildType != "" {
			if childType, err = h.dict.Resolve(def.ChildType); err != nil {
				return fmt.Errorf("behaviour %s: child_type: %w", def.ID, err)
			}
		}

		b := policy.NewBehaviour(def.ID, freq, h.handler(def, childType))
		if p.Kind() == policy.AssociationScoped {
			assocType, err := h.classQName(def.AssocType)
			if err != nil {
				return fmt.Errorf("behaviour %s: assoc_type: %w", def.ID, err)
			}
			err = assocs.Bind(p, class, assocType, b)
		} else {
			err = classes.Bind(p, class, b)
		}
		if err != nil {
			return fmt.Errorf("behaviour %s: %w", def.ID, err)
		}
	}
	return nil
}

// classQName resolves a qname, with "*" standing for every class.
func (h *Harness) classQName(s string) (ir.QName, error) {
	if s == "*" {
		return ir.AnyQName, nil
	}
	return h.dict.Resolve(s)
}

func (h *Harness) handler(def BehaviourSpec, childType ir.QName) policy.HandlerFunc {
	return func(ctx context.Context, ev policy.Event) error {
		if def.Only != "" {
			if ref, ok := h.aliases[def.Only]; !ok || ref != ev.Subject() {
				return nil
			}
		}
		h.firings = append(h.firings, firing{policy: ev.Policy(), behaviour: def.ID, subject: ev.Subject()})

		switch def.Action {
		case ActionFail:
			return fmt.Errorf("%w: %s", ErrBehaviourFailed, def.ID)
		case ActionCreateChild:
			qname := ir.NewQName(dictionary.ContentNamespace, def.ID)
			_, err := h.svc.CreateNode(ctx, ev.Subject(), dictionary.AssocChildren, qname, childType, nil)
			return err
		}
		return nil
	}
}

// alias names ref. Renaming a node keeps its previous refs rendering
// under the same name.
func (h *Harness) alias(name string, ref ir.NodeRef) {
	if name == "" {
		return
	}
	h.aliases[name] = ref
	h.names[ref] = name
}

// nameOf renders a node as its alias, or its id when it has none.
func (h *Harness) nameOf(ref ir.NodeRef) string {
	if ref.IsZero() {
		return "-"
	}
	if name, ok := h.names[ref]; ok {
		return name
	}
	return ref.ID
}

func (h *Harness) traceLines() []string {
	lines := make([]string, len(h.firings))
	for i, f := range h.firings {
		lines[i] = fmt.Sprintf("%s %s %s", f.policy, f.behaviour, h.nameOf(f.subject))
	}
	return lines
}
