package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/noderepo/internal/policy"
)

// Scenario is a behaviour conformance scenario: models, bound behaviours,
// a sequence of node service operations and assertions on the result.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models lists extra CUE model directories, relative to the scenario
	// file. The bootstrap models are always loaded.
	Models []string `yaml:"models,omitempty"`

	// Config adjusts the dispatcher and node service.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Behaviours are bound before the first step.
	Behaviours []BehaviourSpec `yaml:"behaviours,omitempty"`

	// Steps run in order, each in its own transaction.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`

	// dir is the directory holding the scenario file.
	dir string
}

// ScenarioConfig mirrors the dispatch and archive configuration.
type ScenarioConfig struct {
	ExcludedStores    []string        `yaml:"excluded_stores,omitempty"`
	VersionableAspect string          `yaml:"versionable_aspect,omitempty"`
	MaxDepth          int             `yaml:"max_depth,omitempty"`
	Archive           []ArchiveTarget `yaml:"archive,omitempty"`
	// DefaultLocale is the fallback of localized_property reads.
	DefaultLocale string `yaml:"default_locale,omitempty"`
}

// ArchiveTarget archives nodes deleted from Store into Archive.
type ArchiveTarget struct {
	Store   string `yaml:"store"`
	Archive string `yaml:"archive"`
}

// BehaviourSpec binds a scripted behaviour.
type BehaviourSpec struct {
	ID        string `yaml:"id"`
	Policy    string `yaml:"policy"`
	Class     string `yaml:"class"`
	AssocType string `yaml:"assoc_type,omitempty"`
	Frequency string `yaml:"frequency,omitempty"`

	// Action is record, fail or create_child. Every behaviour records its
	// invocation in the trace before acting.
	Action string `yaml:"action,omitempty"`

	// ChildType is the type created by create_child (default cm:content).
	ChildType string `yaml:"child_type,omitempty"`

	// Only limits the behaviour to events whose subject has this alias.
	Only string `yaml:"only,omitempty"`
}

// Behaviour actions.
const (
	ActionRecord      = "record"
	ActionFail        = "fail"
	ActionCreateChild = "create_child"
)

// Step is one node service operation. Node arguments are aliases: "root"
// is the root of workspace://main, and every step with "as" names the node
// it creates.
type Step struct {
	Op string `yaml:"op"`

	Node   string `yaml:"node,omitempty"`
	Parent string `yaml:"parent,omitempty"`
	Child  string `yaml:"child,omitempty"`
	Source string `yaml:"source,omitempty"`
	Target string `yaml:"target,omitempty"`
	Store  string `yaml:"store,omitempty"`

	Type      string `yaml:"type,omitempty"`
	Aspect    string `yaml:"aspect,omitempty"`
	AssocType string `yaml:"assoc_type,omitempty"`
	QName     string `yaml:"qname,omitempty"`

	Properties map[string]any `yaml:"properties,omitempty"`
	Property   string         `yaml:"property,omitempty"`
	Value      any            `yaml:"value,omitempty"`

	As          string `yaml:"as,omitempty"`
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreateStore       = "create_store"
	OpCreateNode        = "create_node"
	OpDeleteNode        = "delete_node"
	OpRestoreNode       = "restore_node"
	OpMoveNode          = "move_node"
	OpSetType           = "set_type"
	OpAddAspect         = "add_aspect"
	OpRemoveAspect      = "remove_aspect"
	OpSetProperties     = "set_properties"
	OpAddProperties     = "add_properties"
	OpSetProperty       = "set_property"
	OpRemoveProperty    = "remove_property"
	OpAddChild          = "add_child"
	OpRemoveChild       = "remove_child"
	OpCreateAssociation = "create_association"
	OpRemoveAssociation = "remove_association"
)

// Assertion checks the final repository state or the trace.
type Assertion struct {
	// Type is exists, not_exists, has_aspect, lacks_aspect, property,
	// fired, not_fired, fired_order or fired_count.
	Type string `yaml:"type"`

	Node     string `yaml:"node,omitempty"`
	Aspect   string `yaml:"aspect,omitempty"`
	Property string `yaml:"property,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	// Locale is the request locale of localized_property. Empty reads in
	// the default locale.
	Locale string `yaml:"locale,omitempty"`

	// Policy, Behaviour and Node select trace lines for the fired
	// assertions. Empty fields match anything.
	Policy    string `yaml:"policy,omitempty"`
	Behaviour string `yaml:"behaviour,omitempty"`

	// Lines are trace lines expected in order (fired_order).
	Lines []string `yaml:"lines,omitempty"`

	// Count is the expected number of matching lines (fired_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertExists      = "exists"
	AssertNotExists   = "not_exists"
	AssertHasAspect   = "has_aspect"
	AssertLacksAspect = "lacks_aspect"
	AssertProperty    = "property"
	AssertLocalized   = "localized_property"
	AssertFired       = "fired"
	AssertNotFired    = "not_fired"
	AssertFiredOrder  = "fired_order"
	AssertFiredCount  = "fired_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	for _, m := range s.Models {
		if _, err := os.Stat(s.modelDir(m)); err != nil {
			return nil, fmt.Errorf("%s: model dir: %w", path, err)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML. Model directories resolve against
// the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) modelDir(m string) string {
	if filepath.IsAbs(m) || s.dir == "" {
		return m
	}
	return filepath.Join(s.dir, m)
}

// validateScenario checks the shape of a scenario. Names are resolved
// later against the dictionary.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	ids := map[string]bool{}
	for i, b := range s.Behaviours {
		if b.ID == "" {
			return fmt.Errorf("behaviours[%d]: id is required", i)
		}
		if ids[b.ID] {
			return fmt.Errorf("behaviours[%d]: duplicate id %q", i, b.ID)
		}
		ids[b.ID] = true
		p, err := policy.ParseName(b.Policy)
		if err != nil {
			return fmt.Errorf("behaviours[%d]: %w", i, err)
		}
		if b.Class == "" {
			return fmt.Errorf("behaviours[%d]: class is required", i)
		}
		if p.Kind() == policy.AssociationScoped && b.AssocType == "" {
			return fmt.Errorf("behaviours[%d]: assoc_type is required for %s", i, p)
		}
		if _, err := policy.ParseFrequency(b.Frequency); err != nil {
			return fmt.Errorf("behaviours[%d]: %w", i, err)
		}
		switch b.Action {
		case "", ActionRecord, ActionFail, ActionCreateChild:
		default:
			return fmt.Errorf("behaviours[%d]: unknown action %q", i, b.Action)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("%s is required for %s", field, step.Op)
		}
		return nil
	}
	var errs []error
	switch step.Op {
	case OpCreateStore:
		errs = append(errs, need("store", step.Store))
	case OpCreateNode:
		errs = append(errs, need("parent", step.Parent), need("type", step.Type))
	case OpDeleteNode, OpRestoreNode, OpSetProperties, OpAddProperties:
		errs = append(errs, need("node", step.Node))
	case OpMoveNode:
		errs = append(errs, need("node", step.Node), need("parent", step.Parent))
	case OpSetType:
		errs = append(errs, need("node", step.Node), need("type", step.Type))
	case OpAddAspect, OpRemoveAspect:
		errs = append(errs, need("node", step.Node), need("aspect", step.Aspect))
	case OpSetProperty, OpRemoveProperty:
		errs = append(errs, need("node", step.Node), need("property", step.Property))
	case OpAddChild, OpRemoveChild:
		errs = append(errs, need("parent", step.Parent), need("child", step.Child))
	case OpCreateAssociation, OpRemoveAssociation:
		errs = append(errs, need("source", step.Source), need("target", step.Target), need("assoc_type", step.AssocType))
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertExists, AssertNotExists:
		if a.Node == "" {
			return fmt.Errorf("node is required for %s", a.Type)
		}
	case AssertHasAspect, AssertLacksAspect:
		if a.Node == "" || a.Aspect == "" {
			return fmt.Errorf("node and aspect are required for %s", a.Type)
		}
	case AssertProperty, AssertLocalized:
		if a.Node == "" || a.Property == "" {
			return fmt.Errorf("node and property are required for %s", a.Type)
		}
	case AssertFired, AssertNotFired:
		if a.Policy == "" && a.Behaviour == "" {
			return fmt.Errorf("policy or behaviour is required for %s", a.Type)
		}
	case AssertFiredOrder:
		if len(a.Lines) == 0 {
			return fmt.Errorf("lines list is required for fired_order")
		}
	case AssertFiredCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for fired_count")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
