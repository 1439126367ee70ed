package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/language"

	"github.com/roach88/noderepo/internal/ir"
	"github.com/roach88/noderepo/internal/propfilter"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for the fired assertions
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// evaluate checks every assertion and returns one message per failure.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion, trace []string) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertExists, AssertNotExists:
			err = h.assertExists(ctx, a)
		case AssertHasAspect, AssertLacksAspect:
			err = h.assertAspect(ctx, a)
		case AssertProperty:
			err = h.assertProperty(ctx, a)
		case AssertLocalized:
			err = h.assertLocalized(ctx, a)
		case AssertFired, AssertNotFired:
			err = h.assertFired(a, trace)
		case AssertFiredOrder:
			err = assertFiredOrder(a, trace)
		case AssertFiredCount:
			err = h.assertFiredCount(a, trace)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) assertExists(ctx context.Context, a Assertion) error {
	ref, err := h.ref(a.Node)
	if err != nil {
		return err
	}
	exists, err := h.svc.Exists(ctx, ref)
	if err != nil {
		return err
	}
	if want := a.Type == AssertExists; exists != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s exists=%t", a.Node, want),
			Actual:   fmt.Sprintf("exists=%t", exists),
		}
	}
	return nil
}

func (h *Harness) assertAspect(ctx context.Context, a Assertion) error {
	ref, err := h.ref(a.Node)
	if err != nil {
		return err
	}
	aspect, err := h.dict.Resolve(a.Aspect)
	if err != nil {
		return err
	}
	aspects, err := h.svc.Aspects(ctx, ref)
	if err != nil {
		return err
	}
	if want := a.Type == AssertHasAspect; slices.Contains(aspects, aspect) != want {
		names := make([]string, len(aspects))
		for i, q := range aspects {
			names[i] = h.dict.Prefixed(q)
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s has %s=%t", a.Node, a.Aspect, want),
			Actual:   fmt.Sprintf("aspects %v", names),
		}
	}
	return nil
}

// assertProperty compares a property with the expected value. An absent
// value expects the property to be unset.
func (h *Harness) assertProperty(ctx context.Context, a Assertion) error {
	ref, err := h.ref(a.Node)
	if err != nil {
		return err
	}
	name, err := h.dict.Resolve(a.Property)
	if err != nil {
		return err
	}
	actual, err := h.svc.Property(ctx, ref, name)
	if err != nil {
		return err
	}
	var want ir.Value
	if a.Value != nil {
		if want, err = h.value(name, a.Value); err != nil {
			return err
		}
	}
	if want == nil && actual == nil {
		return nil
	}
	if want == nil || actual == nil || !ir.ValuesEqual(want, actual) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s = %v", a.Node, a.Property, want),
			Actual:   fmt.Sprintf("%v", actual),
		}
	}
	return nil
}

// assertLocalized reads a property through the locale filter, so mltext
// values compare as the text of the best matching translation.
func (h *Harness) assertLocalized(ctx context.Context, a Assertion) error {
	ref, err := h.ref(a.Node)
	if err != nil {
		return err
	}
	name, err := h.dict.Resolve(a.Property)
	if err != nil {
		return err
	}
	if a.Locale != "" {
		tag, err := language.Parse(a.Locale)
		if err != nil {
			return fmt.Errorf("locale: %w", err)
		}
		ctx = propfilter.WithLocale(ctx, tag)
	}
	actual, err := h.props.Property(ctx, ref, name)
	if err != nil {
		return err
	}
	want := ""
	if a.Value != nil {
		want = fmt.Sprint(a.Value)
	}
	got := ""
	if actual != nil {
		got = fmt.Sprint(actual)
		if t, ok := actual.(ir.TextValue); ok {
			got = string(t)
		}
	}
	if got != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s [%s] = %q", a.Node, a.Property, a.Locale, want),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

// matches reports whether a trace line fits the policy, behaviour and
// node filters of a. Empty filters match anything.
func matches(a Assertion, line string) bool {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return false
	}
	return (a.Policy == "" || fields[0] == a.Policy) &&
		(a.Behaviour == "" || fields[1] == a.Behaviour) &&
		(a.Node == "" || fields[2] == a.Node)
}

func (h *Harness) assertFired(a Assertion, trace []string) error {
	found := slices.ContainsFunc(trace, func(line string) bool { return matches(a, line) })
	if want := a.Type == AssertFired; found != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s fired=%t", describe(a), want),
			Actual:   fmt.Sprintf("fired=%t", found),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertFiredCount(a Assertion, trace []string) error {
	count := 0
	for _, line := range trace {
		if matches(a, line) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFiredOrder checks that the lines appear in order. Other lines may
// come in between.
func assertFiredOrder(a Assertion, trace []string) error {
	next := 0
	for _, line := range trace {
		if next < len(a.Lines) && line == a.Lines[next] {
			next++
		}
	}
	if next < len(a.Lines) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("lines in order: %v", a.Lines),
			Actual:   fmt.Sprintf("%q not found after %d matched line(s)", a.Lines[next], next),
			Trace:    trace,
		}
	}
	return nil
}

func describe(a Assertion) string {
	parts := []string{a.Policy, a.Behaviour, a.Node}
	for i, p := range parts {
		if p == "" {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, " ")
}
