package dictionary

import (
	"fmt"
	"strings"

	"github.com/roach88/noderepo/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Assembly errors (E201-E205)
	ErrNamespaceConflict    = "E201" // prefix bound to two URIs
	ErrUnresolvedName       = "E202" // prefixed name cannot be resolved
	ErrDuplicateClass       = "E203" // class declared twice
	ErrDuplicateProperty    = "E204" // property declared by two classes
	ErrDuplicateAssociation = "E205" // association declared by two classes

	// Lattice errors (E206-E213)
	ErrUnknownParent      = "E206" // parent class not defined
	ErrParentKind         = "E207" // type extends aspect or aspect extends type
	ErrInheritanceCycle   = "E208" // class is its own ancestor
	ErrUnknownMandatory   = "E209" // mandatory aspect not defined
	ErrMandatoryNotAspect = "E210" // mandatory aspect names a type
	ErrUnknownAssocTarget = "E211" // association target not defined
	ErrDefaultType        = "E213" // default value does not match property type
)

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is returned by Build when a model set is invalid.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d model validation error(s): %s", len(errs), strings.Join(msgs, "; "))
}

// Validate checks the class lattice for structural problems.
// Returns all errors found (does not fail-fast).
func Validate(d *Dictionary) []ValidationError {
	var errs []ValidationError
	for _, q := range d.order {
		c := d.classes[q]
		field := d.Prefixed(q)
		line := lineOf(d.positions[q])

		if !c.Parent.IsZero() {
			parent, ok := d.classes[c.Parent]
			switch {
			case !ok:
				errs = append(errs, ValidationError{
					Field:   field + ".parent",
					Message: fmt.Sprintf("unknown parent %s", d.Prefixed(c.Parent)),
					Code:    ErrUnknownParent,
					Line:    line,
				})
			case parent.Aspect != c.Aspect:
				errs = append(errs, ValidationError{
					Field:   field + ".parent",
					Message: fmt.Sprintf("%s %s cannot extend %s %s", kindName(c), field, kindName(parent), d.Prefixed(parent.Name)),
					Code:    ErrParentKind,
					Line:    line,
				})
			}
		}

		if inheritanceCycle(d, q) {
			errs = append(errs, ValidationError{
				Field:   field + ".parent",
				Message: "class is its own ancestor",
				Code:    ErrInheritanceCycle,
				Line:    line,
			})
		}

		for _, a := range c.MandatoryAspects {
			ac, ok := d.classes[a]
			switch {
			case !ok:
				errs = append(errs, ValidationError{
					Field:   field + ".mandatory_aspects",
					Message: fmt.Sprintf("unknown aspect %s", d.Prefixed(a)),
					Code:    ErrUnknownMandatory,
					Line:    line,
				})
			case !ac.Aspect:
				errs = append(errs, ValidationError{
					Field:   field + ".mandatory_aspects",
					Message: fmt.Sprintf("%s is a type, not an aspect", d.Prefixed(a)),
					Code:    ErrMandatoryNotAspect,
					Line:    line,
				})
			}
		}

		for _, a := range c.Associations {
			if a.Target.IsZero() {
				continue // already reported as unresolved
			}
			if _, ok := d.classes[a.Target]; !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".associations." + d.Prefixed(a.Name),
					Message: fmt.Sprintf("unknown target %s", d.Prefixed(a.Target)),
					Code:    ErrUnknownAssocTarget,
					Line:    line,
				})
			}
		}
	}
	return errs
}

// inheritanceCycle walks the parent chain of q looking for q.
func inheritanceCycle(d *Dictionary, q ir.QName) bool {
	seen := map[ir.QName]bool{}
	c, ok := d.classes[q]
	for ok && !c.Parent.IsZero() {
		if c.Parent == q {
			return true
		}
		if seen[c.Parent] {
			return false // cycle above q, reported for its members
		}
		seen[c.Parent] = true
		c, ok = d.classes[c.Parent]
	}
	return false
}

func kindName(c *ClassDef) string {
	if c.Aspect {
		return "aspect"
	}
	return "type"
}
