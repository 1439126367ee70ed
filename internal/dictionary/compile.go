package dictionary

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/noderepo/internal/ir"
)

// CompileModelString compiles a CUE model document held in memory.
func CompileModelString(name, src string) (*Model, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(name))
	return CompileModel(name, v)
}

// LoadModelDir loads every .cue file in dir as a single model.
func LoadModelDir(dir string) (*Model, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("model directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	v := ctx.BuildInstance(inst)
	return CompileModel(dir, v)
}

// CompileModel parses a CUE value into a Model.
//
// The value is a document of the form:
//
//	namespaces: { cm: "http://..." }
//	types:   { "cm:folder": { parent: "cm:cmobject", ... } }
//	aspects: { "cm:titled": { properties: { ... } } }
func CompileModel(name string, v cue.Value) (*Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Model{Name: name, Namespaces: ir.Namespaces{}}

	nsVal := v.LookupPath(cue.ParsePath("namespaces"))
	if nsVal.Exists() {
		iter, err := nsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			uri, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   "namespaces." + iter.Label(),
					Message: "namespace URI must be a string",
					Pos:     iter.Value().Pos(),
				}
			}
			m.Namespaces[iter.Label()] = uri
		}
	}

	for _, section := range []struct {
		path   string
		aspect bool
	}{{"types", false}, {"aspects", true}} {
		sv := v.LookupPath(cue.ParsePath(section.path))
		if !sv.Exists() {
			continue
		}
		iter, err := sv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			class, err := compileClass(iter.Label(), section.aspect, iter.Value())
			if err != nil {
				return nil, err
			}
			m.Classes = append(m.Classes, *class)
		}
	}

	if len(m.Classes) == 0 && len(m.Namespaces) == 0 {
		return nil, &CompileError{
			Field:   "model",
			Message: "model declares no namespaces, types or aspects",
			Pos:     v.Pos(),
		}
	}

	return m, nil
}

func compileClass(name string, aspect bool, v cue.Value) (*ModelClass, error) {
	class := &ModelClass{Name: name, Aspect: aspect, Pos: v.Pos()}

	var err error
	if class.Title, err = optionalString(v, "title"); err != nil {
		return nil, err
	}
	if class.Parent, err = optionalString(v, "parent"); err != nil {
		return nil, err
	}

	archiveVal := v.LookupPath(cue.ParsePath("archive"))
	if archiveVal.Exists() {
		if aspect {
			return nil, &CompileError{
				Field:   name + ".archive",
				Message: "archive is only valid on types",
				Pos:     archiveVal.Pos(),
			}
		}
		b, err := archiveVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		class.Archive = &b
	}

	mandVal := v.LookupPath(cue.ParsePath("mandatory_aspects"))
	if mandVal.Exists() {
		list, err := mandVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			class.MandatoryAspects = append(class.MandatoryAspects, s)
		}
	}

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if propsVal.Exists() {
		iter, err := propsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			prop, err := compileProperty(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			class.Properties = append(class.Properties, *prop)
		}
	}

	assocVal := v.LookupPath(cue.ParsePath("associations"))
	if assocVal.Exists() {
		iter, err := assocVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			assoc, err := compileAssociation(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			class.Associations = append(class.Associations, *assoc)
		}
	}

	return class, nil
}

func compileProperty(name string, v cue.Value) (*ModelProperty, error) {
	prop := &ModelProperty{Name: name, Pos: v.Pos()}

	typeName, err := optionalString(v, "type")
	if err != nil {
		return nil, err
	}
	if typeName == "" {
		return nil, &CompileError{
			Field:   name + ".type",
			Message: "property type is required",
			Pos:     v.Pos(),
		}
	}
	prop.Type = ir.DataType(typeName)
	if !ir.ValidDataType(prop.Type) {
		return nil, &CompileError{
			Field:   name + ".type",
			Message: fmt.Sprintf("unknown property type %q", typeName),
			Pos:     v.Pos(),
		}
	}

	multVal := v.LookupPath(cue.ParsePath("multiple"))
	if multVal.Exists() {
		if prop.Multiple, err = multVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		if prop.Default, err = decodeDefault(defVal); err != nil {
			return nil, err
		}
	}

	return prop, nil
}

func compileAssociation(name string, v cue.Value) (*ModelAssociation, error) {
	assoc := &ModelAssociation{Name: name, Pos: v.Pos()}

	var err error
	if assoc.Kind, err = optionalString(v, "kind"); err != nil {
		return nil, err
	}
	if assoc.Kind != KindChild && assoc.Kind != KindPeer {
		return nil, &CompileError{
			Field:   name + ".kind",
			Message: fmt.Sprintf("association kind must be %q or %q", KindChild, KindPeer),
			Pos:     v.Pos(),
		}
	}
	if assoc.Target, err = optionalString(v, "target"); err != nil {
		return nil, err
	}
	if assoc.Target == "" {
		return nil, &CompileError{
			Field:   name + ".target",
			Message: "association target is required",
			Pos:     v.Pos(),
		}
	}

	dupVal := v.LookupPath(cue.ParsePath("duplicate"))
	if dupVal.Exists() {
		if assoc.Kind != KindChild {
			return nil, &CompileError{
				Field:   name + ".duplicate",
				Message: "duplicate is only valid on child associations",
				Pos:     dupVal.Pos(),
			}
		}
		if assoc.Duplicate, err = dupVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	return assoc, nil
}

// decodeDefault converts a concrete CUE value into a Go value understood by
// ir.ValueFromAny. Floats are rejected.
func decodeDefault(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		return v.Int64()
	case cue.BoolKind:
		return v.Bool()
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var items []any
		for list.Next() {
			item, err := decodeDefault(list.Value())
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m := map[string]any{}
		for iter.Next() {
			item, err := decodeDefault(iter.Value())
			if err != nil {
				return nil, err
			}
			m[iter.Label()] = item
		}
		return m, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "default",
			Message: "float defaults are not supported - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "default",
			Message: fmt.Sprintf("default must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: field + " must be a string",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// CompileError represents a model compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
