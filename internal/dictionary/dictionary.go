package dictionary

import (
	"fmt"
	"maps"
	"slices"

	"cuelang.org/go/cue/token"

	"github.com/roach88/noderepo/internal/ir"
)

// Dictionary is the resolved class lattice: single-parent type and aspect
// hierarchies plus property and association definitions.
//
// A Dictionary is immutable after Build and safe for concurrent use.
type Dictionary struct {
	namespaces   ir.Namespaces
	classes      map[ir.QName]*ClassDef
	order        []ir.QName
	properties   map[ir.QName]*PropertyDef
	associations map[ir.QName]*AssocDef
	positions    map[ir.QName]token.Pos
}

// Build resolves and validates models into a Dictionary. Later models may
// refer to classes and namespaces of earlier ones and vice versa.
//
// On failure the returned error is a ValidationErrors listing every problem.
func Build(models ...*Model) (*Dictionary, error) {
	d, errs := assemble(models)
	errs = append(errs, Validate(d)...)
	if len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return d, nil
}

func assemble(models []*Model) (*Dictionary, []ValidationError) {
	d := &Dictionary{
		namespaces:   ir.Namespaces{},
		classes:      make(map[ir.QName]*ClassDef),
		properties:   make(map[ir.QName]*PropertyDef),
		associations: make(map[ir.QName]*AssocDef),
		positions:    make(map[ir.QName]token.Pos),
	}
	var errs []ValidationError

	for _, m := range models {
		for _, prefix := range slices.Sorted(maps.Keys(m.Namespaces)) {
			uri := m.Namespaces[prefix]
			if existing, ok := d.namespaces[prefix]; ok && existing != uri {
				errs = append(errs, ValidationError{
					Field:   "namespaces." + prefix,
					Message: fmt.Sprintf("prefix bound to %q in %s, already bound to %q", uri, m.Name, existing),
					Code:    ErrNamespaceConflict,
				})
				continue
			}
			d.namespaces[prefix] = uri
		}
	}

	resolve := func(field, s string, pos token.Pos) (ir.QName, bool) {
		q, err := d.namespaces.Resolve(s)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: err.Error(),
				Code:    ErrUnresolvedName,
				Line:    lineOf(pos),
			})
			return ir.QName{}, false
		}
		return q, true
	}

	for _, m := range models {
		for _, mc := range m.Classes {
			name, ok := resolve(mc.Name, mc.Name, mc.Pos)
			if !ok {
				continue
			}
			if _, dup := d.classes[name]; dup {
				errs = append(errs, ValidationError{
					Field:   mc.Name,
					Message: fmt.Sprintf("class already defined (redefined in %s)", m.Name),
					Code:    ErrDuplicateClass,
					Line:    lineOf(mc.Pos),
				})
				continue
			}

			class := &ClassDef{
				Name:    name,
				Title:   mc.Title,
				Aspect:  mc.Aspect,
				Archive: mc.Archive,
				Model:   m.Name,
			}
			if mc.Parent != "" {
				class.Parent, _ = resolve(mc.Name+".parent", mc.Parent, mc.Pos)
			}
			for _, s := range mc.MandatoryAspects {
				if q, ok := resolve(mc.Name+".mandatory_aspects", s, mc.Pos); ok {
					class.MandatoryAspects = append(class.MandatoryAspects, q)
				}
			}

			for _, mp := range mc.Properties {
				pname, ok := resolve(mc.Name+".properties."+mp.Name, mp.Name, mp.Pos)
				if !ok {
					continue
				}
				if owner, dup := d.properties[pname]; dup {
					errs = append(errs, ValidationError{
						Field:   mc.Name + ".properties." + mp.Name,
						Message: fmt.Sprintf("property already declared by %s", owner.Class),
						Code:    ErrDuplicateProperty,
						Line:    lineOf(mp.Pos),
					})
					continue
				}
				prop := PropertyDef{Name: pname, Class: name, Type: mp.Type, Multiple: mp.Multiple}
				if mp.Default != nil {
					def, err := ir.ValueFromAny(mp.Type, mp.Default)
					if err != nil {
						errs = append(errs, ValidationError{
							Field:   mc.Name + ".properties." + mp.Name + ".default",
							Message: err.Error(),
							Code:    ErrDefaultType,
							Line:    lineOf(mp.Pos),
						})
					} else {
						prop.Default = def
					}
				}
				class.Properties = append(class.Properties, prop)
			}

			for _, ma := range mc.Associations {
				aname, ok := resolve(mc.Name+".associations."+ma.Name, ma.Name, ma.Pos)
				if !ok {
					continue
				}
				if owner, dup := d.associations[aname]; dup {
					errs = append(errs, ValidationError{
						Field:   mc.Name + ".associations." + ma.Name,
						Message: fmt.Sprintf("association already declared by %s", owner.Class),
						Code:    ErrDuplicateAssociation,
						Line:    lineOf(ma.Pos),
					})
					continue
				}
				target, _ := resolve(mc.Name+".associations."+ma.Name+".target", ma.Target, ma.Pos)
				class.Associations = append(class.Associations, AssocDef{
					Name:      aname,
					Class:     name,
					Target:    target,
					Child:     ma.Kind == KindChild,
					Duplicate: ma.Duplicate,
				})
			}
			for i := range class.Properties {
				d.properties[class.Properties[i].Name] = &class.Properties[i]
			}
			for i := range class.Associations {
				d.associations[class.Associations[i].Name] = &class.Associations[i]
			}

			d.classes[name] = class
			d.order = append(d.order, name)
			d.positions[name] = mc.Pos
		}
	}

	return d, errs
}

func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// Namespaces returns a copy of the prefix map.
func (d *Dictionary) Namespaces() ir.Namespaces {
	return maps.Clone(d.namespaces)
}

// Resolve parses prefixed or Clark notation.
func (d *Dictionary) Resolve(s string) (ir.QName, error) {
	return d.namespaces.Resolve(s)
}

// Prefixed renders q with its namespace prefix.
func (d *Dictionary) Prefixed(q ir.QName) string {
	return d.namespaces.Prefixed(q)
}

// Class returns the type or aspect definition for q.
func (d *Dictionary) Class(q ir.QName) (*ClassDef, bool) {
	c, ok := d.classes[q]
	return c, ok
}

// Type returns the definition of q if it is a type.
func (d *Dictionary) Type(q ir.QName) (*ClassDef, bool) {
	c, ok := d.classes[q]
	if !ok || c.Aspect {
		return nil, false
	}
	return c, true
}

// Aspect returns the definition of q if it is an aspect.
func (d *Dictionary) Aspect(q ir.QName) (*ClassDef, bool) {
	c, ok := d.classes[q]
	if !ok || !c.Aspect {
		return nil, false
	}
	return c, true
}

// IsDefined reports whether q names a class, property or association.
func (d *Dictionary) IsDefined(q ir.QName) bool {
	if _, ok := d.classes[q]; ok {
		return true
	}
	if _, ok := d.properties[q]; ok {
		return true
	}
	_, ok := d.associations[q]
	return ok
}

// Classes returns every class in declaration order.
func (d *Dictionary) Classes() []ir.QName {
	return slices.Clone(d.order)
}

// AncestorsOf returns the parent chain of q, most specific first, not
// including q itself. Unknown classes have no ancestors.
func (d *Dictionary) AncestorsOf(q ir.QName) []ir.QName {
	var out []ir.QName
	seen := map[ir.QName]bool{q: true}
	c, ok := d.classes[q]
	for ok && !c.Parent.IsZero() && !seen[c.Parent] {
		seen[c.Parent] = true
		out = append(out, c.Parent)
		c, ok = d.classes[c.Parent]
	}
	return out
}

// chain returns q followed by its ancestors.
func (d *Dictionary) chain(q ir.QName) []ir.QName {
	return append([]ir.QName{q}, d.AncestorsOf(q)...)
}

// IsSubClass reports whether class is of or descends from it.
func (d *Dictionary) IsSubClass(class, of ir.QName) bool {
	return slices.Contains(d.chain(class), of)
}

// MandatoryAspectsOf returns the aspects declared mandatory by q and its
// ancestors, nearest class first, without duplicates. The result is not
// expanded transitively through the aspects' own mandatory aspects.
func (d *Dictionary) MandatoryAspectsOf(q ir.QName) []ir.QName {
	var out []ir.QName
	for _, cq := range d.chain(q) {
		c, ok := d.classes[cq]
		if !ok {
			continue
		}
		for _, a := range c.MandatoryAspects {
			if !slices.Contains(out, a) {
				out = append(out, a)
			}
		}
	}
	return out
}

// DefaultPropertiesOf returns the default values declared by q and its
// ancestors. A nearer class's default wins.
func (d *Dictionary) DefaultPropertiesOf(q ir.QName) ir.PropertyMap {
	out := ir.PropertyMap{}
	for _, p := range d.AllPropertiesOf(q) {
		if p.Default == nil {
			continue
		}
		if _, set := out[p.Name]; !set {
			out[p.Name] = p.Default
		}
	}
	return out
}

// Property returns the definition of a property.
func (d *Dictionary) Property(q ir.QName) (*PropertyDef, bool) {
	p, ok := d.properties[q]
	return p, ok
}

// PropertiesOf returns the properties declared directly by q.
func (d *Dictionary) PropertiesOf(q ir.QName) []PropertyDef {
	c, ok := d.classes[q]
	if !ok {
		return nil
	}
	return slices.Clone(c.Properties)
}

// AllPropertiesOf returns the properties of q and its ancestors, nearest
// class first.
func (d *Dictionary) AllPropertiesOf(q ir.QName) []PropertyDef {
	var out []PropertyDef
	for _, cq := range d.chain(q) {
		out = append(out, d.PropertiesOf(cq)...)
	}
	return out
}

// Association returns the definition of an association type.
func (d *Dictionary) Association(q ir.QName) (*AssocDef, bool) {
	a, ok := d.associations[q]
	return a, ok
}

// AssociationsOf returns the associations declared directly by q.
func (d *Dictionary) AssociationsOf(q ir.QName) []AssocDef {
	c, ok := d.classes[q]
	if !ok {
		return nil
	}
	return slices.Clone(c.Associations)
}

// AllAssociationsOf returns the associations of q and its ancestors.
func (d *Dictionary) AllAssociationsOf(q ir.QName) []AssocDef {
	var out []AssocDef
	for _, cq := range d.chain(q) {
		out = append(out, d.AssociationsOf(cq)...)
	}
	return out
}

// IsArchive reports whether nodes of type q are archived on delete. The
// nearest explicit flag in the type chain wins; the default is false.
func (d *Dictionary) IsArchive(q ir.QName) bool {
	for _, cq := range d.chain(q) {
		if c, ok := d.classes[cq]; ok && c.Archive != nil {
			return *c.Archive
		}
	}
	return false
}
