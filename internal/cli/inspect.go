package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Aspects []string
}

// ClassInfo describes a class as a node of that class would see it.
type ClassInfo struct {
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Title        string         `json:"title,omitempty"`
	Model        string         `json:"model"`
	Ancestors    []string       `json:"ancestors,omitempty"`
	Archive      bool           `json:"archive"`
	Aspects      []string       `json:"aspects,omitempty"`
	Properties   []PropertyInfo `json:"properties,omitempty"`
	Associations []AssocInfo    `json:"associations,omitempty"`
}

// PropertyInfo is one property of an inspected class.
type PropertyInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Multiple bool   `json:"multiple,omitempty"`
	Default  string `json:"default,omitempty"`
	From     string `json:"from"`
}

// AssocInfo is one association of an inspected class.
type AssocInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Target    string `json:"target"`
	Duplicate bool   `json:"duplicate,omitempty"`
	From      string `json:"from"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <model-dir> <class>",
		Short: "Show the resolved definition of a class",
		Long: `Resolve a type or aspect against the bootstrap models and the model
in <model-dir>, and show its ancestors, the aspects a new node would
carry, and every property and association it inherits.

Use "-" as <model-dir> to inspect the bootstrap models only. Each
--aspect adds an applied aspect, as if it were added to the node.

Examples:
  noderepo inspect ./models cm:content
  noderepo inspect ./models my:invoice --aspect cm:titled
  noderepo inspect - sys:base --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Aspects, "aspect", nil, "apply an aspect (repeatable)")

	return cmd
}

func runInspect(opts *InspectOptions, modelDir, class string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var (
		d   *dictionary.Dictionary
		err error
	)
	if modelDir == "-" {
		d, err = dictionary.New()
	} else {
		if derr := checkModelDir(modelDir); derr != nil {
			return outputValidateError(formatter, derr.code, derr.message)
		}
		d, err = dictionary.NewFromDirs(modelDir)
	}
	if err != nil {
		return outputValidateError(formatter, ErrCodeCompile, err.Error())
	}

	info, err := InspectClass(d, class, opts.Aspects)
	if err != nil {
		return outputValidateError(formatter, ErrCodeNotFound, err.Error())
	}

	if formatter.Format == "json" {
		return formatter.Success(info)
	}
	writeClassInfo(formatter, info)
	return nil
}

// InspectClass resolves class and the applied aspects in d. The aspect
// set is the applied aspects plus every mandatory aspect of the class,
// expanded through the aspects' own mandatory aspects.
func InspectClass(d *dictionary.Dictionary, class string, applied []string) (*ClassInfo, error) {
	q, err := d.Resolve(class)
	if err != nil {
		return nil, err
	}
	c, ok := d.Class(q)
	if !ok {
		return nil, fmt.Errorf("class not found: %s", class)
	}

	worklist := d.MandatoryAspectsOf(q)
	for _, a := range applied {
		aq, err := d.Resolve(a)
		if err != nil {
			return nil, err
		}
		if _, ok := d.Aspect(aq); !ok {
			return nil, fmt.Errorf("aspect not found: %s", a)
		}
		worklist = append(worklist, aq)
	}
	var aspects []ir.QName
	for len(worklist) > 0 {
		a := worklist[0]
		worklist = worklist[1:]
		if a == q || slices.Contains(aspects, a) {
			continue
		}
		aspects = append(aspects, a)
		worklist = append(worklist, d.MandatoryAspectsOf(a)...)
	}

	info := &ClassInfo{
		Name:  d.Prefixed(q),
		Kind:  "type",
		Title: c.Title,
		Model: c.Model,
	}
	if c.Aspect {
		info.Kind = "aspect"
	} else {
		info.Archive = d.IsArchive(q)
	}
	for _, a := range d.AncestorsOf(q) {
		info.Ancestors = append(info.Ancestors, d.Prefixed(a))
	}

	for _, cq := range append([]ir.QName{q}, aspects...) {
		if cq != q {
			info.Aspects = append(info.Aspects, d.Prefixed(cq))
		}
		for _, p := range d.AllPropertiesOf(cq) {
			pi := PropertyInfo{
				Name:     d.Prefixed(p.Name),
				Type:     string(p.Type),
				Multiple: p.Multiple,
				From:     d.Prefixed(p.Class),
			}
			if p.Default != nil {
				pi.Default = fmt.Sprint(p.Default)
			}
			info.Properties = append(info.Properties, pi)
		}
		for _, a := range d.AllAssociationsOf(cq) {
			kind := dictionary.KindPeer
			if a.Child {
				kind = dictionary.KindChild
			}
			info.Associations = append(info.Associations, AssocInfo{
				Name:      d.Prefixed(a.Name),
				Kind:      kind,
				Target:    d.Prefixed(a.Target),
				Duplicate: a.Duplicate,
				From:      d.Prefixed(a.Class),
			})
		}
	}
	return info, nil
}

func writeClassInfo(f *OutputFormatter, info *ClassInfo) {
	w := f.Writer
	fmt.Fprintf(w, "%s %s", info.Kind, info.Name)
	if info.Title != "" {
		fmt.Fprintf(w, " (%s)", info.Title)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  model:     %s\n", info.Model)
	if len(info.Ancestors) > 0 {
		fmt.Fprintf(w, "  ancestors: %s\n", strings.Join(info.Ancestors, " → "))
	}
	if info.Kind == "type" {
		fmt.Fprintf(w, "  archive:   %t\n", info.Archive)
	}
	if len(info.Aspects) > 0 {
		fmt.Fprintf(w, "  aspects:   %s\n", strings.Join(info.Aspects, ", "))
	}

	if len(info.Properties) > 0 {
		fmt.Fprintln(w, "properties:")
		for _, p := range info.Properties {
			typ := p.Type
			if p.Multiple {
				typ += "[]"
			}
			fmt.Fprintf(w, "  %-24s %-10s from %s", p.Name, typ, p.From)
			if p.Default != "" {
				fmt.Fprintf(w, " default %s", p.Default)
			}
			fmt.Fprintln(w)
		}
	}
	if len(info.Associations) > 0 {
		fmt.Fprintln(w, "associations:")
		for _, a := range info.Associations {
			fmt.Fprintf(w, "  %-24s %-6s → %s from %s\n", a.Name, a.Kind, a.Target, a.From)
		}
	}
}
