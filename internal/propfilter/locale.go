package propfilter

import (
	"context"

	"golang.org/x/text/language"

	"github.com/roach88/noderepo/internal/dictionary"
	"github.com/roach88/noderepo/internal/ir"
)

type localeKey struct{}

// WithLocale returns a context whose reads and writes use tag.
func WithLocale(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, localeKey{}, tag)
}

// LocaleFrom returns the locale set by WithLocale.
func LocaleFrom(ctx context.Context) (language.Tag, bool) {
	tag, ok := ctx.Value(localeKey{}).(language.Tag)
	return tag, ok
}

// LocaleFilter presents mltext properties as plain text in the context
// locale.
//
// On read each mltext value becomes the translation that best matches the
// context locale, then the default locale, then the locale-neutral entry.
// A value with none of these reads as its first translation in tag order.
//
// On write a text value for an mltext property is stored under the context
// locale, merged with the translations already stored. mltext values pass
// through unchanged.
type LocaleFilter struct {
	dict     *dictionary.Dictionary
	fallback language.Tag
}

// NewLocaleFilter creates a filter that falls back to def.
func NewLocaleFilter(dict *dictionary.Dictionary, def language.Tag) *LocaleFilter {
	return &LocaleFilter{dict: dict, fallback: def}
}

func (f *LocaleFilter) locale(ctx context.Context) language.Tag {
	if tag, ok := LocaleFrom(ctx); ok {
		return tag
	}
	return f.fallback
}

// Read implements Filter.
func (f *LocaleFilter) Read(ctx context.Context, _ ir.NodeRef, props ir.PropertyMap) (ir.PropertyMap, error) {
	want := f.locale(ctx)
	out := make(ir.PropertyMap, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case ir.MLTextValue:
			out[k] = ir.Text(f.choose(val, want))
		case ir.ListValue:
			out[k] = f.readList(val, want)
		default:
			out[k] = v
		}
	}
	return out, nil
}

func (f *LocaleFilter) readList(l ir.ListValue, want language.Tag) ir.ListValue {
	out := make(ir.ListValue, len(l))
	for i, v := range l {
		if ml, ok := v.(ir.MLTextValue); ok {
			out[i] = ir.Text(f.choose(ml, want))
		} else {
			out[i] = v
		}
	}
	return out
}

// choose picks the translation of m for want.
func (f *LocaleFilter) choose(m ir.MLTextValue, want language.Tag) string {
	var (
		keys []string
		tags []language.Tag
	)
	for _, k := range m.Locales() {
		if k == "" {
			continue
		}
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		keys = append(keys, k)
		tags = append(tags, tag)
	}
	if len(tags) > 0 {
		matcher := language.NewMatcher(tags)
		for _, t := range []language.Tag{want, f.fallback} {
			if _, i, conf := matcher.Match(t); conf != language.No {
				return m[keys[i]]
			}
		}
	}
	if s, ok := m[""]; ok {
		return s
	}
	if locales := m.Locales(); len(locales) > 0 {
		return m[locales[0]]
	}
	return ""
}

// Write implements Filter.
func (f *LocaleFilter) Write(ctx context.Context, _ ir.NodeRef, stored, props ir.PropertyMap) (ir.PropertyMap, error) {
	tag := f.locale(ctx).String()
	out := make(ir.PropertyMap, len(props))
	for k, v := range props {
		text, ok := v.(ir.TextValue)
		if !ok || !f.isMLText(k) {
			out[k] = v
			continue
		}
		merged := ir.MLTextValue{}
		if prev, ok := stored[k].(ir.MLTextValue); ok {
			for l, s := range prev {
				merged[l] = s
			}
		}
		merged[tag] = string(text)
		out[k] = merged
	}
	return out, nil
}

func (f *LocaleFilter) isMLText(q ir.QName) bool {
	def, ok := f.dict.Property(q)
	return ok && def.Type == ir.TypeMLText && !def.Multiple
}
