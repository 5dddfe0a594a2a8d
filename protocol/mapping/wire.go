package mapping

import (
	"context"
	"sort"
	"strconv"

	"github.com/juju/errors"

	"github.com/reoring/soapbox/wiretype"
)

// encoder turns native values into mapping trees following their types.
type encoder struct {
	rawBinary bool
	// stream, when set, takes over lazily produced arrays and returns the
	// value written in their place.
	stream func(it wiretype.Iterator, member wiretype.Type) (any, error)
}

func (e *encoder) value(t wiretype.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	a := t.Attrs()
	if a.Repeated() {
		return e.list(t.Customize(wiretype.MaxOccurs(1)), v)
	}
	switch tt := t.(type) {
	case *wiretype.Primitive:
		return e.primitive(tt, v)
	case *wiretype.Complex:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errors.NotValidf("%T as complex type %q", v, tt.Name())
		}
		obj := make(Object, 0, len(m))
		for _, f := range tt.Fields() {
			fv, present := m[f.Name]
			if !present {
				continue
			}
			w, err := e.value(f.Type, fv)
			if err != nil {
				return nil, errors.Annotate(err, f.Name)
			}
			obj = append(obj, Member{Key: f.Name, Value: w})
		}
		return obj, nil
	case *wiretype.Array:
		return e.list(tt.Member().Customize(wiretype.MaxOccurs(1)), v)
	}
	return nil, errors.NotSupportedf("wire type %T", t)
}

func (e *encoder) list(member wiretype.Type, v any) (any, error) {
	switch items := v.(type) {
	case []any:
		out := make([]any, len(items))
		for i, it := range items {
			w, err := e.value(member, it)
			if err != nil {
				return nil, errors.Annotatef(err, "item %d", i)
			}
			out[i] = w
		}
		return out, nil
	case wiretype.Iterator:
		if e.stream != nil {
			return e.stream(items, member)
		}
		all, err := wiretype.Collect(context.Background(), items)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return e.list(member, all)
	}
	return nil, errors.NotValidf("%T as a list", v)
}

func (e *encoder) primitive(p *wiretype.Primitive, v any) (any, error) {
	switch p.PrimitiveKind() {
	case wiretype.KindString, wiretype.KindAnyDocument, wiretype.KindBoolean:
		return v, nil
	case wiretype.KindInteger, wiretype.KindFloat:
		return wiretype.Coerce(p, v)
	case wiretype.KindBinary:
		if c, ok := v.(wiretype.ByteChunks); ok {
			b, err := wiretype.ReadAllChunks(context.Background(), c)
			if err != nil {
				return nil, errors.Trace(err)
			}
			v = b
		}
		if e.rawBinary {
			return v, nil
		}
	}
	s, err := wiretype.ToString(p, v)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// generic orders the keys of plain maps so untyped values (fault details)
// encode deterministically.
func generic(v any) any {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(Object, 0, len(keys))
		for _, k := range keys {
			obj = append(obj, Member{Key: k, Value: generic(x[k])})
		}
		return obj
	case []any:
		out := make([]any, len(x))
		for i, it := range x {
			out[i] = generic(it)
		}
		return out
	}
	return v
}

// decoder turns decoded mapping trees into canonical native values.
type decoder struct {
	// unknown reports keys absent from the declared type.
	unknown bool
}

func (d *decoder) value(t wiretype.Type, v any, path string) (any, error) {
	var iss wiretype.Issues
	out := d.convert(t, v, path, &iss)
	if len(iss) > 0 {
		return out, iss
	}
	return out, nil
}

func (d *decoder) convert(t wiretype.Type, v any, path string, iss *wiretype.Issues) any {
	if v == nil {
		return nil
	}
	if t.Attrs().Repeated() {
		return d.list(t.Customize(wiretype.MaxOccurs(1)), v, path, iss)
	}
	switch tt := t.(type) {
	case *wiretype.Primitive:
		out, err := wiretype.Coerce(tt, v)
		if err != nil {
			if more, ok := wiretype.AsIssues(err); ok {
				*iss = append(*iss, more.Rebase(path)...)
			} else {
				*iss = append(*iss, wiretype.IssueAt(path, wiretype.CodeInvalidFormat, nil))
			}
			return nil
		}
		return out
	case *wiretype.Complex:
		m, ok := v.(map[string]any)
		if !ok {
			*iss = append(*iss, wiretype.IssueAt(path, wiretype.CodeInvalidType, map[string]any{"expected": tt.Name()}))
			return nil
		}
		out := make(map[string]any, len(m))
		for k, fv := range m {
			f, ok := tt.Field(k)
			if !ok {
				if d.unknown {
					*iss = append(*iss, wiretype.IssueAt(join(path, k), wiretype.CodeUnknownKey, nil))
				}
				continue
			}
			out[k] = d.convert(f.Type, fv, join(path, k), iss)
		}
		return out
	case *wiretype.Array:
		return d.list(tt.Member().Customize(wiretype.MaxOccurs(1)), v, path, iss)
	}
	*iss = append(*iss, wiretype.IssueAt(path, wiretype.CodeInvalidType, nil))
	return nil
}

// list converts a sequence. A lone value where a sequence is expected is
// read as a sequence of one.
func (d *decoder) list(member wiretype.Type, v any, path string, iss *wiretype.Issues) any {
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = d.convert(member, it, join(path, strconv.Itoa(i)), iss)
	}
	return out
}

func join(base, seg string) string {
	if base == "" || base == "/" {
		return "/" + seg
	}
	return base + "/" + seg
}
