package wiretype

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// PrimitiveKind enumerates the leaf value families.
type PrimitiveKind int

const (
	KindString PrimitiveKind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindDateTime
	KindDate
	KindDuration
	KindBinary
	KindAnyDocument
)

var primitiveNames = map[PrimitiveKind]string{
	KindString:      "string",
	KindInteger:     "long",
	KindFloat:       "double",
	KindBoolean:     "boolean",
	KindDateTime:    "dateTime",
	KindDate:        "date",
	KindDuration:    "duration",
	KindBinary:      "base64Binary",
	KindAnyDocument: "anyType",
}

// Primitive is a leaf type. Unnamed primitives map to the built-in XML Schema
// types; Named ones are restrictions declared in the application namespace.
type Primitive struct {
	kind  PrimitiveKind
	name  string
	ns    *nsCell // nil for built-ins
	attrs Attributes
}

var _ Type = (*Primitive)(nil)

var (
	String      = newPrimitive(KindString)
	Integer     = newPrimitive(KindInteger)
	Float       = newPrimitive(KindFloat)
	Boolean     = newPrimitive(KindBoolean)
	DateTime    = newPrimitive(KindDateTime)
	Date        = newPrimitive(KindDate)
	Duration    = newPrimitive(KindDuration)
	Binary      = newPrimitive(KindBinary)
	AnyDocument = newPrimitive(KindAnyDocument)
)

func newPrimitive(k PrimitiveKind) *Primitive {
	return &Primitive{kind: k, attrs: DefaultAttributes()}
}

// PrimitiveKind returns the value family.
func (p *Primitive) PrimitiveKind() PrimitiveKind { return p.kind }

// Name returns the declared name, or the built-in schema type name.
func (p *Primitive) Name() string {
	if p.name != "" {
		return p.name
	}
	return p.BuiltinName()
}

// BuiltinName is the XML Schema name of the underlying built-in type.
func (p *Primitive) BuiltinName() string {
	if p.kind == KindBinary && p.attrs.Encoding == EncodingHex {
		return "hexBinary"
	}
	return primitiveNames[p.kind]
}

func (p *Primitive) Namespace() string {
	if p.ns == nil {
		return XSNamespace
	}
	return p.ns.get()
}

func (p *Primitive) QName() QName      { return QName{Space: p.Namespace(), Local: p.Name()} }
func (p *Primitive) Kind() Kind        { return KindPrimitive }
func (p *Primitive) Attrs() Attributes { return p.attrs.clone() }
func (*Primitive) isType()             {}

// IsBuiltin reports whether the primitive is one of the XML Schema built-ins.
func (p *Primitive) IsBuiltin() bool { return p.ns == nil }

// Customize implements Type.
func (p *Primitive) Customize(opts ...Option) Type {
	out := *p
	out.attrs = p.attrs.with(opts)
	return &out
}

// Named declares a named restriction of the primitive, for example an Email
// string with a pattern. An empty namespace is resolved later.
func (p *Primitive) Named(name, namespace string, opts ...Option) *Primitive {
	out := *p
	out.name = name
	out.ns = newNSCell(namespace)
	out.attrs = p.attrs.with(opts)
	return &out
}

// ToString renders a native leaf value in its lexical form.
func ToString(t Type, v any) (string, error) {
	p, ok := t.(*Primitive)
	if !ok {
		return "", errors.NotSupportedf("lexical form of %s type %q", t.Kind(), t.Name())
	}
	switch p.kind {
	case KindString, KindAnyDocument:
		s, ok := v.(string)
		if !ok {
			return "", typeError(p, v)
		}
		return s, nil
	case KindInteger:
		n, ok := toInt64(v)
		if !ok {
			return "", typeError(p, v)
		}
		return strconv.FormatInt(n, 10), nil
	case KindFloat:
		f, ok := toFloat64(v)
		if !ok {
			return "", typeError(p, v)
		}
		switch {
		case math.IsInf(f, 1):
			return "INF", nil
		case math.IsInf(f, -1):
			return "-INF", nil
		case math.IsNaN(f):
			return "NaN", nil
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return "", typeError(p, v)
		}
		return strconv.FormatBool(b), nil
	case KindDateTime:
		tm, ok := v.(time.Time)
		if !ok {
			return "", typeError(p, v)
		}
		return tm.Format(time.RFC3339Nano), nil
	case KindDate:
		tm, ok := v.(time.Time)
		if !ok {
			return "", typeError(p, v)
		}
		return tm.Format(time.DateOnly), nil
	case KindDuration:
		d, ok := v.(time.Duration)
		if !ok {
			return "", typeError(p, v)
		}
		return FormatDuration(d), nil
	case KindBinary:
		b, ok := v.([]byte)
		if !ok {
			return "", typeError(p, v)
		}
		enc := p.attrs.Encoding
		if enc == EncodingDefault || enc == EncodingRaw {
			enc = EncodingBase64
		}
		return string(EncodeBinary(enc, b)), nil
	}
	return "", errors.NotSupportedf("primitive kind %d", p.kind)
}

// FromString parses a lexical form into the native value of t.
func FromString(t Type, s string) (any, error) {
	p, ok := t.(*Primitive)
	if !ok {
		return nil, errors.NotSupportedf("lexical form of %s type %q", t.Kind(), t.Name())
	}
	switch p.kind {
	case KindString, KindAnyDocument:
		return s, nil
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, formatIssue(p, s, err)
		}
		return n, nil
	case KindFloat:
		switch strings.TrimSpace(s) {
		case "INF":
			return math.Inf(1), nil
		case "-INF":
			return math.Inf(-1), nil
		case "NaN":
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, formatIssue(p, s, err)
		}
		return f, nil
	case KindBoolean:
		switch strings.TrimSpace(s) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, formatIssue(p, s, nil)
	case KindDateTime:
		tm, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return nil, formatIssue(p, s, err)
		}
		return tm, nil
	case KindDate:
		tm, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
		if err != nil {
			return nil, formatIssue(p, s, err)
		}
		return tm, nil
	case KindDuration:
		d, err := ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return nil, formatIssue(p, s, err)
		}
		return d, nil
	case KindBinary:
		enc := p.attrs.Encoding
		if enc == EncodingDefault || enc == EncodingRaw {
			enc = EncodingBase64
		}
		b, err := DecodeBinary(enc, []byte(strings.TrimSpace(s)))
		if err != nil {
			return nil, formatIssue(p, s, err)
		}
		return b, nil
	}
	return nil, errors.NotSupportedf("primitive kind %d", p.kind)
}

// Coerce converts loosely typed native values (other integer widths,
// json.Number, float64 from mapping decoders) into the canonical native
// type of p. Values already canonical are returned unchanged.
func Coerce(t Type, v any) (any, error) {
	p, ok := t.(*Primitive)
	if !ok || v == nil {
		return v, nil
	}
	switch p.kind {
	case KindInteger:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case KindFloat:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	case KindString, KindAnyDocument:
		if _, ok := v.(string); ok {
			return v, nil
		}
	case KindBoolean:
		if _, ok := v.(bool); ok {
			return v, nil
		}
	case KindDateTime, KindDate:
		if _, ok := v.(time.Time); ok {
			return v, nil
		}
	case KindDuration:
		if _, ok := v.(time.Duration); ok {
			return v, nil
		}
	case KindBinary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case ByteChunks:
			return b, nil
		}
	}
	if s, ok := v.(string); ok {
		return FromString(p, s)
	}
	return nil, typeError(p, v)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		return exactInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return exactInt64(f)
	}
	return 0, false
}

// exactInt64 accepts whole floats whose magnitude is below 2^53, the range
// where every integer has an exact float64 form.
func exactInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.Abs(f) >= 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func typeError(p *Primitive, v any) Issues {
	return Issues{IssueAt("/", CodeInvalidType, map[string]any{"expected": p.Name()})}
}

func formatIssue(p *Primitive, s string, cause error) Issues {
	it := IssueAt("/", CodeInvalidFormat, map[string]any{"expected": p.Name()})
	it.Cause = cause
	it.Hint = s
	return Issues{it}
}
