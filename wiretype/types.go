package wiretype

import (
	"sync/atomic"

	"github.com/juju/errors"
)

// XSNamespace is the namespace of the built-in primitive types.
const XSNamespace = "http://www.w3.org/2001/XMLSchema"

// Kind tags the closed set of Type variants.
type Kind int

const (
	KindPrimitive Kind = iota
	KindComplex
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindComplex:
		return "complex"
	case KindArray:
		return "array"
	default:
		return "primitive"
	}
}

// QName is a namespace qualified name; it keys every registry in this module.
type QName struct {
	Space string
	Local string
}

func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

// Type is a wire type descriptor. The set of implementations is closed:
// *Primitive, *Complex and *Array.
type Type interface {
	Name() string
	// Namespace returns the resolved namespace; it is empty only before
	// ResolveNamespace ran for types declared without one.
	Namespace() string
	QName() QName
	Kind() Kind
	Attrs() Attributes
	// Customize returns a new descriptor whose Attributes are the receiver's
	// merged with opts. The receiver is never modified.
	Customize(opts ...Option) Type
	isType()
}

// nsCell memoizes a namespace. Customized copies share the cell so a type
// resolves to the same namespace however it was derived. The first
// non-empty namespace stored wins; readers may run concurrently with
// resolution.
type nsCell struct {
	value atomic.Pointer[string]
}

func newNSCell(ns string) *nsCell {
	c := &nsCell{}
	c.value.Store(&ns)
	return c
}

func (c *nsCell) get() string { return *c.value.Load() }

func (c *nsCell) resolve(def string) {
	for {
		cur := c.value.Load()
		if *cur != "" || c.value.CompareAndSwap(cur, &def) {
			return
		}
	}
}

// Field is one named member of a Complex type.
type Field struct {
	Name string
	Type Type
}

// Complex is an ordered record type with at most one base.
type Complex struct {
	name   string
	ns     *nsCell
	fields []Field
	base   *Complex
	attrs  Attributes
}

var _ Type = (*Complex)(nil)

func (c *Complex) Name() string      { return c.name }
func (c *Complex) Namespace() string { return c.ns.get() }
func (c *Complex) QName() QName      { return QName{Space: c.Namespace(), Local: c.name} }
func (c *Complex) Kind() Kind        { return KindComplex }
func (c *Complex) Attrs() Attributes { return c.attrs.clone() }
func (*Complex) isType()             {}

// Customize implements Type.
func (c *Complex) Customize(opts ...Option) Type { return c.CustomizeComplex(opts...) }

// CustomizeComplex is Customize with the concrete return type.
func (c *Complex) CustomizeComplex(opts ...Option) *Complex {
	out := *c
	out.attrs = c.attrs.with(opts)
	return &out
}

// Base returns the base type, or nil.
func (c *Complex) Base() *Complex { return c.base }

// OwnFields returns the fields declared on this type only, in declared order.
func (c *Complex) OwnFields() []Field { return append([]Field(nil), c.fields...) }

// Fields returns base fields first, then own fields, in declared order.
func (c *Complex) Fields() []Field {
	if c.base == nil {
		return c.OwnFields()
	}
	out := c.base.Fields()
	return append(out, c.fields...)
}

// Field looks up a field by name, including inherited ones.
func (c *Complex) Field(name string) (Field, bool) {
	for _, f := range c.fields {
		if f.Name == name {
			return f, true
		}
	}
	if c.base != nil {
		return c.base.Field(name)
	}
	return Field{}, false
}

// SameAs reports whether both descriptors denote the same declared type,
// ignoring customization.
func (c *Complex) SameAs(o *Complex) bool {
	return o != nil && c.ns == o.ns && c.name == o.name
}

// ComplexBuilder assembles a Complex type.
type ComplexBuilder struct {
	name   string
	ns     string
	fields []Field
	bases  []*Complex
	opts   []Option
}

// NewComplex starts a Complex type declaration. An empty namespace is
// resolved to the owning application's target namespace.
func NewComplex(name, namespace string) *ComplexBuilder {
	return &ComplexBuilder{name: name, ns: namespace}
}

// Field appends a field; declaration order is wire order.
func (b *ComplexBuilder) Field(name string, t Type) *ComplexBuilder {
	b.fields = append(b.fields, Field{Name: name, Type: t})
	return b
}

// Extends declares the base type. Supplying more than one base makes Build
// fail: only single inheritance is representable.
func (b *ComplexBuilder) Extends(bases ...*Complex) *ComplexBuilder {
	b.bases = append(b.bases, bases...)
	return b
}

// With applies attribute options to the built type.
func (b *ComplexBuilder) With(opts ...Option) *ComplexBuilder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build validates the declaration and returns the type.
func (b *ComplexBuilder) Build() (*Complex, error) {
	if b.name == "" {
		return nil, errors.NotValidf("complex type without a name")
	}
	if len(b.bases) > 1 {
		return nil, errors.NotValidf("complex type %q with %d base types", b.name, len(b.bases))
	}
	var base *Complex
	if len(b.bases) == 1 {
		if b.bases[0] == nil {
			return nil, errors.NotValidf("complex type %q with nil base", b.name)
		}
		base = b.bases[0]
	}
	seen := map[string]struct{}{}
	if base != nil {
		for _, f := range base.Fields() {
			seen[f.Name] = struct{}{}
		}
	}
	for _, f := range b.fields {
		if f.Name == "" {
			return nil, errors.NotValidf("unnamed field in %q", b.name)
		}
		if f.Type == nil {
			return nil, errors.NotValidf("field %q of %q without a type", f.Name, b.name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, errors.NotValidf("duplicate field %q in %q", f.Name, b.name)
		}
		seen[f.Name] = struct{}{}
	}
	return &Complex{
		name:   b.name,
		ns:     newNSCell(b.ns),
		fields: append([]Field(nil), b.fields...),
		base:   base,
		attrs:  DefaultAttributes().with(b.opts),
	}, nil
}

// MustBuild is like Build but panics on error.
func (b *ComplexBuilder) MustBuild() *Complex {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// Array wraps exactly one member type repeated without bound.
type Array struct {
	name   string
	ns     *nsCell
	member Type
	attrs  Attributes
	lazy   bool
}

var _ Type = (*Array)(nil)

// NewArray declares an array of member. The member's MaxOccurs is forced to
// Unbounded.
func NewArray(member Type) *Array {
	ns := ""
	if c, ok := member.(*Complex); ok {
		ns = c.Namespace()
	}
	return &Array{
		name:   member.Name() + "Array",
		ns:     newNSCell(ns),
		member: member.Customize(MaxOccurs(Unbounded)),
		attrs:  DefaultAttributes(),
	}
}

// Iterable declares an array whose values are usually produced lazily
// through an Iterator. Its wire shape is identical to NewArray's.
func Iterable(member Type) *Array {
	a := NewArray(member)
	a.lazy = true
	return a
}

func (a *Array) Name() string      { return a.name }
func (a *Array) Namespace() string { return a.ns.get() }
func (a *Array) QName() QName      { return QName{Space: a.Namespace(), Local: a.name} }
func (a *Array) Kind() Kind        { return KindArray }
func (a *Array) Attrs() Attributes { return a.attrs.clone() }
func (*Array) isType()             {}

// Member returns the element type.
func (a *Array) Member() Type { return a.member }

// Lazy reports whether the array was declared Iterable.
func (a *Array) Lazy() bool { return a.lazy }

// Customize implements Type.
func (a *Array) Customize(opts ...Option) Type {
	out := *a
	out.attrs = a.attrs.with(opts)
	return &out
}

// Named returns a copy with a different type name, sharing nothing mutable.
func (a *Array) Named(name string) *Array {
	out := *a
	out.name = name
	out.ns = newNSCell(a.ns.get())
	return &out
}

// ResolveNamespace assigns def to every type reachable from t that was
// declared without a namespace. Resolution happens once per declared type.
func ResolveNamespace(t Type, def string) {
	resolveNamespace(t, def, map[*nsCell]bool{})
}

func resolveNamespace(t Type, def string, seen map[*nsCell]bool) {
	switch tt := t.(type) {
	case *Primitive:
		if tt.ns != nil && !seen[tt.ns] {
			seen[tt.ns] = true
			tt.ns.resolve(def)
		}
	case *Complex:
		if seen[tt.ns] {
			return
		}
		seen[tt.ns] = true
		tt.ns.resolve(def)
		if tt.base != nil {
			resolveNamespace(tt.base, def, seen)
		}
		for _, f := range tt.fields {
			resolveNamespace(f.Type, def, seen)
		}
	case *Array:
		if seen[tt.ns] {
			return
		}
		seen[tt.ns] = true
		resolveNamespace(tt.member, def, seen)
		tt.ns.resolve(def)
	}
}
