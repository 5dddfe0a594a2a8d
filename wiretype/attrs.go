package wiretype

import (
	"regexp"
	"slices"
)

// Unbounded marks an unlimited MaxOccurs.
const Unbounded = -1

// Encoding selects the wire encoding of binary values.
type Encoding int

const (
	EncodingDefault Encoding = iota // Protocol default (base64 for text protocols, raw for binary ones).
	EncodingRaw
	EncodingBase64
	EncodingHex
)

func (e Encoding) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingBase64:
		return "base64"
	case EncodingHex:
		return "hex"
	default:
		return "default"
	}
}

// Attributes is the immutable customization record carried by every Type.
// Length and bound fields use -1 / nil for "unset".
type Attributes struct {
	Nillable  bool
	MinOccurs int
	MaxOccurs int

	MinLength int
	MaxLength int

	MinInclusive *float64
	MaxInclusive *float64
	MinExclusive *float64
	MaxExclusive *float64

	// Pattern is matched against the whole lexical form.
	Pattern string
	// Values restricts the lexical form to an enumeration.
	Values []string

	Default        any
	DefaultFactory func() any

	Encoding Encoding
	// Attachment asks attachment-capable protocols to carry binary content
	// outside the document.
	Attachment bool

	Doc string

	re *regexp.Regexp
}

// DefaultAttributes returns the attribute record of an uncustomized type.
func DefaultAttributes() Attributes {
	return Attributes{
		Nillable:  true,
		MinOccurs: 0,
		MaxOccurs: 1,
		MinLength: -1,
		MaxLength: -1,
	}
}

// Repeated reports whether a field of this type may occur more than once.
func (a Attributes) Repeated() bool { return a.MaxOccurs == Unbounded || a.MaxOccurs > 1 }

// Required reports whether at least one occurrence is mandatory.
func (a Attributes) Required() bool { return a.MinOccurs > 0 }

// DefaultValue returns the configured default, preferring the factory.
func (a Attributes) DefaultValue() (any, bool) {
	if a.DefaultFactory != nil {
		return a.DefaultFactory(), true
	}
	if a.Default != nil {
		return a.Default, true
	}
	return nil, false
}

// PatternRegexp returns the anchored compiled pattern, or nil.
func (a Attributes) PatternRegexp() *regexp.Regexp { return a.re }

func (a Attributes) clone() Attributes {
	out := a
	out.Values = slices.Clone(a.Values)
	return out
}

// Option customizes Attributes.
type Option func(*Attributes)

func (a Attributes) with(opts []Option) Attributes {
	out := a.clone()
	prev := out.Pattern
	for _, o := range opts {
		if o != nil {
			o(&out)
		}
	}
	if out.Pattern != prev || (out.Pattern != "" && out.re == nil) {
		out.re = nil
		if out.Pattern != "" {
			out.re = regexp.MustCompile(`^(?:` + out.Pattern + `)$`)
		}
	}
	return out
}

// Nillable toggles whether an explicit null is accepted.
func Nillable(b bool) Option { return func(a *Attributes) { a.Nillable = b } }

// MinOccurs sets the minimum number of occurrences.
func MinOccurs(n int) Option { return func(a *Attributes) { a.MinOccurs = n } }

// MaxOccurs sets the maximum number of occurrences (Unbounded for no limit).
func MaxOccurs(n int) Option { return func(a *Attributes) { a.MaxOccurs = n } }

// Required is shorthand for MinOccurs(1) plus Nillable(false).
func Required() Option {
	return func(a *Attributes) {
		if a.MinOccurs < 1 {
			a.MinOccurs = 1
		}
		a.Nillable = false
	}
}

// MinLength sets the minimum length (runes for strings, bytes for binary).
func MinLength(n int) Option { return func(a *Attributes) { a.MinLength = n } }

// MaxLength sets the maximum length.
func MaxLength(n int) Option { return func(a *Attributes) { a.MaxLength = n } }

// Ge sets an inclusive lower bound.
func Ge(v float64) Option { return func(a *Attributes) { a.MinInclusive = &v } }

// Le sets an inclusive upper bound.
func Le(v float64) Option { return func(a *Attributes) { a.MaxInclusive = &v } }

// Gt sets an exclusive lower bound.
func Gt(v float64) Option { return func(a *Attributes) { a.MinExclusive = &v } }

// Lt sets an exclusive upper bound.
func Lt(v float64) Option { return func(a *Attributes) { a.MaxExclusive = &v } }

// Pattern restricts the lexical form to a regular expression. The pattern is
// always anchored to a full-string match.
func Pattern(p string) Option { return func(a *Attributes) { a.Pattern = p } }

// Enum restricts the lexical form to the given values.
func Enum(values ...string) Option {
	return func(a *Attributes) { a.Values = slices.Clone(values) }
}

// Default sets a default value applied when the element is missing.
func Default(v any) Option { return func(a *Attributes) { a.Default = v } }

// DefaultFactory sets a function producing a fresh default per use.
func DefaultFactory(f func() any) Option { return func(a *Attributes) { a.DefaultFactory = f } }

// Encoded selects the binary encoding.
func Encoded(e Encoding) Option { return func(a *Attributes) { a.Encoding = e } }

// AsAttachment marks binary content for out-of-document transfer.
func AsAttachment() Option { return func(a *Attributes) { a.Attachment = true } }

// Doc attaches documentation that ends up in generated contracts.
func Doc(s string) Option { return func(a *Attributes) { a.Doc = s } }
