// Package jsonschema projects wire types onto JSON Schema, the contract of
// the mapping protocols.
package jsonschema

import (
	"sort"

	json "github.com/goccy/go-json"
	"github.com/juju/errors"

	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

// Draft is the JSON Schema dialect of the exported documents.
const Draft = "https://json-schema.org/draft/2020-12/schema"

// Schema is the subset of JSON Schema the wire types map onto.
type Schema struct {
	SchemaURI   string `json:"$schema,omitempty"`
	Ref         string `json:"$ref,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// Core
	Type    string   `json:"type,omitempty"`
	Format  string   `json:"format,omitempty"`
	Default any      `json:"default,omitempty"`
	Enum    []string `json:"enum,omitempty"`

	// String
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	// Number
	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`

	// Object
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties any                `json:"additionalProperties,omitempty"`

	// Array
	Items    *Schema `json:"items,omitempty"`
	MinItems *int    `json:"minItems,omitempty"`
	MaxItems *int    `json:"maxItems,omitempty"`

	Defs map[string]*Schema `json:"$defs,omitempty"`
}

// Marshal renders s as indented JSON. Map keys are sorted, so equal
// schemas render to equal bytes.
func (s *Schema) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Annotate(err, "rendering json schema")
	}
	return b, nil
}

// FromType returns the schema of t. Declared complex and array types are
// placed in $defs and referenced, so recursive types terminate.
func FromType(t wiretype.Type) *Schema {
	p := &projector{defs: map[string]*Schema{}}
	s := p.schema(t)
	s.SchemaURI = Draft
	if len(p.defs) > 0 {
		s.Defs = p.defs
	}
	return s
}

// ForMethod returns the request and response schemas of m as seen by a
// mapping protocol. With wrappers the response is nested under the
// response name.
func ForMethod(m *service.Method, ignoreWrappers bool) (in, out *Schema) {
	if p, ok := m.BareParam(); ok {
		in = FromType(p.Type)
	} else {
		in = FromType(m.In())
	}
	in.Title = m.Name()
	in.Description = m.Doc()

	if r, ok := m.BareResult(); ok {
		out = FromType(r.Type)
	} else if ignoreWrappers {
		out = FromType(m.Out())
	} else {
		inner := FromType(m.Out())
		defs := inner.Defs
		inner.SchemaURI, inner.Defs = "", nil
		out = &Schema{
			SchemaURI:            Draft,
			Type:                 "object",
			Properties:           map[string]*Schema{m.ResponseName(): inner},
			Required:             []string{m.ResponseName()},
			AdditionalProperties: false,
			Defs:                 defs,
		}
	}
	out.Title = m.ResponseName()
	return in, out
}

type projector struct {
	defs map[string]*Schema
}

func (p *projector) schema(t wiretype.Type) *Schema {
	a := t.Attrs()
	if a.Repeated() {
		s := &Schema{Type: "array", Items: p.schema(t.Customize(wiretype.MaxOccurs(1)))}
		if a.MinOccurs > 0 {
			s.MinItems = intPtr(a.MinOccurs)
		}
		if a.MaxOccurs != wiretype.Unbounded {
			s.MaxItems = intPtr(a.MaxOccurs)
		}
		return s
	}
	switch tt := t.(type) {
	case *wiretype.Complex:
		return p.ref(tt.Name(), func() *Schema { return p.object(tt) })
	case *wiretype.Array:
		return p.ref(tt.Name(), func() *Schema {
			return &Schema{Type: "array", Items: p.schema(tt.Member())}
		})
	case *wiretype.Primitive:
		return primitive(tt)
	}
	return &Schema{}
}

// ref registers the definition on first use; the placeholder entry stops
// recursion through self-referencing types.
func (p *projector) ref(name string, build func() *Schema) *Schema {
	if _, ok := p.defs[name]; !ok {
		p.defs[name] = &Schema{}
		p.defs[name] = build()
	}
	return &Schema{Ref: "#/$defs/" + name}
}

func (p *projector) object(c *wiretype.Complex) *Schema {
	s := &Schema{
		Type:                 "object",
		Description:          c.Attrs().Doc,
		Properties:           map[string]*Schema{},
		AdditionalProperties: false,
	}
	for _, f := range c.Fields() {
		s.Properties[f.Name] = p.schema(f.Type)
		if f.Type.Attrs().Required() {
			s.Required = append(s.Required, f.Name)
		}
	}
	sort.Strings(s.Required)
	return s
}

func primitive(pr *wiretype.Primitive) *Schema {
	a := pr.Attrs()
	s := &Schema{Description: a.Doc}
	switch pr.PrimitiveKind() {
	case wiretype.KindString:
		s.Type = "string"
	case wiretype.KindInteger:
		s.Type = "integer"
	case wiretype.KindFloat:
		s.Type = "number"
	case wiretype.KindBoolean:
		s.Type = "boolean"
	case wiretype.KindDateTime:
		s.Type, s.Format = "string", "date-time"
	case wiretype.KindDate:
		s.Type, s.Format = "string", "date"
	case wiretype.KindDuration:
		s.Type, s.Format = "string", "duration"
	case wiretype.KindBinary:
		s.Type = "string"
		s.Format = "byte"
		if a.Encoding == wiretype.EncodingHex {
			s.Format = "hex"
		}
	case wiretype.KindAnyDocument:
		return s
	}
	if a.MinLength >= 0 {
		s.MinLength = intPtr(a.MinLength)
	}
	if a.MaxLength >= 0 {
		s.MaxLength = intPtr(a.MaxLength)
	}
	s.Pattern = a.Pattern
	s.Minimum, s.Maximum = a.MinInclusive, a.MaxInclusive
	s.ExclusiveMinimum, s.ExclusiveMaximum = a.MinExclusive, a.MaxExclusive
	if len(a.Values) > 0 {
		s.Enum = append([]string(nil), a.Values...)
		sort.Strings(s.Enum)
	}
	if v, ok := a.DefaultValue(); ok {
		s.Default = v
	}
	return s
}

func intPtr(n int) *int { return &n }
