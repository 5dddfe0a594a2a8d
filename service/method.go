// Package service declares remote methods and groups them into service
// definitions. Declarations are plain values built once at startup; the
// root soapbox package registers them into an Application.
package service

import (
	"context"
	"strconv"

	"github.com/juju/errors"

	"github.com/reoring/soapbox/wiretype"
)

// BodyStyle selects how arguments and results are laid out in a message body.
type BodyStyle int

const (
	// Wrapped encloses parameters in a synthesized container named after
	// the method (and results in "{name}Response").
	Wrapped BodyStyle = iota
	// Bare uses the single parameter as the body directly.
	Bare
	// Empty declares a method without input.
	Empty
	// OutBare emits the single result without the response wrapper.
	OutBare
)

func (s BodyStyle) String() string {
	switch s {
	case Wrapped:
		return "wrapped"
	case Bare:
		return "bare"
	case Empty:
		return "empty"
	case OutBare:
		return "out_bare"
	}
	return "unknown"
}

// AuxStrategy marks a method as auxiliary and says how it is scheduled. The
// zero value declares a primary method.
type AuxStrategy int

const (
	AuxNone AuxStrategy = iota
	// AuxSync runs inline once the primary response has been emitted.
	AuxSync
	// AuxAsync runs on the application's bounded worker pool.
	AuxAsync
)

func (a AuxStrategy) String() string {
	switch a {
	case AuxNone:
		return "none"
	case AuxSync:
		return "sync"
	case AuxAsync:
		return "async"
	}
	return "unknown"
}

// Handler implements a method. args follow the declared parameter order and
// the returned slice follows the declared result order. A value of a lazily
// produced array result may be a wiretype.Iterator.
type Handler func(ctx context.Context, args []any) ([]any, error)

// Param is a named parameter, result or header part.
type Param struct {
	Name string
	Type wiretype.Type
}

// HTTPPattern binds a method to a URL template for HTTP form binding. Path
// uses gorilla/mux template syntax; named captures supply argument values.
type HTTPPattern struct {
	Verb string
	Path string
	Host string
}

// Method describes one remote operation.
type Method struct {
	name       string
	params     []Param
	results    []Param
	inHeaders  []Param
	outHeaders []Param
	faults     []*wiretype.Complex
	style      BodyStyle
	aux        AuxStrategy
	patterns   []HTTPPattern
	portGroup  string
	handler    Handler
	doc        string

	in  *wiretype.Complex
	out *wiretype.Complex
}

func (m *Method) Name() string { return m.name }

// Namespace is the namespace of the synthesized input type. It is empty
// until the owning application resolves it.
func (m *Method) Namespace() string { return m.in.Namespace() }

// Key identifies the method in a registry.
func (m *Method) Key() wiretype.QName { return wiretype.QName{Space: m.Namespace(), Local: m.name} }

func (m *Method) Params() []Param             { return append([]Param(nil), m.params...) }
func (m *Method) Results() []Param            { return append([]Param(nil), m.results...) }
func (m *Method) InHeaders() []Param          { return append([]Param(nil), m.inHeaders...) }
func (m *Method) OutHeaders() []Param         { return append([]Param(nil), m.outHeaders...) }
func (m *Method) Faults() []*wiretype.Complex { return append([]*wiretype.Complex(nil), m.faults...) }
func (m *Method) Style() BodyStyle            { return m.style }
func (m *Method) Aux() AuxStrategy            { return m.aux }
func (m *Method) IsAux() bool                 { return m.aux != AuxNone }
func (m *Method) Patterns() []HTTPPattern     { return append([]HTTPPattern(nil), m.patterns...) }
func (m *Method) PortGroup() string           { return m.portGroup }
func (m *Method) Handler() Handler            { return m.handler }
func (m *Method) Doc() string                 { return m.doc }

// In is the synthesized request type, named after the method.
func (m *Method) In() *wiretype.Complex { return m.in }

// Out is the synthesized response type, named "{name}Response".
func (m *Method) Out() *wiretype.Complex { return m.out }

// ResponseName is the element or key naming the response document.
func (m *Method) ResponseName() string { return m.out.Name() }

// BareParam returns the single parameter of a Bare method.
func (m *Method) BareParam() (Param, bool) {
	if m.style != Bare || len(m.params) != 1 {
		return Param{}, false
	}
	return m.params[0], true
}

// BareResult returns the single result of an OutBare method.
func (m *Method) BareResult() (Param, bool) {
	if m.style != OutBare || len(m.results) != 1 {
		return Param{}, false
	}
	return m.results[0], true
}

// withHeaders returns a copy carrying default headers where none were
// declared.
func (m *Method) withHeaders(in, out []Param) *Method {
	if (len(m.inHeaders) > 0 || len(in) == 0) && (len(m.outHeaders) > 0 || len(out) == 0) {
		return m
	}
	cp := *m
	if len(cp.inHeaders) == 0 {
		cp.inHeaders = append([]Param(nil), in...)
	}
	if len(cp.outHeaders) == 0 {
		cp.outHeaders = append([]Param(nil), out...)
	}
	return &cp
}

// Builder declares a Method.
type Builder struct {
	m         Method
	namespace string
	named     bool
	err       error
}

// Rpc starts the declaration of a method named name.
func Rpc(name string, h Handler) *Builder {
	return &Builder{m: Method{name: name, handler: h}}
}

// Param appends a parameter. Declaration order is argument order.
func (b *Builder) Param(name string, t wiretype.Type) *Builder {
	b.m.params = append(b.m.params, Param{Name: name, Type: t})
	return b
}

// Returns declares unnamed results. A single result is named
// "{name}Result"; several are named "{name}Result0", "{name}Result1", ...
func (b *Builder) Returns(types ...wiretype.Type) *Builder {
	if b.named {
		b.err = errors.NotValidf("mixing named and unnamed results in %q", b.m.name)
		return b
	}
	for _, t := range types {
		b.m.results = append(b.m.results, Param{Type: t})
	}
	return b
}

// ReturnsNamed appends a named result.
func (b *Builder) ReturnsNamed(name string, t wiretype.Type) *Builder {
	for _, r := range b.m.results {
		if r.Name == "" {
			b.err = errors.NotValidf("mixing named and unnamed results in %q", b.m.name)
			return b
		}
	}
	b.named = true
	b.m.results = append(b.m.results, Param{Name: name, Type: t})
	return b
}

func (b *Builder) InHeader(name string, t wiretype.Type) *Builder {
	b.m.inHeaders = append(b.m.inHeaders, Param{Name: name, Type: t})
	return b
}

func (b *Builder) OutHeader(name string, t wiretype.Type) *Builder {
	b.m.outHeaders = append(b.m.outHeaders, Param{Name: name, Type: t})
	return b
}

// Faults declares the fault detail types the method may raise.
func (b *Builder) Faults(types ...*wiretype.Complex) *Builder {
	b.m.faults = append(b.m.faults, types...)
	return b
}

func (b *Builder) Style(s BodyStyle) *Builder { b.m.style = s; return b }

// Aux marks the method auxiliary with the given scheduling strategy.
func (b *Builder) Aux(s AuxStrategy) *Builder { b.m.aux = s; return b }

// HTTP adds a URL pattern for HTTP form binding.
func (b *Builder) HTTP(verb, path string) *Builder {
	b.m.patterns = append(b.m.patterns, HTTPPattern{Verb: verb, Path: path})
	return b
}

// HTTPHost adds a URL pattern restricted to a host template.
func (b *Builder) HTTPHost(verb, host, path string) *Builder {
	b.m.patterns = append(b.m.patterns, HTTPPattern{Verb: verb, Host: host, Path: path})
	return b
}

func (b *Builder) PortGroup(name string) *Builder { b.m.portGroup = name; return b }
func (b *Builder) Doc(s string) *Builder          { b.m.doc = s; return b }

// Namespace pins the method namespace instead of the application's target
// namespace.
func (b *Builder) Namespace(ns string) *Builder { b.namespace = ns; return b }

// Build validates the declaration and synthesizes the request and response
// types.
func (b *Builder) Build() (*Method, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := b.m
	if m.name == "" {
		return nil, errors.NotValidf("method without a name")
	}
	if m.handler == nil {
		return nil, errors.NotValidf("method %q without a handler", m.name)
	}
	switch m.style {
	case Bare:
		if len(m.params) != 1 {
			return nil, errors.NotValidf("bare method %q with %d parameters", m.name, len(m.params))
		}
	case Empty:
		if len(m.params) != 0 {
			return nil, errors.NotValidf("empty method %q with %d parameters", m.name, len(m.params))
		}
	case OutBare:
		if len(m.results) != 1 {
			return nil, errors.NotValidf("out_bare method %q with %d results", m.name, len(m.results))
		}
	}
	m.results = append([]Param(nil), m.results...)
	for i := range m.results {
		if m.results[i].Name != "" {
			continue
		}
		if len(m.results) == 1 {
			m.results[i].Name = m.name + "Result"
		} else {
			m.results[i].Name = m.name + "Result" + strconv.Itoa(i)
		}
	}

	inB := wiretype.NewComplex(m.name, b.namespace).With(wiretype.Doc(m.doc))
	for _, p := range m.params {
		inB.Field(p.Name, p.Type)
	}
	in, err := inB.Build()
	if err != nil {
		return nil, errors.Annotatef(err, "method %q input", m.name)
	}
	outB := wiretype.NewComplex(m.name+"Response", b.namespace)
	for _, r := range m.results {
		outB.Field(r.Name, r.Type)
	}
	out, err := outB.Build()
	if err != nil {
		return nil, errors.Annotatef(err, "method %q output", m.name)
	}
	m.in, m.out = in, out
	return &m, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Method {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}
