package service

import (
	"github.com/juju/errors"

	"github.com/reoring/soapbox/wiretype"
)

// Definition is a named, ordered set of methods. All methods of a definition
// are either primary or auxiliary.
type Definition struct {
	name       string
	methods    []*Method
	inHeaders  []Param
	outHeaders []Param
	aux        bool
}

// DefinitionBuilder collects the methods of a Definition.
type DefinitionBuilder struct {
	name       string
	methods    []*Method
	inHeaders  []Param
	outHeaders []Param
}

// Define starts a service definition.
func Define(name string) *DefinitionBuilder {
	return &DefinitionBuilder{name: name}
}

// Methods appends methods in declaration order.
func (b *DefinitionBuilder) Methods(ms ...*Method) *DefinitionBuilder {
	b.methods = append(b.methods, ms...)
	return b
}

// InHeader declares a default input header for methods without their own.
func (b *DefinitionBuilder) InHeader(name string, t wiretype.Type) *DefinitionBuilder {
	b.inHeaders = append(b.inHeaders, Param{Name: name, Type: t})
	return b
}

// OutHeader declares a default output header for methods without their own.
func (b *DefinitionBuilder) OutHeader(name string, t wiretype.Type) *DefinitionBuilder {
	b.outHeaders = append(b.outHeaders, Param{Name: name, Type: t})
	return b
}

// Build validates the definition. Mixing primary and auxiliary methods, or
// declaring the same method name twice, is an error.
func (b *DefinitionBuilder) Build() (*Definition, error) {
	if b.name == "" {
		return nil, errors.NotValidf("service definition without a name")
	}
	if len(b.methods) == 0 {
		return nil, errors.NotValidf("service %q without methods", b.name)
	}
	for _, h := range append(append([]Param(nil), b.inHeaders...), b.outHeaders...) {
		if h.Type == nil {
			return nil, errors.NotValidf("header %q of service %q without a wire type", h.Name, b.name)
		}
	}
	d := &Definition{name: b.name, inHeaders: b.inHeaders, outHeaders: b.outHeaders}
	seen := map[string]bool{}
	for i, m := range b.methods {
		if m == nil {
			return nil, errors.NotValidf("nil method in service %q", b.name)
		}
		if i == 0 {
			d.aux = m.IsAux()
		} else if m.IsAux() != d.aux {
			return nil, errors.NotValidf("service %q mixing primary and auxiliary methods", b.name)
		}
		if seen[m.Name()] {
			return nil, errors.NotValidf("duplicate method %q in service %q", m.Name(), b.name)
		}
		seen[m.Name()] = true
		d.methods = append(d.methods, m.withHeaders(b.inHeaders, b.outHeaders))
	}
	return d, nil
}

// MustBuild is like Build but panics on error.
func (b *DefinitionBuilder) MustBuild() *Definition {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Definition) Name() string { return d.name }

// Methods returns the methods in declaration order.
func (d *Definition) Methods() []*Method { return append([]*Method(nil), d.methods...) }

// Auxiliary reports whether the definition holds auxiliary methods.
func (d *Definition) Auxiliary() bool { return d.aux }
