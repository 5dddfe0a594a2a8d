package soapbox

import (
	"strconv"
	"sync"

	"github.com/juju/errors"

	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

// Interface is the deduplicated, transitively closed registry of every
// method and wire type reachable from an Application's services. It is
// read-only once built, except for the contract document cache.
type Interface struct {
	tns      string
	services []*service.Definition

	methods []*service.Method
	primary map[wiretype.QName]*service.Method
	aux     map[wiretype.QName][]*service.Method
	byLocal map[string][]*service.Method
	bare    map[string]*service.Method

	types      []wiretype.Type
	namespaces []string
	prefixes   map[string]string

	mu    sync.Mutex
	cache map[string][]byte
}

// Fixed namespace prefixes of the contract document.
var fixedPrefixes = map[string]string{
	wiretype.XSNamespace:                        "xs",
	"http://schemas.xmlsoap.org/wsdl/":          "wsdl",
	"http://schemas.xmlsoap.org/wsdl/soap/":     "soap",
	"http://schemas.xmlsoap.org/wsdl/soap12/":   "soap12",
	"http://schemas.xmlsoap.org/soap/envelope/": "soapenv",
	"http://www.w3.org/2003/05/soap-envelope":   "soap12env",
}

func newInterface(tns string, defs []*service.Definition) (*Interface, error) {
	in := &Interface{
		tns:      tns,
		services: defs,
		primary:  map[wiretype.QName]*service.Method{},
		aux:      map[wiretype.QName][]*service.Method{},
		byLocal:  map[string][]*service.Method{},
		bare:     map[string]*service.Method{},
		prefixes: map[string]string{},
		cache:    map[string][]byte{},
	}
	var roots []wiretype.Type
	for _, d := range defs {
		for _, m := range d.Methods() {
			for _, t := range methodTypes(m) {
				wiretype.ResolveNamespace(t, tns)
			}
			key := m.Key()
			if m.IsAux() {
				in.aux[key] = append(in.aux[key], m)
				continue
			}
			if _, dup := in.primary[key]; dup {
				return nil, errors.NotValidf("second primary method %s in service %q", key, d.Name())
			}
			in.primary[key] = m
			in.methods = append(in.methods, m)
			in.byLocal[m.Name()] = append(in.byLocal[m.Name()], m)
			if p, ok := m.BareParam(); ok {
				in.bare[p.Name] = m
			}
			roots = append(roots, methodTypes(m)...)
		}
	}
	for key := range in.aux {
		if _, ok := in.primary[key]; !ok {
			logger.Warningf("auxiliary methods for %s have no primary method", key)
		}
	}
	in.types = wiretype.Reachable(roots...)

	in.prefixes[tns] = "tns"
	in.namespaces = append(in.namespaces, tns)
	n := 0
	for _, t := range in.types {
		ns := t.Namespace()
		if _, ok := in.prefixes[ns]; ok || ns == "" {
			continue
		}
		if p, ok := fixedPrefixes[ns]; ok {
			in.prefixes[ns] = p
		} else {
			in.prefixes[ns] = "ns" + strconv.Itoa(n)
			n++
		}
		in.namespaces = append(in.namespaces, ns)
	}
	return in, nil
}

// methodTypes lists the declared types of m: request, response, headers and
// fault details.
func methodTypes(m *service.Method) []wiretype.Type {
	out := []wiretype.Type{m.In(), m.Out()}
	for _, h := range m.InHeaders() {
		out = append(out, h.Type)
	}
	for _, h := range m.OutHeaders() {
		out = append(out, h.Type)
	}
	for _, f := range m.Faults() {
		out = append(out, f)
	}
	return out
}

func (in *Interface) TargetNamespace() string { return in.tns }

// Services returns the service definitions in registration order.
func (in *Interface) Services() []*service.Definition {
	return append([]*service.Definition(nil), in.services...)
}

// Methods returns the primary methods in registration order.
func (in *Interface) Methods() []*service.Method {
	return append([]*service.Method(nil), in.methods...)
}

// Lookup finds the primary method for key. An empty namespace matches the
// target namespace first, then any namespace with a single method of that
// name.
func (in *Interface) Lookup(key wiretype.QName) (*service.Method, bool) {
	if key.Space != "" {
		m, ok := in.primary[key]
		return m, ok
	}
	if m, ok := in.primary[wiretype.QName{Space: in.tns, Local: key.Local}]; ok {
		return m, true
	}
	if ms := in.byLocal[key.Local]; len(ms) == 1 {
		return ms[0], true
	}
	return nil, false
}

// LookupBare finds the bare method whose body element is named local.
func (in *Interface) LookupBare(local string) (*service.Method, bool) {
	m, ok := in.bare[local]
	return m, ok
}

// Auxiliary returns the auxiliary methods sharing key, in registration order.
func (in *Interface) Auxiliary(key wiretype.QName) []*service.Method {
	return append([]*service.Method(nil), in.aux[key]...)
}

// Types returns every reachable declared type, dependencies first.
func (in *Interface) Types() []wiretype.Type {
	return append([]wiretype.Type(nil), in.types...)
}

// Namespaces returns the namespaces in registry order, target namespace
// first.
func (in *Interface) Namespaces() []string {
	return append([]string(nil), in.namespaces...)
}

// Prefix returns the deterministic prefix of ns: fixed prefixes for the
// well-known namespaces, "tns" for the target namespace and "nsN" for the
// rest in registry order. Unknown namespaces yield "".
func (in *Interface) Prefix(ns string) string {
	if p, ok := in.prefixes[ns]; ok {
		return p
	}
	return fixedPrefixes[ns]
}

// Cached returns the document cached under key, building it on first use.
// A failed build is not cached.
func (in *Interface) Cached(key string, build func() ([]byte, error)) ([]byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if b, ok := in.cache[key]; ok {
		return b, nil
	}
	b, err := build()
	if err != nil {
		return nil, errors.Trace(err)
	}
	in.cache[key] = b
	return b, nil
}
