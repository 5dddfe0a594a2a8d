// Package wsdl generates the WSDL 1.1 interface contract, with embedded XML
// Schema, of an Application. Generation is a pure function of the
// Application and the endpoint URL; Document caches its result.
package wsdl

import (
	"sort"
	"strconv"

	"github.com/beevik/etree"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/soap"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

var logger = loggo.GetLogger("soapbox.wsdl")

// Well-known namespaces of the contract document.
const (
	Namespace       = "http://schemas.xmlsoap.org/wsdl/"
	SOAP11Namespace = "http://schemas.xmlsoap.org/wsdl/soap/"
	SOAP12Namespace = "http://schemas.xmlsoap.org/wsdl/soap12/"
	HTTPTransport   = "http://schemas.xmlsoap.org/soap/http"
)

// Document returns the contract for baseURL, building it once per URL.
func Document(app *soapbox.Application, baseURL string) ([]byte, error) {
	return app.Interface().Cached("wsdl "+baseURL, func() ([]byte, error) {
		logger.Debugf("building contract of %q for %s", app.Name, baseURL)
		return Build(app, baseURL)
	})
}

// Build renders the contract. Running it twice on the same Application and
// URL yields identical bytes.
func Build(app *soapbox.Application, baseURL string) ([]byte, error) {
	g := &generator{
		app:      app,
		iface:    app.Interface(),
		messages: map[string]bool{},
	}
	g.soapPrefix, g.soapNS = "soap", SOAP11Namespace
	if p, ok := app.In.(*soap.Protocol); ok && p.Version() == soap.V12 {
		g.soapPrefix, g.soapNS = "soap12", SOAP12Namespace
	}
	groups, err := g.groups()
	if err != nil {
		return nil, errors.Trace(err)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("wsdl:definitions")
	root.CreateAttr("xmlns:wsdl", Namespace)
	root.CreateAttr("xmlns:xs", wiretype.XSNamespace)
	root.CreateAttr("xmlns:"+g.soapPrefix, g.soapNS)
	for _, ns := range g.iface.Namespaces() {
		if ns == wiretype.XSNamespace {
			continue
		}
		root.CreateAttr("xmlns:"+g.iface.Prefix(ns), ns)
	}
	root.CreateAttr("targetNamespace", g.iface.TargetNamespace())
	root.CreateAttr("name", app.Name)

	g.types(root.CreateElement("wsdl:types"))
	for _, m := range g.iface.Methods() {
		g.methodMessages(root, m)
	}
	for _, grp := range groups {
		g.portType(root, grp)
	}
	for _, grp := range groups {
		g.binding(root, grp)
	}
	svc := root.CreateElement("wsdl:service")
	svc.CreateAttr("name", app.Name)
	for _, grp := range groups {
		port := svc.CreateElement("wsdl:port")
		port.CreateAttr("name", grp.name)
		port.CreateAttr("binding", g.tns(grp.name))
		port.CreateElement(g.soapPrefix+":address").CreateAttr("location", baseURL)
	}

	doc.Indent(2)
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, errors.Annotate(err, "rendering contract")
	}
	return b, nil
}

type generator struct {
	app        *soapbox.Application
	iface      *soapbox.Interface
	soapPrefix string
	soapNS     string
	messages   map[string]bool
}

type group struct {
	name    string
	methods []*service.Method
}

// groups splits the primary methods by port group. Methods without one
// share a group named after the application.
func (g *generator) groups() ([]group, error) {
	for _, d := range g.iface.Services() {
		if d.Auxiliary() {
			continue
		}
		tagged, total := 0, 0
		for _, m := range d.Methods() {
			if m.IsAux() {
				continue
			}
			total++
			if m.PortGroup() != "" {
				tagged++
			}
		}
		if tagged > 0 && tagged < total {
			return nil, errors.NotValidf("service %q mixing methods with and without a port group", d.Name())
		}
	}
	var out []group
	index := map[string]int{}
	for _, m := range g.iface.Methods() {
		name := m.PortGroup()
		if name == "" {
			name = g.app.Name
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, group{name: name})
		}
		out[i].methods = append(out[i].methods, m)
	}
	return out, nil
}

// qname renders a reference to a declared name in namespace ns.
func (g *generator) qname(ns, local string) string {
	if p := g.iface.Prefix(ns); p != "" {
		return p + ":" + local
	}
	return local
}

func (g *generator) tns(local string) string {
	return g.qname(g.iface.TargetNamespace(), local)
}

// typeRef is the schema type name of t. Unnamed built-ins resolve to the
// XML Schema type.
func (g *generator) typeRef(t wiretype.Type) string {
	if p, ok := t.(*wiretype.Primitive); ok && p.IsBuiltin() {
		return "xs:" + p.BuiltinName()
	}
	return g.qname(t.Namespace(), t.Name())
}

// message emits a single-part message once; later requests for the same
// name reuse it.
func (g *generator) message(root *etree.Element, name, elemNS, elem string) {
	if g.messages[name] {
		return
	}
	g.messages[name] = true
	msg := root.CreateElement("wsdl:message")
	msg.CreateAttr("name", name)
	part := msg.CreateElement("wsdl:part")
	part.CreateAttr("name", elem)
	part.CreateAttr("element", g.qname(elemNS, elem))
}

func (g *generator) methodMessages(root *etree.Element, m *service.Method) {
	ns := m.Namespace()
	if p, ok := m.BareParam(); ok {
		g.message(root, m.Name(), ns, p.Name)
	} else {
		g.message(root, m.Name(), ns, m.Name())
	}
	if r, ok := m.BareResult(); ok {
		g.message(root, m.ResponseName(), m.Out().Namespace(), r.Name)
	} else {
		g.message(root, m.ResponseName(), m.Out().Namespace(), m.ResponseName())
	}
	for _, h := range append(m.InHeaders(), m.OutHeaders()...) {
		g.message(root, h.Name, ns, h.Name)
	}
	for _, f := range m.Faults() {
		g.message(root, f.Name(), f.Namespace(), f.Name())
	}
}

func (g *generator) portType(root *etree.Element, grp group) {
	pt := root.CreateElement("wsdl:portType")
	pt.CreateAttr("name", grp.name)
	for _, m := range grp.methods {
		op := pt.CreateElement("wsdl:operation")
		op.CreateAttr("name", m.Name())
		if m.Doc() != "" {
			op.CreateElement("wsdl:documentation").SetText(m.Doc())
		}
		in := op.CreateElement("wsdl:input")
		in.CreateAttr("name", m.Name())
		in.CreateAttr("message", g.tns(m.Name()))
		out := op.CreateElement("wsdl:output")
		out.CreateAttr("name", m.ResponseName())
		out.CreateAttr("message", g.tns(m.ResponseName()))
		for _, f := range m.Faults() {
			fe := op.CreateElement("wsdl:fault")
			fe.CreateAttr("name", f.Name())
			fe.CreateAttr("message", g.tns(f.Name()))
		}
	}
}

func (g *generator) binding(root *etree.Element, grp group) {
	b := root.CreateElement("wsdl:binding")
	b.CreateAttr("name", grp.name)
	b.CreateAttr("type", g.tns(grp.name))
	sb := b.CreateElement(g.soapPrefix + ":binding")
	sb.CreateAttr("style", "document")
	sb.CreateAttr("transport", HTTPTransport)
	for _, m := range grp.methods {
		op := b.CreateElement("wsdl:operation")
		op.CreateAttr("name", m.Name())
		so := op.CreateElement(g.soapPrefix + ":operation")
		so.CreateAttr("soapAction", m.Name())
		so.CreateAttr("style", "document")

		in := op.CreateElement("wsdl:input")
		in.CreateAttr("name", m.Name())
		g.body(in, m.InHeaders())
		out := op.CreateElement("wsdl:output")
		out.CreateAttr("name", m.ResponseName())
		g.body(out, m.OutHeaders())
		for _, f := range m.Faults() {
			fe := op.CreateElement("wsdl:fault")
			fe.CreateAttr("name", f.Name())
			sf := fe.CreateElement(g.soapPrefix + ":fault")
			sf.CreateAttr("name", f.Name())
			sf.CreateAttr("use", "literal")
		}
	}
}

func (g *generator) body(el *etree.Element, headers []service.Param) {
	for _, h := range headers {
		sh := el.CreateElement(g.soapPrefix + ":header")
		sh.CreateAttr("message", g.tns(h.Name))
		sh.CreateAttr("part", h.Name)
		sh.CreateAttr("use", "literal")
	}
	el.CreateElement(g.soapPrefix + ":body").CreateAttr("use", "literal")
}

// element is a top-level schema element declaration.
type element struct {
	name string
	t    wiretype.Type
}

// types emits one schema per namespace holding its type definitions and
// top-level elements.
func (g *generator) types(parent *etree.Element) {
	defs := map[string][]wiretype.Type{}
	for _, t := range g.iface.Types() {
		if wiretype.Declared(t) {
			defs[t.Namespace()] = append(defs[t.Namespace()], t)
		}
	}
	elems := map[string][]element{}
	seen := map[wiretype.QName]bool{}
	add := func(ns, name string, t wiretype.Type) {
		q := wiretype.QName{Space: ns, Local: name}
		if seen[q] {
			return
		}
		seen[q] = true
		elems[ns] = append(elems[ns], element{name: name, t: t})
	}
	for _, m := range g.iface.Methods() {
		ns := m.Namespace()
		if p, ok := m.BareParam(); ok {
			add(ns, p.Name, p.Type)
		} else {
			add(ns, m.Name(), m.In())
		}
		if r, ok := m.BareResult(); ok {
			add(m.Out().Namespace(), r.Name, r.Type)
		} else {
			add(m.Out().Namespace(), m.ResponseName(), m.Out())
		}
		for _, h := range append(m.InHeaders(), m.OutHeaders()...) {
			add(ns, h.Name, h.Type)
		}
		for _, f := range m.Faults() {
			add(f.Namespace(), f.Name(), f)
		}
	}

	for _, ns := range g.iface.Namespaces() {
		if ns == wiretype.XSNamespace || (len(defs[ns]) == 0 && len(elems[ns]) == 0) {
			continue
		}
		schema := parent.CreateElement("xs:schema")
		schema.CreateAttr("targetNamespace", ns)
		schema.CreateAttr("elementFormDefault", "qualified")
		g.imports(schema, ns, defs[ns], elems[ns])
		for _, t := range defs[ns] {
			g.define(schema, t)
		}
		for _, e := range elems[ns] {
			el := schema.CreateElement("xs:element")
			el.CreateAttr("name", e.name)
			g.typed(el, e.t)
		}
	}
}

// imports declares the other namespaces a schema refers to, in registry
// order.
func (g *generator) imports(schema *etree.Element, ns string, defs []wiretype.Type, elems []element) {
	used := map[string]bool{}
	ref := func(t wiretype.Type) {
		if wiretype.Declared(t) {
			used[t.Namespace()] = true
		}
	}
	for _, t := range defs {
		switch tt := t.(type) {
		case *wiretype.Complex:
			if b := tt.Base(); b != nil {
				ref(b)
			}
			for _, f := range tt.OwnFields() {
				ref(f.Type)
			}
		case *wiretype.Array:
			ref(tt.Member())
		}
	}
	for _, e := range elems {
		ref(e.t)
	}
	for _, other := range g.iface.Namespaces() {
		if other != ns && used[other] {
			schema.CreateElement("xs:import").CreateAttr("namespace", other)
		}
	}
}

func (g *generator) define(schema *etree.Element, t wiretype.Type) {
	switch tt := t.(type) {
	case *wiretype.Primitive:
		st := schema.CreateElement("xs:simpleType")
		st.CreateAttr("name", tt.Name())
		annotate(st, tt.Attrs().Doc)
		r := st.CreateElement("xs:restriction")
		r.CreateAttr("base", "xs:"+tt.BuiltinName())
		facets(r, tt.Attrs())
	case *wiretype.Complex:
		ct := schema.CreateElement("xs:complexType")
		ct.CreateAttr("name", tt.Name())
		annotate(ct, tt.Attrs().Doc)
		seqParent := ct
		if b := tt.Base(); b != nil {
			ext := ct.CreateElement("xs:complexContent").CreateElement("xs:extension")
			ext.CreateAttr("base", g.typeRef(b))
			seqParent = ext
		}
		seq := seqParent.CreateElement("xs:sequence")
		for _, f := range tt.OwnFields() {
			g.field(seq, f.Name, f.Type)
		}
	case *wiretype.Array:
		ct := schema.CreateElement("xs:complexType")
		ct.CreateAttr("name", tt.Name())
		seq := ct.CreateElement("xs:sequence")
		member := tt.Member()
		g.field(seq, member.Name(), member.Customize(wiretype.MaxOccurs(wiretype.Unbounded)))
	}
}

func (g *generator) field(seq *etree.Element, name string, t wiretype.Type) {
	a := t.Attrs()
	el := seq.CreateElement("xs:element")
	el.CreateAttr("name", name)
	g.typed(el, t)
	el.CreateAttr("minOccurs", strconv.Itoa(a.MinOccurs))
	if a.MaxOccurs == wiretype.Unbounded {
		el.CreateAttr("maxOccurs", "unbounded")
	} else if a.MaxOccurs != 1 {
		el.CreateAttr("maxOccurs", strconv.Itoa(a.MaxOccurs))
	}
	if a.Nillable {
		el.CreateAttr("nillable", "true")
	}
	annotate(el, a.Doc)
}

// typed sets the type of an element declaration. Customized built-ins
// carrying facets get an anonymous restriction instead.
func (g *generator) typed(el *etree.Element, t wiretype.Type) {
	p, ok := t.(*wiretype.Primitive)
	if !ok || !p.IsBuiltin() || !hasFacets(p.Attrs()) {
		el.CreateAttr("type", g.typeRef(t))
		return
	}
	r := el.CreateElement("xs:simpleType").CreateElement("xs:restriction")
	r.CreateAttr("base", "xs:"+p.BuiltinName())
	facets(r, p.Attrs())
}

func annotate(el *etree.Element, doc string) {
	if doc == "" {
		return
	}
	el.CreateElement("xs:annotation").CreateElement("xs:documentation").SetText(doc)
}

func hasFacets(a wiretype.Attributes) bool {
	return a.MinLength >= 0 || a.MaxLength >= 0 || a.Pattern != "" || len(a.Values) > 0 ||
		a.MinInclusive != nil || a.MaxInclusive != nil || a.MinExclusive != nil || a.MaxExclusive != nil
}

func facets(r *etree.Element, a wiretype.Attributes) {
	add := func(name, value string) {
		r.CreateElement("xs:"+name).CreateAttr("value", value)
	}
	num := func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
	if a.MinLength >= 0 {
		add("minLength", strconv.Itoa(a.MinLength))
	}
	if a.MaxLength >= 0 {
		add("maxLength", strconv.Itoa(a.MaxLength))
	}
	if a.MinInclusive != nil {
		add("minInclusive", num(*a.MinInclusive))
	}
	if a.MinExclusive != nil {
		add("minExclusive", num(*a.MinExclusive))
	}
	if a.MaxInclusive != nil {
		add("maxInclusive", num(*a.MaxInclusive))
	}
	if a.MaxExclusive != nil {
		add("maxExclusive", num(*a.MaxExclusive))
	}
	if a.Pattern != "" {
		add("pattern", a.Pattern)
	}
	values := append([]string(nil), a.Values...)
	sort.Strings(values)
	for _, v := range values {
		add("enumeration", v)
	}
}
