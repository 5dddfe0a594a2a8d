// Package soap implements the SOAP 1.1 and 1.2 envelope protocols: request
// parsing and method resolution, header and body (de)serialization, faults
// and MTOM attachments.
package soap

import (
	"bytes"
	"mime"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/xmlcodec"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

var logger = loggo.GetLogger("soapbox.soap")

// Version selects the envelope version written on output. Input accepts
// both versions.
type Version int

const (
	V11 Version = iota
	V12
)

// Envelope namespaces.
const (
	Envelope11 = "http://schemas.xmlsoap.org/soap/envelope/"
	Envelope12 = "http://www.w3.org/2003/05/soap-envelope"
)

func (v Version) String() string {
	if v == V12 {
		return "1.2"
	}
	return "1.1"
}

// Namespace returns the envelope namespace of v.
func (v Version) Namespace() string {
	if v == V12 {
		return Envelope12
	}
	return Envelope11
}

// MediaType returns the bare media type of v.
func (v Version) MediaType() string {
	if v == V12 {
		return "application/soap+xml"
	}
	return "text/xml"
}

// ContentType returns the response Content-Type of v.
func (v Version) ContentType() string { return v.MediaType() + "; charset=utf-8" }

func (v Version) prefix() string {
	if v == V12 {
		return "soap12env"
	}
	return "soapenv"
}

// Options tune a Protocol.
type Options struct {
	// Binary is the default encoding of binary fields. Base64 when unset.
	Binary wiretype.Encoding
	// MTOM moves binary fields marked AsAttachment into multipart/related
	// parts referenced through xop:Include.
	MTOM bool
	// Lang is the xml:lang of fault reasons without their own. Defaults to
	// "en".
	Lang string
}

// Protocol is the SOAP envelope protocol. It is safe for concurrent use.
type Protocol struct {
	version Version
	opts    Options
}

var (
	_ soapbox.InputProtocol  = (*Protocol)(nil)
	_ soapbox.OutputProtocol = (*Protocol)(nil)
)

// New returns a protocol writing envelopes of version v.
func New(v Version, opts Options) *Protocol {
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	return &Protocol{version: v, opts: opts}
}

// New11 returns a SOAP 1.1 protocol with default options.
func New11() *Protocol { return New(V11, Options{}) }

// New12 returns a SOAP 1.2 protocol with default options.
func New12() *Protocol { return New(V12, Options{}) }

func (p *Protocol) Name() string {
	if p.version == V12 {
		return "soap12"
	}
	return "soap11"
}

// Version returns the envelope version written on output.
func (p *Protocol) Version() Version { return p.version }

// inDoc is the parsed request.
type inDoc struct {
	doc         *etree.Document
	attachments map[string][]byte
	version     Version
}

// outDoc is the serialized response before rendering.
type outDoc struct {
	doc         *etree.Document
	attachments []attachment
}

// CreateInDocument parses the request bytes, unpacking an MTOM package
// first when the request is multipart/related.
func (p *Protocol) CreateInDocument(mc *soapbox.MethodContext) error {
	doc, atts, err := readDocument(mc.InBytes, contentType(mc))
	if err != nil {
		return err
	}
	mc.InDocument = &inDoc{doc: doc, attachments: atts}
	return nil
}

func contentType(mc *soapbox.MethodContext) string {
	if mc.Transport.ContentType != "" {
		return mc.Transport.ContentType
	}
	return mc.Transport.Header.Get("Content-Type")
}

// readDocument parses an envelope, or the root part of an MTOM package.
func readDocument(data []byte, ct string) (*etree.Document, map[string][]byte, error) {
	var atts map[string][]byte
	if mt, params, err := mime.ParseMediaType(ct); err == nil && mt == "multipart/related" {
		root, parts, err := readMultipart(data, params)
		if err != nil {
			return nil, nil, soapbox.ClientFault("MTOMError", err.Error())
		}
		data, atts = root, parts
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, soapbox.ClientFault("XMLSyntaxError", "empty request")
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, nil, soapbox.ClientFault("XMLSyntaxError", err.Error())
	}
	return doc, atts, nil
}

// splitEnvelope checks the envelope root and returns its version, Header
// (possibly nil) and Body.
func splitEnvelope(doc *etree.Document) (Version, *etree.Element, *etree.Element, error) {
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return 0, nil, nil, soapbox.ClientFault("SOAPEnvelope", "request is not a SOAP envelope")
	}
	var v Version
	switch ns := root.NamespaceURI(); ns {
	case Envelope11:
		v = V11
	case Envelope12:
		v = V12
	default:
		return 0, nil, nil, soapbox.NewFault("VersionMismatch", "unknown envelope namespace "+ns)
	}
	var header, body *etree.Element
	for _, k := range root.ChildElements() {
		if k.NamespaceURI() != root.NamespaceURI() {
			continue
		}
		switch k.Tag {
		case "Header":
			header = k
		case "Body":
			body = k
		}
	}
	if body == nil {
		return v, nil, nil, soapbox.ClientFault("SOAPEnvelope", "envelope without a Body")
	}
	return v, header, body, nil
}

// DecomposeIncoming splits the envelope and names the requested method.
// The body element's qualified name is tried first, then a bare parameter
// element of that name, then the SOAPAction.
func (p *Protocol) DecomposeIncoming(mc *soapbox.MethodContext) error {
	d, ok := mc.InDocument.(*inDoc)
	if !ok {
		return errors.NotValidf("soap input document %T", mc.InDocument)
	}
	v, header, body, err := splitEnvelope(d.doc)
	if err != nil {
		return err
	}
	d.version = v
	mc.InHeaderDoc = header
	iface := mc.App.Interface()

	var el *etree.Element
	if kids := body.ChildElements(); len(kids) > 0 {
		el = kids[0]
		mc.InBodyDoc = el
		mc.RequestedName = wiretype.QName{Space: el.NamespaceURI(), Local: el.Tag}
		if _, ok := iface.Lookup(mc.RequestedName); ok {
			return nil
		}
		if m, ok := iface.LookupBare(el.Tag); ok {
			mc.Method = m
			return nil
		}
	}
	if action := soapAction(mc); action != "" {
		if m, ok := iface.Lookup(wiretype.QName{Local: action}); ok {
			logger.Tracef("call %s: resolved %q from SOAPAction", mc.ID, action)
			mc.Method = m
			if el == nil {
				mc.RequestedName = m.Key()
			}
		}
	}
	return nil
}

// soapAction returns the operation named by the SOAPAction header, or by
// the action parameter of a SOAP 1.2 content type.
func soapAction(mc *soapbox.MethodContext) string {
	a := mc.Transport.Header.Get("SOAPAction")
	if a == "" {
		if _, params, err := mime.ParseMediaType(contentType(mc)); err == nil {
			a = params["action"]
		}
	}
	a = strings.Trim(strings.TrimSpace(a), `"`)
	if i := strings.LastIndexAny(a, "/#"); i >= 0 {
		a = a[i+1:]
	}
	return a
}

// Deserialize decodes the declared headers and the body into the call's
// native arguments. Unknown headers are ignored, mustUnderstand included.
func (p *Protocol) Deserialize(mc *soapbox.MethodContext) error {
	d, ok := mc.InDocument.(*inDoc)
	if !ok {
		return errors.NotValidf("soap input document %T", mc.InDocument)
	}
	m := mc.Method
	dec := &xmlcodec.Decoder{Binary: p.opts.Binary, Attachments: d.attachments}
	schema := mc.App.Validation == soapbox.ValidateSchema
	var iss wiretype.Issues
	keep := func(err error, base string) {
		if more, ok := wiretype.AsIssues(err); ok {
			iss = append(iss, more.Rebase(base)...)
		}
	}

	hs := map[string]any{}
	if header, _ := mc.InHeaderDoc.(*etree.Element); header != nil {
		declared := m.InHeaders()
		for _, k := range header.ChildElements() {
			for _, h := range declared {
				if h.Name != k.Tag {
					continue
				}
				if _, seen := hs[h.Name]; seen {
					iss = append(iss, wiretype.IssueAt("/"+h.Name, wiretype.CodeDuplicateKey, map[string]any{"element": h.Name}))
					continue
				}
				if schema {
					keep(xmlcodec.ValidateSchema(k, h.Type), "/"+h.Name)
				}
				v, err := dec.Value(k, h.Type, "/"+h.Name)
				keep(err, "")
				hs[h.Name] = v
			}
		}
	}

	body, _ := mc.InBodyDoc.(*etree.Element)
	var v any
	switch m.Style() {
	case service.Empty:
	case service.Bare:
		bp, _ := m.BareParam()
		if body != nil {
			if schema {
				keep(xmlcodec.ValidateSchema(body, bp.Type), "/"+bp.Name)
			}
			var err error
			v, err = dec.Value(body, bp.Type, "/"+bp.Name)
			keep(err, "")
		}
	default:
		if body != nil {
			if schema {
				keep(xmlcodec.ValidateSchema(body, m.In()), "")
			}
			var err error
			v, err = dec.Value(body, m.In(), "/")
			keep(err, "")
		}
	}
	if len(iss) > 0 {
		return iss
	}
	headers, err := soapbox.HeadersFromMap(mc, hs)
	if err != nil {
		return err
	}
	args, err := soapbox.ArgsFromValue(mc, v)
	if err != nil {
		return err
	}
	mc.InHeaders, mc.InArgs = headers, args
	return nil
}

// envelope starts an output document.
func envelope(v Version) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement(v.prefix() + ":Envelope")
	env.CreateAttr("xmlns:"+v.prefix(), v.Namespace())
	return doc, env
}

func qualify(prefix func(string) string, ns, local string) string {
	if pr := prefix(ns); pr != "" {
		return pr + ":" + local
	}
	return local
}

// Serialize builds the response envelope: the declared output headers and
// either the response element or a Fault.
func (p *Protocol) Serialize(mc *soapbox.MethodContext) error {
	if mc.Redirect != nil {
		mc.OutDocument = nil
		return nil
	}
	iface := mc.App.Interface()
	v := p.version
	ep := v.prefix()
	doc, env := envelope(v)
	for _, ns := range iface.Namespaces() {
		if pr := iface.Prefix(ns); pr != "" {
			env.CreateAttr("xmlns:"+pr, ns)
		}
	}

	out := &outDoc{doc: doc}
	enc := &xmlcodec.Encoder{
		Prefix: iface.Prefix,
		Binary: p.opts.Binary,
		Stream: func(c wiretype.ByteChunks) string {
			return mc.Stream(c, func(tok string) string { return "<!--" + tok + "-->" })
		},
	}
	if p.opts.MTOM {
		enc.Attach = func(data []byte) string {
			id := uuid.NewString() + "@soapbox"
			out.attachments = append(out.attachments, attachment{id: id, data: data})
			return id
		}
	}

	if mc.Fault == nil && mc.Method != nil && len(mc.OutHeaders) > 0 {
		header := env.CreateElement(ep + ":Header")
		ns := mc.Method.Namespace()
		for i, h := range mc.Method.OutHeaders() {
			if i >= len(mc.OutHeaders) {
				break
			}
			if err := enc.Field(header, ns, h.Name, h.Type, mc.OutHeaders[i]); err != nil {
				return errors.Annotatef(err, "header %q", h.Name)
			}
		}
	}
	body := env.CreateElement(ep + ":Body")
	if mc.Fault != nil {
		p.fault(body, mc.Fault, enc)
	} else if err := p.result(body, mc, enc); err != nil {
		return errors.Trace(err)
	}

	if enc.UsedXSI() {
		env.CreateAttr("xmlns:xsi", xmlcodec.XSINamespace)
	}
	if enc.UsedXOP() {
		env.CreateAttr("xmlns:xop", xmlcodec.XOPNamespace)
	}
	mc.OutDocument = out
	mc.OutBodyDoc = body
	return nil
}

// fault writes f, dropping a detail that cannot be serialized.
func (p *Protocol) fault(body *etree.Element, f *soapbox.Fault, enc *xmlcodec.Encoder) {
	if f.Lang == "" {
		c := *f
		c.Lang = p.opts.Lang
		f = &c
	}
	err := writeFault(body, p.version, p.version.prefix(), f, enc)
	if err == nil {
		return
	}
	logger.Warningf("fault %s: detail dropped: %v", f.Code, err)
	for _, k := range body.ChildElements() {
		body.RemoveChild(k)
	}
	plain := *f
	plain.Detail, plain.DetailType = nil, nil
	_ = writeFault(body, p.version, p.version.prefix(), &plain, enc)
}

// result writes the response element of mc.Method, or the single result
// element directly for out_bare methods.
func (p *Protocol) result(body *etree.Element, mc *soapbox.MethodContext, enc *xmlcodec.Encoder) error {
	m := mc.Method
	if m == nil {
		return errors.NotValidf("serializing a result without a resolved method")
	}
	value := soapbox.ResultValue(m, mc.OutArgs)
	if r, ok := m.BareResult(); ok {
		return enc.Field(body, m.Out().Namespace(), r.Name, r.Type, value)
	}
	el := body.CreateElement(qualify(enc.Prefix, m.Out().Namespace(), m.ResponseName()))
	return enc.Value(el, m.Out(), value)
}

// CreateOutString renders the envelope, packaging attachments as MTOM when
// there are any.
func (p *Protocol) CreateOutString(mc *soapbox.MethodContext) error {
	mc.OutContentType = p.version.ContentType()
	out, _ := mc.OutDocument.(*outDoc)
	if out == nil {
		mc.SetOutput(nil)
		return nil
	}
	b, err := out.doc.WriteToBytes()
	if err != nil {
		return errors.Annotate(err, "rendering envelope")
	}
	if len(out.attachments) > 0 {
		var ct string
		b, ct, err = writeMultipart(b, out.attachments, p.version)
		if err != nil {
			return errors.Annotate(err, "packaging attachments")
		}
		mc.OutContentType = ct
	}
	mc.SetOutput(b)
	return nil
}
