// Package xmldoc implements the plain XML document protocol: the request
// document root is the method's request element and the response root is
// its response element, with no envelope around either.
package xmldoc

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/juju/errors"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/xmlcodec"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

// ContentType of every response.
const ContentType = "text/xml; charset=utf-8"

// Options tune a Protocol.
type Options struct {
	// Binary is the default encoding of binary fields. Base64 when unset.
	Binary wiretype.Encoding
	// Indent pretty-prints responses with the given number of spaces.
	Indent int
}

// Protocol is the XML document protocol.
type Protocol struct {
	opts Options
}

var (
	_ soapbox.InputProtocol  = (*Protocol)(nil)
	_ soapbox.OutputProtocol = (*Protocol)(nil)
)

func New(opts Options) *Protocol { return &Protocol{opts: opts} }

func (p *Protocol) Name() string { return "xml" }

func (p *Protocol) CreateInDocument(mc *soapbox.MethodContext) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(mc.InBytes); err != nil {
		return soapbox.ClientFault("XMLSyntaxError", err.Error())
	}
	if doc.Root() == nil {
		return soapbox.ClientFault("XMLSyntaxError", "empty document")
	}
	mc.InDocument = doc
	return nil
}

// DecomposeIncoming names the method after the root element. A root named
// after the parameter of a bare method resolves to that method.
func (p *Protocol) DecomposeIncoming(mc *soapbox.MethodContext) error {
	doc, ok := mc.InDocument.(*etree.Document)
	if !ok {
		return errors.NotValidf("xml input document %T", mc.InDocument)
	}
	root := doc.Root()
	mc.InBodyDoc = root
	mc.RequestedName = wiretype.QName{Space: root.NamespaceURI(), Local: root.Tag}
	iface := mc.App.Interface()
	if _, ok := iface.Lookup(mc.RequestedName); !ok {
		if m, ok := iface.LookupBare(root.Tag); ok {
			mc.Method = m
		}
	}
	return nil
}

func (p *Protocol) Deserialize(mc *soapbox.MethodContext) error {
	root, _ := mc.InBodyDoc.(*etree.Element)
	m := mc.Method
	dec := &xmlcodec.Decoder{Binary: p.opts.Binary}
	schema := mc.App.Validation == soapbox.ValidateSchema

	var t wiretype.Type = m.In()
	base := "/"
	if bp, ok := m.BareParam(); ok {
		t, base = bp.Type, "/"+bp.Name
	}
	var v any
	if m.Style() != service.Empty && root != nil {
		if schema {
			if err := xmlcodec.ValidateSchema(root, t); err != nil {
				if iss, ok := wiretype.AsIssues(err); ok {
					return iss.Rebase(base)
				}
				return err
			}
		}
		var err error
		if v, err = dec.Value(root, t, base); err != nil {
			return err
		}
	}
	args, err := soapbox.ArgsFromValue(mc, v)
	if err != nil {
		return err
	}
	mc.InArgs = args
	return nil
}

// Serialize writes the response element, or a Fault element carrying
// faultcode, faultstring, faultactor and detail children.
func (p *Protocol) Serialize(mc *soapbox.MethodContext) error {
	if mc.Redirect != nil {
		mc.OutDocument = nil
		return nil
	}
	iface := mc.App.Interface()
	enc := &xmlcodec.Encoder{Prefix: iface.Prefix, Binary: p.opts.Binary}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	var root *etree.Element
	if f := mc.Fault; f != nil {
		root = doc.CreateElement("tns:Fault")
		root.CreateElement("tns:faultcode").SetText(f.Code)
		root.CreateElement("tns:faultstring").SetText(f.Message)
		if f.Actor != "" {
			root.CreateElement("tns:faultactor").SetText(f.Actor)
		}
		if f.Detail != nil {
			d := root.CreateElement("tns:detail")
			if f.DetailType != nil {
				if err := enc.Field(d, f.DetailType.Namespace(), f.DetailType.Name(), f.DetailType, f.Detail); err != nil {
					root.RemoveChild(d)
				}
			} else {
				enc.GenericValue(d, f.Detail)
			}
		}
	} else {
		m := mc.Method
		if m == nil {
			return errors.NotValidf("serializing a result without a resolved method")
		}
		value := soapbox.ResultValue(m, mc.OutArgs)
		if r, ok := m.BareResult(); ok {
			root = doc.CreateElement(qualify(iface.Prefix, m.Out().Namespace(), r.Name))
			if err := enc.Value(root, r.Type, value); err != nil {
				return errors.Trace(err)
			}
		} else {
			root = doc.CreateElement(qualify(iface.Prefix, m.Out().Namespace(), m.ResponseName()))
			if err := enc.Value(root, m.Out(), value); err != nil {
				return errors.Trace(err)
			}
		}
	}
	declare(root, iface)
	if enc.UsedXSI() {
		root.CreateAttr("xmlns:xsi", xmlcodec.XSINamespace)
	}
	mc.OutDocument = doc
	mc.OutBodyDoc = root
	return nil
}

// declare adds the namespace declarations used under root.
func declare(root *etree.Element, iface *soapbox.Interface) {
	for _, ns := range iface.Namespaces() {
		if pr := iface.Prefix(ns); pr != "" && ns != wiretype.XSNamespace {
			root.CreateAttr("xmlns:"+pr, ns)
		}
	}
}

func qualify(prefix func(string) string, ns, local string) string {
	if pr := prefix(ns); pr != "" {
		return pr + ":" + local
	}
	return local
}

func (p *Protocol) CreateOutString(mc *soapbox.MethodContext) error {
	mc.OutContentType = ContentType
	doc, _ := mc.OutDocument.(*etree.Document)
	if doc == nil {
		mc.SetOutput(nil)
		return nil
	}
	if p.opts.Indent > 0 {
		doc.Indent(p.opts.Indent)
	}
	b, err := doc.WriteToBytes()
	if err != nil {
		return errors.Annotate(err, "rendering document")
	}
	mc.SetOutput(b)
	return nil
}

// ReadFault reads a Fault document written by Serialize. It returns nil
// when the root is not a Fault.
func ReadFault(data []byte) (*soapbox.Fault, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Trace(err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Fault" {
		return nil, nil
	}
	f := &soapbox.Fault{}
	for _, k := range root.ChildElements() {
		switch k.Tag {
		case "faultcode":
			f.Code = strings.TrimSpace(k.Text())
		case "faultstring":
			f.Message = k.Text()
		case "faultactor":
			f.Actor = k.Text()
		case "detail":
			f.Detail = xmlcodec.DecodeGeneric(k)
		}
	}
	return f, nil
}
