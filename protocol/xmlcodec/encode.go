// Package xmlcodec converts native values to and from XML element trees
// following their wire types. It is shared by the XML-based protocols.
package xmlcodec

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/juju/errors"

	"github.com/reoring/soapbox/wiretype"
)

// Well-known namespaces.
const (
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"
	XOPNamespace = "http://www.w3.org/2004/08/xop/include"
)

// Encoder renders native values as child elements. Element names are
// qualified with the prefix returned by Prefix; the caller declares the
// namespaces on the document root.
type Encoder struct {
	// Prefix maps a namespace to its prefix. An empty result leaves the
	// element unqualified.
	Prefix func(ns string) string
	// Binary is the protocol default for binary fields without an explicit
	// encoding.
	Binary wiretype.Encoding
	// Attach, when set, moves binary fields marked AsAttachment out of the
	// document. It returns the content id referenced by xop:Include.
	Attach func(data []byte) string
	// Stream, when set, receives lazily produced content and returns the
	// placeholder token written in its place as a comment.
	Stream func(producer wiretype.ByteChunks) string

	usedXSI bool
	usedXOP bool
}

// UsedXSI reports whether an xsi:nil attribute was written.
func (e *Encoder) UsedXSI() bool { return e.usedXSI }

// UsedXOP reports whether an xop:Include reference was written.
func (e *Encoder) UsedXOP() bool { return e.usedXOP }

func (e *Encoder) qualify(ns, local string) string {
	if e.Prefix == nil || ns == "" {
		return local
	}
	if p := e.Prefix(ns); p != "" {
		return p + ":" + local
	}
	return local
}

// Field appends the element(s) for one field of a complex value. Repeated
// fields yield one element per item; nil values yield xsi:nil when the type
// is nillable and nothing otherwise.
func (e *Encoder) Field(parent *etree.Element, ns, name string, t wiretype.Type, v any) error {
	a := t.Attrs()
	if a.Repeated() && v != nil {
		switch items := v.(type) {
		case []any:
			single := t.Customize(wiretype.MaxOccurs(1))
			for i, it := range items {
				if err := e.Field(parent, ns, name, single, it); err != nil {
					return errors.Annotatef(err, "%s[%d]", name, i)
				}
			}
			return nil
		case wiretype.Iterator:
			member := t.Customize(wiretype.MaxOccurs(1))
			if e.Stream == nil {
				all, err := wiretype.Collect(context.Background(), items)
				if err != nil {
					return errors.Trace(err)
				}
				return e.Field(parent, ns, name, t, all)
			}
			tok := e.Stream(e.itemChunks(items, ns, name, member))
			parent.CreateComment(tok)
			return nil
		}
	}
	if v == nil {
		if a.Nillable {
			el := parent.CreateElement(e.qualify(ns, name))
			el.CreateAttr("xsi:nil", "true")
			e.usedXSI = true
		}
		return nil
	}
	el := parent.CreateElement(e.qualify(ns, name))
	return e.Value(el, t, v)
}

// Value fills el with the content of v.
func (e *Encoder) Value(el *etree.Element, t wiretype.Type, v any) error {
	if v == nil {
		el.CreateAttr("xsi:nil", "true")
		e.usedXSI = true
		return nil
	}
	switch tt := t.(type) {
	case *wiretype.Primitive:
		return e.primitive(el, tt, v)
	case *wiretype.Complex:
		m, ok := v.(map[string]any)
		if !ok {
			return errors.NotValidf("%T as complex type %q", v, tt.Name())
		}
		// Absent keys are omitted; only explicit nils become xsi:nil.
		for _, f := range tt.Fields() {
			fv, present := m[f.Name]
			if !present {
				continue
			}
			if err := e.Field(el, tt.Namespace(), f.Name, f.Type, fv); err != nil {
				return errors.Annotate(err, f.Name)
			}
		}
		return nil
	case *wiretype.Array:
		member := tt.Member()
		ns := tt.Namespace()
		switch items := v.(type) {
		case []any:
			single := member.Customize(wiretype.MaxOccurs(1))
			for i, it := range items {
				if err := e.Field(el, ns, member.Name(), single, it); err != nil {
					return errors.Annotatef(err, "item %d", i)
				}
			}
			return nil
		case wiretype.Iterator:
			return e.Field(el, ns, member.Name(), member, items)
		}
		return errors.NotValidf("%T as array type %q", v, tt.Name())
	}
	return errors.NotSupportedf("wire type %T", t)
}

func (e *Encoder) primitive(el *etree.Element, p *wiretype.Primitive, v any) error {
	if p.PrimitiveKind() == wiretype.KindAnyDocument {
		return e.anyDocument(el, v)
	}
	if p.PrimitiveKind() == wiretype.KindBinary {
		return e.binary(el, p, v)
	}
	s, err := wiretype.ToString(p, v)
	if err != nil {
		return err
	}
	el.SetText(s)
	return nil
}

func (e *Encoder) anyDocument(el *etree.Element, v any) error {
	s, ok := v.(string)
	if !ok {
		return errors.NotValidf("%T as XML fragment", v)
	}
	frag := etree.NewDocument()
	if err := frag.ReadFromString("<fragment>" + s + "</fragment>"); err != nil {
		el.SetText(s)
		return nil
	}
	for _, c := range frag.Root().Child {
		el.AddChild(copyToken(c))
	}
	return nil
}

func copyToken(t etree.Token) etree.Token {
	switch x := t.(type) {
	case *etree.Element:
		return x.Copy()
	case *etree.CharData:
		return etree.NewText(x.Data)
	case *etree.Comment:
		return etree.NewComment(x.Data)
	}
	return t
}

func (e *Encoder) binaryEncoding(p *wiretype.Primitive) wiretype.Encoding {
	enc := p.Attrs().Encoding
	if enc == wiretype.EncodingDefault {
		enc = e.Binary
	}
	if enc == wiretype.EncodingDefault || enc == wiretype.EncodingRaw {
		enc = wiretype.EncodingBase64
	}
	return enc
}

func (e *Encoder) binary(el *etree.Element, p *wiretype.Primitive, v any) error {
	a := p.Attrs()
	if a.Attachment && e.Attach != nil {
		data, err := bytesOf(v)
		if err != nil {
			return err
		}
		cid := e.Attach(data)
		inc := el.CreateElement("xop:Include")
		inc.CreateAttr("href", "cid:"+cid)
		e.usedXOP = true
		return nil
	}
	enc := e.binaryEncoding(p)
	switch b := v.(type) {
	case []byte:
		el.SetText(string(wiretype.EncodeBinary(enc, b)))
		return nil
	case wiretype.ByteChunks:
		if e.Stream == nil {
			data, err := wiretype.ReadAllChunks(context.Background(), b)
			if err != nil {
				return errors.Trace(err)
			}
			el.SetText(string(wiretype.EncodeBinary(enc, data)))
			return nil
		}
		el.CreateComment(e.Stream(EncodeChunks(b, enc)))
		return nil
	}
	return errors.NotValidf("%T as binary", v)
}

func bytesOf(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case wiretype.ByteChunks:
		return wiretype.ReadAllChunks(context.Background(), b)
	}
	return nil, errors.NotValidf("%T as binary", v)
}

// itemChunks renders the items of a lazily produced repeated field one
// element at a time.
func (e *Encoder) itemChunks(it wiretype.Iterator, ns, name string, member wiretype.Type) wiretype.ByteChunks {
	return &itemProducer{enc: e, it: it, ns: ns, name: name, member: member}
}

type itemProducer struct {
	enc    *Encoder
	it     wiretype.Iterator
	ns     string
	name   string
	member wiretype.Type
	n      int
}

func (p *itemProducer) Next(ctx context.Context) ([]byte, error) {
	v, err := p.it.Next(ctx)
	if err != nil {
		return nil, err
	}
	if err := wiretype.Validate(p.member, v); err != nil {
		return nil, errors.Annotatef(err, "%s item %d", p.name, p.n)
	}
	p.n++
	holder := etree.NewElement("holder")
	// Items are rendered eagerly; nested streams are not supported.
	sub := *p.enc
	sub.Stream = nil
	if err := sub.Field(holder, p.ns, p.name, p.member, v); err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	for _, c := range holder.ChildElements() {
		doc.AddChild(c)
	}
	return doc.WriteToBytes()
}

func (p *itemProducer) Close() error { return p.it.Close() }

// Generic renders an untyped native value (fault details, free-form
// headers). Map keys are emitted in sorted order; slices repeat the
// element.
func (e *Encoder) Generic(parent *etree.Element, name string, v any) {
	switch x := v.(type) {
	case nil:
		return
	case []any:
		for _, it := range x {
			e.Generic(parent, name, it)
		}
		return
	}
	el := parent.CreateElement(name)
	e.GenericValue(el, v)
}

// GenericValue fills el with an untyped native value.
func (e *Encoder) GenericValue(el *etree.Element, v any) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e.Generic(el, k, x[k])
		}
	case []any:
		for _, it := range x {
			e.Generic(el, "item", it)
		}
	case string:
		el.SetText(x)
	case []byte:
		el.SetText(string(wiretype.EncodeBinary(wiretype.EncodingBase64, x)))
	default:
		el.SetText(fmt.Sprint(x))
	}
}

// DecodeGeneric reads an untyped value: text for leaf elements, a map for
// elements with children. Repeated child names collect into slices.
func DecodeGeneric(el *etree.Element) any {
	kids := el.ChildElements()
	if len(kids) == 0 {
		return strings.TrimSpace(el.Text())
	}
	out := map[string]any{}
	for _, k := range kids {
		v := DecodeGeneric(k)
		switch prev := out[k.Tag].(type) {
		case nil:
			out[k.Tag] = v
		case []any:
			out[k.Tag] = append(prev, v)
		default:
			out[k.Tag] = []any{prev, v}
		}
	}
	return out
}
