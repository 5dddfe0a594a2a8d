package xmlcodec

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/reoring/soapbox/wiretype"
)

// Decoder reads native values from element trees.
type Decoder struct {
	// Binary is the protocol default for binary fields without an explicit
	// encoding.
	Binary wiretype.Encoding
	// Attachments resolves xop:Include references by content id.
	Attachments map[string][]byte
}

// Value decodes the content of el against t. Lexical errors are collected
// as Issues rooted at path.
func (d *Decoder) Value(el *etree.Element, t wiretype.Type, path string) (any, error) {
	var iss wiretype.Issues
	v := d.value(el, t, path, &iss)
	if len(iss) > 0 {
		return v, iss
	}
	return v, nil
}

// IsNil reports whether el carries xsi:nil="true".
func IsNil(el *etree.Element) bool {
	for _, a := range el.Attr {
		if a.Key == "nil" && (a.Space == "xsi" || a.NamespaceURI() == XSINamespace) {
			v := strings.TrimSpace(a.Value)
			return v == "true" || v == "1"
		}
	}
	return false
}

func (d *Decoder) value(el *etree.Element, t wiretype.Type, path string, iss *wiretype.Issues) any {
	if IsNil(el) {
		return nil
	}
	switch tt := t.(type) {
	case *wiretype.Primitive:
		return d.primitive(el, tt, path, iss)
	case *wiretype.Complex:
		return d.complex(el, tt, path, iss)
	case *wiretype.Array:
		member := tt.Member()
		items := []any{}
		for i, k := range el.ChildElements() {
			if k.Tag != member.Name() {
				continue
			}
			items = append(items, d.value(k, member, childPath(path, strconv.Itoa(i)), iss))
		}
		return items
	}
	*iss = append(*iss, wiretype.IssueAt(path, wiretype.CodeInvalidType, nil))
	return nil
}

func (d *Decoder) complex(el *etree.Element, c *wiretype.Complex, path string, iss *wiretype.Issues) any {
	out := map[string]any{}
	counts := map[string]int{}
	for _, k := range el.ChildElements() {
		f, ok := c.Field(k.Tag)
		if !ok {
			// Unknown elements are a schema-tier concern.
			continue
		}
		if f.Type.Attrs().Repeated() {
			i := counts[f.Name]
			counts[f.Name]++
			v := d.value(k, f.Type, childPath(path, f.Name+"/"+strconv.Itoa(i)), iss)
			prev, _ := out[f.Name].([]any)
			out[f.Name] = append(prev, v)
			continue
		}
		if _, seen := out[f.Name]; seen {
			*iss = append(*iss, wiretype.IssueAt(childPath(path, f.Name), wiretype.CodeDuplicateKey, map[string]any{"element": f.Name}))
			continue
		}
		out[f.Name] = d.value(k, f.Type, childPath(path, f.Name), iss)
	}
	return out
}

func (d *Decoder) primitive(el *etree.Element, p *wiretype.Primitive, path string, iss *wiretype.Issues) any {
	switch p.PrimitiveKind() {
	case wiretype.KindAnyDocument:
		return innerXML(el)
	case wiretype.KindBinary:
		if inc := includeRef(el); inc != "" {
			data, ok := d.Attachments[inc]
			if !ok {
				it := wiretype.IssueAt(path, wiretype.CodeInvalidFormat, map[string]any{"expected": "attachment " + inc})
				*iss = append(*iss, it)
				return nil
			}
			return data
		}
		enc := p.Attrs().Encoding
		if enc == wiretype.EncodingDefault {
			enc = d.Binary
		}
		if enc == wiretype.EncodingDefault || enc == wiretype.EncodingRaw {
			enc = wiretype.EncodingBase64
		}
		data, err := wiretype.DecodeBinary(enc, []byte(strings.TrimSpace(el.Text())))
		if err != nil {
			*iss = append(*iss, wiretype.IssueAt(path, wiretype.CodeInvalidFormat, map[string]any{"expected": enc.String()}))
			return nil
		}
		return data
	}
	text := el.Text()
	if p.PrimitiveKind() != wiretype.KindString {
		text = strings.TrimSpace(text)
	}
	v, err := wiretype.FromString(p, text)
	if err != nil {
		if more, ok := wiretype.AsIssues(err); ok {
			*iss = append(*iss, more.Rebase(path)...)
		} else {
			*iss = append(*iss, wiretype.IssueAt(path, wiretype.CodeInvalidFormat, nil))
		}
		return nil
	}
	return v
}

// includeRef returns the content id of an xop:Include child, if any.
func includeRef(el *etree.Element) string {
	for _, k := range el.ChildElements() {
		if k.Tag == "Include" && (k.Space == "xop" || k.NamespaceURI() == XOPNamespace) {
			return strings.TrimPrefix(k.SelectAttrValue("href", ""), "cid:")
		}
	}
	return ""
}

// innerXML serializes the children of el.
func innerXML(el *etree.Element) string {
	if len(el.ChildElements()) == 0 {
		return el.Text()
	}
	doc := etree.NewDocument()
	for _, c := range el.Child {
		doc.AddChild(copyToken(c))
	}
	s, err := doc.WriteToString()
	if err != nil {
		return el.Text()
	}
	return s
}

func childPath(base, seg string) string {
	if base == "" || base == "/" {
		return "/" + seg
	}
	return base + "/" + seg
}
