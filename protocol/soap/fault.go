package soap

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/xmlcodec"
	"github.com/reoring/soapbox/wiretype"
)

// Top-level SOAP 1.2 fault code values.
const (
	CodeSender   = "Sender"
	CodeReceiver = "Receiver"
)

// ToSoap12Code splits a dotted SOAP 1.1 fault code into the SOAP 1.2 code
// value and its subcode chain: Client becomes Sender, Server becomes
// Receiver and the remaining segments form the chain in order.
func ToSoap12Code(code string) (string, []string) {
	parts := strings.Split(code, ".")
	top := parts[0]
	switch top {
	case soapbox.CodeClient:
		top = CodeSender
	case soapbox.CodeServer:
		top = CodeReceiver
	}
	return top, parts[1:]
}

// FromSoap12Code is the exact inverse of ToSoap12Code.
func FromSoap12Code(value string, subcodes []string) string {
	switch value {
	case CodeSender:
		value = soapbox.CodeClient
	case CodeReceiver:
		value = soapbox.CodeServer
	}
	return strings.Join(append([]string{value}, subcodes...), ".")
}

// writeFault appends the Fault element of version v to body. ep is the
// envelope prefix.
func writeFault(body *etree.Element, v Version, ep string, f *soapbox.Fault, enc *xmlcodec.Encoder) error {
	q := func(local string) string {
		if ep == "" {
			return local
		}
		return ep + ":" + local
	}
	fe := body.CreateElement(q("Fault"))
	lang := f.Lang
	if lang == "" {
		lang = "en"
	}
	if v == V12 {
		value, subs := ToSoap12Code(f.Code)
		code := fe.CreateElement(q("Code"))
		code.CreateElement(q("Value")).SetText(q(value))
		parent := code
		for _, s := range subs {
			sc := parent.CreateElement(q("Subcode"))
			sc.CreateElement(q("Value")).SetText(s)
			parent = sc
		}
		txt := fe.CreateElement(q("Reason")).CreateElement(q("Text"))
		txt.CreateAttr("xml:lang", lang)
		txt.SetText(f.Message)
		if f.Actor != "" {
			fe.CreateElement(q("Role")).SetText(f.Actor)
		}
		if f.Detail != nil {
			return writeDetail(fe.CreateElement(q("Detail")), f, enc)
		}
		return nil
	}
	fe.CreateElement("faultcode").SetText(q(f.Code))
	fe.CreateElement("faultstring").SetText(f.Message)
	if f.Actor != "" {
		fe.CreateElement("faultactor").SetText(f.Actor)
	}
	if f.Detail != nil {
		return writeDetail(fe.CreateElement("detail"), f, enc)
	}
	return nil
}

func writeDetail(d *etree.Element, f *soapbox.Fault, enc *xmlcodec.Encoder) error {
	if f.DetailType == nil {
		enc.GenericValue(d, f.Detail)
		return nil
	}
	return enc.Field(d, f.DetailType.Namespace(), f.DetailType.Name(), f.DetailType, f.Detail)
}

// ReadFault reads a Fault element of either SOAP version. Typed details
// are decoded when their element matches one of faults.
func ReadFault(fe *etree.Element, faults []*wiretype.Complex, dec *xmlcodec.Decoder) *soapbox.Fault {
	f := &soapbox.Fault{}
	for _, k := range fe.ChildElements() {
		switch k.Tag {
		case "faultcode":
			f.Code = localPart(strings.TrimSpace(k.Text()))
		case "faultstring":
			f.Message = k.Text()
			f.Lang = k.SelectAttrValue("xml:lang", "")
		case "faultactor", "Role":
			f.Actor = strings.TrimSpace(k.Text())
		case "Code":
			f.Code = readCode12(k)
		case "Reason":
			if txt := k.FindElement("./Text"); txt != nil {
				f.Message = txt.Text()
				f.Lang = txt.SelectAttrValue("xml:lang", "")
			}
		case "detail", "Detail":
			readDetail(f, k, faults, dec)
		}
	}
	return f
}

func readCode12(code *etree.Element) string {
	var value string
	var subs []string
	cur := code
	top := true
	for cur != nil {
		var next *etree.Element
		for _, k := range cur.ChildElements() {
			switch k.Tag {
			case "Value":
				if top {
					value = localPart(strings.TrimSpace(k.Text()))
				} else {
					subs = append(subs, localPart(strings.TrimSpace(k.Text())))
				}
			case "Subcode":
				next = k
			}
		}
		cur, top = next, false
	}
	return FromSoap12Code(value, subs)
}

func readDetail(f *soapbox.Fault, d *etree.Element, faults []*wiretype.Complex, dec *xmlcodec.Decoder) {
	kids := d.ChildElements()
	if len(kids) == 1 {
		for _, ft := range faults {
			if ft.Name() != kids[0].Tag {
				continue
			}
			if v, err := dec.Value(kids[0], ft, "/"); err == nil {
				f.Detail, f.DetailType = v, ft
				return
			}
		}
	}
	f.Detail = xmlcodec.DecodeGeneric(d)
}

// localPart drops a namespace prefix from a QName value.
func localPart(s string) string {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}
