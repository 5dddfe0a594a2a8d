package soap

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/juju/errors"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/xmlcodec"
	"github.com/reoring/soapbox/service"
)

// prefixer hands out ns0, ns1, ... as namespaces are first used.
type prefixer struct {
	prefixes map[string]string
	order    []string
}

func (px *prefixer) prefix(ns string) string {
	if ns == "" {
		return ""
	}
	if pr, ok := px.prefixes[ns]; ok {
		return pr
	}
	if px.prefixes == nil {
		px.prefixes = map[string]string{}
	}
	pr := "ns" + strconv.Itoa(len(px.order))
	px.prefixes[ns] = pr
	px.order = append(px.order, ns)
	return pr
}

func (px *prefixer) declare(el *etree.Element) {
	for _, ns := range px.order {
		el.CreateAttr("xmlns:"+px.prefixes[ns], ns)
	}
}

// BuildRequest renders a request envelope calling m with args and the
// named input headers. It returns the body and its Content-Type.
func (p *Protocol) BuildRequest(m *service.Method, args []any, headers map[string]any) ([]byte, string, error) {
	v := p.version
	doc, env := envelope(v)
	px := &prefixer{}
	enc := &xmlcodec.Encoder{Prefix: px.prefix, Binary: p.opts.Binary}

	if len(headers) > 0 {
		header := env.CreateElement(v.prefix() + ":Header")
		for _, h := range m.InHeaders() {
			hv, ok := headers[h.Name]
			if !ok {
				continue
			}
			if err := enc.Field(header, m.Namespace(), h.Name, h.Type, hv); err != nil {
				return nil, "", errors.Annotatef(err, "header %q", h.Name)
			}
		}
	}
	body := env.CreateElement(v.prefix() + ":Body")
	switch m.Style() {
	case service.Empty:
		body.CreateElement(qualify(px.prefix, m.Namespace(), m.Name()))
	case service.Bare:
		bp, _ := m.BareParam()
		var a any
		if len(args) > 0 {
			a = args[0]
		}
		if err := enc.Field(body, m.Namespace(), bp.Name, bp.Type, a); err != nil {
			return nil, "", errors.Trace(err)
		}
	default:
		in := map[string]any{}
		for i, pa := range m.Params() {
			if i < len(args) {
				in[pa.Name] = args[i]
			}
		}
		el := body.CreateElement(qualify(px.prefix, m.Namespace(), m.Name()))
		if err := enc.Value(el, m.In(), in); err != nil {
			return nil, "", errors.Trace(err)
		}
	}
	px.declare(env)
	if enc.UsedXSI() {
		env.CreateAttr("xmlns:xsi", xmlcodec.XSINamespace)
	}
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	return b, v.ContentType(), nil
}

// ParseResponse reads a response envelope of either version. A Fault body
// is returned as the fault; otherwise the results of m follow their
// declared order.
func (p *Protocol) ParseResponse(data []byte, contentType string, m *service.Method) ([]any, *soapbox.Fault, error) {
	doc, atts, err := readDocument(data, contentType)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	_, _, body, err := splitEnvelope(doc)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	dec := &xmlcodec.Decoder{Binary: p.opts.Binary, Attachments: atts}
	kids := body.ChildElements()
	if len(kids) > 0 && kids[0].Tag == "Fault" {
		return nil, ReadFault(kids[0], m.Faults(), dec), nil
	}
	if r, ok := m.BareResult(); ok {
		if len(kids) == 0 {
			return []any{nil}, nil, nil
		}
		v, err := dec.Value(kids[0], r.Type, "/"+r.Name)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		return []any{v}, nil, nil
	}
	if len(kids) == 0 {
		return nil, nil, errors.NotFoundf("response element %q", m.ResponseName())
	}
	v, err := dec.Value(kids[0], m.Out(), "/")
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return soapbox.ResultsFromValue(m, v), nil, nil
}
