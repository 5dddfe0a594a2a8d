// Package mapping implements the mapping-style protocols: requests and
// responses are generic key/value trees carried as JSON, MessagePack, YAML
// or native in-process maps.
package mapping

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

var logger = loggo.GetLogger("soapbox.mapping")

// Options tune a Protocol.
type Options struct {
	// IgnoreWrappers drops the response wrapper: the response is the
	// mapping of result names to values instead of
	// {"<method>Response": {...}}.
	IgnoreWrappers bool
}

// Protocol is a mapping protocol over one Codec.
type Protocol struct {
	codec Codec
	opts  Options
}

var (
	_ soapbox.InputProtocol  = (*Protocol)(nil)
	_ soapbox.OutputProtocol = (*Protocol)(nil)
)

// New returns a mapping protocol carried by codec.
func New(codec Codec, opts Options) *Protocol {
	return &Protocol{codec: codec, opts: opts}
}

func (p *Protocol) Name() string { return p.codec.Name() }

// Codec returns the wire codec.
func (p *Protocol) Codec() Codec { return p.codec }

func (p *Protocol) native() bool {
	_, ok := p.codec.(dictCodec)
	return ok
}

// CreateInDocument decodes the request bytes. The dict codec expects the
// caller to have set mc.InDocument already; an empty body is an empty
// mapping.
func (p *Protocol) CreateInDocument(mc *soapbox.MethodContext) error {
	if p.native() {
		if mc.InDocument == nil {
			return errors.NotValidf("dict request without a native document")
		}
		return nil
	}
	if len(bytes.TrimSpace(mc.InBytes)) == 0 {
		mc.InDocument = map[string]any{}
		return nil
	}
	doc, err := p.codec.Unmarshal(mc.InBytes)
	if err != nil {
		return soapbox.ClientFault("DecodeError", err.Error())
	}
	mc.InDocument = doc
	return nil
}

// DecomposeIncoming names the method. A document with a single key naming
// a method is that method's request; otherwise the last segment of the
// request path names it and the whole document is the request.
func (p *Protocol) DecomposeIncoming(mc *soapbox.MethodContext) error {
	iface := mc.App.Interface()
	if m, ok := mc.InDocument.(map[string]any); ok && len(m) == 1 {
		for k, v := range m {
			if _, ok := iface.Lookup(wiretype.QName{Local: k}); ok {
				mc.RequestedName = wiretype.QName{Local: k}
				mc.InBodyDoc = v
				return nil
			}
		}
	}
	mc.InBodyDoc = mc.InDocument
	if u := mc.Transport.URL; u != nil {
		if name := path.Base(u.Path); name != "/" && name != "." {
			mc.RequestedName = wiretype.QName{Local: name}
		}
	}
	return nil
}

// Deserialize converts the request mapping into canonical native
// arguments. Unknown keys are reported only under schema validation.
func (p *Protocol) Deserialize(mc *soapbox.MethodContext) error {
	m := mc.Method
	dec := &decoder{unknown: mc.App.Validation == soapbox.ValidateSchema}
	var v any
	var err error
	switch m.Style() {
	case service.Empty:
	case service.Bare:
		bp, _ := m.BareParam()
		v, err = dec.value(bp.Type, mc.InBodyDoc, "/"+bp.Name)
	default:
		body := mc.InBodyDoc
		if body == nil {
			body = map[string]any{}
		}
		v, err = dec.value(m.In(), body, "/")
	}
	if err != nil {
		return err
	}
	args, err := soapbox.ArgsFromValue(mc, v)
	if err != nil {
		return err
	}
	mc.InArgs = args
	return nil
}

// Serialize builds the response tree, or {"Fault": {...}} for faults.
func (p *Protocol) Serialize(mc *soapbox.MethodContext) error {
	if mc.Redirect != nil {
		mc.OutDocument = nil
		return nil
	}
	enc := &encoder{rawBinary: p.codec.RawBinary()}
	if f := mc.Fault; f != nil {
		fo := Object{{Key: "faultcode", Value: f.Code}, {Key: "faultstring", Value: f.Message}}
		if f.Actor != "" {
			fo = append(fo, Member{Key: "faultactor", Value: f.Actor})
		}
		if f.Detail != nil {
			detail := generic(f.Detail)
			if f.DetailType != nil {
				w, err := enc.value(f.DetailType, f.Detail)
				if err != nil {
					logger.Warningf("fault %s: detail dropped: %v", f.Code, err)
					w = nil
				}
				detail = w
			}
			if detail != nil {
				fo = append(fo, Member{Key: "detail", Value: detail})
			}
		}
		mc.OutDocument = Object{{Key: "Fault", Value: fo}}
		return nil
	}

	m := mc.Method
	if m == nil {
		return errors.NotValidf("serializing a result without a resolved method")
	}
	if _, ok := p.codec.(jsonCodec); ok {
		enc.stream = func(it wiretype.Iterator, member wiretype.Type) (any, error) {
			return mc.Stream(jsonList(it, member), func(tok string) string { return `"` + tok + `"` }), nil
		}
	}
	value := soapbox.ResultValue(m, mc.OutArgs)
	if r, ok := m.BareResult(); ok {
		w, err := enc.value(r.Type, value)
		if err != nil {
			return errors.Trace(err)
		}
		mc.OutDocument = w
		return nil
	}
	w, err := enc.value(m.Out(), value)
	if err != nil {
		return errors.Trace(err)
	}
	if !p.opts.IgnoreWrappers {
		w = Object{{Key: m.ResponseName(), Value: w}}
	}
	mc.OutDocument = w
	return nil
}

// jsonList renders a lazily produced array as a JSON list, one item per
// chunk.
func jsonList(it wiretype.Iterator, member wiretype.Type) wiretype.ByteChunks {
	enc := &encoder{}
	items := soapbox.IteratorChunks(it, func(i int, item any) ([]byte, error) {
		w, err := enc.value(member, item)
		if err != nil {
			return nil, errors.Annotatef(err, "item %d", i)
		}
		b, err := JSON.Marshal(w)
		if err != nil {
			return nil, err
		}
		sep := ","
		if i == 0 {
			sep = "["
		}
		return append([]byte(sep), b...), nil
	})
	return &listChunks{items: items}
}

type listChunks struct {
	items wiretype.ByteChunks
	n     int
	done  bool
}

func (l *listChunks) Next(ctx context.Context) ([]byte, error) {
	if l.done {
		return nil, io.EOF
	}
	b, err := l.items.Next(ctx)
	if err == io.EOF {
		l.done = true
		if l.n == 0 {
			return []byte("[]"), nil
		}
		return []byte("]"), nil
	}
	if err != nil {
		return nil, err
	}
	l.n++
	return b, nil
}

func (l *listChunks) Close() error { return l.items.Close() }

// CreateOutString marshals the response tree. The dict codec leaves a
// plain native value in mc.OutDocument instead.
func (p *Protocol) CreateOutString(mc *soapbox.MethodContext) error {
	if p.native() {
		mc.OutDocument = Plain(mc.OutDocument)
		mc.SetOutput(nil)
		return nil
	}
	mc.OutContentType = p.codec.MediaType()
	if strings.HasPrefix(mc.OutContentType, "application/json") {
		mc.OutContentType += "; charset=utf-8"
	}
	if mc.OutDocument == nil && mc.Redirect != nil {
		mc.SetOutput(nil)
		return nil
	}
	b, err := p.codec.Marshal(mc.OutDocument)
	if err != nil {
		return errors.Annotatef(err, "rendering %s document", p.codec.Name())
	}
	mc.SetOutput(b)
	return nil
}
