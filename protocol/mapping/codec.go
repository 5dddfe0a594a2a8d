package mapping

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/juju/errors"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Codec turns generic mapping trees into bytes and back. Trees are built
// from Object, []any, nil and scalar leaves; decoded trees use
// map[string]any in place of Object.
type Codec interface {
	Name() string
	MediaType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
	// RawBinary reports whether binary leaves travel as bytes rather than
	// as encoded strings.
	RawBinary() bool
}

// The built-in codecs. Dict carries native values in process and has no
// byte form.
var (
	JSON        Codec = jsonCodec{}
	MessagePack Codec = msgpackCodec{}
	YAML        Codec = yamlCodec{}
	Dict        Codec = dictCodec{}
)

// Member is one key of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a mapping that keeps its keys in declared order when encoded.
type Object []Member

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, errors.Trace(err)
		}
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, errors.Annotatef(err, "key %q", m.Key)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var _ msgpack.CustomEncoder = Object(nil)

func (o Object) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(o)); err != nil {
		return err
	}
	for _, m := range o {
		if err := enc.EncodeString(m.Key); err != nil {
			return err
		}
		if err := enc.Encode(m.Value); err != nil {
			return errors.Annotatef(err, "key %q", m.Key)
		}
	}
	return nil
}

func (o Object) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, m := range o {
		v := &yaml.Node{}
		if err := v.Encode(m.Value); err != nil {
			return nil, errors.Annotatef(err, "key %q", m.Key)
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.Key}, v)
	}
	return n, nil
}

// Plain replaces every Object in v with a map[string]any.
func Plain(v any) any {
	switch x := v.(type) {
	case Object:
		out := make(map[string]any, len(x))
		for _, m := range x {
			out[m.Key] = Plain(m.Value)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, it := range x {
			out[i] = Plain(it)
		}
		return out
	}
	return v
}

type jsonCodec struct{}

func (jsonCodec) Name() string      { return "json" }
func (jsonCodec) MediaType() string { return "application/json" }
func (jsonCodec) RawBinary() bool   { return false }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, errors.Trace(err)
}

// Unmarshal keeps numbers as json.Number so integers beyond 2^53 reach the
// wire types intact.
func (jsonCodec) Unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.NotValidf("trailing data after JSON document")
	}
	return v, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string      { return "msgpack" }
func (msgpackCodec) MediaType() string { return "application/x-msgpack" }
func (msgpackCodec) RawBinary() bool   { return true }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	return b, errors.Trace(err)
}

func (msgpackCodec) Unmarshal(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
		return d.DecodeUntypedMap()
	})
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, err
	}
	return stringKeys(v), nil
}

// stringKeys converts map[any]any values left by decoders into
// map[string]any.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			if s, ok := k.(string); ok {
				out[s] = stringKeys(e)
			}
		}
		return out
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = stringKeys(e)
		}
		return x
	}
	return v
}

type yamlCodec struct{}

func (yamlCodec) Name() string      { return "yaml" }
func (yamlCodec) MediaType() string { return "application/yaml" }
func (yamlCodec) RawBinary() bool   { return false }

func (yamlCodec) Marshal(v any) ([]byte, error) {
	b, err := yaml.Marshal(v)
	return b, errors.Trace(err)
}

func (yamlCodec) Unmarshal(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return stringKeys(v), nil
}

type dictCodec struct{}

func (dictCodec) Name() string      { return "dict" }
func (dictCodec) MediaType() string { return "" }
func (dictCodec) RawBinary() bool   { return true }

func (dictCodec) Marshal(any) ([]byte, error) {
	return nil, errors.NotSupportedf("byte form of dict documents")
}

func (dictCodec) Unmarshal([]byte) (any, error) {
	return nil, errors.NotSupportedf("byte form of dict documents")
}
