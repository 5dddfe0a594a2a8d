package xmlcodec_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	qt "github.com/frankban/quicktest"

	"github.com/reoring/soapbox/protocol/xmlcodec"
	"github.com/reoring/soapbox/wiretype"
)

var (
	address = wiretype.NewComplex("Address", "urn:test").
		Field("city", wiretype.String).
		MustBuild()
	person = wiretype.NewComplex("Person", "urn:test").
		Field("name", wiretype.String.Customize(wiretype.Required())).
		Field("born", wiretype.DateTime).
		Field("photo", wiretype.Binary).
		Field("tags", wiretype.String.Customize(wiretype.MaxOccurs(wiretype.Unbounded))).
		Field("homes", wiretype.NewArray(address)).
		Field("note", wiretype.String).
		MustBuild()
)

func prefixes(ns string) string {
	if ns == "urn:test" {
		return "t"
	}
	return ""
}

func TestRoundTripComplex(t *testing.T) {
	c := qt.New(t)
	born := time.Date(1990, 1, 2, 3, 4, 5, 0, time.UTC)
	in := map[string]any{
		"name":  "Dave",
		"born":  born,
		"photo": []byte{1, 2, 3},
		"tags":  []any{"a", "b", "c"},
		"homes": []any{map[string]any{"city": "Oslo"}, map[string]any{"city": "Rome"}},
		"note":  nil,
	}
	enc := &xmlcodec.Encoder{Prefix: prefixes}
	root := etree.NewElement("t:Person")
	c.Assert(enc.Value(root, person, in), qt.IsNil)
	c.Assert(enc.UsedXSI(), qt.IsTrue)

	doc := etree.NewDocument()
	doc.SetRoot(root)
	s, err := doc.WriteToString()
	c.Assert(err, qt.IsNil)
	c.Assert(s, qt.Contains, `<t:tags>a</t:tags><t:tags>b</t:tags><t:tags>c</t:tags>`)
	c.Assert(s, qt.Contains, `<t:homes><t:Address><t:city>Oslo</t:city></t:Address>`)
	c.Assert(s, qt.Contains, `<t:note xsi:nil="true"/>`)

	dec := &xmlcodec.Decoder{}
	out, err := dec.Value(doc.Root(), person, "/")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, in)
}

func TestRoundTripAbsentFields(t *testing.T) {
	c := qt.New(t)
	in := map[string]any{"name": "Ann"}
	enc := &xmlcodec.Encoder{Prefix: prefixes}
	root := etree.NewElement("t:Person")
	c.Assert(enc.Value(root, person, in), qt.IsNil)
	c.Assert(enc.UsedXSI(), qt.IsFalse)

	doc := etree.NewDocument()
	doc.SetRoot(root)
	s, err := doc.WriteToString()
	c.Assert(err, qt.IsNil)
	c.Assert(s, qt.Equals, `<t:Person><t:name>Ann</t:name></t:Person>`)

	out, err := (&xmlcodec.Decoder{}).Value(doc.Root(), person, "/")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, in)
}

func TestDecodeReportsLexicalIssues(t *testing.T) {
	c := qt.New(t)
	doc := etree.NewDocument()
	c.Assert(doc.ReadFromString(`<Person><name>x</name><born>yesterday</born></Person>`), qt.IsNil)
	_, err := (&xmlcodec.Decoder{}).Value(doc.Root(), person, "/")
	iss, ok := wiretype.AsIssues(err)
	c.Assert(ok, qt.IsTrue)
	c.Assert(iss[0].Path, qt.Equals, "/born")
	c.Assert(iss[0].Code, qt.Equals, wiretype.CodeInvalidFormat)
}

func TestRepeatedSingleElement(t *testing.T) {
	c := qt.New(t)
	doc := etree.NewDocument()
	c.Assert(doc.ReadFromString(`<Person><name>a</name><name>b</name></Person>`), qt.IsNil)

	_, err := (&xmlcodec.Decoder{}).Value(doc.Root(), person, "/")
	iss, ok := wiretype.AsIssues(err)
	c.Assert(ok, qt.IsTrue)
	c.Assert(iss, qt.HasLen, 1)
	c.Assert(iss[0].Code, qt.Equals, wiretype.CodeDuplicateKey)
	c.Assert(iss[0].Path, qt.Equals, "/name")

	iss, ok = wiretype.AsIssues(xmlcodec.ValidateSchema(doc.Root(), person))
	c.Assert(ok, qt.IsTrue)
	c.Assert(iss, qt.HasLen, 1)
	c.Assert(iss[0].Code, qt.Equals, wiretype.CodeDuplicateKey)
	c.Assert(iss[0].Path, qt.Equals, "/name")
}

func TestValidateSchemaOrderAndUnknown(t *testing.T) {
	c := qt.New(t)
	doc := etree.NewDocument()
	c.Assert(doc.ReadFromString(`<Person><born>2020-01-01T00:00:00Z</born><name>x</name><extra/></Person>`), qt.IsNil)
	err := xmlcodec.ValidateSchema(doc.Root(), person)
	iss, ok := wiretype.AsIssues(err)
	c.Assert(ok, qt.IsTrue)
	var codes []string
	for _, it := range iss {
		codes = append(codes, it.Code+"@"+it.Path)
	}
	c.Assert(codes, qt.DeepEquals, []string{
		"required@/name",
		"invalid_index@/name",
		"unknown_key@/extra",
	})

	ok2 := etree.NewDocument()
	c.Assert(ok2.ReadFromString(`<Person><name>x</name><tags>a</tags><tags>b</tags></Person>`), qt.IsNil)
	c.Assert(xmlcodec.ValidateSchema(ok2.Root(), person), qt.IsNil)
}

func TestStreamedItemsUsePlaceholder(t *testing.T) {
	c := qt.New(t)
	var producer wiretype.ByteChunks
	enc := &xmlcodec.Encoder{
		Prefix: prefixes,
		Stream: func(p wiretype.ByteChunks) string { producer = p; return "TOKEN" },
	}
	root := etree.NewElement("t:Person")
	in := map[string]any{"name": "Dave", "tags": wiretype.FromSlice([]any{"x", "y"})}
	c.Assert(enc.Value(root, person, in), qt.IsNil)

	doc := etree.NewDocument()
	doc.SetRoot(root)
	s, err := doc.WriteToString()
	c.Assert(err, qt.IsNil)
	c.Assert(s, qt.Contains, `<!--TOKEN-->`)

	all, err := wiretype.ReadAllChunks(context.Background(), producer)
	c.Assert(err, qt.IsNil)
	c.Assert(string(all), qt.Equals, `<t:tags>x</t:tags><t:tags>y</t:tags>`)
}

func TestEncodeChunksBase64(t *testing.T) {
	c := qt.New(t)
	src := wiretype.Chunks([]byte("he"), []byte("llo w"), []byte("orld"))
	got, err := wiretype.ReadAllChunks(context.Background(), xmlcodec.EncodeChunks(src, wiretype.EncodingBase64))
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, string(wiretype.EncodeBinary(wiretype.EncodingBase64, []byte("hello world"))))
}

func TestGenericRoundTrip(t *testing.T) {
	c := qt.New(t)
	root := etree.NewElement("detail")
	enc := &xmlcodec.Encoder{}
	enc.GenericValue(root, map[string]any{"issue": []any{
		map[string]any{"code": "required", "path": "/name"},
		map[string]any{"code": "too_big", "path": "/age"},
	}})
	got := xmlcodec.DecodeGeneric(root)
	c.Assert(got, qt.DeepEquals, map[string]any{"issue": []any{
		map[string]any{"code": "required", "path": "/name"},
		map[string]any{"code": "too_big", "path": "/age"},
	}})
}

func TestAnyDocumentFragment(t *testing.T) {
	c := qt.New(t)
	root := etree.NewElement("doc")
	c.Assert((&xmlcodec.Encoder{}).Value(root, wiretype.AnyDocument, `<a>1</a><b/>`), qt.IsNil)
	out, err := (&xmlcodec.Decoder{}).Value(root, wiretype.AnyDocument, "/")
	c.Assert(err, qt.IsNil)
	c.Assert(strings.ReplaceAll(out.(string), " ", ""), qt.Equals, `<a>1</a><b/>`)
}
