package wsdl_test

import (
	"context"
	"testing"

	"github.com/beevik/etree"
	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/soap"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
	"github.com/reoring/soapbox/wsdl"
)

const tns = "urn:soapbox:wsdl"

func nop(ctx context.Context, args []any) ([]any, error) { return nil, nil }

var (
	email = wiretype.String.Named("Email", "", wiretype.Pattern(`[^@]+@[^@]+`), wiretype.MaxLength(64))
	auth  = wiretype.NewComplex("Auth", "").Field("token", wiretype.String).MustBuild()
	base  = wiretype.NewComplex("Entity", "").Field("id", wiretype.Integer.Customize(wiretype.Required())).MustBuild()
	user  = wiretype.NewComplex("User", "").
		Extends(base).
		Field("mail", email).
		Field("roles", wiretype.String.Customize(wiretype.MaxOccurs(wiretype.Unbounded))).
		Field("age", wiretype.Integer.Customize(wiretype.Ge(0), wiretype.Le(150))).
		MustBuild()
	notFound = wiretype.NewComplex("NotFound", "").Field("key", wiretype.String).MustBuild()
)

func methods() []*service.Method {
	return []*service.Method{
		service.Rpc("get_user", nop).
			Param("id", wiretype.Integer).
			Returns(user).
			InHeader("auth", auth).
			Faults(notFound).
			Doc("Fetches a user.").
			MustBuild(),
		service.Rpc("list_users", nop).
			Returns(wiretype.NewArray(user)).
			InHeader("auth", auth).
			MustBuild(),
	}
}

func app(c *qt.C, in soapbox.Protocol, defs ...*service.Definition) *soapbox.Application {
	if len(defs) == 0 {
		defs = []*service.Definition{service.Define("users").Methods(methods()...).MustBuild()}
	}
	a, err := soapbox.NewApplication("Users", tns, in, soap.New11(), defs...)
	c.Assert(err, qt.IsNil)
	return a
}

func parse(c *qt.C, b []byte) *etree.Document {
	doc := etree.NewDocument()
	c.Assert(doc.ReadFromBytes(b), qt.IsNil)
	return doc
}

func TestBuildIsDeterministic(t *testing.T) {
	c := qt.New(t)
	first, err := wsdl.Build(app(c, soap.New11()), "http://localhost/users")
	c.Assert(err, qt.IsNil)
	for i := 0; i < 5; i++ {
		again, err := wsdl.Build(app(c, soap.New11()), "http://localhost/users")
		c.Assert(err, qt.IsNil)
		c.Assert(string(again), qt.Equals, string(first))
	}
}

func TestDocumentStructure(t *testing.T) {
	c := qt.New(t)
	b, err := wsdl.Build(app(c, soap.New11()), "http://localhost/users")
	c.Assert(err, qt.IsNil)
	root := parse(c, b).Root()
	c.Assert(root.Tag, qt.Equals, "definitions")
	c.Assert(root.SelectAttrValue("targetNamespace", ""), qt.Equals, tns)
	c.Assert(root.SelectAttrValue("xmlns:tns", ""), qt.Equals, tns)

	schema := root.FindElement("./wsdl:types/xs:schema")
	c.Assert(schema, qt.IsNotNil)
	ext := schema.FindElement("./xs:complexType[@name='User']/xs:complexContent/xs:extension")
	c.Assert(ext, qt.IsNotNil)
	c.Assert(ext.SelectAttrValue("base", ""), qt.Equals, "tns:Entity")

	roles := ext.FindElement("./xs:sequence/xs:element[@name='roles']")
	c.Assert(roles.SelectAttrValue("maxOccurs", ""), qt.Equals, "unbounded")
	c.Assert(roles.SelectAttrValue("type", ""), qt.Equals, "xs:string")
	age := ext.FindElement("./xs:sequence/xs:element[@name='age']/xs:simpleType/xs:restriction")
	c.Assert(age.SelectAttrValue("base", ""), qt.Equals, "xs:long")
	c.Assert(age.FindElement("./xs:maxInclusive").SelectAttrValue("value", ""), qt.Equals, "150")

	restriction := schema.FindElement("./xs:simpleType[@name='Email']/xs:restriction")
	c.Assert(restriction.FindElement("./xs:pattern").SelectAttrValue("value", ""), qt.Equals, `[^@]+@[^@]+`)
	c.Assert(restriction.FindElement("./xs:maxLength").SelectAttrValue("value", ""), qt.Equals, "64")

	id := schema.FindElement("./xs:complexType[@name='Entity']/xs:sequence/xs:element[@name='id']")
	c.Assert(id.SelectAttrValue("minOccurs", ""), qt.Equals, "1")

	c.Assert(schema.FindElement("./xs:element[@name='get_user']"), qt.IsNotNil)
	c.Assert(schema.FindElement("./xs:element[@name='get_userResponse']"), qt.IsNotNil)

	op := root.FindElement("./wsdl:portType[@name='Users']/wsdl:operation[@name='get_user']")
	c.Assert(op.FindElement("./wsdl:documentation").Text(), qt.Equals, "Fetches a user.")
	c.Assert(op.FindElement("./wsdl:fault").SelectAttrValue("message", ""), qt.Equals, "tns:NotFound")

	addr := root.FindElement("./wsdl:service/wsdl:port/soap:address")
	c.Assert(addr.SelectAttrValue("location", ""), qt.Equals, "http://localhost/users")
}

func TestHeaderMessageIsShared(t *testing.T) {
	c := qt.New(t)
	b, err := wsdl.Build(app(c, soap.New11()), "http://localhost/users")
	c.Assert(err, qt.IsNil)
	root := parse(c, b).Root()
	c.Assert(root.FindElements("./wsdl:message[@name='auth']"), qt.HasLen, 1)
	headers := root.FindElements("./wsdl:binding/wsdl:operation/wsdl:input/soap:header")
	c.Assert(headers, qt.HasLen, 2)
	for _, h := range headers {
		c.Assert(h.SelectAttrValue("message", ""), qt.Equals, "tns:auth")
	}
}

func TestBindingFollowsSoapVersion(t *testing.T) {
	c := qt.New(t)
	b, err := wsdl.Build(app(c, soap.New12()), "http://localhost/users")
	c.Assert(err, qt.IsNil)
	root := parse(c, b).Root()
	c.Assert(root.SelectAttrValue("xmlns:soap12", ""), qt.Equals, wsdl.SOAP12Namespace)
	binding := root.FindElement("./wsdl:binding/soap12:binding")
	c.Assert(binding, qt.IsNotNil)
	c.Assert(binding.SelectAttrValue("transport", ""), qt.Equals, wsdl.HTTPTransport)
	c.Assert(root.FindElement("./wsdl:binding/soap:binding"), qt.IsNil)
}

func TestPortGroups(t *testing.T) {
	c := qt.New(t)
	read := service.Rpc("read", nop).Returns(wiretype.String).PortGroup("Reader").MustBuild()
	write := service.Rpc("write", nop).Param("v", wiretype.String).PortGroup("Writer").MustBuild()
	plain := service.Rpc("ping", nop).MustBuild()

	grouped := service.Define("rw").Methods(read, write).MustBuild()
	b, err := wsdl.Build(app(c, soap.New11(), grouped), "http://localhost/rw")
	c.Assert(err, qt.IsNil)
	root := parse(c, b).Root()
	ports := root.FindElements("./wsdl:service/wsdl:port")
	c.Assert(ports, qt.HasLen, 2)
	c.Assert(ports[0].SelectAttrValue("name", ""), qt.Equals, "Reader")
	c.Assert(ports[1].SelectAttrValue("name", ""), qt.Equals, "Writer")

	mixed := service.Define("mixed").Methods(read, plain).MustBuild()
	_, err = wsdl.Build(app(c, soap.New11(), mixed), "http://localhost/rw")
	c.Assert(errors.Is(err, errors.NotValid), qt.IsTrue)
}

func TestDocumentIsCached(t *testing.T) {
	c := qt.New(t)
	a := app(c, soap.New11())
	first, err := wsdl.Document(a, "http://localhost/users")
	c.Assert(err, qt.IsNil)
	again, err := wsdl.Document(a, "http://localhost/users")
	c.Assert(err, qt.IsNil)
	c.Assert(&again[0], qt.Equals, &first[0])

	other, err := wsdl.Document(a, "http://example.com/users")
	c.Assert(err, qt.IsNil)
	c.Assert(string(other), qt.Contains, `location="http://example.com/users"`)
}
