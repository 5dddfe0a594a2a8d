package soapbox_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

func nop(ctx context.Context, args []any) ([]any, error) { return nil, nil }

func TestInterfaceRegistry(t *testing.T) {
	c := qt.New(t)
	addr := wiretype.NewComplex("Address", "urn:geo").Field("city", wiretype.String).MustBuild()
	person := wiretype.NewComplex("Person", "").Field("home", addr).MustBuild()
	other := wiretype.NewComplex("Other", "urn:other").Field("x", wiretype.Integer).MustBuild()

	get := service.Rpc("get", nop).Param("id", wiretype.Integer).Returns(person).MustBuild()
	put := service.Rpc("put", nop).Param("p", person).Style(service.Bare).MustBuild()
	remote := service.Rpc("get", nop).Param("o", other).Namespace("urn:remote").MustBuild()

	app := newApp(c, define(get, put), service.Define("remote").Methods(remote).MustBuild())
	in := app.Interface()

	c.Assert(in.TargetNamespace(), qt.Equals, tns)
	c.Assert(in.Namespaces()[0], qt.Equals, tns)
	c.Assert(in.Prefix(tns), qt.Equals, "tns")
	c.Assert(in.Prefix(wiretype.XSNamespace), qt.Equals, "xs")
	c.Assert(in.Prefix("urn:geo"), qt.Equals, "ns0")
	c.Assert(in.Prefix("http://schemas.xmlsoap.org/wsdl/"), qt.Equals, "wsdl")
	c.Assert(in.Prefix("urn:unknown"), qt.Equals, "")

	m, ok := in.Lookup(wiretype.QName{Local: "get"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m, qt.Equals, get)
	m, ok = in.Lookup(wiretype.QName{Space: "urn:remote", Local: "get"})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m, qt.Equals, remote)
	m, ok = in.LookupBare("p")
	c.Assert(ok, qt.IsTrue)
	c.Assert(m, qt.Equals, put)
	_, ok = in.Lookup(wiretype.QName{Local: "missing"})
	c.Assert(ok, qt.IsFalse)

	index := map[string]int{}
	for i, t := range in.Types() {
		index[t.Name()] = i
	}
	c.Assert(index["Address"] < index["Person"], qt.IsTrue)
	c.Assert(person.Namespace(), qt.Equals, tns)
}

func TestDuplicatePrimaryMethod(t *testing.T) {
	c := qt.New(t)
	a := service.Rpc("dup", nop).MustBuild()
	b := service.Rpc("dup", nop).MustBuild()
	_, err := soapbox.NewApplication("x", tns, jsonProto, jsonProto,
		service.Define("one").Methods(a).MustBuild(),
		service.Define("two").Methods(b).MustBuild())
	c.Assert(errors.Is(err, errors.NotValid), qt.IsTrue)
}

func TestCachedBuildsOnce(t *testing.T) {
	c := qt.New(t)
	in := newApp(c, define(service.Rpc("ping", nop).MustBuild())).Interface()
	builds := 0
	build := func() ([]byte, error) {
		builds++
		return []byte("doc"), nil
	}
	for i := 0; i < 3; i++ {
		b, err := in.Cached("k", build)
		c.Assert(err, qt.IsNil)
		c.Assert(string(b), qt.Equals, "doc")
	}
	c.Assert(builds, qt.Equals, 1)

	_, err := in.Cached("bad", func() ([]byte, error) { return nil, errors.New("nope") })
	c.Assert(err, qt.ErrorMatches, "nope")
	b, err := in.Cached("bad", build)
	c.Assert(err, qt.IsNil)
	c.Assert(string(b), qt.Equals, "doc")
}
