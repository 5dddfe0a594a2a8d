package service_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

func noop(context.Context, []any) ([]any, error) { return nil, nil }

func TestRpcSynthesizesWrappers(t *testing.T) {
	c := qt.New(t)
	m := service.Rpc("say_hello", noop).
		Param("name", wiretype.String).
		Param("times", wiretype.Integer).
		Returns(wiretype.Iterable(wiretype.String)).
		MustBuild()

	c.Assert(m.In().Name(), qt.Equals, "say_hello")
	c.Assert(m.Out().Name(), qt.Equals, "say_helloResponse")
	var in []string
	for _, f := range m.In().Fields() {
		in = append(in, f.Name)
	}
	c.Assert(in, qt.DeepEquals, []string{"name", "times"})
	c.Assert(m.Results()[0].Name, qt.Equals, "say_helloResult")
	c.Assert(m.Style(), qt.Equals, service.Wrapped)
	c.Assert(m.IsAux(), qt.IsFalse)
}

func TestRpcNamesMultipleResults(t *testing.T) {
	c := qt.New(t)
	m := service.Rpc("split", noop).Returns(wiretype.String, wiretype.Integer).MustBuild()
	rs := m.Results()
	c.Assert(rs[0].Name, qt.Equals, "splitResult0")
	c.Assert(rs[1].Name, qt.Equals, "splitResult1")
}

func TestRpcBodyStyleChecks(t *testing.T) {
	c := qt.New(t)
	_, err := service.Rpc("b", noop).Style(service.Bare).Param("x", wiretype.String).Param("y", wiretype.String).Build()
	c.Assert(err, qt.ErrorMatches, `bare method "b" with 2 parameters not valid`)

	_, err = service.Rpc("e", noop).Style(service.Empty).Param("x", wiretype.String).Build()
	c.Assert(err, qt.ErrorMatches, `empty method "e" with 1 parameters not valid`)

	_, err = service.Rpc("o", noop).Style(service.OutBare).Build()
	c.Assert(err, qt.ErrorMatches, `out_bare method "o" with 0 results not valid`)

	_, err = service.Rpc("h", nil).Build()
	c.Assert(err, qt.ErrorMatches, `method "h" without a handler not valid`)

	bare := service.Rpc("echo", noop).Style(service.Bare).Param("x", wiretype.String).MustBuild()
	p, ok := bare.BareParam()
	c.Assert(ok, qt.IsTrue)
	c.Assert(p.Name, qt.Equals, "x")
}

func TestRpcRejectsDuplicateParams(t *testing.T) {
	_, err := service.Rpc("dup", noop).Param("a", wiretype.String).Param("a", wiretype.Integer).Build()
	qt.Assert(t, err, qt.ErrorMatches, `method "dup" input: duplicate field "a" in "dup" not valid`)
}

func TestDefinitionRejectsMixedAux(t *testing.T) {
	c := qt.New(t)
	primary := service.Rpc("op", noop).MustBuild()
	aux := service.Rpc("op", noop).Aux(service.AuxAsync).MustBuild()
	_, err := service.Define("svc").Methods(primary, aux).Build()
	c.Assert(err, qt.ErrorMatches, `service "svc" mixing primary and auxiliary methods not valid`)

	d := service.Define("audit").Methods(aux).MustBuild()
	c.Assert(d.Auxiliary(), qt.IsTrue)
}

func TestDefinitionDefaultHeaders(t *testing.T) {
	c := qt.New(t)
	plain := service.Rpc("a", noop).MustBuild()
	own := service.Rpc("b", noop).InHeader("session", wiretype.Integer).MustBuild()
	d := service.Define("svc").InHeader("token", wiretype.String).Methods(plain, own).MustBuild()

	ms := d.Methods()
	c.Assert(ms[0].InHeaders()[0].Name, qt.Equals, "token")
	c.Assert(ms[1].InHeaders()[0].Name, qt.Equals, "session")
	// the declared method is left untouched
	c.Assert(plain.InHeaders(), qt.HasLen, 0)
}
