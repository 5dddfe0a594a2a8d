package httpx_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/mapping"
	"github.com/reoring/soapbox/protocol/soap"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/transport/httpx"
	"github.com/reoring/soapbox/wiretype"
)

func greet() *service.Definition {
	m := service.Rpc("greet", func(ctx context.Context, args []any) ([]any, error) {
		return []any{"Hello, " + args[0].(string)}, nil
	}).Param("name", wiretype.String.Customize(wiretype.Required())).
		Returns(wiretype.String).
		MustBuild()
	return service.Define("greeter").Methods(m).MustBuild()
}

func server(c *qt.C, in, out soapbox.Protocol, opts httpx.Options, dopts ...soapbox.DispatcherOption) *httptest.Server {
	app, err := soapbox.NewApplication("Greeter", "urn:greeter", in, out, greet())
	c.Assert(err, qt.IsNil)
	d := soapbox.NewDispatcher(app, dopts...)
	srv := httptest.NewServer(httpx.Handler(d, opts))
	c.Cleanup(srv.Close)
	return srv
}

func body(c *qt.C, resp *http.Response) string {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	c.Assert(err, qt.IsNil)
	return string(b)
}

func TestJSONCall(t *testing.T) {
	c := qt.New(t)
	p := mapping.New(mapping.JSON, mapping.Options{IgnoreWrappers: true})
	srv := server(c, p, p, httpx.Options{})

	resp, err := http.Post(srv.URL+"/greet", "application/json", strings.NewReader(`{"name":"Ann"}`))
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Get("Content-Type"), qt.Equals, "application/json; charset=utf-8")
	c.Assert(body(c, resp), qt.Equals, `{"greetResult":"Hello, Ann"}`)

	resp, err = http.Post(srv.URL+"/greet", "application/json", strings.NewReader(`{}`))
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)
	c.Assert(body(c, resp), qt.Contains, soapbox.FaultValidation)
}

func TestContractRequest(t *testing.T) {
	c := qt.New(t)
	srv := server(c, soap.New11(), soap.New11(), httpx.Options{})

	resp, err := http.Get(srv.URL + "/soap?wsdl")
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Get("Content-Type"), qt.Equals, "text/xml; charset=utf-8")
	doc := body(c, resp)
	c.Assert(doc, qt.Contains, `<wsdl:definitions`)
	c.Assert(doc, qt.Contains, `location="`+srv.URL+`/soap"`)
}

func TestSOAPCall(t *testing.T) {
	c := qt.New(t)
	srv := server(c, soap.New11(), soap.New11(), httpx.Options{BaseURL: "http://example.com/soap"})

	req := `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:g="urn:greeter">` +
		`<soapenv:Body><g:greet><g:name>Bo</g:name></g:greet></soapenv:Body></soapenv:Envelope>`
	resp, err := http.Post(srv.URL+"/soap", "text/xml; charset=utf-8", strings.NewReader(req))
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(body(c, resp), qt.Contains, `>Hello, Bo</`)

	resp, err = http.Get(srv.URL + "/soap?wsdl")
	c.Assert(err, qt.IsNil)
	c.Assert(body(c, resp), qt.Contains, `location="http://example.com/soap"`)
}

func TestMetricsEndpoint(t *testing.T) {
	c := qt.New(t)
	reg := prometheus.NewRegistry()
	m, err := soapbox.NewMetrics(reg)
	c.Assert(err, qt.IsNil)
	p := mapping.New(mapping.JSON, mapping.Options{})
	srv := server(c, p, p, httpx.Options{Gatherer: reg}, soapbox.WithMetrics(m))

	resp, err := http.Post(srv.URL+"/greet", "application/json", strings.NewReader(`{"name":"Cy"}`))
	c.Assert(err, qt.IsNil)
	body(c, resp)

	resp, err = http.Get(srv.URL + "/metrics")
	c.Assert(err, qt.IsNil)
	c.Assert(body(c, resp), qt.Contains, `soapbox_calls_total{method="greet",outcome="ok"} 1`)
}
