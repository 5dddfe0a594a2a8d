package soapbox_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/protocol/mapping"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const tns = "urn:soapbox:dispatch"

var jsonProto = mapping.New(mapping.JSON, mapping.Options{IgnoreWrappers: true})

func newApp(c *qt.C, defs ...*service.Definition) *soapbox.Application {
	app, err := soapbox.NewApplication("dispatch", tns, jsonProto, jsonProto, defs...)
	c.Assert(err, qt.IsNil)
	return app
}

func define(ms ...*service.Method) *service.Definition {
	return service.Define("svc").Methods(ms...).MustBuild()
}

func echo(h service.Handler) *service.Method {
	return service.Rpc("echo", h).Param("s", wiretype.String).Returns(wiretype.String).MustBuild()
}

func post(c *qt.C, d *soapbox.Dispatcher, path, body string) *soapbox.ResponseRecorder {
	rec := &soapbox.ResponseRecorder{}
	err := d.Serve(context.Background(), soapbox.HostRequest{
		Body:      bytes.NewReader([]byte(body)),
		Transport: soapbox.Transport{Verb: http.MethodPost, URL: &url.URL{Path: path}},
	}, rec)
	c.Assert(err, qt.IsNil)
	return rec
}

func TestHandlerOutcomes(t *testing.T) {
	tests := []struct {
		about  string
		h      service.Handler
		status int
		body   string
	}{{
		about:  "result",
		h:      func(ctx context.Context, args []any) ([]any, error) { return []any{args[0]}, nil },
		status: http.StatusOK,
		body:   `{"echoResult":"hi"}`,
	}, {
		about: "not found error",
		h: func(ctx context.Context, args []any) ([]any, error) {
			return nil, errors.NotFoundf("record %q", args[0])
		},
		status: http.StatusNotFound,
		body:   `{"Fault":{"faultcode":"Client.ResourceNotFound","faultstring":"record \"hi\" not found"}}`,
	}, {
		about: "internal error is not leaked",
		h: func(ctx context.Context, args []any) ([]any, error) {
			return nil, errors.New("database password is hunter2")
		},
		status: http.StatusInternalServerError,
		body:   `{"Fault":{"faultcode":"Server","faultstring":"internal server error"}}`,
	}, {
		about:  "panic",
		h:      func(ctx context.Context, args []any) ([]any, error) { panic("boom") },
		status: http.StatusInternalServerError,
		body:   `{"Fault":{"faultcode":"Server","faultstring":"internal server error"}}`,
	}, {
		about: "custom fault",
		h: func(ctx context.Context, args []any) ([]any, error) {
			return nil, soapbox.ClientFault("Quota", "too many calls")
		},
		status: http.StatusBadRequest,
		body:   `{"Fault":{"faultcode":"Client.Quota","faultstring":"too many calls"}}`,
	}, {
		about:  "wrong result count",
		h:      func(ctx context.Context, args []any) ([]any, error) { return []any{"a", "b"}, nil },
		status: http.StatusInternalServerError,
		body:   `{"Fault":{"faultcode":"Server","faultstring":"internal server error"}}`,
	}, {
		about: "redirect",
		h: func(ctx context.Context, args []any) ([]any, error) {
			return nil, &soapbox.Redirect{Location: "/elsewhere"}
		},
		status: http.StatusFound,
	}}
	for _, test := range tests {
		qt.New(t).Run(test.about, func(c *qt.C) {
			d := soapbox.NewDispatcher(newApp(c, define(echo(test.h))))
			rec := post(c, d, "/echo", `{"s":"hi"}`)
			c.Assert(rec.Status, qt.Equals, test.status)
			c.Assert(rec.Body.String(), qt.Equals, test.body)
			if test.status == http.StatusFound {
				c.Assert(rec.Header.Get("Location"), qt.Equals, "/elsewhere")
			}
		})
	}
}

func TestRequestTooLong(t *testing.T) {
	c := qt.New(t)
	called := false
	app := newApp(c, define(echo(func(ctx context.Context, args []any) ([]any, error) {
		called = true
		return []any{""}, nil
	})))
	app.MaxRequestLength = 8
	rec := post(c, soapbox.NewDispatcher(app), "/echo", `{"s":"longer than eight"}`)
	c.Assert(rec.Status, qt.Equals, http.StatusRequestEntityTooLarge)
	c.Assert(rec.Body.String(), qt.Contains, soapbox.FaultRequestTooLong)
	c.Assert(called, qt.IsFalse)
}

func TestUnknownMethod(t *testing.T) {
	c := qt.New(t)
	d := soapbox.NewDispatcher(newApp(c, define(echo(nil))))
	rec := post(c, d, "/missing", `{}`)
	c.Assert(rec.Status, qt.Equals, http.StatusNotFound)
	c.Assert(rec.Body.String(), qt.Contains, soapbox.FaultMethodNotFound)
}

func TestHooks(t *testing.T) {
	c := qt.New(t)
	var stages []string
	called := false
	app := newApp(c, define(echo(func(ctx context.Context, args []any) ([]any, error) {
		called = true
		return []any{args[0]}, nil
	})))
	record := func(name string) soapbox.Hook {
		return func(mc *soapbox.MethodContext) error {
			stages = append(stages, name)
			return nil
		}
	}
	app.Hooks.
		Before(soapbox.StageResolve, record("before resolve")).
		After(soapbox.StageResolve, record("after resolve")).
		Before(soapbox.StageCall, func(mc *soapbox.MethodContext) error {
			if mc.InArgs[0] == "deny" {
				return soapbox.ClientFault("Denied", "not for you")
			}
			return nil
		}).
		After(soapbox.StageEmit, func(mc *soapbox.MethodContext) error {
			stages = append(stages, "emitted "+mc.State.String())
			return nil
		})
	d := soapbox.NewDispatcher(app)

	rec := post(c, d, "/echo", `{"s":"deny"}`)
	c.Assert(rec.Status, qt.Equals, http.StatusBadRequest)
	c.Assert(rec.Body.String(), qt.Contains, "Client.Denied")
	c.Assert(called, qt.IsFalse)
	c.Assert(stages, qt.DeepEquals, []string{"before resolve", "after resolve", "emitted " + soapbox.StateEmittedBytes.String()})

	rec = post(c, d, "/echo", `{"s":"ok"}`)
	c.Assert(rec.Status, qt.Equals, http.StatusOK)
	c.Assert(called, qt.IsTrue)
}

func TestCustomStatus(t *testing.T) {
	c := qt.New(t)
	app := newApp(c, define(echo(func(ctx context.Context, args []any) ([]any, error) {
		return nil, soapbox.ClientFault("Busy", "later")
	})))
	app.Status = func(f *soapbox.Fault) int {
		if f.HasCode("Client.Busy") {
			return http.StatusServiceUnavailable
		}
		return soapbox.DefaultStatus(f)
	}
	rec := post(c, soapbox.NewDispatcher(app), "/echo", `{"s":"x"}`)
	c.Assert(rec.Status, qt.Equals, http.StatusServiceUnavailable)
}

func TestMethodContextInHandler(t *testing.T) {
	c := qt.New(t)
	var id string
	d := soapbox.NewDispatcher(newApp(c, define(echo(func(ctx context.Context, args []any) ([]any, error) {
		mc, ok := soapbox.FromContext(ctx)
		if !ok {
			return nil, errors.New("no method context")
		}
		id = mc.ID
		mc.OutHeader.Set("X-Call", mc.Method.Name())
		return []any{args[0]}, nil
	}))))
	rec := post(c, d, "/echo", `{"s":"x"}`)
	c.Assert(rec.Status, qt.Equals, http.StatusOK)
	c.Assert(rec.Header.Get("X-Call"), qt.Equals, "echo")
	c.Assert(id, qt.Not(qt.Equals), "")
}

func TestAuxiliaryMethods(t *testing.T) {
	c := qt.New(t)
	var mu sync.Mutex
	var seen []string
	note := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}
	primary := echo(func(ctx context.Context, args []any) ([]any, error) {
		note("primary")
		return []any{args[0]}, nil
	})
	var asyncRuns atomic.Int32
	sync1 := service.Rpc("echo", func(ctx context.Context, args []any) ([]any, error) {
		mc, _ := soapbox.FromContext(ctx)
		if mc.Parent.Fault == nil {
			note("sync " + args[0].(string))
		}
		return nil, nil
	}).Param("s", wiretype.String).Aux(service.AuxSync).MustBuild()
	async := service.Rpc("echo", func(ctx context.Context, args []any) ([]any, error) {
		asyncRuns.Add(1)
		return nil, errors.New("aux failures are only logged")
	}).Param("s", wiretype.String).Aux(service.AuxAsync).MustBuild()

	app := newApp(c, define(primary),
		service.Define("audit").Methods(sync1).MustBuild(),
		service.Define("notify").Methods(async).MustBuild())
	app.AuxWorkers = 2
	reg := prometheus.NewRegistry()
	m, err := soapbox.NewMetrics(reg)
	c.Assert(err, qt.IsNil)
	d := soapbox.NewDispatcher(app, soapbox.WithMetrics(m))

	for i := 0; i < 3; i++ {
		rec := post(c, d, "/echo", `{"s":"x"}`)
		c.Assert(rec.Status, qt.Equals, http.StatusOK)
	}
	d.Wait()
	c.Assert(asyncRuns.Load(), qt.Equals, int32(3))
	mu.Lock()
	c.Assert(seen, qt.DeepEquals, []string{"primary", "sync x", "primary", "sync x", "primary", "sync x"})
	mu.Unlock()

	c.Assert(counter(c, reg, "soapbox_aux_failures_total"), qt.Equals, 3.0)
	c.Assert(counter(c, reg, "soapbox_calls_total"), qt.Equals, 3.0)
}

// counter sums every series of the named counter.
func counter(c *qt.C, reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	c.Assert(err, qt.IsNil)
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

type countingIter struct {
	n      int
	closed bool
}

func (it *countingIter) Next(ctx context.Context) (any, error) {
	it.n++
	return "item", nil
}

func (it *countingIter) Close() error {
	it.closed = true
	return nil
}

type failingWriter struct {
	soapbox.ResponseRecorder
	writes int
}

func (w *failingWriter) Write(p []byte) error {
	w.writes++
	if w.writes > 2 {
		return io.ErrClosedPipe
	}
	return w.ResponseRecorder.Write(p)
}

func TestStreamStopsWhenClientGoes(t *testing.T) {
	c := qt.New(t)
	it := &countingIter{}
	m := service.Rpc("items", func(ctx context.Context, args []any) ([]any, error) {
		return []any{it}, nil
	}).Returns(wiretype.Iterable(wiretype.String)).MustBuild()
	d := soapbox.NewDispatcher(newApp(c, define(m)))

	w := &failingWriter{}
	err := d.Serve(context.Background(), soapbox.HostRequest{
		Body:      bytes.NewReader(nil),
		Transport: soapbox.Transport{Verb: http.MethodPost, URL: &url.URL{Path: "/items"}},
	}, w)
	c.Assert(errors.Is(err, io.ErrClosedPipe), qt.IsTrue)
	c.Assert(w.Status, qt.Equals, http.StatusOK)
	c.Assert(it.closed, qt.IsTrue)
	c.Assert(it.n < 10, qt.IsTrue)
}

func TestCancelledEmission(t *testing.T) {
	c := qt.New(t)
	it := &countingIter{}
	m := service.Rpc("items", func(ctx context.Context, args []any) ([]any, error) {
		return []any{it}, nil
	}).Returns(wiretype.Iterable(wiretype.String)).MustBuild()
	d := soapbox.NewDispatcher(newApp(c, define(m)))

	ctx, cancel := context.WithCancel(context.Background())
	rec := &soapbox.ResponseRecorder{}
	mc := soapbox.NewMethodContext(d.Application(), soapbox.Transport{URL: &url.URL{Path: "/items"}})
	d.Process(ctx, mc)
	c.Assert(mc.Fault, qt.IsNil)
	writes := 0
	err := mc.Emit(ctx, func(b []byte) error {
		writes++
		if writes == 3 {
			cancel()
		}
		return rec.Write(b)
	})
	c.Assert(err, qt.Equals, context.Canceled)
	c.Assert(mc.Close(), qt.IsNil)
	c.Assert(it.closed, qt.IsTrue)
	c.Assert(rec.Body.String(), qt.Equals, `{"itemsResult":["item","item"`)
}
