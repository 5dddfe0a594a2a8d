// Package httpx hosts a Dispatcher on net/http.
package httpx

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/wsdl"
)

var logger = loggo.GetLogger("soapbox.httpx")

// Options tune a Handler.
type Options struct {
	// BaseURL is the endpoint address published in the contract. When empty
	// it is derived from each contract request.
	BaseURL string
	// Gatherer, when set, is exposed at MetricsPath.
	Gatherer    prometheus.Gatherer
	MetricsPath string
}

// Handler serves calls to d. A GET with a "wsdl" query parameter returns the
// interface contract instead.
func Handler(d *soapbox.Dispatcher, opts Options) http.Handler {
	r := mux.NewRouter()
	if opts.Gatherer != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	h := &handler{d: d, baseURL: opts.BaseURL}
	r.PathPrefix("/").Handler(h)
	return r
}

type handler struct {
	d       *soapbox.Dispatcher
	baseURL string
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if _, ok := r.URL.Query()["wsdl"]; ok {
			h.contract(w, r)
			return
		}
	}
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	req := soapbox.HostRequest{
		Body: r.Body,
		Transport: soapbox.Transport{
			Verb:        r.Method,
			URL:         &u,
			Header:      r.Header,
			ContentType: r.Header.Get("Content-Type"),
			RemoteAddr:  r.RemoteAddr,
		},
	}
	if err := h.d.Serve(r.Context(), req, &responder{w: w}); err != nil {
		logger.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}
}

func (h *handler) contract(w http.ResponseWriter, r *http.Request) {
	base := h.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = (&url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}).String()
	}
	b, err := wsdl.Document(h.d.Application(), base)
	if err != nil {
		logger.Errorf("contract of %q: %v", h.d.Application().Name, err)
		http.Error(w, "contract unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if _, err := w.Write(b); err != nil {
		logger.Debugf("writing contract: %v", err)
	}
}

// responder writes dispatcher output to an http.ResponseWriter, flushing
// after each chunk so streamed results reach the client as produced.
type responder struct {
	w http.ResponseWriter
}

func (r *responder) WriteHeader(status int, header http.Header) {
	for k, vs := range header {
		r.w.Header()[k] = vs
	}
	r.w.WriteHeader(status)
}

func (r *responder) Write(p []byte) error {
	if _, err := r.w.Write(p); err != nil {
		return err
	}
	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
