package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/config"
	"github.com/reoring/soapbox/internal/demo"
	"github.com/reoring/soapbox/jsonschema"
	"github.com/reoring/soapbox/protocol/httpform"
	"github.com/reoring/soapbox/protocol/mapping"
	"github.com/reoring/soapbox/protocol/soap"
	"github.com/reoring/soapbox/protocol/xmldoc"
	"github.com/reoring/soapbox/transport/httpx"
	"github.com/reoring/soapbox/wsdl"
)

var logger = loggo.GetLogger("soapbox.cmd")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch sub := os.Args[1]; sub {
	case "serve":
		err = serveCmd(os.Args[2:])
	case "wsdl":
		err = wsdlCmd(os.Args[2:])
	case "schema":
		err = schemaCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `soapbox hosts the demo services

Usage:
  soapbox serve  [-config app.yaml] [-addr :8080] [-in soap11] [-out soap11]
  soapbox wsdl   [-config app.yaml] [-in soap11] [-base-url URL]
  soapbox schema [-ignore-wrappers] METHOD

Protocols: soap11, soap12, xml, json, msgpack, yaml, http (input only).`)
}

// common holds the flags shared by serve and wsdl.
type common struct {
	configPath string
	in, out    string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML or TOML options file")
	fs.StringVar(&c.in, "in", "soap11", "input protocol")
	fs.StringVar(&c.out, "out", "", "output protocol (defaults to the input protocol)")
}

func (c *common) application() (*soapbox.Application, config.Options, error) {
	opts := config.Default()
	if c.configPath != "" {
		var err error
		if opts, err = config.Load(c.configPath); err != nil {
			return nil, opts, err
		}
	}
	out := c.out
	if out == "" {
		out = c.in
		if out == "http" {
			out = "json"
		}
	}
	in, err := protocol(c.in, opts)
	if err != nil {
		return nil, opts, err
	}
	op, err := protocol(out, opts)
	if err != nil {
		return nil, opts, err
	}
	app, err := soapbox.NewApplication("Demo", demo.Namespace, in, op, demo.Services()...)
	if err != nil {
		return nil, opts, err
	}
	if err := opts.Apply(app); err != nil {
		return nil, opts, err
	}
	return app, opts, nil
}

func protocol(name string, opts config.Options) (soapbox.Protocol, error) {
	switch strings.ToLower(name) {
	case "soap11":
		return soap.New11(), nil
	case "soap12":
		return soap.New12(), nil
	case "xml":
		return xmldoc.New(xmldoc.Options{}), nil
	case "json":
		return mapping.New(mapping.JSON, opts.MappingOptions()), nil
	case "msgpack":
		return mapping.New(mapping.MessagePack, opts.MappingOptions()), nil
	case "yaml":
		return mapping.New(mapping.YAML, opts.MappingOptions()), nil
	case "http":
		return httpform.New(opts.FormOptions()), nil
	}
	return nil, errors.NotSupportedf("protocol %q", name)
}

func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	addr := fs.String("addr", ":8080", "listen address")
	_ = fs.Parse(args)

	app, opts, err := c.application()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	metrics, err := soapbox.NewMetrics(reg)
	if err != nil {
		return errors.Trace(err)
	}
	d := soapbox.NewDispatcher(app, soapbox.WithMetrics(metrics))
	srv := &http.Server{
		Addr:              *addr,
		Handler:           httpx.Handler(d, httpx.Options{BaseURL: opts.BaseURL, Gatherer: reg}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Infof("serving %s on %s (in %s, out %s)", app.Name, *addr, app.In.Name(), app.Out.Name())

	select {
	case err := <-errc:
		return errors.Trace(err)
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdown)
	d.Wait()
	return errors.Trace(err)
}

func wsdlCmd(args []string) error {
	fs := flag.NewFlagSet("wsdl", flag.ExitOnError)
	var c common
	c.register(fs)
	baseURL := fs.String("base-url", "", "endpoint address (defaults to the configured base_url)")
	_ = fs.Parse(args)

	app, opts, err := c.application()
	if err != nil {
		return err
	}
	if *baseURL == "" {
		*baseURL = opts.BaseURL
	}
	if *baseURL == "" {
		*baseURL = "http://localhost:8080/"
	}
	b, err := wsdl.Build(app, *baseURL)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return errors.Trace(err)
}

func schemaCmd(args []string) error {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	ignore := fs.Bool("ignore-wrappers", false, "describe responses without the wrapper object")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	p := mapping.New(mapping.JSON, mapping.Options{})
	app, err := soapbox.NewApplication("Demo", demo.Namespace, p, p, demo.Services()...)
	if err != nil {
		return err
	}
	for _, m := range app.Interface().Methods() {
		if m.Name() != fs.Arg(0) {
			continue
		}
		in, out := jsonschema.ForMethod(m, *ignore)
		for _, s := range []*jsonschema.Schema{in, out} {
			b, err := s.Marshal()
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		}
		return nil
	}
	return errors.NotFoundf("method %q", fs.Arg(0))
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
