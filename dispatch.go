package soapbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/juju/errors"

	"github.com/reoring/soapbox/wiretype"
)

// HostRequest is what a host adapter supplies for one call.
type HostRequest struct {
	Body io.Reader
	Transport
}

// HostResponder receives the status, headers and body chunks of a response.
// A Write error means the client is gone.
type HostResponder interface {
	WriteHeader(status int, header http.Header)
	Write(p []byte) error
}

// Dispatcher drives calls through an Application's pipeline.
type Dispatcher struct {
	app     *Application
	pool    *auxPool
	metrics *Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics records calls into m.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher returns a dispatcher for app.
func NewDispatcher(app *Application, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{app: app, pool: newAuxPool(app.AuxWorkers)}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Application returns the dispatched application.
func (d *Dispatcher) Application() *Application { return d.app }

// Wait blocks until every running auxiliary call has returned.
func (d *Dispatcher) Wait() { d.pool.wait() }

// Serve handles one call end to end: it reads the body, runs the pipeline,
// writes the response through w and then runs the auxiliary methods.
func (d *Dispatcher) Serve(ctx context.Context, req HostRequest, w HostResponder) error {
	mc := NewMethodContext(d.app, req.Transport)
	defer mc.Close()

	if err := d.readBody(mc, req.Body); err != nil {
		d.fail(mc, err)
	}
	d.Process(ctx, mc)

	status := http.StatusOK
	switch {
	case mc.Redirect != nil:
		status = redirectStatus(mc.Redirect)
		mc.OutHeader.Set("Location", mc.Redirect.Location)
	case mc.Fault != nil:
		status = d.app.StatusOf(mc.Fault)
	}
	header := mc.OutHeader.Clone()
	if mc.OutContentType != "" {
		header.Set("Content-Type", mc.OutContentType)
	}
	w.WriteHeader(status, header)

	err := d.app.Hooks.runPre(StageEmit, mc)
	if err == nil {
		err = mc.Emit(ctx, w.Write)
	}
	if err != nil {
		logger.Warningf("call %s: emission stopped: %v", mc.ID, err)
	}
	if herr := d.app.Hooks.runPost(StageEmit, mc); herr != nil {
		logger.Warningf("call %s: %v", mc.ID, herr)
	}
	d.metrics.observeCall(mc)
	d.runAuxiliary(ctx, mc)
	return errors.Trace(err)
}

// readBody reads at most MaxRequestLength bytes. A longer body aborts the
// call before any parsing.
func (d *Dispatcher) readBody(mc *MethodContext, body io.Reader) error {
	if body == nil {
		return nil
	}
	limit := d.app.MaxRequestLength
	if limit <= 0 {
		b, err := io.ReadAll(body)
		mc.InBytes = b
		return errors.Annotate(err, "reading request")
	}
	b, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return errors.Annotate(err, "reading request")
	}
	if int64(len(b)) > limit {
		return NewFault(FaultRequestTooLong, fmt.Sprintf("request longer than %d bytes", limit))
	}
	mc.InBytes = b
	return nil
}

// Process runs every stage up to and including building the output chunks,
// without writing anything. A fault at any stage skips the remaining input
// stages and the call and goes straight to serialization.
func (d *Dispatcher) Process(ctx context.Context, mc *MethodContext) {
	app := d.app
	steps := []struct {
		stage Stage
		state State
		run   func() error
	}{
		{StageParse, StateParsedEnvelope, func() error { return app.In.CreateInDocument(mc) }},
		{StageDecompose, StateSplitHeaderBody, func() error { return app.In.DecomposeIncoming(mc) }},
		{StageResolve, StateResolvedMethod, func() error { return d.resolve(mc) }},
		{StageDeserialize, StateDeserializedArgs, func() error { return app.In.Deserialize(mc) }},
	}
	for _, s := range steps {
		if mc.Fault != nil || mc.Redirect != nil {
			break
		}
		d.stage(mc, s.stage, s.state, s.run)
	}
	if mc.Fault == nil && mc.Redirect == nil {
		d.call(ctx, mc)
	}
	d.stage(mc, StageSerialize, StateSerializedResult, func() error { return app.Out.Serialize(mc) })
	if mc.Fault != nil && mc.OutDocument == nil {
		// The result could not be serialized; serialize the fault instead.
		d.guard(mc, func() error { return app.Out.Serialize(mc) })
	}
	if err := d.guard(mc, func() error { return app.Out.CreateOutString(mc) }); err != nil && mc.OutChunks == nil {
		// Last resort: the output protocol cannot render anything.
		mc.OutContentType = "text/plain; charset=utf-8"
		mc.OutChunks = []Chunk{StaticChunk([]byte(mc.Fault.Error()))}
	}
	mc.Advance(StateBuiltEnvelope)
}

// stage runs one pipeline stage between its hook slots.
func (d *Dispatcher) stage(mc *MethodContext, s Stage, done State, run func() error) {
	hooks := d.app.Hooks
	if err := hooks.runPre(s, mc); err != nil {
		d.fail(mc, err)
		return
	}
	if mc.Fault == nil || s == StageSerialize {
		if err := d.guard(mc, run); err == nil {
			mc.Advance(done)
		}
	}
	if err := hooks.runPost(s, mc); err != nil {
		d.fail(mc, err)
	}
}

// guard runs fn, converting errors and panics into the call's fault.
func (d *Dispatcher) guard(mc *MethodContext, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("call %s: panic: %v\n%s", mc.ID, r, debug.Stack())
			err = errors.Errorf("panic: %v", r)
			d.fail(mc, err)
		}
	}()
	if err = fn(); err != nil {
		d.fail(mc, err)
	}
	return err
}

func (d *Dispatcher) fail(mc *MethodContext, err error) {
	var r *Redirect
	if errors.As(err, &r) {
		mc.Redirect = r
		return
	}
	f := FaultFromError(err)
	if f.IsServer() {
		logger.Errorf("call %s: %v", mc.ID, errors.Details(err))
	} else {
		logger.Debugf("call %s: %v", mc.ID, f)
	}
	// Keep the first fault; later ones are consequences.
	if mc.Fault == nil {
		mc.SetFault(f)
	} else {
		mc.State = StateFaultBuilt
	}
}

// resolve finds the primary method named by the request.
func (d *Dispatcher) resolve(mc *MethodContext) error {
	if mc.Method != nil {
		return nil
	}
	m, ok := d.app.iface.Lookup(mc.RequestedName)
	if !ok {
		return NewFault(FaultMethodNotFound, fmt.Sprintf("no method %s", describeName(mc.RequestedName)))
	}
	mc.Method = m
	return nil
}

func describeName(q wiretype.QName) string {
	if q.Local == "" {
		return "named in the request"
	}
	return fmt.Sprintf("%q", q.String())
}

// call invokes the handler of mc.Method with the call's arguments.
func (d *Dispatcher) call(ctx context.Context, mc *MethodContext) {
	d.stage(mc, StageCall, StateCalled, func() error {
		m := mc.Method
		h := m.Handler()
		out, err := h(WithMethodContext(ctx, mc), mc.InArgs)
		if err != nil {
			return err
		}
		if want := len(m.Results()); len(out) != want && !(want == 0 && out == nil) {
			return errors.Errorf("method %q returned %d values, declares %d", m.Name(), len(out), want)
		}
		mc.OutArgs = out
		return nil
	})
}

// ResponseRecorder is a HostResponder that buffers the response, for tests
// and in-process calls.
type ResponseRecorder struct {
	Status int
	Header http.Header
	Body   bytes.Buffer
}

func (r *ResponseRecorder) WriteHeader(status int, header http.Header) {
	r.Status, r.Header = status, header
}

func (r *ResponseRecorder) Write(p []byte) error {
	_, err := r.Body.Write(p)
	return err
}
