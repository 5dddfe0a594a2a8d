package soapbox

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

// State is the position of a call in the pipeline. Success walks the states
// in declaration order; any failure jumps to StateFaultBuilt.
type State int

const (
	StateReceivedBytes State = iota
	StateParsedEnvelope
	StateSplitHeaderBody
	StateResolvedMethod
	StateDeserializedArgs
	StateCalled
	StateSerializedResult
	StateBuiltEnvelope
	StateEmittedBytes
	StateFaultBuilt
)

var stateNames = [...]string{
	StateReceivedBytes:    "RECEIVED_BYTES",
	StateParsedEnvelope:   "PARSED_ENVELOPE",
	StateSplitHeaderBody:  "SPLIT_HEADER_BODY",
	StateResolvedMethod:   "RESOLVED_METHOD",
	StateDeserializedArgs: "DESERIALIZED_ARGS",
	StateCalled:           "CALLED",
	StateSerializedResult: "SERIALIZED_RESULT",
	StateBuiltEnvelope:    "BUILT_ENVELOPE",
	StateEmittedBytes:     "EMITTED_BYTES",
	StateFaultBuilt:       "FAULT_BUILT",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Transport carries the request metadata supplied by the host adapter.
type Transport struct {
	Verb        string
	URL         *url.URL
	Header      http.Header
	ContentType string
	RemoteAddr  string
}

// MethodContext is the per-call record carrying a request through every
// pipeline stage. It is owned by one goroutine; auxiliary contexts get
// their own copy with Parent set.
type MethodContext struct {
	ID        string
	App       *Application
	Transport Transport
	State     State
	// Parent is the primary context of an auxiliary call. It is read-only.
	Parent *MethodContext

	InBytes     []byte
	InDocument  any
	InHeaderDoc any
	InBodyDoc   any
	// RequestedName is the operation named by the request.
	RequestedName wiretype.QName
	Method        *service.Method
	// InHeaders follows Method.InHeaders order; absent headers are nil.
	InHeaders []any
	InArgs    []any

	OutArgs []any
	// OutHeaders follows Method.OutHeaders order; handlers set it through
	// the context returned by FromContext.
	OutHeaders     []any
	OutDocument    any
	OutHeaderDoc   any
	OutBodyDoc     any
	OutChunks      []Chunk
	OutContentType string
	// OutHeader holds extra transport headers set by the output protocol.
	OutHeader http.Header

	Fault    *Fault
	Redirect *Redirect

	// Values is free-form storage for hooks and handlers.
	Values map[string]any

	Started time.Time

	streams   []stream
	closers   []io.Closer
	closeOnce sync.Once
}

// NewMethodContext returns a context for one inbound call.
func NewMethodContext(app *Application, t Transport) *MethodContext {
	if t.Header == nil {
		t.Header = http.Header{}
	}
	return &MethodContext{
		ID:        uuid.NewString(),
		App:       app,
		Transport: t,
		State:     StateReceivedBytes,
		OutHeader: http.Header{},
		Values:    map[string]any{},
		Started:   time.Now(),
	}
}

// newAux derives the context of an auxiliary method. It shares the inputs
// of the primary call and sees its outcome through Parent.
func (mc *MethodContext) newAux(m *service.Method) *MethodContext {
	return &MethodContext{
		ID:            uuid.NewString(),
		App:           mc.App,
		Transport:     mc.Transport,
		State:         StateResolvedMethod,
		Parent:        mc,
		RequestedName: mc.RequestedName,
		Method:        m,
		InHeaders:     mc.InHeaders,
		InArgs:        mc.InArgs,
		OutHeader:     http.Header{},
		Values:        map[string]any{},
		Started:       time.Now(),
	}
}

// Aux reports whether mc belongs to an auxiliary call.
func (mc *MethodContext) Aux() bool { return mc.Parent != nil }

// SetFault records f as the outcome and moves to StateFaultBuilt.
func (mc *MethodContext) SetFault(f *Fault) {
	mc.Fault = f
	mc.State = StateFaultBuilt
}

// Advance moves to s unless the call already faulted.
func (mc *MethodContext) Advance(s State) {
	if mc.State == StateFaultBuilt && s != StateBuiltEnvelope && s != StateEmittedBytes {
		return
	}
	mc.State = s
}

// InHeader returns the native value of the named input header.
func (mc *MethodContext) InHeader(name string) (any, bool) {
	if mc.Method == nil {
		return nil, false
	}
	for i, h := range mc.Method.InHeaders() {
		if h.Name == name && i < len(mc.InHeaders) {
			return mc.InHeaders[i], mc.InHeaders[i] != nil
		}
	}
	return nil, false
}

// SetOutHeader sets the named output header value.
func (mc *MethodContext) SetOutHeader(name string, v any) bool {
	if mc.Method == nil {
		return false
	}
	hs := mc.Method.OutHeaders()
	if len(mc.OutHeaders) < len(hs) {
		mc.OutHeaders = append(mc.OutHeaders, make([]any, len(hs)-len(mc.OutHeaders))...)
	}
	for i, h := range hs {
		if h.Name == name {
			mc.OutHeaders[i] = v
			return true
		}
	}
	return false
}

// Stream registers a lazily produced part of the output document and
// returns the placeholder the serializer writes in its place. quote renders
// the placeholder the way it appears in the emitted bytes (for example as
// an XML comment or a JSON string).
func (mc *MethodContext) Stream(producer wiretype.ByteChunks, quote func(token string) string) string {
	token := "soapbox-stream-" + uuid.NewString()
	mc.streams = append(mc.streams, stream{placeholder: []byte(quote(token)), producer: producer})
	return token
}

// SetOutput stores the rendered document, cut at every registered stream
// placeholder.
func (mc *MethodContext) SetOutput(doc []byte) {
	mc.OutChunks = splitChunks(doc, mc.streams)
	mc.streams = nil
}

// AddCloser registers a resource released when the call is torn down.
func (mc *MethodContext) AddCloser(c io.Closer) {
	mc.closers = append(mc.closers, c)
}

// Emit writes the output chunks in order. Lazy chunks are driven here and
// emission stops at the next chunk boundary once ctx is done.
func (mc *MethodContext) Emit(ctx context.Context, write func([]byte) error) error {
	err := emit(ctx, mc.OutChunks, write)
	if err == nil {
		mc.State = StateEmittedBytes
	}
	return err
}

// Close releases every lazy producer, iterator and registered closer. It is
// safe to call more than once.
func (mc *MethodContext) Close() error {
	var first error
	mc.closeOnce.Do(func() {
		keep := func(err error) {
			if err != nil && first == nil {
				first = err
			}
		}
		for _, c := range mc.OutChunks {
			if c.lazy != nil {
				keep(c.lazy.Close())
			}
		}
		for _, s := range mc.streams {
			keep(s.producer.Close())
		}
		for _, v := range mc.OutArgs {
			switch x := v.(type) {
			case wiretype.Iterator:
				keep(x.Close())
			case wiretype.ByteChunks:
				keep(x.Close())
			}
		}
		for i := len(mc.closers) - 1; i >= 0; i-- {
			keep(mc.closers[i].Close())
		}
	})
	return first
}

type ctxKey struct{}

// WithMethodContext attaches mc to ctx.
func WithMethodContext(ctx context.Context, mc *MethodContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, mc)
}

// FromContext returns the MethodContext of the running call.
func FromContext(ctx context.Context) (*MethodContext, bool) {
	mc, ok := ctx.Value(ctxKey{}).(*MethodContext)
	return mc, ok
}
