// Package httpform implements the HTTP query and form binding input
// protocol. Arguments come from the query string, an urlencoded body and
// URL pattern captures; nested fields are addressed as "a.b" and array
// items as "a[i]".
package httpform

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

var logger = loggo.GetLogger("soapbox.httpform")

// Options tune a Protocol.
type Options struct {
	// StrictArrayIndices rejects array items whose indices have gaps or
	// appear out of order. When false the indices are sorted and
	// compacted.
	StrictArrayIndices bool
}

// Protocol is the HTTP form binding. It is input only; pair it with an
// output protocol such as a mapping protocol.
type Protocol struct {
	opts Options

	mu      sync.Mutex
	routers map[*soapbox.Interface]*router
}

var _ soapbox.InputProtocol = (*Protocol)(nil)

func New(opts Options) *Protocol {
	return &Protocol{opts: opts, routers: map[*soapbox.Interface]*router{}}
}

func (p *Protocol) Name() string { return "http" }

// form is the ordered set of request parameters.
type form struct {
	keys   []string
	values url.Values
}

func (f *form) add(k, v string) {
	if _, seen := f.values[k]; !seen {
		f.keys = append(f.keys, k)
	}
	f.values[k] = append(f.values[k], v)
}

// parseInto adds the pairs of an urlencoded string, keeping first
// appearance order.
func (f *form) parseInto(raw string) error {
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return errors.Annotatef(err, "parameter %q", k)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return errors.Annotatef(err, "parameter %q", key)
		}
		f.add(key, val)
	}
	return nil
}

// CreateInDocument collects the query string and, for urlencoded
// requests, the body.
func (p *Protocol) CreateInDocument(mc *soapbox.MethodContext) error {
	f := &form{values: url.Values{}}
	if u := mc.Transport.URL; u != nil {
		if err := f.parseInto(u.RawQuery); err != nil {
			return soapbox.ClientFault("ArgumentError", err.Error())
		}
	}
	ct := mc.Transport.ContentType
	if ct == "" {
		ct = mc.Transport.Header.Get("Content-Type")
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt == "application/x-www-form-urlencoded" {
		if err := f.parseInto(string(mc.InBytes)); err != nil {
			return soapbox.ClientFault("ArgumentError", err.Error())
		}
	}
	mc.InDocument = f
	return nil
}

// router matches declared HTTP patterns of one Interface.
type router struct {
	mux     *mux.Router
	methods map[*mux.Route]*service.Method
}

func (p *Protocol) routerFor(iface *soapbox.Interface) *router {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.routers[iface]; ok {
		return r
	}
	r := &router{mux: mux.NewRouter(), methods: map[*mux.Route]*service.Method{}}
	for _, m := range iface.Methods() {
		for _, pat := range m.Patterns() {
			route := r.mux.NewRoute().Path(pat.Path)
			if pat.Verb != "" {
				route = route.Methods(pat.Verb)
			}
			if pat.Host != "" {
				route = route.Host(pat.Host)
			}
			if err := route.GetError(); err != nil {
				logger.Warningf("method %q: pattern %q skipped: %v", m.Name(), pat.Path, err)
				continue
			}
			r.methods[route] = m
		}
	}
	p.routers[iface] = r
	return r
}

// DecomposeIncoming resolves the method from the declared URL patterns,
// adding their captures to the parameters, or else names it after the
// last path segment.
func (p *Protocol) DecomposeIncoming(mc *soapbox.MethodContext) error {
	f, ok := mc.InDocument.(*form)
	if !ok {
		return errors.NotValidf("http input document %T", mc.InDocument)
	}
	mc.InBodyDoc = f
	u := mc.Transport.URL
	if u == nil {
		return nil
	}
	r := p.routerFor(mc.App.Interface())
	req := &http.Request{Method: mc.Transport.Verb, URL: u, Host: u.Host, Header: mc.Transport.Header}
	var match mux.RouteMatch
	if r.mux.Match(req, &match) {
		if m, ok := r.methods[match.Route]; ok {
			mc.Method = m
			mc.RequestedName = m.Key()
			names := make([]string, 0, len(match.Vars))
			for k := range match.Vars {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				f.add(k, match.Vars[k])
			}
			return nil
		}
	}
	if name := path.Base(u.Path); name != "/" && name != "." {
		mc.RequestedName = wiretype.QName{Local: name}
	}
	return nil
}

// Deserialize binds the parameters to the declared arguments.
func (p *Protocol) Deserialize(mc *soapbox.MethodContext) error {
	f, _ := mc.InBodyDoc.(*form)
	if f == nil {
		f = &form{values: url.Values{}}
	}
	m := mc.Method
	b := &binder{form: f, strict: p.opts.StrictArrayIndices}
	var v any
	switch m.Style() {
	case service.Empty:
	case service.Bare:
		bp, _ := m.BareParam()
		v, _ = b.field(bp.Type, bp.Name, "/"+bp.Name)
	default:
		v, _ = b.complex(m.In(), "", "/")
	}
	if len(b.iss) > 0 {
		return b.iss
	}
	args, err := soapbox.ArgsFromValue(mc, v)
	if err != nil {
		return err
	}
	mc.InArgs = args
	return nil
}

// binder reads typed values out of a form.
type binder struct {
	form   *form
	strict bool
	iss    wiretype.Issues
}

func (b *binder) complex(c *wiretype.Complex, prefix, at string) (map[string]any, bool) {
	out := map[string]any{}
	for _, f := range c.Fields() {
		if v, ok := b.field(f.Type, prefix+f.Name, join(at, f.Name)); ok {
			out[f.Name] = v
		}
	}
	return out, len(out) > 0
}

func (b *binder) field(t wiretype.Type, key, at string) (any, bool) {
	if t.Attrs().Repeated() {
		return b.list(t.Customize(wiretype.MaxOccurs(1)), key, at)
	}
	switch tt := t.(type) {
	case *wiretype.Primitive:
		vals := b.form.values[key]
		if len(vals) == 0 {
			return nil, false
		}
		return b.leaf(tt, vals[0], at), true
	case *wiretype.Complex:
		m, ok := b.complex(tt, key+".", at)
		return m, ok
	case *wiretype.Array:
		return b.list(tt.Member().Customize(wiretype.MaxOccurs(1)), key, at)
	}
	return nil, false
}

func (b *binder) leaf(p *wiretype.Primitive, s string, at string) any {
	if p.PrimitiveKind() != wiretype.KindString {
		s = strings.TrimSpace(s)
	}
	v, err := wiretype.FromString(p, s)
	if err != nil {
		if more, ok := wiretype.AsIssues(err); ok {
			b.iss = append(b.iss, more.Rebase(at)...)
		} else {
			b.iss = append(b.iss, wiretype.IssueAt(at, wiretype.CodeInvalidFormat, nil))
		}
		return nil
	}
	return v
}

// list reads a sequence either from a repeated key (primitives only) or
// from indexed keys.
func (b *binder) list(member wiretype.Type, key, at string) (any, bool) {
	if p, ok := member.(*wiretype.Primitive); ok {
		if vals := b.form.values[key]; len(vals) > 0 {
			items := make([]any, len(vals))
			for i, s := range vals {
				items[i] = b.leaf(p, s, join(at, strconv.Itoa(i)))
			}
			return items, true
		}
	}
	idx := b.indices(key)
	if len(idx) == 0 {
		return nil, false
	}
	if b.strict {
		for pos, i := range idx {
			if i != pos {
				b.iss = append(b.iss, wiretype.IssueAt(join(at, strconv.Itoa(i)), wiretype.CodeInvalidIndex,
					map[string]any{"expected": pos, "got": i}))
				return nil, true
			}
		}
	} else {
		sort.Ints(idx)
	}
	items := make([]any, 0, len(idx))
	for pos, i := range idx {
		v, _ := b.field(member, key+"["+strconv.Itoa(i)+"]", join(at, strconv.Itoa(pos)))
		items = append(items, v)
	}
	return items, true
}

// indices returns the distinct indices used as key[i], in order of first
// appearance.
func (b *binder) indices(key string) []int {
	var out []int
	seen := map[int]bool{}
	prefix := key + "["
	for _, k := range b.form.keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		end := strings.IndexByte(rest, ']')
		if end <= 0 {
			continue
		}
		i, err := strconv.Atoi(rest[:end])
		if err != nil || i < 0 {
			continue
		}
		if tail := rest[end+1:]; tail != "" && tail[0] != '.' && tail[0] != '[' {
			continue
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

func join(base, seg string) string {
	if base == "" || base == "/" {
		return "/" + seg
	}
	return base + "/" + seg
}
