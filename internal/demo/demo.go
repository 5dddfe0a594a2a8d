// Package demo holds the sample services hosted by the soapbox command.
package demo

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/reoring/soapbox"
	"github.com/reoring/soapbox/service"
	"github.com/reoring/soapbox/wiretype"
)

// Namespace is the target namespace of the demo application.
const Namespace = "urn:soapbox:demo"

var (
	// Email is a named string restriction.
	Email = wiretype.String.Named("Email", "", wiretype.Pattern(`[^@\s]+@[^@\s]+`), wiretype.MaxLength(254))

	Contact = wiretype.NewComplex("Contact", "").
		Field("name", wiretype.String.Customize(wiretype.Required(), wiretype.MinLength(1))).
		Field("email", Email).
		Field("tags", wiretype.String.Customize(wiretype.MaxOccurs(wiretype.Unbounded))).
		With(wiretype.Doc("An address book entry.")).
		MustBuild()

	Unknown = wiretype.NewComplex("UnknownContact", "").
		Field("name", wiretype.String).
		MustBuild()

	Trace = wiretype.NewComplex("Trace", "").
		Field("id", wiretype.String).
		Field("at", wiretype.DateTime).
		MustBuild()
)

// Services returns the demo service definitions backed by a fresh address
// book.
func Services() []*service.Definition {
	book := &addressBook{contacts: map[string]entry{}}
	hello := service.Rpc("say_hello", sayHello).
		Param("name", wiretype.String.Customize(wiretype.Required())).
		Param("times", wiretype.Integer.Customize(wiretype.Required(), wiretype.Ge(0), wiretype.Le(1000))).
		Returns(wiretype.Iterable(wiretype.String)).
		Doc("Greets name the given number of times.").
		HTTP("GET", "/hello/{name}").
		MustBuild()
	put := service.Rpc("put_contact", book.put).
		Param("contact", Contact).
		Style(service.Bare).
		InHeader("trace", Trace).
		MustBuild()
	get := service.Rpc("get_contact", book.get).
		Param("name", wiretype.String.Customize(wiretype.Required())).
		Returns(Contact).
		Faults(Unknown).
		OutHeader("trace", Trace).
		HTTP("GET", "/contacts/{name}").
		MustBuild()
	return []*service.Definition{
		service.Define("HelloService").Methods(hello).MustBuild(),
		service.Define("AddressBook").Methods(put, get).MustBuild(),
	}
}

func sayHello(ctx context.Context, args []any) ([]any, error) {
	name, times := args[0].(string), args[1].(int64)
	return []any{wiretype.FromFunc(func(ctx context.Context) (any, error) {
		if times <= 0 {
			return nil, io.EOF
		}
		times--
		return "Hello, " + name, nil
	}, nil)}, nil
}

type entry struct {
	Name  string   `wire:"name"`
	Email string   `wire:"email"`
	Tags  []string `wire:"tags"`
}

// native returns e as a Contact value, leaving unset fields absent.
func (e entry) native() map[string]any {
	m := map[string]any{"name": e.Name}
	if e.Email != "" {
		m["email"] = e.Email
	}
	if len(e.Tags) > 0 {
		tags := make([]any, len(e.Tags))
		for i, t := range e.Tags {
			tags[i] = t
		}
		m["tags"] = tags
	}
	return m
}

type addressBook struct {
	mu       sync.Mutex
	contacts map[string]entry
}

func (b *addressBook) put(ctx context.Context, args []any) ([]any, error) {
	var e entry
	if err := wiretype.Bind(args[0], &e); err != nil {
		return nil, errors.NewNotValid(err, "contact")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contacts[strings.ToLower(e.Name)] = e
	return nil, nil
}

func (b *addressBook) get(ctx context.Context, args []any) ([]any, error) {
	name := args[0].(string)
	b.mu.Lock()
	c, ok := b.contacts[strings.ToLower(name)]
	b.mu.Unlock()
	if !ok {
		return nil, soapbox.ClientFault("UnknownContact", "no contact named "+name).
			WithDetail(Unknown, map[string]any{"name": name})
	}
	if mc, ok := soapbox.FromContext(ctx); ok {
		mc.SetOutHeader("trace", map[string]any{"id": mc.ID, "at": time.Now().UTC()})
	}
	return []any{c.native()}, nil
}
