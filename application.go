package soapbox

import (
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/reoring/soapbox/service"
)

var logger = loggo.GetLogger("soapbox")

// Validation selects which validation tiers run on input.
type Validation int

const (
	// ValidateStructural checks occurrences, lengths, ranges and patterns
	// on the native arguments. It behaves the same for every protocol.
	ValidateStructural Validation = iota
	// ValidateNone skips input validation.
	ValidateNone
	// ValidateSchema adds full grammar checks where the protocol has a
	// schema document to check against.
	ValidateSchema
)

// DefaultMaxRequestLength caps request bodies at 2 MiB.
const DefaultMaxRequestLength = 2 << 20

// Application binds services to a target namespace and a pair of protocols.
type Application struct {
	Name            string
	TargetNamespace string
	In              InputProtocol
	Out             OutputProtocol

	// Hooks holds the pipeline extension slots.
	Hooks *Hooks
	// Status maps faults to transport statuses; nil means DefaultStatus.
	Status StatusFunc
	// MaxRequestLength caps the request body; non-positive disables the cap.
	MaxRequestLength int64
	// AuxWorkers bounds the pool running AuxAsync methods.
	AuxWorkers int
	Validation Validation

	iface *Interface
}

// NewApplication registers services and builds the Interface. in must be
// able to parse and deserialize, out must serialize and emit.
func NewApplication(name, tns string, in, out Protocol, services ...*service.Definition) (*Application, error) {
	if tns == "" {
		return nil, errors.NotValidf("application %q without a target namespace", name)
	}
	ip, ok := in.(InputProtocol)
	if !ok {
		return nil, errors.NotSupportedf("protocol %q as input", protoName(in))
	}
	op, ok := out.(OutputProtocol)
	if !ok {
		return nil, errors.NotSupportedf("protocol %q as output", protoName(out))
	}
	iface, err := newInterface(tns, services)
	if err != nil {
		return nil, errors.Annotatef(err, "application %q", name)
	}
	app := &Application{
		Name:             name,
		TargetNamespace:  tns,
		In:               ip,
		Out:              op,
		Hooks:            &Hooks{},
		MaxRequestLength: DefaultMaxRequestLength,
		AuxWorkers:       4,
		iface:            iface,
	}
	logger.Debugf("application %q: %d methods, %d types", name, len(iface.methods), len(iface.types))
	return app, nil
}

func protoName(p Protocol) string {
	if p == nil {
		return "<nil>"
	}
	return p.Name()
}

// Interface returns the method and type registry.
func (a *Application) Interface() *Interface { return a.iface }

// StatusOf maps f through the application's StatusFunc.
func (a *Application) StatusOf(f *Fault) int {
	if a.Status != nil {
		return a.Status(f)
	}
	return DefaultStatus(f)
}
