package soapbox

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/reoring/soapbox/service"
)

// auxPool runs AuxAsync methods on a bounded set of goroutines. When every
// slot is busy the call runs on the caller's goroutine instead of queueing.
type auxPool struct {
	g errgroup.Group
}

func newAuxPool(limit int) *auxPool {
	p := &auxPool{}
	if limit > 0 {
		p.g.SetLimit(limit)
	}
	return p
}

func (p *auxPool) submit(fn func()) {
	if !p.g.TryGo(func() error { fn(); return nil }) {
		fn()
	}
}

func (p *auxPool) wait() { _ = p.g.Wait() }

// runAuxiliary schedules every auxiliary method registered for the primary
// call's key. It runs after the primary outcome is known; failures are
// logged and counted, never returned.
func (d *Dispatcher) runAuxiliary(ctx context.Context, primary *MethodContext) {
	if primary.Method == nil {
		return
	}
	auxs := d.app.iface.Auxiliary(primary.Method.Key())
	if len(auxs) == 0 {
		return
	}
	// Auxiliary work is not tied to the client connection.
	ctx = context.WithoutCancel(ctx)
	for _, m := range auxs {
		amc := primary.newAux(m)
		switch m.Aux() {
		case service.AuxAsync:
			d.pool.submit(func() { d.callAux(ctx, amc) })
		default:
			d.callAux(ctx, amc)
		}
	}
}

func (d *Dispatcher) callAux(ctx context.Context, amc *MethodContext) {
	defer amc.Close()
	d.call(ctx, amc)
	if amc.Fault != nil {
		logger.Errorf("auxiliary %s (%s) of call %s failed: %v",
			amc.Method.Name(), amc.Method.Aux(), amc.Parent.ID, amc.Fault)
		d.metrics.auxFailed(amc)
		return
	}
	logger.Tracef("auxiliary %s of call %s done", amc.Method.Name(), amc.Parent.ID)
}
