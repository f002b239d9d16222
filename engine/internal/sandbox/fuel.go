package sandbox

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
)

// fuelMeter enforces the per-call fuel budget (spec §4.2). The guest
// reports consumption through the host.fuel.consume import after each
// extraction phase; once the budget is exhausted further consumption
// calls are denied and the call is expected to unwind into a
// ResourceLimit("fuel") error.
type fuelMeter struct {
	remaining atomic.Uint64
	exceeded  atomic.Bool
}

func newFuelMeter(budget uint64) *fuelMeter {
	m := &fuelMeter{}
	m.remaining.Store(budget)
	return m
}

// consume deducts units from the remaining budget, denying the request
// (and latching exceeded) once it would go negative; once latched, every
// later request is denied too.
func (m *fuelMeter) consume(units uint64) bool {
	if m.exceeded.Load() {
		return false
	}
	for {
		cur := m.remaining.Load()
		if units > cur {
			m.exceeded.Store(true)
			return false
		}
		if m.remaining.CompareAndSwap(cur, cur-units) {
			return true
		}
	}
}

func (m *fuelMeter) exhausted() bool { return m.exceeded.Load() }

type fuelMeterKey struct{}

func withFuelMeter(ctx context.Context, m *fuelMeter) context.Context {
	return context.WithValue(ctx, fuelMeterKey{}, m)
}

func fuelMeterFromContext(ctx context.Context) *fuelMeter {
	m, _ := ctx.Value(fuelMeterKey{}).(*fuelMeter)
	return m
}

// hostFuelConsume is the host.fuel.consume import (spec §4.2): the guest
// calls it with the unit count for the phase it just finished, and a
// zero return means the budget is spent and the guest must abort.
func hostFuelConsume(ctx context.Context, units uint64) uint32 {
	m := fuelMeterFromContext(ctx)
	if m == nil {
		return 1
	}
	if m.consume(units) {
		return 1
	}
	return 0
}

// registerFuelHost installs the host.fuel.consume import on rt, grounded
// on the zkoranges-go-claw host's NewHostModuleBuilder("host") pattern for
// host.http.get/host.log/host.kv.set. It must run before any guest module
// is instantiated against rt.
func registerFuelHost(ctx context.Context, rt wazero.Runtime) error {
	builder := rt.NewHostModuleBuilder("host")
	builder.NewFunctionBuilder().WithFunc(hostFuelConsume).Export("host.fuel.consume")
	_, err := builder.Instantiate(ctx)
	return err
}
