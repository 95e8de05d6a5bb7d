package armcore

import (
	"sync"
	"sync/atomic"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
)

// busEntry is one shared serial bus and its reference count. Several
// drivers (or a driver plus a calibration tool) can sit on the same port;
// the port is opened once and closed when the last holder releases it.
type busEntry struct {
	mu        sync.Mutex
	bus       *feetech.Bus
	baudRate  int
	refCount  int64
	lastError error
}

// BusRegistry hands out shared feetech buses keyed by port path.
type BusRegistry struct {
	mu      sync.Mutex
	entries map[string]*busEntry
}

func NewBusRegistry() *BusRegistry {
	return &BusRegistry{entries: make(map[string]*busEntry)}
}

// sharedBuses is the process-wide registry the hardware driver uses.
var sharedBuses = NewBusRegistry()

// Acquire opens the port if needed and bumps its reference count.
func (r *BusRegistry) Acquire(port string, baudRate int) (*feetech.Bus, error) {
	r.mu.Lock()
	entry, ok := r.entries[port]
	if !ok {
		entry = &busEntry{baudRate: baudRate}
		r.entries[port] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.bus != nil {
		if entry.baudRate != baudRate {
			return nil, errors.Errorf("port %s already open at %d baud", port, entry.baudRate)
		}
		atomic.AddInt64(&entry.refCount, 1)
		return entry.bus, nil
	}
	if entry.lastError != nil {
		return nil, errors.Wrapf(entry.lastError, "cached open failure for port %s", port)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		entry.lastError = err
		return nil, errors.Wrapf(err, "open servo bus on %s", port)
	}
	entry.bus = bus
	entry.baudRate = baudRate
	entry.lastError = nil
	atomic.StoreInt64(&entry.refCount, 1)
	return bus, nil
}

// Release drops one reference, closing the port when the count hits zero.
func (r *BusRegistry) Release(port string) error {
	r.mu.Lock()
	entry, ok := r.entries[port]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if atomic.AddInt64(&entry.refCount, -1) > 0 {
		return nil
	}

	r.mu.Lock()
	delete(r.entries, port)
	r.mu.Unlock()

	if entry.bus == nil {
		return nil
	}
	err := entry.bus.Close()
	entry.bus = nil
	return err
}

// RefCount reports how many holders a port currently has.
func (r *BusRegistry) RefCount(port string) int64 {
	r.mu.Lock()
	entry, ok := r.entries[port]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(&entry.refCount)
}
