// Package factory defines the pluggable WorkerFactory admission-control
// interface the broker consults when no idle worker matches a queued job's
// requirements, plus a couple of reference implementations.
package factory

import (
	"sync"

	"github.com/geoffjay/remus/core/remus"
)

// WorkerFactory answers "can a worker satisfying these requirements be
// brought up?" and, when asked, launches one. Implementations range from
// "always say supported, never create" test fixtures to a pool that spins
// up real worker processes or in-process worker goroutines.
type WorkerFactory interface {
	// SupportedIOTypes lists the mesh I/O types this factory can produce a
	// worker for, independent of any worker currently registered.
	SupportedIOTypes() []remus.MeshIOType

	// WorkerRequirements returns the JobRequirements variants this factory
	// could satisfy for the given I/O type.
	WorkerRequirements(io remus.MeshIOType) []remus.JobRequirements

	// HaveSupport reports whether this factory could satisfy reqs, whether
	// or not a worker is currently running.
	HaveSupport(reqs remus.JobRequirements) bool

	// CreateWorker asks the factory to bring up a worker satisfying reqs.
	// It returns true if a worker will (eventually, asynchronously) appear;
	// the broker never blocks waiting for it. It returns false if the
	// factory declines (e.g. at its concurrency cap).
	CreateWorker(reqs remus.JobRequirements) bool

	// UpdateWorkerCount adjusts the count of outstanding factory-launched
	// workers by delta. The broker loop never calls it: it does not track
	// which registered or departed workers a factory launched.
	UpdateWorkerCount(delta int)

	// CurrentWorkerCount reports the number of factory-launched workers
	// presently outstanding.
	CurrentWorkerCount() int

	// MaxWorkerCount caps the number of concurrently-outstanding
	// factory-launched workers.
	MaxWorkerCount() int
}

// NullFactory reports support for a fixed set of I/O types but never
// creates a worker. Useful as a test fixture and as the default when no
// factory is configured.
type NullFactory struct {
	ioTypes []remus.MeshIOType
}

// NewNullFactory constructs a NullFactory advertising support for ioTypes.
func NewNullFactory(ioTypes ...remus.MeshIOType) *NullFactory {
	return &NullFactory{ioTypes: ioTypes}
}

// SupportedIOTypes implements WorkerFactory.
func (f *NullFactory) SupportedIOTypes() []remus.MeshIOType { return f.ioTypes }

// WorkerRequirements implements WorkerFactory; NullFactory has no concrete
// requirement variants to offer beyond the bare I/O type.
func (f *NullFactory) WorkerRequirements(io remus.MeshIOType) []remus.JobRequirements {
	for _, t := range f.ioTypes {
		if t == io {
			return []remus.JobRequirements{{IOType: io}}
		}
	}
	return nil
}

// HaveSupport implements WorkerFactory.
func (f *NullFactory) HaveSupport(reqs remus.JobRequirements) bool {
	for _, t := range f.ioTypes {
		if t == reqs.IOType {
			return true
		}
	}
	return false
}

// CreateWorker implements WorkerFactory; NullFactory never creates a
// worker.
func (f *NullFactory) CreateWorker(remus.JobRequirements) bool { return false }

// UpdateWorkerCount implements WorkerFactory as a no-op.
func (f *NullFactory) UpdateWorkerCount(int) {}

// CurrentWorkerCount implements WorkerFactory.
func (f *NullFactory) CurrentWorkerCount() int { return 0 }

// MaxWorkerCount implements WorkerFactory.
func (f *NullFactory) MaxWorkerCount() int { return 0 }

// SpawnFunc launches one worker capable of satisfying reqs, returning an
// error if the launch attempt itself failed synchronously (the resulting
// worker is still expected to register asynchronously on success).
type SpawnFunc func(reqs remus.JobRequirements) error

// PoolFactory launches workers via a caller-supplied SpawnFunc, up to a
// fixed concurrency cap, the way an in-process worker-pool implementation
// would back onto the same status bus and transport the broker already
// owns.
type PoolFactory struct {
	mu       sync.Mutex
	ioTypes  []remus.MeshIOType
	requirements []remus.JobRequirements
	spawn    SpawnFunc
	max      int
	current  int
}

// NewPoolFactory constructs a PoolFactory that calls spawn to launch new
// workers, advertising support for the given requirement variants, capped
// at maxWorkers concurrently outstanding.
func NewPoolFactory(requirements []remus.JobRequirements, spawn SpawnFunc, maxWorkers int) *PoolFactory {
	ioTypes := make([]remus.MeshIOType, 0, len(requirements))
	seen := make(map[remus.MeshIOType]bool)
	for _, r := range requirements {
		if !seen[r.IOType] {
			seen[r.IOType] = true
			ioTypes = append(ioTypes, r.IOType)
		}
	}
	return &PoolFactory{
		ioTypes:      ioTypes,
		requirements: requirements,
		spawn:        spawn,
		max:          maxWorkers,
	}
}

// SupportedIOTypes implements WorkerFactory.
func (f *PoolFactory) SupportedIOTypes() []remus.MeshIOType { return f.ioTypes }

// WorkerRequirements implements WorkerFactory.
func (f *PoolFactory) WorkerRequirements(io remus.MeshIOType) []remus.JobRequirements {
	var out []remus.JobRequirements
	for _, r := range f.requirements {
		if r.IOType == io {
			out = append(out, r)
		}
	}
	return out
}

// HaveSupport implements WorkerFactory.
func (f *PoolFactory) HaveSupport(reqs remus.JobRequirements) bool {
	for _, r := range f.requirements {
		if reqs.Matches(r) {
			return true
		}
	}
	return false
}

// CreateWorker implements WorkerFactory, launching a worker via spawn if
// under the concurrency cap.
func (f *PoolFactory) CreateWorker(reqs remus.JobRequirements) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current >= f.max {
		return false
	}
	if err := f.spawn(reqs); err != nil {
		return false
	}
	f.current++
	return true
}

// UpdateWorkerCount implements WorkerFactory.
func (f *PoolFactory) UpdateWorkerCount(delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current += delta
	if f.current < 0 {
		f.current = 0
	}
}

// CurrentWorkerCount implements WorkerFactory.
func (f *PoolFactory) CurrentWorkerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// MaxWorkerCount implements WorkerFactory.
func (f *PoolFactory) MaxWorkerCount() int { return f.max }
