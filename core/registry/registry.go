// Package registry tracks known clients and workers by transport identity:
// their last-seen time, advertised capabilities (workers only) and current
// assignment state. All operations are loop-local and unsynchronized — the
// broker loop is the only caller, matching the single-threaded ownership
// rule in the concurrency model.
package registry

import (
	"time"

	"github.com/geoffjay/remus/core/remus"
)

// WorkerState is a worker's position in its own small state machine.
type WorkerState int

// Worker states.
const (
	WorkerIdle WorkerState = iota
	WorkerAssigned
	WorkerExecuting
	WorkerUnresponsive
)

// Worker is one registered worker peer.
type Worker struct {
	ID           string
	Requirements []remus.JobRequirements
	State        WorkerState
	AssignedJob  remus.JobID
	HasAssignedJob bool
	LastSeen     time.Time
}

// Client is one registered client peer.
type Client struct {
	ID       string
	LastSeen time.Time
	JobIDs   map[remus.JobID]bool
}

// Registry holds the broker's worker and client peer maps.
type Registry struct {
	workers map[string]*Worker
	clients map[string]*Client
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		workers: make(map[string]*Worker),
		clients: make(map[string]*Client),
	}
}

// RegisterWorker adds or updates a worker's advertised requirements,
// idempotent by id: a repeat call replaces the requirement set rather than
// appending to it.
func (r *Registry) RegisterWorker(id string, reqs []remus.JobRequirements, now time.Time) *Worker {
	w, ok := r.workers[id]
	if !ok {
		w = &Worker{ID: id, State: WorkerIdle}
		r.workers[id] = w
	}
	w.Requirements = reqs
	w.LastSeen = now
	return w
}

// UnregisterWorker removes a worker from the registry. It returns the job
// ID the worker was assigned to, if any, so the caller can fail that job.
func (r *Registry) UnregisterWorker(id string) (remus.JobID, bool) {
	w, ok := r.workers[id]
	if !ok {
		return remus.JobID{}, false
	}
	delete(r.workers, id)
	if w.HasAssignedJob {
		return w.AssignedJob, true
	}
	return remus.JobID{}, false
}

// UnregisterClient removes a client from the registry.
func (r *Registry) UnregisterClient(id string) {
	delete(r.clients, id)
}

// TouchWorker updates a worker's last-seen timestamp.
func (r *Registry) TouchWorker(id string, now time.Time) {
	if w, ok := r.workers[id]; ok {
		w.LastSeen = now
	}
}

// TouchClient records a client's last-seen timestamp and, if jobID is a
// valid (non-zero) job, adds it to that client's set of submitted jobs.
func (r *Registry) TouchClient(id string, now time.Time, jobID remus.JobID) {
	c, ok := r.clients[id]
	if !ok {
		c = &Client{ID: id, JobIDs: make(map[remus.JobID]bool)}
		r.clients[id] = c
	}
	c.LastSeen = now
	var zero remus.JobID
	if jobID != zero {
		c.JobIDs[jobID] = true
	}
}

// Worker returns the worker registered under id, if any.
func (r *Registry) Worker(id string) (*Worker, bool) {
	w, ok := r.workers[id]
	return w, ok
}

// AssignWorker marks worker id as assigned to jobID and transitions it out
// of WorkerIdle.
func (r *Registry) AssignWorker(id string, jobID remus.JobID) {
	if w, ok := r.workers[id]; ok {
		w.State = WorkerAssigned
		w.AssignedJob = jobID
		w.HasAssignedJob = true
	}
}

// MarkExecuting transitions an assigned worker to WorkerExecuting, once the
// first progress update for its job arrives.
func (r *Registry) MarkExecuting(id string) {
	if w, ok := r.workers[id]; ok {
		w.State = WorkerExecuting
	}
}

// ReleaseWorker returns a worker to WorkerIdle, clearing its assignment.
func (r *Registry) ReleaseWorker(id string) {
	if w, ok := r.workers[id]; ok {
		w.State = WorkerIdle
		w.HasAssignedJob = false
		w.AssignedJob = remus.JobID{}
	}
}

// ReapDead removes workers and clients not seen within threshold of now. It
// returns the job IDs that were assigned to evicted workers (the caller must
// fail these, since the worker that was executing them is gone) and the IDs
// of evicted clients (the caller uses these to reap that client's still-
// queued jobs, since no one will ever retrieve their results).
func (r *Registry) ReapDead(now time.Time, threshold time.Duration) (failedJobs []remus.JobID, departedClients []string) {
	var staleWorkers []string
	for id, w := range r.workers {
		if now.Sub(w.LastSeen) > threshold {
			staleWorkers = append(staleWorkers, id)
		}
	}
	for _, id := range staleWorkers {
		if jobID, hadJob := r.UnregisterWorker(id); hadJob {
			failedJobs = append(failedJobs, jobID)
		}
	}

	for id, c := range r.clients {
		if now.Sub(c.LastSeen) > threshold {
			departedClients = append(departedClients, id)
			delete(r.clients, id)
		}
	}
	return failedJobs, departedClients
}

// FindIdleWorker returns an idle worker with an advertised requirements
// variant that reqs matches (reqs.Matches, so an empty WorkerName in reqs
// matches any name), tie-breaking by longest-idle (LRU) to spread load
// across equally-eligible workers.
func (r *Registry) FindIdleWorker(reqs remus.JobRequirements) (*Worker, bool) {
	var best *Worker
	for _, w := range r.workers {
		if w.State != WorkerIdle {
			continue
		}
		if !advertises(w, reqs) {
			continue
		}
		if best == nil || w.LastSeen.Before(best.LastSeen) {
			best = w
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func advertises(w *Worker, reqs remus.JobRequirements) bool {
	for _, advertised := range w.Requirements {
		if reqs.Matches(advertised) {
			return true
		}
	}
	return false
}

// Workers returns a snapshot slice of all registered workers, for listing
// or MMI-style introspection handlers.
func (r *Registry) Workers() []*Worker {
	out := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	return out
}

// WorkerCount reports the number of registered workers.
func (r *Registry) WorkerCount() int {
	return len(r.workers)
}
