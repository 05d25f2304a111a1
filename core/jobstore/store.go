// Package jobstore holds every known job by identifier, a FIFO queue of
// queued job IDs, and the retention-window reaping of terminal jobs. State
// lives only in memory; nothing here persists across a restart.
package jobstore

import (
	"time"

	rerrors "github.com/geoffjay/remus/core/errors"
	"github.com/geoffjay/remus/core/remus"
)

// Store maps job IDs to Jobs, plus a FIFO queue of IDs currently QUEUED.
// Only the queue is ordered; the job map keeps no insertion order, so the
// order of IDs returned by ExpireBefore is not defined.
type Store struct {
	jobs  map[remus.JobID]*remus.Job
	queue []remus.JobID
}

// New constructs an empty Store.
func New() *Store {
	return &Store{jobs: make(map[remus.JobID]*remus.Job)}
}

// Enqueue inserts a freshly-submitted job in the QUEUED state and appends
// its ID to the FIFO queue.
func (s *Store) Enqueue(job *remus.Job) {
	job.Status = remus.Queued
	job.CreatedAt = time.Now()
	job.LastStatusChange = job.CreatedAt
	s.jobs[job.ID] = job
	s.queue = append(s.queue, job.ID)
}

// QueuedIDs returns a snapshot of job IDs currently queued, oldest first.
func (s *Store) QueuedIDs() []remus.JobID {
	out := make([]remus.JobID, len(s.queue))
	copy(out, s.queue)
	return out
}

// Assign removes jobID from the FIFO queue and marks it assigned to
// workerID, awaiting the worker's first progress update to promote it to
// IN_PROGRESS.
func (s *Store) Assign(jobID remus.JobID, workerID string) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return rerrors.NewJobNotFound(jobID.String())
	}
	s.removeFromQueue(jobID)
	job.AssignedWorker = workerID
	return nil
}

func (s *Store) removeFromQueue(jobID remus.JobID) {
	for i, id := range s.queue {
		if id == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// UpdateStatus transitions jobID to status, recording the status-change
// timestamp, and removes the job from the FIFO queue when status is not
// QUEUED. It does not enforce the full state machine — callers (the
// broker's handlers) are responsible for only requesting valid
// transitions.
func (s *Store) UpdateStatus(jobID remus.JobID, status remus.Status) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return rerrors.NewJobNotFound(jobID.String())
	}
	if status != remus.Queued {
		s.removeFromQueue(jobID)
	}
	job.Status = status
	job.LastStatusChange = time.Now()
	return nil
}

// UpdateProgress overwrites jobID's progress with an absolute value (the
// worker reports a running total, not a delta) and promotes QUEUED jobs to
// IN_PROGRESS on first contact.
func (s *Store) UpdateProgress(jobID remus.JobID, progress remus.Progress) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return rerrors.NewJobNotFound(jobID.String())
	}
	job.Progress = progress
	job.LastWorkerContact = time.Now()
	if job.Status == remus.Queued {
		job.Status = remus.InProgress
		job.LastStatusChange = job.LastWorkerContact
	}
	return nil
}

// SetResult stores a job's final result and marks it FINISHED. It is only
// valid from IN_PROGRESS, per the invariant that only IN_PROGRESS ->
// FINISHED may carry a result.
func (s *Store) SetResult(jobID remus.JobID, result *remus.Result) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return rerrors.NewJobNotFound(jobID.String())
	}
	if job.Status != remus.InProgress {
		return rerrors.NewProtocolViolation("result for job not in IN_PROGRESS", nil).
			WithContext("job_id", jobID.String()).
			WithContext("status", job.Status.String())
	}
	job.Result = result
	job.Status = remus.Finished
	job.LastStatusChange = time.Now()
	return nil
}

// Get returns the job with jobID, or false if unknown or already reaped.
func (s *Store) Get(jobID remus.JobID) (*remus.Job, bool) {
	job, ok := s.jobs[jobID]
	return job, ok
}

// Drop removes jobID from the store and the queue.
func (s *Store) Drop(jobID remus.JobID) {
	delete(s.jobs, jobID)
	s.removeFromQueue(jobID)
}

// ExpireBefore reaps terminal jobs (FINISHED, FAILED, EXPIRED) whose last
// status change is older than cutoff, and reaps still-QUEUED jobs whose
// submitter is in the given set of departed client identities. It returns
// the expired job IDs.
func (s *Store) ExpireBefore(cutoff time.Time, departedSubmitters map[string]bool) []remus.JobID {
	var expired []remus.JobID
	for id, job := range s.jobs {
		terminal := job.Status == remus.Finished || job.Status == remus.Failed || job.Status == remus.Expired
		if terminal && job.LastStatusChange.Before(cutoff) {
			expired = append(expired, id)
			delete(s.jobs, id)
			continue
		}
		if job.Status == remus.Queued && departedSubmitters[job.Submitter] {
			job.Status = remus.Expired
			job.LastStatusChange = time.Now()
			expired = append(expired, id)
			s.removeFromQueue(id)
			delete(s.jobs, id)
		}
	}
	return expired
}

// Len reports the number of jobs currently tracked.
func (s *Store) Len() int {
	return len(s.jobs)
}
