// Package remus defines the data model shared by the broker, the client
// library and the worker library: mesh I/O types, job requirements and
// content, submissions, and the broker's canonical job record.
package remus

import (
	"time"

	"github.com/google/uuid"
)

// JobID uniquely identifies a job. The zero value is never a valid ID.
type JobID = uuid.UUID

// NewJobID mints a fresh, globally unique job identifier.
func NewJobID() JobID {
	return uuid.New()
}

// MeshIOType is an ordered pair identifying what a worker consumes and
// produces, or what a client wants done.
type MeshIOType struct {
	InputKind  string `yaml:"input_kind"`
	OutputKind string `yaml:"output_kind"`
}

// JobRequirements bundles the information the broker matches jobs to
// workers on. Matching (see Matches) is structural equality, except that an
// empty WorkerName on the query side matches any worker name.
type JobRequirements struct {
	IOType       MeshIOType `yaml:"io_type"`
	WorkerName   string     `yaml:"worker_name"`
	Requirements []byte     `yaml:"-"`
}

// Matches reports whether other satisfies req: the IO type must match
// exactly; an empty WorkerName matches any worker name, otherwise names
// must match exactly; the opaque requirements blob, if either side
// specifies one, must match byte-for-byte.
func (req JobRequirements) Matches(other JobRequirements) bool {
	if req.IOType != other.IOType {
		return false
	}
	if req.WorkerName != "" && req.WorkerName != other.WorkerName {
		return false
	}
	if len(req.Requirements) > 0 || len(other.Requirements) > 0 {
		if string(req.Requirements) != string(other.Requirements) {
			return false
		}
	}
	return true
}

// ContentSource flags whether a JobContent payload is inline or a
// filesystem reference.
type ContentSource uint8

// Content source kinds.
const (
	ContentInMemory ContentSource = iota
	ContentFilePath
)

// ContentEncoding flags whether a JobContent payload should be treated as
// text or opaque binary.
type ContentEncoding uint8

// Content encodings.
const (
	EncodingText ContentEncoding = iota
	EncodingBinary
)

// JobContent is one payload item inside a submission.
type JobContent struct {
	Payload  []byte
	Source   ContentSource
	Format   string
	Encoding ContentEncoding
}

// JobSubmission is a JobRequirements value plus a keyed, insertion-ordered
// bag of JobContent values.
type JobSubmission struct {
	Requirements JobRequirements
	keys         []string
	content      map[string]JobContent
}

// NewJobSubmission constructs an empty submission for the given
// requirements.
func NewJobSubmission(req JobRequirements) *JobSubmission {
	return &JobSubmission{
		Requirements: req,
		content:      make(map[string]JobContent),
	}
}

// Set inserts or replaces the content under key, preserving insertion order
// for first-time keys.
func (s *JobSubmission) Set(key string, content JobContent) {
	if _, exists := s.content[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.content[key] = content
}

// Get returns the content stored under key.
func (s *JobSubmission) Get(key string) (JobContent, bool) {
	c, ok := s.content[key]
	return c, ok
}

// Keys returns the submission's keys in insertion order.
func (s *JobSubmission) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len reports the number of content entries.
func (s *JobSubmission) Len() int {
	return len(s.keys)
}

// Status is a job's position in the lifecycle state machine.
type Status int

// Job lifecycle states.
const (
	InvalidStatus Status = iota
	Queued
	InProgress
	Finished
	Failed
	Expired
)

// String renders a Status for logging.
func (s Status) String() string {
	switch s {
	case Queued:
		return "QUEUED"
	case InProgress:
		return "IN_PROGRESS"
	case Finished:
		return "FINISHED"
	case Failed:
		return "FAILED"
	case Expired:
		return "EXPIRED"
	default:
		return "INVALID_STATUS"
	}
}

// Progress is a worker-reported, absolute (not incremental) measure of
// completion, optionally paired with a free-form message.
type Progress struct {
	Percent int
	Message string
}

// Result holds a finished job's output bytes.
type Result struct {
	Data []byte
}

// Job is the broker's canonical record for a single submission.
type Job struct {
	ID             JobID
	Submitter      string
	Requirements   JobRequirements
	Submission     *JobSubmission
	Status         Status
	Progress       Progress
	Result         *Result
	AssignedWorker string

	CreatedAt         time.Time
	LastStatusChange  time.Time
	LastWorkerContact time.Time

	dropPending bool
}
