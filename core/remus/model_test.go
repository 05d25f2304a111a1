package remus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewJobIDUniqueness(t *testing.T) {
	seen := make(map[JobID]bool)
	for i := 0; i < 1000; i++ {
		id := NewJobID()
		assert.False(t, seen[id], "job id collision at iteration %d", i)
		seen[id] = true
	}
}

func TestJobRequirementsMatches(t *testing.T) {
	stl := MeshIOType{InputKind: "stl", OutputKind: "vtk"}
	obj := MeshIOType{InputKind: "obj", OutputKind: "vtk"}

	cases := []struct {
		name  string
		req   JobRequirements
		other JobRequirements
		want  bool
	}{
		{
			name:  "exact match",
			req:   JobRequirements{IOType: stl},
			other: JobRequirements{IOType: stl},
			want:  true,
		},
		{
			name:  "io type mismatch",
			req:   JobRequirements{IOType: stl},
			other: JobRequirements{IOType: obj},
			want:  false,
		},
		{
			name:  "empty worker name matches any",
			req:   JobRequirements{IOType: stl, WorkerName: ""},
			other: JobRequirements{IOType: stl, WorkerName: "tetra-1"},
			want:  true,
		},
		{
			name:  "worker name mismatch",
			req:   JobRequirements{IOType: stl, WorkerName: "tetra-1"},
			other: JobRequirements{IOType: stl, WorkerName: "tetra-2"},
			want:  false,
		},
		{
			name:  "requirements blob mismatch",
			req:   JobRequirements{IOType: stl, Requirements: []byte("fine")},
			other: JobRequirements{IOType: stl, Requirements: []byte("coarse")},
			want:  false,
		},
		{
			name:  "requirements blob match",
			req:   JobRequirements{IOType: stl, Requirements: []byte("fine")},
			other: JobRequirements{IOType: stl, Requirements: []byte("fine")},
			want:  true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.req.Matches(c.other))
		})
	}
}

func TestJobSubmissionPreservesInsertionOrder(t *testing.T) {
	sub := NewJobSubmission(JobRequirements{})
	sub.Set("canary", JobContent{Payload: []byte("canary")})
	sub.Set("ascii", JobContent{Payload: []byte("ascii")})
	sub.Set("binary", JobContent{Payload: []byte{0x01, 0x02}})

	assert.Equal(t, []string{"canary", "ascii", "binary"}, sub.Keys())
	assert.Equal(t, 3, sub.Len())

	// Re-setting an existing key does not change its position.
	sub.Set("ascii", JobContent{Payload: []byte("replaced")})
	assert.Equal(t, []string{"canary", "ascii", "binary"}, sub.Keys())

	content, ok := sub.Get("ascii")
	assert.True(t, ok)
	assert.Equal(t, []byte("replaced"), content.Payload)
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		Queued:        "QUEUED",
		InProgress:    "IN_PROGRESS",
		Finished:      "FINISHED",
		Failed:        "FAILED",
		Expired:       "EXPIRED",
		InvalidStatus: "INVALID_STATUS",
		Status(99):    "INVALID_STATUS",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}
