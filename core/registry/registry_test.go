package registry

import (
	"testing"
	"time"

	"github.com/geoffjay/remus/core/remus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var meshStlVtk = remus.JobRequirements{IOType: remus.MeshIOType{InputKind: "stl", OutputKind: "vtk"}}

func TestRegisterWorkerIsIdempotentAndReplacesRequirements(t *testing.T) {
	r := New()
	now := time.Now()

	r.RegisterWorker("w1", []remus.JobRequirements{meshStlVtk}, now)
	w, ok := r.Worker("w1")
	require.True(t, ok)
	assert.Equal(t, []remus.JobRequirements{meshStlVtk}, w.Requirements)

	objVtk := remus.JobRequirements{IOType: remus.MeshIOType{InputKind: "obj", OutputKind: "vtk"}}
	r.RegisterWorker("w1", []remus.JobRequirements{objVtk}, now)
	w, ok = r.Worker("w1")
	require.True(t, ok)
	assert.Equal(t, []remus.JobRequirements{objVtk}, w.Requirements)
	assert.Equal(t, 1, r.WorkerCount())
}

func TestFindIdleWorkerMatchesAndTieBreaksByLRU(t *testing.T) {
	r := New()
	base := time.Now()

	r.RegisterWorker("older", []remus.JobRequirements{meshStlVtk}, base)
	r.RegisterWorker("newer", []remus.JobRequirements{meshStlVtk}, base.Add(time.Second))

	w, ok := r.FindIdleWorker(meshStlVtk)
	require.True(t, ok)
	assert.Equal(t, "older", w.ID, "tie-break should prefer the longest-idle worker")

	r.AssignWorker("older", remus.NewJobID())
	w, ok = r.FindIdleWorker(meshStlVtk)
	require.True(t, ok)
	assert.Equal(t, "newer", w.ID, "assigned workers are no longer idle candidates")
}

func TestFindIdleWorkerHonorsWorkerName(t *testing.T) {
	r := New()
	now := time.Now()
	named := remus.JobRequirements{IOType: meshStlVtk.IOType, WorkerName: "tetra-1"}
	r.RegisterWorker("w1", []remus.JobRequirements{named}, now)

	_, ok := r.FindIdleWorker(remus.JobRequirements{IOType: meshStlVtk.IOType, WorkerName: "tetra-2"})
	assert.False(t, ok)

	_, ok = r.FindIdleWorker(remus.JobRequirements{IOType: meshStlVtk.IOType, WorkerName: "tetra-1"})
	assert.True(t, ok)
}

func TestFindIdleWorkerAsymmetricWorkerName(t *testing.T) {
	r := New()
	now := time.Now()
	named := remus.JobRequirements{IOType: meshStlVtk.IOType, WorkerName: "tetra-1"}
	r.RegisterWorker("named", []remus.JobRequirements{named}, now)

	// A don't-care query (empty WorkerName) must still match a worker
	// advertising a specific name.
	w, ok := r.FindIdleWorker(remus.JobRequirements{IOType: meshStlVtk.IOType})
	require.True(t, ok)
	assert.Equal(t, "named", w.ID)

	r2 := New()
	r2.RegisterWorker("unnamed", []remus.JobRequirements{meshStlVtk}, now)

	// A query naming a specific worker must not match a worker that
	// advertised no name at all.
	_, ok = r2.FindIdleWorker(remus.JobRequirements{IOType: meshStlVtk.IOType, WorkerName: "tetra-1"})
	assert.False(t, ok)
}

func TestUnregisterWorkerReturnsAssignedJob(t *testing.T) {
	r := New()
	now := time.Now()
	r.RegisterWorker("w1", []remus.JobRequirements{meshStlVtk}, now)

	jobID := remus.NewJobID()
	r.AssignWorker("w1", jobID)

	returned, hadJob := r.UnregisterWorker("w1")
	assert.True(t, hadJob)
	assert.Equal(t, jobID, returned)

	_, ok := r.Worker("w1")
	assert.False(t, ok)
}

func TestReapDeadEvictsStaleWorkers(t *testing.T) {
	r := New()
	now := time.Now()
	r.RegisterWorker("stale", []remus.JobRequirements{meshStlVtk}, now.Add(-time.Hour))
	r.RegisterWorker("fresh", []remus.JobRequirements{meshStlVtk}, now)

	failedJobs, departedClients := r.ReapDead(now, 5*time.Second)
	assert.Empty(t, failedJobs, "stale worker had no assigned job")
	assert.Empty(t, departedClients)
	assert.Equal(t, 1, r.WorkerCount())
	_, ok := r.Worker("stale")
	assert.False(t, ok)
}

func TestReapDeadFailsAssignedJobOfEvictedWorker(t *testing.T) {
	r := New()
	now := time.Now()
	r.RegisterWorker("stale", []remus.JobRequirements{meshStlVtk}, now.Add(-time.Hour))
	jobID := remus.NewJobID()
	r.AssignWorker("stale", jobID)

	failedJobs, _ := r.ReapDead(now, 5*time.Second)
	assert.Equal(t, []remus.JobID{jobID}, failedJobs)
}

func TestReapDeadEvictsStaleClients(t *testing.T) {
	r := New()
	now := time.Now()
	r.TouchClient("gone", now.Add(-time.Hour), remus.JobID{})
	r.TouchClient("here", now, remus.JobID{})

	_, departedClients := r.ReapDead(now, 5*time.Second)
	assert.Equal(t, []string{"gone"}, departedClients)
}

func TestAssignMarkExecuteRelease(t *testing.T) {
	r := New()
	now := time.Now()
	r.RegisterWorker("w1", []remus.JobRequirements{meshStlVtk}, now)

	jobID := remus.NewJobID()
	r.AssignWorker("w1", jobID)
	w, _ := r.Worker("w1")
	assert.Equal(t, WorkerAssigned, w.State)
	assert.True(t, w.HasAssignedJob)

	r.MarkExecuting("w1")
	w, _ = r.Worker("w1")
	assert.Equal(t, WorkerExecuting, w.State)

	r.ReleaseWorker("w1")
	w, _ = r.Worker("w1")
	assert.Equal(t, WorkerIdle, w.State)
	assert.False(t, w.HasAssignedJob)
}
