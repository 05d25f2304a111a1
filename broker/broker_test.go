package broker

import (
	"testing"
	"time"

	"github.com/geoffjay/remus/core/config"
	"github.com/geoffjay/remus/core/factory"
	"github.com/geoffjay/remus/core/remus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(wf factory.WorkerFactory) *Broker {
	cfg := config.DefaultBrokerConfig()
	cfg.HeartbeatInterval = time.Millisecond
	cfg.RetentionWindow = time.Millisecond
	return New(cfg, wf)
}

var stlVtk = remus.JobRequirements{IOType: remus.MeshIOType{InputKind: "stl", OutputKind: "vtk"}}

func TestIOTypeSupportedByRegisteredWorker(t *testing.T) {
	b := newTestBroker(nil)
	assert.False(t, b.ioTypeSupported(stlVtk.IOType))

	b.registry.RegisterWorker("w1", []remus.JobRequirements{stlVtk}, time.Now())
	assert.True(t, b.ioTypeSupported(stlVtk.IOType))
}

func TestIOTypeSupportedByFactory(t *testing.T) {
	b := newTestBroker(factory.NewNullFactory(stlVtk.IOType))
	assert.True(t, b.ioTypeSupported(stlVtk.IOType))
}

func TestReqsSupportedMatchesAdvertisedWorker(t *testing.T) {
	b := newTestBroker(nil)
	b.registry.RegisterWorker("w1", []remus.JobRequirements{stlVtk}, time.Now())
	assert.True(t, b.reqsSupported(stlVtk))

	other := remus.JobRequirements{IOType: remus.MeshIOType{InputKind: "obj", OutputKind: "vtk"}}
	assert.False(t, b.reqsSupported(other))
}

func TestDispatchPassAssignsQueuedJobToIdleWorker(t *testing.T) {
	b := newTestBroker(nil)
	b.registry.RegisterWorker("w1", []remus.JobRequirements{stlVtk}, time.Now())

	job := &remus.Job{ID: remus.NewJobID(), Submitter: "c1", Requirements: stlVtk}
	b.store.Enqueue(job)

	b.dispatchPass()

	assert.Empty(t, b.store.QueuedIDs())
	w, ok := b.registry.Worker("w1")
	require.True(t, ok)
	assert.True(t, w.HasAssignedJob)
	assert.Equal(t, job.ID, w.AssignedJob)
}

func TestDispatchPassLeavesJobQueuedWithoutIdleWorkerOrCapacity(t *testing.T) {
	b := newTestBroker(factory.NewNullFactory())
	job := &remus.Job{ID: remus.NewJobID(), Submitter: "c1", Requirements: stlVtk}
	b.store.Enqueue(job)

	b.dispatchPass()

	assert.Equal(t, []remus.JobID{job.ID}, b.store.QueuedIDs())
}

func TestDispatchPassAsksFactoryWhenNoIdleWorkerMatches(t *testing.T) {
	spawned := 0
	spawn := func(remus.JobRequirements) error { spawned++; return nil }
	b := newTestBroker(factory.NewPoolFactory([]remus.JobRequirements{stlVtk}, spawn, 1))

	job := &remus.Job{ID: remus.NewJobID(), Submitter: "c1", Requirements: stlVtk}
	b.store.Enqueue(job)

	b.dispatchPass()

	assert.Equal(t, 1, spawned)
	assert.Equal(t, []remus.JobID{job.ID}, b.store.QueuedIDs(), "job stays queued until the spawned worker registers and idles")
}

func TestRunMaintenanceReapsDeadWorkersAndExpiredJobs(t *testing.T) {
	b := newTestBroker(nil)
	b.registry.RegisterWorker("stale", []remus.JobRequirements{stlVtk}, time.Now().Add(-time.Hour))

	job := &remus.Job{ID: remus.NewJobID(), Submitter: "c1", Requirements: stlVtk}
	b.store.Enqueue(job)
	require.NoError(t, b.store.Assign(job.ID, "w1"))
	require.NoError(t, b.store.UpdateProgress(job.ID, remus.Progress{Percent: 50}))
	require.NoError(t, b.store.SetResult(job.ID, &remus.Result{Data: []byte("done")}))
	got, _ := b.store.Get(job.ID)
	got.LastStatusChange = time.Now().Add(-time.Hour)

	b.runMaintenance()

	_, stillRegistered := b.registry.Worker("stale")
	assert.False(t, stillRegistered)
	_, stillStored := b.store.Get(job.ID)
	assert.False(t, stillStored)
}

func TestRunMaintenanceFailsJobAssignedToReapedWorker(t *testing.T) {
	b := newTestBroker(nil)
	b.registry.RegisterWorker("stale", []remus.JobRequirements{stlVtk}, time.Now().Add(-time.Hour))

	job := &remus.Job{ID: remus.NewJobID(), Submitter: "c1", Requirements: stlVtk}
	b.store.Enqueue(job)
	require.NoError(t, b.store.Assign(job.ID, "stale"))
	b.registry.AssignWorker("stale", job.ID)

	b.runMaintenance()

	got, ok := b.store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, remus.Failed, got.Status)
}

func TestRunMaintenanceReapsQueuedJobsOfDepartedClients(t *testing.T) {
	b := newTestBroker(nil)
	b.registry.TouchClient("gone", time.Now().Add(-time.Hour), remus.JobID{})

	job := &remus.Job{ID: remus.NewJobID(), Submitter: "gone", Requirements: stlVtk}
	b.store.Enqueue(job)

	b.runMaintenance()

	_, ok := b.store.Get(job.ID)
	assert.False(t, ok, "queued job of a departed submitter should be reaped")
}
