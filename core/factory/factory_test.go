package factory

import (
	"fmt"
	"testing"

	"github.com/geoffjay/remus/core/remus"

	"github.com/stretchr/testify/assert"
)

var meshStlVtk = remus.JobRequirements{IOType: remus.MeshIOType{InputKind: "stl", OutputKind: "vtk"}}

func TestNullFactoryNeverCreates(t *testing.T) {
	f := NewNullFactory(meshStlVtk.IOType)
	assert.True(t, f.HaveSupport(meshStlVtk))
	assert.False(t, f.CreateWorker(meshStlVtk))
	assert.Equal(t, 0, f.MaxWorkerCount())
}

func TestPoolFactoryRespectsConcurrencyCap(t *testing.T) {
	spawned := 0
	spawn := func(remus.JobRequirements) error {
		spawned++
		return nil
	}
	f := NewPoolFactory([]remus.JobRequirements{meshStlVtk}, spawn, 2)

	assert.True(t, f.CreateWorker(meshStlVtk))
	assert.True(t, f.CreateWorker(meshStlVtk))
	assert.False(t, f.CreateWorker(meshStlVtk), "factory should refuse past its max worker count")
	assert.Equal(t, 2, spawned)
	assert.Equal(t, 2, f.CurrentWorkerCount())
}

func TestPoolFactorySpawnFailureDoesNotCountAgainstCap(t *testing.T) {
	spawn := func(remus.JobRequirements) error { return fmt.Errorf("spawn failed") }
	f := NewPoolFactory([]remus.JobRequirements{meshStlVtk}, spawn, 1)

	assert.False(t, f.CreateWorker(meshStlVtk))
	assert.Equal(t, 0, f.CurrentWorkerCount())
}

func TestPoolFactoryUpdateWorkerCountNeverGoesNegative(t *testing.T) {
	f := NewPoolFactory([]remus.JobRequirements{meshStlVtk}, func(remus.JobRequirements) error { return nil }, 4)
	f.UpdateWorkerCount(-3)
	assert.Equal(t, 0, f.CurrentWorkerCount())
}
