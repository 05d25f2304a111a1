package wire

import (
	"testing"

	"github.com/geoffjay/remus/core/remus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshIOTypeRoundTrip(t *testing.T) {
	io := remus.MeshIOType{InputKind: "stl", OutputKind: "vtk"}
	decoded, err := DecodeMeshIOType(EncodeMeshIOType(io))
	require.NoError(t, err)
	assert.Equal(t, io, decoded)
}

func TestJobRequirementsRoundTrip(t *testing.T) {
	req := remus.JobRequirements{
		IOType:       remus.MeshIOType{InputKind: "stl", OutputKind: "vtk"},
		WorkerName:   "tetra-1",
		Requirements: []byte("fine mesh"),
	}
	decoded, err := DecodeJobRequirements(EncodeJobRequirements(req))
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestJobSubmissionRoundTrip(t *testing.T) {
	req := remus.JobRequirements{IOType: remus.MeshIOType{InputKind: "stl", OutputKind: "vtk"}}
	sub := remus.NewJobSubmission(req)
	sub.Set("canary", remus.JobContent{Payload: []byte("canary"), Format: "text", Encoding: remus.EncodingText})
	sub.Set("ascii", remus.JobContent{Payload: make([]byte, 2*1024*1024), Format: "text", Encoding: remus.EncodingText})
	sub.Set("binary", remus.JobContent{Payload: []byte{0x00, 0xFF, 0x10}, Format: "raw", Encoding: remus.EncodingBinary})

	decoded, err := DecodeJobSubmission(EncodeJobSubmission(sub))
	require.NoError(t, err)

	assert.Equal(t, sub.Requirements, decoded.Requirements)
	assert.Equal(t, sub.Keys(), decoded.Keys())
	for _, key := range sub.Keys() {
		want, _ := sub.Get(key)
		got, ok := decoded.Get(key)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestJobIDRoundTrip(t *testing.T) {
	id := remus.NewJobID()
	decoded, err := DecodeJobID(EncodeJobID(id))
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestJobStatusRoundTrip(t *testing.T) {
	p := JobStatusPayload{Status: remus.InProgress, Percent: 42, Message: "grinding"}
	decoded, err := DecodeJobStatus(EncodeJobStatus(p))
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestResultRoundTrip(t *testing.T) {
	data := []byte("Here be results")
	decoded, err := DecodeResult(EncodeResult(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestRequirementsSetRoundTrip(t *testing.T) {
	reqs := []remus.JobRequirements{
		{IOType: remus.MeshIOType{InputKind: "stl", OutputKind: "vtk"}},
		{IOType: remus.MeshIOType{InputKind: "obj", OutputKind: "vtk"}, WorkerName: "tetra-1"},
	}
	decoded, err := DecodeRequirementsSet(EncodeRequirementsSet(reqs))
	require.NoError(t, err)
	assert.Equal(t, reqs, decoded)
}

func TestMessageEncodeDecode(t *testing.T) {
	frames := Encode(TagSubmitJob, []byte("payload-one"), []byte("payload-two"))
	msg, err := Decode(frames)
	require.NoError(t, err)
	assert.Equal(t, byte(TagSubmitJob), msg.Tag)
	assert.Equal(t, [][]byte{[]byte("payload-one"), []byte("payload-two")}, msg.Payload)
}

func TestDecodeIsTotalOnMalformedInput(t *testing.T) {
	cases := map[string][][]byte{
		"empty frame sequence":   {},
		"header too short":       {{ProtocolVersion}},
		"wrong protocol version": {{99, TagSubmitJob}},
		"unknown service tag":    {{ProtocolVersion, 0xEE}},
	}
	for name, frames := range cases {
		t.Run(name, func(t *testing.T) {
			msg, err := Decode(frames)
			assert.Nil(t, msg)
			assert.Error(t, err)
		})
	}
}

func TestDecodeJobRequirementsShortReadIsAnError(t *testing.T) {
	_, err := DecodeJobRequirements([]byte{0x01})
	assert.Error(t, err)
}
