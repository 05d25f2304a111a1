package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpointTCP(t *testing.T) {
	ep, err := ParseEndpoint("tcp://127.0.0.1:50505")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Scheme: "tcp", Host: "127.0.0.1", Port: 50505}, ep)
	assert.Equal(t, "tcp://127.0.0.1:50505", ep.String())
}

func TestParseEndpointIPC(t *testing.T) {
	ep, err := ParseEndpoint("ipc:///tmp/remus.sock")
	require.NoError(t, err)
	assert.Equal(t, "ipc", ep.Scheme)
	assert.Equal(t, "/tmp/remus.sock", ep.Host)
}

func TestParseEndpointRejectsMalformed(t *testing.T) {
	cases := []string{"not-an-endpoint", "tcp://missing-port", "tcp://host:notanumber"}
	for _, raw := range cases {
		_, err := ParseEndpoint(raw)
		assert.Error(t, err, raw)
	}
}

func TestContextSealing(t *testing.T) {
	ctx := NewContext(0)
	assert.False(t, ctx.Sealed())
	ctx.RegisterInproc("status")
	assert.True(t, ctx.HasInproc("status"))
	assert.False(t, ctx.HasInproc("other"))

	ctx.Seal()
	assert.True(t, ctx.Sealed())
	// Registration still succeeds after sealing.
	ctx.RegisterInproc("late-joiner")
	assert.True(t, ctx.HasInproc("late-joiner"))
}
