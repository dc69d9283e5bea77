package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	assert.NoError(t, Name("nginx-1"))
	assert.NoError(t, Name("a"))
	assert.Error(t, Name(""))
	assert.Error(t, Name("Nginx"))
	assert.Error(t, Name("-nginx"))
	assert.Error(t, Name("nginx-"))
}

func TestPort(t *testing.T) {
	assert.NoError(t, Port(1))
	assert.NoError(t, Port(65535))
	assert.Error(t, Port(0))
	assert.Error(t, Port(65536))
	assert.Error(t, Port(-1))
}

func TestMemory(t *testing.T) {
	b, err := Memory("512m")
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), b)

	b, err = Memory("1g")
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024*1024), b)

	b, err = Memory("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b)

	_, err = Memory("not-a-size")
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.NoError(t, EnvKey("FOO_BAR"))
	assert.NoError(t, EnvKey("_foo"))
	assert.Error(t, EnvKey("1FOO"))
	assert.Error(t, EnvKey("FOO-BAR"))
}

func TestPrintableASCII(t *testing.T) {
	assert.NoError(t, PrintableASCII("hello world"))
	assert.Error(t, PrintableASCII("hello\x00world"))
	assert.Error(t, PrintableASCII("hello\nworld"))
}

func TestNetworkMode(t *testing.T) {
	assert.NoError(t, NetworkMode("bridge"))
	assert.NoError(t, NetworkMode("host"))
	assert.NoError(t, NetworkMode("none"))
	assert.NoError(t, NetworkMode("container:abc123"))
	assert.NoError(t, NetworkMode("my-net"))
	assert.Error(t, NetworkMode("container:"))
}

func TestUnixPath(t *testing.T) {
	assert.NoError(t, UnixPath("/tmp/foo"))
	assert.Error(t, UnixPath("relative/path"))
	assert.Error(t, UnixPath(""))
}
