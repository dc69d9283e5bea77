package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderHappyPath(t *testing.T) {
	spec, err := NewBuilder().
		WithPlatform(Docker).
		WithName("nginx").
		WithImage("", "", "nginx", "latest").
		WithExposedPort("http", 80).
		WithPortMapping(80, 38080).
		WithEphemeral(true).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "nginx", spec.Name)
	assert.Equal(t, "nginx:latest", spec.Reference())
	assert.True(t, spec.Ephemeral)
}

func TestBuilderMissingName(t *testing.T) {
	_, err := NewBuilder().WithImage("", "", "nginx", "latest").Build()
	assert.Error(t, err)
}

func TestBuilderMissingImage(t *testing.T) {
	_, err := NewBuilder().WithName("nginx").Build()
	assert.Error(t, err)
}

func TestBuilderInvalidName(t *testing.T) {
	_, err := NewBuilder().WithName("Invalid_Name").WithImage("", "", "x", "1").Build()
	assert.Error(t, err)
}

func TestBuilderKubernetesDefaultsNamespace(t *testing.T) {
	spec, err := NewBuilder().
		WithPlatform(Kubernetes).
		WithName("busybox").
		WithImage("", "", "busybox", "1.36").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "default", spec.Namespace)
}

func TestBuilderVolumeInvariant(t *testing.T) {
	_, err := NewBuilder().
		WithName("x").
		WithImage("", "", "x", "1").
		WithVolume(Volume{Name: "v", MountDir: "/data", MemoryBacked: true, HostDir: "/host"}).
		Build()
	assert.Error(t, err)
}

func TestBuilderContainerFileRequiresContentOrHostFile(t *testing.T) {
	_, err := NewBuilder().
		WithName("x").
		WithImage("", "", "x", "1").
		WithContainerFile(ContainerFile{Name: "f", MountPath: "/etc/f.conf"}).
		Build()
	assert.Error(t, err)
}

func TestBuilderEnvValidation(t *testing.T) {
	_, err := NewBuilder().
		WithName("x").
		WithImage("", "", "x", "1").
		WithEnv("1INVALID", "v").
		Build()
	assert.Error(t, err)
}

func TestFullCommand(t *testing.T) {
	spec, err := NewBuilder().
		WithName("x").
		WithImage("", "", "x", "1").
		WithCommand("sh", "-c", "echo hi").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "echo hi"}, spec.FullCommand())
}
