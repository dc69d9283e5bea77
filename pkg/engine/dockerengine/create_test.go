package dockerengine

import (
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
)

func TestMaterializeCommandWrapsInShellByDefault(t *testing.T) {
	spec := easycontainer.ContainerSpec{Command: "sh", Args: []string{"-c", "echo hi"}}
	entrypoint, cmd := materializeCommand(spec)
	assert.Equal(t, []string{"/bin/sh", "-c"}, entrypoint)
	assert.Equal(t, []string{"sh -c echo hi"}, cmd)
}

func TestMaterializeCommandNativeEntrypointOptsOut(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		Command:    "sh",
		Args:       []string{"-c", "echo hi"},
		Properties: map[string]any{"enableNativeDockerEntrypointStrategy": true},
	}
	entrypoint, cmd := materializeCommand(spec)
	assert.Equal(t, []string{"sh"}, entrypoint)
	assert.Equal(t, []string{"-c", "echo hi"}, cmd)
}

func TestMaterializeCommandEmpty(t *testing.T) {
	entrypoint, cmd := materializeCommand(easycontainer.ContainerSpec{})
	assert.Nil(t, entrypoint)
	assert.Nil(t, cmd)
}

func TestMaterializeCommandArgsOnlyKeepsImageEntrypoint(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		Args:       []string{"--config", "/etc/app.yaml"},
		Properties: map[string]any{"enableNativeDockerEntrypointStrategy": true},
	}
	entrypoint, cmd := materializeCommand(spec)
	assert.Nil(t, entrypoint)
	assert.Equal(t, []string{"--config", "/etc/app.yaml"}, cmd)
}

func TestBuildPortBindings(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		ExposedPorts: map[string]int{"http": 80},
		PortMappings: map[int]int{80: 38080},
	}
	exposed, bindings := buildPortBindings(spec)
	assert.Contains(t, exposed, nat.Port("80/tcp"))
	require.Contains(t, bindings, nat.Port("80/tcp"))
	assert.Equal(t, "38080", bindings["80/tcp"][0].HostPort)
}

func TestBuildMountsMemoryVolume(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		Volumes: []easycontainer.Volume{{Name: "tmp", MountDir: "/cache", MemoryBacked: true, Memory: 1 << 20}},
	}
	mounts, err := buildMounts(spec)
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	assert.Equal(t, "/cache", mounts[0].Target)
	require.NotNil(t, mounts[0].TmpfsOptions)
	assert.Equal(t, int64(1<<20), mounts[0].TmpfsOptions.SizeBytes)
}

func TestBuildMountsHostDirBind(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		Volumes: []easycontainer.Volume{{Name: "src", MountDir: "/data", HostDir: "/home/user/data"}},
	}
	mounts, err := buildMounts(spec)
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	assert.Equal(t, "/home/user/data", mounts[0].Source)
}

func TestBuildMountsContainerFileRequiresHostFile(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		ContainerFiles: []easycontainer.ContainerFile{{Name: "cfg", MountPath: "/etc/app.conf", Content: "x"}},
	}
	_, err := buildMounts(spec)
	assert.Error(t, err)
}

func TestBuildMountsRejectsRelativeMountDir(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		Volumes: []easycontainer.Volume{{Name: "v", MountDir: "relative"}},
	}
	_, err := buildMounts(spec)
	assert.Error(t, err)
}
