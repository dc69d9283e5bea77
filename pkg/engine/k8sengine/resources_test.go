package k8sengine

import (
	"context"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
)

func TestBuildContainerEnvAndPorts(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		Image:        "redis",
		Tag:          "7",
		Env:          map[string]string{"FOO": "bar"},
		ExposedPorts: map[string]int{"redis": 6379},
	}
	c := buildContainer(spec, "")
	assert.Equal(t, "redis:7", c.Image)
	require.Len(t, c.Env, 1)
	assert.Equal(t, "FOO", c.Env[0].Name)
	require.Len(t, c.Ports, 1)
	assert.Equal(t, int32(6379), c.Ports[0].ContainerPort)
}

func TestBuildContainerSecretKeyRef(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		SecretKeyRefs: map[string]easycontainer.SecretKeyRef{
			"DB_PASSWORD": {Name: "db-secret", Key: "password"},
		},
	}
	c := buildContainer(spec, "")
	require.Len(t, c.Env, 1)
	require.NotNil(t, c.Env[0].ValueFrom.SecretKeyRef)
	assert.Equal(t, "db-secret", c.Env[0].ValueFrom.SecretKeyRef.Name)
}

func TestBuildVolumesMemoryBackedUsesEmptyDir(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		Volumes: []easycontainer.Volume{{Name: "cache", MountDir: "/cache", MemoryBacked: true, Memory: 1 << 20}},
	}
	vols := buildVolumes(spec, "")
	require.Len(t, vols, 1)
	require.NotNil(t, vols[0].EmptyDir)
	assert.Equal(t, int64(1<<20), vols[0].EmptyDir.SizeLimit.Value())
}

func TestBuildVolumesNamedUsesPVC(t *testing.T) {
	spec := easycontainer.ContainerSpec{
		Volumes: []easycontainer.Volume{{Name: "data", MountDir: "/data"}},
	}
	vols := buildVolumes(spec, "")
	require.Len(t, vols, 1)
	require.NotNil(t, vols[0].PersistentVolumeClaim)
	assert.Equal(t, "data", vols[0].PersistentVolumeClaim.ClaimName)
}

func TestContainerFilesConfigMapRequiresContentOrHostFile(t *testing.T) {
	r, _ := newTestRuntime()
	_, err := r.containerFilesConfigMap(context.Background(), "default", "cfg", nil, []easycontainer.ContainerFile{{Name: "f", MountPath: "/etc/f"}})
	assert.Error(t, err)
}

func TestContainerFilesConfigMapCreatesOneKeyPerFile(t *testing.T) {
	r, clientset := newTestRuntime()
	files := []easycontainer.ContainerFile{{Name: "app.conf", MountPath: "/etc/app.conf", Content: "key=value"}}
	_, err := r.containerFilesConfigMap(context.Background(), "default", "app-files", nil, files)
	require.NoError(t, err)

	cm, err := clientset.CoreV1().ConfigMaps("default").Get(context.Background(), "app-files", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "key=value", cm.Data["app.conf"])
}

func TestEnsureNamespaceIsIdempotent(t *testing.T) {
	r, _ := newTestRuntime()
	require.NoError(t, r.ensureNamespace(context.Background(), "custom"))
	require.NoError(t, r.ensureNamespace(context.Background(), "custom"))
}
