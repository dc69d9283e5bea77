package imagebuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
)

func newTestKanikoBuilder() *KanikoBuilder {
	return NewKanikoBuilder(fake.NewSimpleClientset(), nil, "builds", "")
}

func TestNewKanikoBuilderDefaultsPVCName(t *testing.T) {
	b := newTestKanikoBuilder()
	assert.Equal(t, "kaniko-data", b.pvcName)
}

func TestBuildJobSetsRunToCompletionFields(t *testing.T) {
	b := newTestKanikoBuilder()
	job := b.buildJob("kaniko-build-abc123", "build-abc123", "", Request{
		ContextDir: "/tmp/ctx",
		Image:      "registry.example.com/team/app:1.2.3",
	})

	require.Len(t, job.Spec.Template.Spec.Containers, 1)
	c := job.Spec.Template.Spec.Containers[0]
	assert.Equal(t, int32(0), *job.Spec.BackoffLimit)
	assert.Equal(t, int32(300), *job.Spec.TTLSecondsAfterFinished)
	assert.Contains(t, c.Args, "--context=dir:///workspace/build-abc123")
	assert.Contains(t, c.Args, "--dockerfile=Dockerfile")
	assert.Contains(t, c.Args, "--destination=registry.example.com/team/app:1.2.3")
	assert.Contains(t, c.Args, "--digest-file=/dev/termination-log")
	assert.Contains(t, c.Args, "--no-push")
}

func TestBuildJobUsesCustomDockerfilePath(t *testing.T) {
	b := newTestKanikoBuilder()
	job := b.buildJob("job1", "build1", "", Request{DockerfilePath: "docker/Dockerfile.prod", Push: true})
	c := job.Spec.Template.Spec.Containers[0]
	assert.Contains(t, c.Args, "--dockerfile=docker/Dockerfile.prod")
	assert.NotContains(t, c.Args, "--no-push")
}

func TestBuildJobAddsBuildArgs(t *testing.T) {
	b := newTestKanikoBuilder()
	job := b.buildJob("job1", "build1", "", Request{BuildArgs: map[string]string{"VERSION": "1.2.3"}})
	c := job.Spec.Template.Spec.Containers[0]
	assert.Contains(t, c.Args, "--build-arg=VERSION=1.2.3")
}

func TestBuildJobAddsInsecureRegistryFlagsAndConfigMountWhenProvided(t *testing.T) {
	b := newTestKanikoBuilder()
	job := b.buildJob("job1", "build1", "docker-config-abc", Request{InsecureRegistry: true})
	c := job.Spec.Template.Spec.Containers[0]
	assert.Contains(t, c.Args, "--insecure")
	assert.Contains(t, c.Args, "--skip-tls-verify")

	require.Len(t, c.VolumeMounts, 2)
	assert.Equal(t, "/kaniko/.docker", c.VolumeMounts[1].MountPath)
}

func TestBuildJobOmitsConfigMountWithoutConfigMapName(t *testing.T) {
	b := newTestKanikoBuilder()
	job := b.buildJob("job1", "build1", "", Request{})
	c := job.Spec.Template.Spec.Containers[0]
	require.Len(t, c.VolumeMounts, 1)
	assert.Equal(t, "workspace", c.VolumeMounts[0].Name)
}
