package k8sengine

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
)

func TestStartJobCreatesRunToCompletionJob(t *testing.T) {
	r, clientset := newTestRuntime()
	spec := easycontainer.ContainerSpec{
		Platform:      easycontainer.Kubernetes,
		ExecutionMode: easycontainer.Task,
		Name:          "migrate",
		Namespace:     "default",
		Image:         "migrate/migrate",
		Tag:           "v4",
	}
	h := easycontainer.NewHandle(spec)

	require.NoError(t, r.startJob(context.Background(), h))

	job, err := clientset.BatchV1().Jobs("default").Get(context.Background(), "migrate", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), *job.Spec.BackoffLimit)
	assert.Equal(t, int32(1), *job.Spec.Completions)
	assert.Equal(t, corev1.RestartPolicyNever, job.Spec.Template.Spec.RestartPolicy)
}

func TestStopJobDelegatesToKill(t *testing.T) {
	r, clientset := newTestRuntime()
	spec := easycontainer.ContainerSpec{Name: "once", Namespace: "default"}
	h := easycontainer.NewHandle(spec)
	h.Namespace = "default"
	require.NoError(t, r.startJob(context.Background(), h))

	require.NoError(t, r.stopJob(context.Background(), h))

	_, err := clientset.BatchV1().Jobs("default").Get(context.Background(), "once", metav1.GetOptions{})
	assert.Error(t, err) // deleted by killJob
}

func TestTerminalStateForSucceededContainer(t *testing.T) {
	pod := &corev1.Pod{
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "main", State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{ExitCode: 0}}},
			},
		},
	}
	state, code, ok := terminalStateFor(pod)
	require.True(t, ok)
	assert.Equal(t, easycontainer.Stopped, state)
	assert.Equal(t, 0, code)
}

func TestTerminalStateForFailedContainer(t *testing.T) {
	pod := &corev1.Pod{
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "main", State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{ExitCode: 1}}},
			},
		},
	}
	state, code, ok := terminalStateFor(pod)
	require.True(t, ok)
	assert.Equal(t, easycontainer.Failed, state)
	assert.Equal(t, 1, code)
}

func TestTerminalStateForRunningContainer(t *testing.T) {
	pod := &corev1.Pod{
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "main", State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}},
			},
		},
	}
	_, _, ok := terminalStateFor(pod)
	assert.False(t, ok)
}
