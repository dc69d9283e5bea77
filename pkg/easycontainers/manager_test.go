package easycontainers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/engine/k8sengine"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestFactoryForDefaultsToDocker(t *testing.T) {
	m := newTestManager(t)
	f, err := m.factoryFor("")
	require.NoError(t, err)
	assert.Same(t, container.Factory(m.docker), f)
}

func TestFactoryForRejectsUnknownPlatform(t *testing.T) {
	m := newTestManager(t)
	_, err := m.factoryFor("OPENSHIFT")
	assert.Error(t, err)
}

func TestFactoryForRoutesKubernetesThroughFakeEngine(t *testing.T) {
	m := newTestManager(t)
	m.k8s = k8sengine.NewFromClientset(fake.NewSimpleClientset(), nil, m.cfg.Config)

	f, err := m.factoryFor(container.Kubernetes)
	require.NoError(t, err)
	assert.Same(t, container.Factory(m.k8s), f)
}

func TestNewHandleAssignsRuntimeNamespaceDefault(t *testing.T) {
	m := newTestManager(t)
	m.k8s = k8sengine.NewFromClientset(fake.NewSimpleClientset(), nil, m.cfg.Config)

	h, err := m.NewHandle(container.ContainerSpec{Platform: container.Kubernetes, Name: "app"})
	require.NoError(t, err)
	assert.Equal(t, "default", h.Namespace)
}

func TestScheduleKillArmsAndCancelRemovesTimer(t *testing.T) {
	m := newTestManager(t)
	h := container.NewHandle(container.ContainerSpec{Name: "once", Ephemeral: true})

	m.scheduleKill(m.docker.Runtime(), h, time.Hour)
	m.mu.Lock()
	_, armed := m.killers[h]
	m.mu.Unlock()
	require.True(t, armed)

	m.cancelScheduledKill(h)
	m.mu.Lock()
	_, stillArmed := m.killers[h]
	m.mu.Unlock()
	assert.False(t, stillArmed)
}
