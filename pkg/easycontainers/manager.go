package easycontainers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/engine/dockerengine"
	"github.com/acntech/easycontainers/pkg/engine/k8sengine"
	"github.com/acntech/easycontainers/pkg/errs"
)

// Manager dispatches every operation on a Handle to the backend named by
// its ContainerSpec.Platform, and is the one place that owns the
// scheduled-kill timer for ephemeral handles with MaxLifeTime set. The
// Docker connection is made eagerly since most callers use it; the
// Kubernetes client is resolved lazily on first use, since not every
// caller has cluster access configured.
type Manager struct {
	cfg Config

	docker *dockerengine.Engine

	mu  sync.Mutex
	k8s *k8sengine.Engine

	// tasks is the unbounded task pool scheduled kills run on, so Close
	// can wait for any still in flight instead of abandoning them
	// mid-teardown.
	tasks   errgroup.Group
	killers map[*container.Handle]*time.Timer
}

// New connects to the Docker daemon named by cfg.DockerHost.
func New(cfg Config) (*Manager, error) {
	docker, err := dockerengine.New(cfg.Config)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		docker:  docker,
		killers: make(map[*container.Handle]*time.Timer),
	}, nil
}

func (m *Manager) factoryFor(platform container.Platform) (container.Factory, error) {
	switch platform {
	case container.Docker, "":
		return m.docker, nil
	case container.Kubernetes:
		return m.k8sEngine()
	default:
		return nil, errs.NewValidationError("platform", fmt.Sprintf("unknown platform %q", platform))
	}
}

func (m *Manager) k8sEngine() (*k8sengine.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.k8s != nil {
		return m.k8s, nil
	}
	eng, err := k8sengine.New(m.cfg.Config)
	if err != nil {
		return nil, err
	}
	m.k8s = eng
	return eng, nil
}

func (m *Manager) runtimeFor(h *container.Handle) (container.Runtime, error) {
	f, err := m.factoryFor(h.Spec.Platform)
	if err != nil {
		return nil, err
	}
	return f.Runtime(), nil
}

// NewHandle creates a Handle bound to spec.Platform's backend, in state
// UNINITIATED.
func (m *Manager) NewHandle(spec container.ContainerSpec) (*container.Handle, error) {
	f, err := m.factoryFor(spec.Platform)
	if err != nil {
		return nil, err
	}
	return f.NewHandle(spec), nil
}

// Start starts h. If its spec is Ephemeral with a positive MaxLifeTime, a
// background Kill+Delete is scheduled to fire once that duration elapses.
func (m *Manager) Start(ctx context.Context, h *container.Handle) error {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return err
	}
	if err := rt.Start(ctx, h); err != nil {
		return err
	}
	if h.Spec.Ephemeral && h.Spec.MaxLifeTime > 0 {
		m.scheduleKill(rt, h, h.Spec.MaxLifeTime)
	}
	return nil
}

// scheduleKill arms the shared kill timer for h: when it fires, the
// kill+delete runs on the unbounded task pool so a slow backend call never
// blocks the timer goroutine itself.
func (m *Manager) scheduleKill(rt container.Runtime, h *container.Handle, after time.Duration) {
	timer := time.AfterFunc(after, func() {
		m.tasks.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := rt.Kill(ctx, h); err != nil {
				klog.Warningf("easycontainers: scheduled kill for %s: %v", h.Spec.Name, err)
			}
			if err := rt.Delete(ctx, h, true); err != nil {
				klog.Warningf("easycontainers: scheduled delete for %s: %v", h.Spec.Name, err)
			}
			return nil
		})
	})

	m.mu.Lock()
	m.killers[h] = timer
	m.mu.Unlock()
}

func (m *Manager) cancelScheduledKill(h *container.Handle) {
	m.mu.Lock()
	timer, ok := m.killers[h]
	if ok {
		delete(m.killers, h)
	}
	m.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

func (m *Manager) Stop(ctx context.Context, h *container.Handle) error {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return err
	}
	return rt.Stop(ctx, h)
}

func (m *Manager) Kill(ctx context.Context, h *container.Handle) error {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return err
	}
	return rt.Kill(ctx, h)
}

// Delete cancels any scheduled kill for h before delegating, so a
// just-deleted handle can't be double-torn-down by a timer firing late.
func (m *Manager) Delete(ctx context.Context, h *container.Handle, force bool) error {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return err
	}
	m.cancelScheduledKill(h)
	return rt.Delete(ctx, h, force)
}

func (m *Manager) WaitForCompletion(ctx context.Context, h *container.Handle, timeout time.Duration) (int, error) {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return 0, err
	}
	return rt.WaitForCompletion(ctx, h, timeout)
}

func (m *Manager) WaitForState(h *container.Handle, state container.State, timeout time.Duration) bool {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return false
	}
	return rt.WaitForState(h, state, timeout)
}

func (m *Manager) Execute(ctx context.Context, h *container.Handle, req container.ExecRequest) (container.ExecResult, error) {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return container.ExecResult{}, err
	}
	return rt.Execute(ctx, h, req)
}

func (m *Manager) PutFile(ctx context.Context, h *container.Handle, localPath, remoteDir, remoteName string) (int64, error) {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return 0, err
	}
	return rt.PutFile(ctx, h, localPath, remoteDir, remoteName)
}

func (m *Manager) GetFile(ctx context.Context, h *container.Handle, remoteDir, remoteName, localPath string) (string, error) {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return "", err
	}
	return rt.GetFile(ctx, h, remoteDir, remoteName, localPath)
}

func (m *Manager) PutDirectory(ctx context.Context, h *container.Handle, localPath, remoteDir string) (int64, error) {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return 0, err
	}
	return rt.PutDirectory(ctx, h, localPath, remoteDir)
}

func (m *Manager) GetDirectory(ctx context.Context, h *container.Handle, remoteDir, localDir string) (container.DirectoryResult, error) {
	rt, err := m.runtimeFor(h)
	if err != nil {
		return container.DirectoryResult{}, err
	}
	return rt.GetDirectory(ctx, h, remoteDir, localDir)
}

// Close waits for any in-flight scheduled-kill tasks, then releases the
// Docker daemon connection.
func (m *Manager) Close() error {
	_ = m.tasks.Wait()
	return m.docker.Close()
}
