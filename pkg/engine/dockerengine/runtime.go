package dockerengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"k8s.io/klog/v2"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
)

// runtime implements easycontainer.Runtime against the Docker daemon API.
// It is stateless except for the daemon client and a registry of the
// per-handle watcher cancel funcs Start installs, so Stop/Kill/Delete can
// tear them down cleanly.
type runtime struct {
	cli    *dockerclient.Client
	config easycontainer.Config

	mu       sync.Mutex
	watchers map[string]context.CancelFunc // containerID -> cancel
}

func (r *runtime) trackWatcher(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchers == nil {
		r.watchers = make(map[string]context.CancelFunc)
	}
	r.watchers[id] = cancel
}

func (r *runtime) stopWatcher(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.watchers[id]; ok {
		cancel()
		delete(r.watchers, id)
	}
}

// Start implements easycontainer.Runtime.
func (r *runtime) Start(ctx context.Context, h *easycontainer.Handle) error {
	if !h.Transition(easycontainer.Initializing) {
		return errs.NewStateError("Start", string(h.Current()), string(easycontainer.Uninitiated))
	}

	if err := r.pullIfMissing(ctx, h); err != nil {
		h.Transition(easycontainer.Failed)
		return err
	}

	containerID, err := r.createContainer(ctx, h)
	if err != nil {
		h.Transition(easycontainer.Failed)
		return err
	}
	h.ContainerID = containerID

	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		h.Transition(easycontainer.Failed)
		return errs.FromDocker("ContainerStart", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	r.trackWatcher(containerID, cancel)
	go r.watch(watchCtx, h, containerID)

	timeout := h.StartTimeout()
	if r.config.StartTimeout > 0 {
		timeout = r.config.StartTimeout
	}
	if !h.WaitForState(easycontainer.Running, timeout) {
		if h.Current() == easycontainer.Failed {
			return errs.NewBackendError("docker", "Start", fmt.Errorf("container %s exited before becoming ready", h.Spec.Name))
		}
		return errs.NewTimeoutError("Start", timeout.String())
	}
	return nil
}

// Stop implements easycontainer.Runtime: graceful SIGTERM with a fixed
// 10-second grace period, a no-op when the container was never started or
// is already STOPPED, FAILED or DELETED.
func (r *runtime) Stop(ctx context.Context, h *easycontainer.Handle) error {
	if h.Current().IsExecutionTerminal() || h.Current() == easycontainer.Uninitiated {
		return nil
	}
	h.Transition(easycontainer.Terminating)

	timeoutSeconds := 10
	if err := r.cli.ContainerStop(ctx, h.ContainerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		return errs.FromDocker("ContainerStop", err)
	}
	h.WaitForState(easycontainer.Stopped, time.Duration(timeoutSeconds+5)*time.Second)
	return nil
}

// Kill implements easycontainer.Runtime: SIGKILL, no grace period.
func (r *runtime) Kill(ctx context.Context, h *easycontainer.Handle) error {
	if h.ContainerID == "" {
		return nil
	}
	if err := r.cli.ContainerKill(ctx, h.ContainerID, "SIGKILL"); err != nil {
		return errs.FromDocker("ContainerKill", err)
	}
	h.WaitForState(easycontainer.Stopped, 10*time.Second)
	return nil
}

// Delete implements easycontainer.Runtime.
func (r *runtime) Delete(ctx context.Context, h *easycontainer.Handle, force bool) error {
	if !force && !h.Current().IsExecutionTerminal() {
		return errs.NewStateError("Delete", string(h.Current()), "STOPPED or FAILED")
	}
	if h.ContainerID == "" {
		return nil
	}
	r.stopWatcher(h.ContainerID)

	if err := r.cli.ContainerRemove(ctx, h.ContainerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if !dockerclient.IsErrNotFound(err) {
			return errs.FromDocker("ContainerRemove", err)
		}
	}
	if err := r.removeTransientNetwork(ctx, h); err != nil {
		klog.Warningf("dockerengine: network cleanup for %s: %v", h.Spec.Name, err)
	}
	h.Transition(easycontainer.Deleted)
	return nil
}

// WaitForCompletion implements easycontainer.Runtime.
func (r *runtime) WaitForCompletion(ctx context.Context, h *easycontainer.Handle, timeout time.Duration) (int, error) {
	deadline := timeout
	if deadline <= 0 {
		deadline = 24 * time.Hour
	}

	done := make(chan struct{})
	go func() {
		for {
			if h.Current().IsExecutionTerminal() {
				close(done)
				return
			}
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}()

	select {
	case <-done:
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		code, _ := h.ExitCode()
		return code, nil
	case <-time.After(deadline):
		return 0, errs.NewTimeoutError("WaitForCompletion", deadline.String())
	}
}

// WaitForState implements easycontainer.Runtime.
func (r *runtime) WaitForState(h *easycontainer.Handle, state easycontainer.State, timeout time.Duration) bool {
	return h.WaitForState(state, timeout)
}
