package k8sengine

import (
	"context"
	"sync"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
)

// runtime implements easycontainer.Runtime against a Kubernetes cluster,
// dispatching to the Deployment+Service path (service.go) for SERVICE mode
// and the Job path (job.go) for TASK mode, per ContainerSpec.ExecutionMode.
type runtime struct {
	clientset kubernetes.Interface
	restCfg   *rest.Config
	config    easycontainer.Config

	mu       sync.Mutex
	watchers map[string]context.CancelFunc // namespace/spec name -> cancel
}

func (r *runtime) trackWatcher(key string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchers == nil {
		r.watchers = make(map[string]context.CancelFunc)
	}
	r.watchers[key] = cancel
}

func (r *runtime) stopWatcher(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.watchers[key]; ok {
		cancel()
		delete(r.watchers, key)
	}
}

// Start implements easycontainer.Runtime.
func (r *runtime) Start(ctx context.Context, h *easycontainer.Handle) error {
	if err := validateSpecForKubernetes(h.Spec); err != nil {
		return err
	}
	if !h.Transition(easycontainer.Initializing) {
		return errs.NewStateError("Start", string(h.Current()), string(easycontainer.Uninitiated))
	}

	var err error
	switch h.Spec.ExecutionMode {
	case easycontainer.Task:
		err = r.startJob(ctx, h)
	default:
		err = r.startService(ctx, h)
	}
	if err != nil {
		h.Transition(easycontainer.Failed)
		return err
	}

	timeout := h.StartTimeout()
	if r.config.StartTimeout > 0 {
		timeout = r.config.StartTimeout
	}
	if !h.WaitForState(easycontainer.Running, timeout) {
		if h.Current() == easycontainer.Failed {
			return errs.NewBackendError("kubernetes", "Start", errStartFailed(h.Spec.Name))
		}
		return errs.NewTimeoutError("Start", timeout.String())
	}
	return nil
}

func errStartFailed(name string) error {
	return &startFailedError{name: name}
}

type startFailedError struct{ name string }

func (e *startFailedError) Error() string { return "pod for " + e.name + " failed before becoming ready" }

// Stop implements easycontainer.Runtime.
func (r *runtime) Stop(ctx context.Context, h *easycontainer.Handle) error {
	if h.Current().IsExecutionTerminal() || h.Current() == easycontainer.Uninitiated {
		return nil
	}
	h.Transition(easycontainer.Terminating)

	if h.Spec.ExecutionMode == easycontainer.Task {
		return r.stopJob(ctx, h)
	}
	return r.stopService(ctx, h)
}

// Kill implements easycontainer.Runtime: foreground delete, zero grace
// period, then an explicit pod delete.
func (r *runtime) Kill(ctx context.Context, h *easycontainer.Handle) error {
	if h.Spec.ExecutionMode == easycontainer.Task {
		return r.killJob(ctx, h)
	}
	return r.killService(ctx, h)
}

// Delete implements easycontainer.Runtime.
func (r *runtime) Delete(ctx context.Context, h *easycontainer.Handle, force bool) error {
	if !force && !h.Current().IsExecutionTerminal() {
		return errs.NewStateError("Delete", string(h.Current()), "STOPPED or FAILED")
	}
	r.stopWatcher(h.Namespace + "/" + h.Spec.Name)

	var err error
	if h.Spec.ExecutionMode == easycontainer.Task {
		err = r.deleteJob(ctx, h)
	} else {
		err = r.deleteService(ctx, h)
	}
	if err != nil {
		return err
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
