package k8sengine

import (
	"bufio"
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/klog/v2"

	"golang.org/x/sync/errgroup"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
)

// watchPod runs for the lifetime of one Deployment- or Job-owned pod: it
// follows pod phase transitions into the handle's state machine and
// streams the main container's logs to h.EmitLine from a single goroutine,
// preserving in-order delivery. It returns once the pod
// reaches a terminal phase or ctx is cancelled.
func (r *runtime) watchPod(ctx context.Context, h *easycontainer.Handle, namespace, podName string) {
	w, err := r.clientset.CoreV1().Pods(namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", podName).String(),
	})
	if err != nil {
		klog.Warningf("k8sengine: watch pod %s/%s: %v", namespace, podName, err)
		h.Transition(easycontainer.Unknown)
		return
	}
	defer w.Stop()

	var logs errgroup.Group
	defer func() { _ = logs.Wait() }()

	logsStarted := false

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.ResultChan():
			if !ok {
				return
			}
			pod, isPod := event.Object.(*corev1.Pod)
			if !isPod {
				continue
			}
			if event.Type == watch.Deleted {
				h.Transition(easycontainer.Deleted)
				return
			}

			h.SetIPAddress(pod.Status.PodIP)
			h.SetHostName(pod.Spec.Hostname)

			if !logsStarted && pod.Status.Phase == corev1.PodRunning {
				logsStarted = true
				logs.Go(func() error {
					r.streamLogs(ctx, h, namespace, podName)
					return nil
				})
			}

			if terminal, code, ok := terminalStateFor(pod); ok {
				h.Transition(terminal)
				h.SetExitCode(code)
				if terminal != easycontainer.Running {
					return
				}
				continue
			}

			switch pod.Status.Phase {
			case corev1.PodPending:
				// already INITIALIZING
			case corev1.PodRunning:
				h.Transition(easycontainer.Running)
			case corev1.PodSucceeded:
				h.Transition(easycontainer.Stopped)
				h.SetExitCode(0)
				return
			case corev1.PodFailed:
				h.Transition(easycontainer.Failed)
				return
			default:
				h.Transition(easycontainer.Unknown)
			}
		}
	}
}

// terminalStateFor inspects per-container status for a terminated main
// container, which carries the authoritative exit code and reason ahead of
// the pod-level phase catching up.
func terminalStateFor(pod *corev1.Pod) (easycontainer.State, int, bool) {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name != "main" || cs.State.Terminated == nil {
			continue
		}
		code := int(cs.State.Terminated.ExitCode)
		if code == 0 {
			return easycontainer.Stopped, code, true
		}
		return easycontainer.Failed, code, true
	}
	return "", 0, false
}

// streamLogs follows the main container's log stream and delivers it line
// by line until the pod stops producing output or ctx is cancelled.
func (r *runtime) streamLogs(ctx context.Context, h *easycontainer.Handle, namespace, podName string) {
	req := r.clientset.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{
		Container: "main",
		Follow:    true,
	})
	rc, err := req.Stream(ctx)
	if err != nil {
		klog.Warningf("k8sengine: stream logs %s/%s: %v", namespace, podName, err)
		return
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		h.EmitLine(scanner.Text())
	}
}

