package dockerengine

import (
	"bufio"
	"context"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
)

// watch runs for the lifetime of one container: it streams logs line by
// line to h.EmitLine (single goroutine per handle, preserving in-order
// delivery) and drives the handle's state machine from
// RUNNING into its terminal state once the container exits. It is started
// once per Start call and cancelled by Delete.
func (r *runtime) watch(ctx context.Context, h *easycontainer.Handle, containerID string) {
	inspect, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		klog.Warningf("dockerengine: inspect %s for watch: %v", containerID, err)
	} else if inspect.NetworkSettings != nil {
		h.SetIPAddress(inspect.NetworkSettings.IPAddress)
		h.SetHostName(inspect.Config.Hostname)
	}

	logReader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		klog.Warningf("dockerengine: attach logs %s: %v", containerID, err)
	} else {
		logDone := make(chan struct{})
		go func() {
			defer close(logDone)
			defer logReader.Close()

			pr, pw := io.Pipe()
			var g errgroup.Group
			g.Go(func() error {
				defer pw.Close()
				_, err := stdcopy.StdCopy(pw, pw, logReader)
				return err
			})
			g.Go(func() error {
				scanner := bufio.NewScanner(pr)
				scanner.Buffer(make([]byte, 64*1024), 1024*1024)
				for scanner.Scan() {
					h.EmitLine(scanner.Text())
				}
				return scanner.Err()
			})
			if err := g.Wait(); err != nil && err != io.ErrClosedPipe {
				klog.V(4).Infof("dockerengine: log stream %s ended: %v", containerID, err)
			}
		}()
		defer func() { <-logDone }()
	}

	h.Transition(easycontainer.Running)

	waitCh, errCh := r.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case result := <-waitCh:
		if result.StatusCode == 0 {
			h.Transition(easycontainer.Stopped)
		} else {
			h.Transition(easycontainer.Failed)
		}
		h.SetExitCode(int(result.StatusCode))
	case err := <-errCh:
		if ctx.Err() != nil {
			return
		}
		klog.Warningf("dockerengine: wait %s: %v", containerID, err)
		h.Transition(easycontainer.Unknown)
	case <-ctx.Done():
		return
	}
}
