package dockerengine

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
)

// Execute implements easycontainer.Runtime via ContainerExecCreate/Attach/
// Inspect, the standard create/start/inspect shape for Docker exec.
// Stderr is always captured separately from Output (Docker exec never
// merges them), and a timeout yields a nil ExitCode rather than an error.
func (r *runtime) Execute(ctx context.Context, h *easycontainer.Handle, req easycontainer.ExecRequest) (easycontainer.ExecResult, error) {
	if h.Current() != easycontainer.Running {
		return easycontainer.ExecResult{}, errs.NewStateError("Execute", string(h.Current()), string(easycontainer.Running))
	}

	cmd := append([]string{req.Command}, req.Args...)
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  req.Input != nil,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          req.UseTTY,
		WorkingDir:   req.WorkingDir,
	}

	created, err := r.cli.ContainerExecCreate(ctx, h.ContainerID, execCfg)
	if err != nil {
		return easycontainer.ExecResult{}, errs.FromDocker("ContainerExecCreate", err)
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := r.cli.ContainerExecAttach(execCtx, created.ID, container.ExecAttachOptions{Tty: req.UseTTY})
	if err != nil {
		return easycontainer.ExecResult{}, errs.FromDocker("ContainerExecAttach", err)
	}
	defer resp.Close()

	if req.Input != nil {
		go func() {
			io.Copy(resp.Conn, req.Input)
			resp.CloseWrite()
		}()
	}

	var stderrBuf bytes.Buffer
	output := req.Output
	if output == nil {
		output = io.Discard
	}

	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(output, &stderrBuf, resp.Reader)
		copyDone <- copyErr
	}()

	select {
	case <-execCtx.Done():
		if ctx.Err() == nil {
			// Our own timeout fired, not the caller's context.
			return easycontainer.ExecResult{Stderr: stderrBuf.String()}, nil
		}
		return easycontainer.ExecResult{}, execCtx.Err()
	case copyErr := <-copyDone:
		if copyErr != nil {
			return easycontainer.ExecResult{}, errs.FromDocker("Execute", copyErr)
		}
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return easycontainer.ExecResult{}, errs.FromDocker("ContainerExecInspect", err)
	}

	// Give a just-finished process a moment to settle in case it raced the
	// timeout deadline above.
	if inspect.Running {
		time.Sleep(10 * time.Millisecond)
		inspect, err = r.cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return easycontainer.ExecResult{}, errs.FromDocker("ContainerExecInspect", err)
		}
	}

	exitCode := inspect.ExitCode
	return easycontainer.ExecResult{ExitCode: &exitCode, Stderr: stderrBuf.String()}, nil
}
