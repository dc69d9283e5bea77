package k8sengine

import (
	"bytes"
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
	k8sexec "k8s.io/client-go/util/exec"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
)

// Execute implements easycontainer.Runtime via the SPDY exec subresource.
// Stdin, when the caller supplies one, is pumped through an io.Pipe (the resolved Open
// Question: client-go's remotecommand has no equivalent to a
// redirecting-vs-reading distinction, so every exec with input reads from
// a pipe fed by req.Input).
func (r *runtime) Execute(ctx context.Context, h *easycontainer.Handle, req easycontainer.ExecRequest) (easycontainer.ExecResult, error) {
	if h.Current() != easycontainer.Running {
		return easycontainer.ExecResult{}, errs.NewStateError("Execute", string(h.Current()), string(easycontainer.Running))
	}

	cmd := append([]string{req.Command}, req.Args...)

	restReq := r.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(h.PodName).
		Namespace(h.Namespace).
		SubResource("exec")

	restReq.VersionedParams(&corev1.PodExecOptions{
		Container: "main",
		Command:   cmd,
		Stdin:     req.Input != nil,
		Stdout:    true,
		Stderr:    true,
		TTY:       req.UseTTY,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(r.restCfg, "POST", restReq.URL())
	if err != nil {
		return easycontainer.ExecResult{}, errs.FromKubernetes("NewSPDYExecutor", err)
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var stdin io.Reader
	var pw *io.PipeWriter
	if req.Input != nil {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		stdin = pr
		go func() {
			io.Copy(pw, req.Input)
			pw.Close()
		}()
	}

	output := req.Output
	if output == nil {
		output = io.Discard
	}
	var stderrBuf bytes.Buffer

	streamErr := executor.StreamWithContext(execCtx, remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: output,
		Stderr: &stderrBuf,
		Tty:    req.UseTTY,
	})

	if streamErr != nil {
		if execCtx.Err() != nil && ctx.Err() == nil {
			// Our own timeout fired, not the caller's context: report a nil
			// ExitCode rather than an error in this case.
			return easycontainer.ExecResult{Stderr: stderrBuf.String()}, nil
		}
		if exitErr, ok := streamErr.(k8sexec.CodeExitError); ok {
			code := exitErr.Code
			return easycontainer.ExecResult{ExitCode: &code, Stderr: stderrBuf.String()}, nil
		}
		return easycontainer.ExecResult{}, errs.FromKubernetes("Execute", streamErr)
	}

	zero := 0
	return easycontainer.ExecResult{ExitCode: &zero, Stderr: stderrBuf.String()}, nil
}
