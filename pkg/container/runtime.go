package container

import (
	"context"
	"io"
	"time"
)

// ExecRequest describes one execute() call.
type ExecRequest struct {
	Command    string
	Args       []string
	UseTTY     bool
	WorkingDir string
	Input      io.Reader // nil if the remote process needs no stdin
	Output     io.Writer // stdout sink
	Timeout    time.Duration
}

// ExecResult is the outcome of execute(). ExitCode is nil on timeout;
// callers must treat a nil ExitCode as "timed out", not as success.
type ExecResult struct {
	ExitCode *int
	Stderr   string
}

// DirectoryResult is the outcome of getDirectory(): the local parent
// directory the tar was extracted into, and the relative file paths found.
type DirectoryResult struct {
	Parent string
	Files  []string
}

// Runtime is the platform-agnostic contract every backend satisfies. All
// methods are synchronous from the caller's perspective even though they
// may fan out to async watchers internally.
type Runtime interface {
	// Start transitions UNINITIATED->INITIALIZING->RUNNING, pulling the
	// image if missing and creating backend resources. Returns only after
	// the workload is observed running, or a BackendError/TimeoutError.
	Start(ctx context.Context, h *Handle) error

	// Stop requests graceful termination; a no-op if already stopped.
	Stop(ctx context.Context, h *Handle) error

	// Kill forcibly terminates the workload (SIGKILL / immediate delete).
	Kill(ctx context.Context, h *Handle) error

	// Delete removes backend resources. With force=false it requires
	// STOPPED or FAILED; force=true works from any state and is
	// idempotent.
	Delete(ctx context.Context, h *Handle, force bool) error

	// WaitForCompletion blocks until a terminal state is reached or
	// timeout elapses (0 = indefinite), returning the exit code.
	WaitForCompletion(ctx context.Context, h *Handle, timeout time.Duration) (int, error)

	// WaitForState blocks until h reaches `state` or timeout elapses.
	WaitForState(h *Handle, state State, timeout time.Duration) bool

	// Execute requires state RUNNING.
	Execute(ctx context.Context, h *Handle, req ExecRequest) (ExecResult, error)

	// PutFile/PutDirectory require RUNNING. The Kubernetes backend creates
	// the remote directory (`mkdir -p`) before extracting; the Docker
	// backend copies into remoteDir as it is and fails when it does not
	// exist. GetFile/GetDirectory tolerate a single file or directory
	// remotely.
	PutFile(ctx context.Context, h *Handle, localPath, remoteDir, remoteName string) (int64, error)
	GetFile(ctx context.Context, h *Handle, remoteDir, remoteName, localPath string) (string, error)
	PutDirectory(ctx context.Context, h *Handle, localPath, remoteDir string) (int64, error)
	GetDirectory(ctx context.Context, h *Handle, remoteDir, localDir string) (DirectoryResult, error)
}

// Factory creates a Handle in UNINITIATED for a validated spec. Each
// backend package exposes one.
type Factory interface {
	NewHandle(spec ContainerSpec) *Handle
	Runtime() Runtime
}
