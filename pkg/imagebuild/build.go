// Package imagebuild builds a container image from a build context either
// via Kaniko (in-cluster, delegated to a Job) or via the local Docker
// daemon's native build API. Neither builder invents its own OCI builder;
// both delegate entirely.
package imagebuild

import (
	"context"
	"sync"
	"time"
)

// State is the build's own small state machine, independent of
// pkg/container.State: NOT_STARTED -> IN_PROGRESS -> {COMPLETED, FAILED},
// with UNKNOWN reserved for a watcher that lost contact with its backend.
type State string

const (
	NotStarted State = "NOT_STARTED"
	InProgress State = "IN_PROGRESS"
	Completed  State = "COMPLETED"
	Failed     State = "FAILED"
	Unknown    State = "UNKNOWN"
)

// Request describes one image build.
type Request struct {
	// ContextDir is the local build context directory (containing the
	// Dockerfile, named by DockerfilePath relative to it).
	ContextDir     string
	DockerfilePath string // default "Dockerfile"
	BuildArgs      map[string]string

	// Image is the fully-qualified destination reference, e.g.
	// "registry.example.com/team/app:1.2.3".
	Image string

	// Push uploads the built image to Image's registry after a
	// successful build. Both builders push only when Push is true; a
	// Kaniko build without Push runs with --no-push.
	Push bool

	// InsecureRegistry allows push/pull against a registry without a
	// valid TLS certificate chain.
	InsecureRegistry bool

	RegistryUsername string
	RegistryPassword string
}

// Result is the outcome of a successful build.
type Result struct {
	Image  string
	Digest string
}

// Builder is the contract both backends satisfy.
type Builder interface {
	Build(ctx context.Context, req Request) (*Handle, error)
}

// Handle tracks one in-flight or finished build.
type Handle struct {
	Request Request

	mu       sync.RWMutex
	state    State
	result   Result
	err      error
	finished chan struct{}
}

// NewHandle creates a Handle in NOT_STARTED.
func NewHandle(req Request) *Handle {
	return &Handle{Request: req, state: NotStarted, finished: make(chan struct{})}
}

func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) complete(result Result) {
	h.mu.Lock()
	h.state = Completed
	h.result = result
	h.mu.Unlock()
	close(h.finished)
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	h.state = Failed
	h.err = err
	h.mu.Unlock()
	close(h.finished)
}

// Wait blocks until the build reaches COMPLETED or FAILED, or timeout
// elapses.
func (h *Handle) Wait(ctx context.Context, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	select {
	case <-h.finished:
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.result, h.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(timeout):
		return Result{}, errBuildTimeout
	}
}

var errBuildTimeout = buildTimeoutError{}

type buildTimeoutError struct{}

func (buildTimeoutError) Error() string { return "image build timed out" }
