package container

import (
	"sync"
	"time"
)

// Handle is the mutable, thread-safe reference callers use to track one
// container across its lifetime. It is a passive record: it holds no
// reference back to the runtime that created it, and every runtime method
// takes the handle as an explicit argument instead.
type Handle struct {
	*StateMachine

	Spec ContainerSpec

	mu sync.RWMutex

	// Backend resource identifiers. Docker sets ContainerID; Kubernetes
	// sets PodName/WorkloadName/Namespace.
	ContainerID  string
	PodName      string
	WorkloadName string
	Namespace    string

	ipAddress string
	hostName  string
}

// NewHandle creates a Handle in state UNINITIATED for the given spec.
func NewHandle(spec ContainerSpec) *Handle {
	return &Handle{
		StateMachine: NewStateMachine(),
		Spec:         spec,
		Namespace:    spec.Namespace,
	}
}

// SetIPAddress is a first-write-wins single-assignment cell.
func (h *Handle) SetIPAddress(ip string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ipAddress == "" {
		h.ipAddress = ip
	}
}

func (h *Handle) IPAddress() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ipAddress
}

// SetHostName is a first-write-wins single-assignment cell.
func (h *Handle) SetHostName(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hostName == "" {
		h.hostName = name
	}
}

func (h *Handle) HostName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hostName
}

// EmitLine delivers one log line to the configured output callback, if set.
// Log lines for a single container are delivered in arrival order; callers
// MUST call this from a single goroutine per handle to preserve that order.
func (h *Handle) EmitLine(line string) {
	if h.Spec.OutputLineFunc != nil {
		h.Spec.OutputLineFunc(line)
	}
}

// StartTimeout returns the max wait for RUNNING, currently a fixed 60s.
func (h *Handle) StartTimeout() time.Duration {
	return 60 * time.Second
}
