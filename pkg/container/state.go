package container

import (
	"sync"
	"time"
)

// State is one node of the container lifecycle graph.
type State string

const (
	Uninitiated  State = "UNINITIATED"
	Initializing State = "INITIALIZING"
	Running      State = "RUNNING"
	Failed       State = "FAILED"
	Terminating  State = "TERMINATING"
	Unknown      State = "UNKNOWN"
	Stopped      State = "STOPPED"
	Deleted      State = "DELETED"
)

// IsTerminal reports whether no further transitions are legal from s,
// other than the UNKNOWN bounce that any non-terminal state permits. Only
// DELETED qualifies; use IsExecutionTerminal to ask whether the workload
// itself has finished running.
func (s State) IsTerminal() bool {
	return s == Deleted
}

// IsExecutionTerminal reports whether the workload has finished running:
// STOPPED, FAILED, or DELETED. Callers waiting on completion or guarding
// a non-forced Delete want this, not IsTerminal.
func (s State) IsExecutionTerminal() bool {
	return s == Stopped || s == Failed || s == Deleted
}

// legalEdges is the container lifecycle's transition graph. UNKNOWN is
// reachable from every non-terminal state and is intentionally omitted
// from each state's edge list below; it is checked separately in
// CanTransition.
var legalEdges = map[State]map[State]bool{
	Uninitiated:  {Initializing: true},
	Initializing: {Running: true, Failed: true},
	Running:      {Terminating: true, Failed: true, Stopped: true},
	Terminating:  {Stopped: true, Failed: true},
	Unknown:      {}, // UNKNOWN only ever resolves via a fresh watcher observation, not a fixed edge
	Failed:       {Deleted: true},
	Stopped:      {Deleted: true},
	Deleted:      {},
}

// CanTransition reports whether moving from `from` to `to` is legal: the
// declared edges, plus any non-terminal state may bounce to UNKNOWN
// transiently.
func CanTransition(from, to State) bool {
	if from == to {
		return false
	}
	if to == Unknown && !from.IsTerminal() {
		return true
	}
	if edges, ok := legalEdges[from]; ok {
		return edges[to]
	}
	return false
}

// StateMachine is the thread-safe lifecycle tracker embedded in every
// Handle. A transition includes a monotonic wakeup of all waiters blocked
// on WaitForState for the new state.
type StateMachine struct {
	mu      sync.Mutex
	current State
	waiters map[State][]chan struct{}

	startedAt  *time.Time
	finishedAt *time.Time
	exitCode   *int
}

// NewStateMachine returns a StateMachine starting in UNINITIATED.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: Uninitiated,
		waiters: make(map[State][]chan struct{}),
	}
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition attempts to move to `to`. An illegal transition is rejected
// (logged by the caller) and leaves the state unchanged.
func (m *StateMachine) Transition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransition(m.current, to) {
		return false
	}

	now := time.Now()
	if to == Running && m.startedAt == nil {
		m.startedAt = &now
	}
	if (to == Stopped || to == Failed) && m.finishedAt == nil {
		m.finishedAt = &now
	}

	m.current = to

	for _, ch := range m.waiters[to] {
		close(ch)
	}
	delete(m.waiters, to)
	return true
}

// SetExitCode records the backend-reported exit code. An exit code is
// only ever set once the state is STOPPED or FAILED.
func (m *StateMachine) SetExitCode(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != Stopped && m.current != Failed {
		return
	}
	if m.exitCode == nil {
		m.exitCode = &code
	}
}

// ExitCode returns the recorded exit code, if any.
func (m *StateMachine) ExitCode() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exitCode == nil {
		return 0, false
	}
	return *m.exitCode, true
}

// Duration returns finish-start if both are set, or now-start while the
// container is still non-terminal, or zero if it never started.
func (m *StateMachine) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startedAt == nil {
		return 0
	}
	if m.finishedAt != nil {
		return m.finishedAt.Sub(*m.startedAt)
	}
	return time.Since(*m.startedAt)
}

// waitChan returns a channel registered against `state` that is closed the
// next time the machine transitions into it, or an already-closed channel
// if the machine is already there.
func (m *StateMachine) waitChan(state State) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	if m.current == state {
		close(ch)
		return ch
	}
	m.waiters[state] = append(m.waiters[state], ch)
	return ch
}

// WaitForState blocks until the machine reaches `state` or `timeout`
// elapses (a zero timeout waits indefinitely). Returns false on timeout.
func (m *StateMachine) WaitForState(state State, timeout time.Duration) bool {
	ch := m.waitChan(state)
	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
