package container

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(Uninitiated, Initializing))
	assert.True(t, CanTransition(Initializing, Running))
	assert.True(t, CanTransition(Initializing, Failed))
	assert.True(t, CanTransition(Running, Terminating))
	assert.True(t, CanTransition(Running, Stopped))
	assert.True(t, CanTransition(Terminating, Stopped))
	assert.True(t, CanTransition(Stopped, Deleted))
	assert.True(t, CanTransition(Failed, Deleted))

	assert.False(t, CanTransition(Uninitiated, Running))
	assert.False(t, CanTransition(Deleted, Running))
	assert.False(t, CanTransition(Stopped, Running))
	assert.False(t, CanTransition(Running, Running))
}

func TestUnknownBounceFromNonTerminal(t *testing.T) {
	assert.True(t, CanTransition(Running, Unknown))
	assert.True(t, CanTransition(Initializing, Unknown))
	assert.False(t, CanTransition(Deleted, Unknown))
}

func TestStateMachineTransitionSequence(t *testing.T) {
	m := NewStateMachine()
	require.Equal(t, Uninitiated, m.Current())

	assert.True(t, m.Transition(Initializing))
	assert.True(t, m.Transition(Running))
	assert.True(t, m.Transition(Terminating))
	assert.True(t, m.Transition(Stopped))
	assert.True(t, m.Transition(Deleted))
	assert.Equal(t, Deleted, m.Current())

	// illegal transition leaves state unchanged
	assert.False(t, m.Transition(Running))
	assert.Equal(t, Deleted, m.Current())
}

func TestStateMachineExitCodeInvariant(t *testing.T) {
	m := NewStateMachine()
	m.SetExitCode(1) // ignored, not terminal yet
	_, ok := m.ExitCode()
	assert.False(t, ok)

	m.Transition(Initializing)
	m.Transition(Running)
	m.Transition(Stopped)
	m.SetExitCode(7)
	code, ok := m.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 7, code)
}

func TestStateMachineWaitForState(t *testing.T) {
	m := NewStateMachine()
	done := make(chan bool, 1)
	go func() {
		done <- m.WaitForState(Running, time.Second)
	}()

	m.Transition(Initializing)
	m.Transition(Running)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForState did not return")
	}
}

func TestStateMachineWaitForStateTimeout(t *testing.T) {
	m := NewStateMachine()
	ok := m.WaitForState(Running, 20*time.Millisecond)
	assert.False(t, ok)
}

func TestStateMachineDuration(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, time.Duration(0), m.Duration())

	m.Transition(Initializing)
	m.Transition(Running)
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, m.Duration(), time.Duration(0))

	m.Transition(Stopped)
	d1 := m.Duration()
	time.Sleep(10 * time.Millisecond)
	d2 := m.Duration()
	assert.Equal(t, d1, d2) // duration frozen after terminal
}
