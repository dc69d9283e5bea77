package imagebuild

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWaitReturnsResultOnComplete(t *testing.T) {
	h := NewHandle(Request{Image: "app:1"})
	go func() {
		h.setState(InProgress)
		h.complete(Result{Image: "app:1", Digest: "sha256:abc"})
	}()

	result, err := h.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", result.Digest)
	assert.Equal(t, Completed, h.State())
}

func TestHandleWaitReturnsErrorOnFail(t *testing.T) {
	h := NewHandle(Request{Image: "app:1"})
	boom := assert.AnError
	go func() {
		h.fail(boom)
	}()

	_, err := h.Wait(context.Background(), time.Second)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, h.State())
}

func TestHandleWaitTimesOut(t *testing.T) {
	h := NewHandle(Request{Image: "app:1"})
	_, err := h.Wait(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, errBuildTimeout)
}

func TestHandleWaitRespectsCallerContext(t *testing.T) {
	h := NewHandle(Request{Image: "app:1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Wait(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHandleStartsNotStarted(t *testing.T) {
	h := NewHandle(Request{Image: "app:1"})
	assert.Equal(t, NotStarted, h.State())
}
