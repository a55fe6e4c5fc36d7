package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/radio-control/rtsbridge/internal/adapter"
)

func TestHandleRecord(t *testing.T) {
	h := newHandle(ups(1, 2))
	require.NotEmpty(t, h.ID())
	assert.False(t, h.Finished())
	assert.Equal(t, 2, h.Len())

	assert.False(t, h.record(0, Outcome{Request: h.requests[0], Status: StatusSuccess}))
	// Second terminal record for the same index is ignored.
	assert.False(t, h.record(0, Outcome{Request: h.requests[0], Status: StatusFailed}))
	assert.False(t, h.record(1, Outcome{Request: h.requests[1], Status: StatusPending}))
	assert.True(t, h.record(1, Outcome{Request: h.requests[1], Status: StatusCancelled, Err: ErrCancelled}))

	assert.True(t, h.Finished())
	assert.Equal(t, StatusSuccess, h.Outcomes()[0].Status)
	assert.Equal(t, map[Status]int{StatusSuccess: 1, StatusCancelled: 1}, h.Counts())
}

func TestHandleErrAggregates(t *testing.T) {
	h := newHandle(ups(1, 2, 3))
	boom := errors.New("boom")
	h.record(0, Outcome{Request: h.requests[0], Status: StatusFailed, Err: boom})
	h.record(1, Outcome{Request: h.requests[1], Status: StatusSuccess})
	h.record(2, Outcome{Request: h.requests[2], Status: StatusCancelled, Err: ErrCancelled})

	err := h.Err()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Contains(t, err.Error(), "request 0 (up 1)")
}

func TestHandleWaitContext(t *testing.T) {
	h := newHandle(ups(1))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	outcomes, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusPending, outcomes[0].Status)
	assert.NoError(t, h.Err())
}

func TestHandleCopiesRequests(t *testing.T) {
	reqs := ups(1)
	h := newHandle(reqs)
	reqs[0].Action = adapter.ActionDown

	assert.Equal(t, adapter.ActionUp, h.Requests()[0].Action)
	got := h.Requests()
	got[0].Channel = "9"
	assert.Equal(t, "1", h.Requests()[0].Channel)
}

func TestStatusText(t *testing.T) {
	text, err := StatusCancelled.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "cancelled", string(text))
	assert.Equal(t, "Status(9)", Status(9).String())
	assert.Equal(t, "up 3", Request{Channel: "3", Action: adapter.ActionUp}.String())
}
