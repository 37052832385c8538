package scorm

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitter_drainsOnStop(t *testing.T) {
	store := newFakeStore()
	logger := new(recordingLogger)
	c := NewCommitter(store, logger, CommitterOptions{QueueSize: 4})
	c.Start()

	for i := 1; i <= 3; i++ {
		ok := c.Enqueue(CommitTask{LearnerID: "l1", UnitID: "A", Attempt: i, Snapshot: map[string]string{"k": "v"}, Reason: "commit"})
		require.True(t, ok)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	calls := store.commitCalls()
	require.Len(t, calls, 3)
	for i, call := range calls {
		assert.Equal(t, i+1, call.attempt, "tasks are committed in order")
	}

	assert.False(t, c.Enqueue(CommitTask{}), "a stopped committer refuses tasks")
	assert.NoError(t, c.Stop(ctx))
}

func TestCommitter_queueFull(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	c := NewCommitter(store, new(recordingLogger), CommitterOptions{QueueSize: 1})

	// not started: the single slot fills up
	assert.True(t, c.Enqueue(CommitTask{UnitID: "A"}))
	assert.False(t, c.Enqueue(CommitTask{UnitID: "B"}))

	close(store.block)
	require.NoError(t, c.Stop(context.Background()))
	assert.Len(t, store.commitCalls(), 1)
}

func TestCommitter_failureIsLogged(t *testing.T) {
	store := newFakeStore()
	store.commitErr = errors.New("connection refused")
	logger := new(recordingLogger)
	c := NewCommitter(store, logger, CommitterOptions{})
	c.Start()

	assert.True(t, c.Enqueue(CommitTask{LearnerID: "l1", UnitID: "A", Attempt: 1, Reason: "terminate"}))
	require.NoError(t, c.Stop(context.Background()))

	assert.Equal(t, 1, logger.count("error"))
}

func TestCommitter_StopTimeout(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	defer close(store.block)

	c := NewCommitter(store, new(recordingLogger), CommitterOptions{})
	c.Start()
	require.True(t, c.Enqueue(CommitTask{UnitID: "A"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Stop(ctx)
	assert.Equal(t, context.DeadlineExceeded, errors.Cause(err))
}

func TestCommitterMock(t *testing.T) {
	store := newFakeStore()
	c := NewCommitterMock(store, new(recordingLogger))

	assert.True(t, c.Enqueue(CommitTask{LearnerID: "l1", UnitID: "A", Attempt: 1, Snapshot: map[string]string{ElemLessonStatus: StatusPassed}}))
	assert.Len(t, c.Committed(), 1)

	st, err := store.LatestRuntimeState(context.Background(), "l1", "A")
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, st.LessonStatus)
}
