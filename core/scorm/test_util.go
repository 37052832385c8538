package scorm

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-scorm/core"
)

// CommitterMock commits every task synchronously on Enqueue and records it.
type CommitterMock struct {
	*Committer

	mu    sync.Mutex
	Tasks []CommitTask
}

func NewCommitterMock(store StateStore, logger core.Logger) *CommitterMock {
	return &CommitterMock{
		Committer: NewCommitter(store, logger, CommitterOptions{}),
	}
}

func (c *CommitterMock) Enqueue(task CommitTask) bool {
	c.mu.Lock()
	c.Tasks = append(c.Tasks, task)
	c.mu.Unlock()
	// run synchronously
	c.commit(task)
	return true
}

func (c *CommitterMock) Stop(context.Context) error { return nil }

// Committed returns a copy of the recorded tasks.
func (c *CommitterMock) Committed() []CommitTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CommitTask(nil), c.Tasks...)
}
