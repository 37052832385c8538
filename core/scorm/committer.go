package scorm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
)

type CommitterOptions struct {
	QueueSize int
	Timeout   time.Duration // per commit
}

// Committer drains commit tasks into the StateStore on a single worker goroutine.
// Enqueue never blocks: a full or stopped queue drops the task.
type Committer struct {
	store  StateStore
	logger core.Logger
	opts   CommitterOptions

	mu     sync.RWMutex
	closed bool
	tasks  chan CommitTask

	startOnce sync.Once
	done      chan struct{}
}

var _ CommitQueue = (*Committer)(nil)

func NewCommitter(store StateStore, logger core.Logger, opts CommitterOptions) *Committer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Committer{
		store:  store,
		logger: logger,
		opts:   opts,
		tasks:  make(chan CommitTask, opts.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the worker. Further calls are no-ops.
func (c *Committer) Start() {
	c.startOnce.Do(func() {
		go c.loop()
	})
}

func (c *Committer) Enqueue(task CommitTask) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for pending tasks to be committed, or for ctx to be done.
func (c *Committer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.tasks)
	}
	c.mu.Unlock()

	c.Start() // drain even if never started
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "draining commit queue")
	}
}

func (c *Committer) loop() {
	defer close(c.done)
	for task := range c.tasks {
		c.commit(task)
	}
}

func (c *Committer) commit(task CommitTask) {
	if task.settled != nil {
		defer task.settled()
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	err := c.store.CommitRuntimeState(ctx, task.LearnerID, task.UnitID, task.Attempt, task.Snapshot)
	if err != nil {
		c.logger.Error(
			fmt.Sprintf("%s commit of unit %s (attempt %d) failed", task.Reason, task.UnitID, task.Attempt),
			errors.Wrap(err, "committing runtime state"),
			Learner{ID: task.LearnerID},
		)
		return
	}
	c.logger.Debug(fmt.Sprintf("%s commit of unit %s (attempt %d) done", task.Reason, task.UnitID, task.Attempt))
}
