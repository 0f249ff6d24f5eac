package concurrency

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/aria/pkg/log"
)

// TaskPriority orders tasks within a WorkerPool's queue. Lower values run
// first.
type TaskPriority int

const (
	PriorityCritical TaskPriority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

var nextTaskID atomic.Uint64

// TaskID uniquely identifies a submitted Task.
type TaskID uint64

// NewTaskID mints a process-unique task identifier.
func NewTaskID() TaskID {
	return TaskID(nextTaskID.Add(1))
}

// TaskResultKind distinguishes the outcome variants of a TaskResult.
type TaskResultKind int

const (
	ResultSuccess TaskResultKind = iota
	ResultFailure
	ResultTimeout
	ResultCancelled
	ResultRejected
)

// TaskResult is the outcome of one executed (or rejected) Task.
type TaskResult struct {
	Kind    TaskResultKind
	Value   any
	Message string
}

// TrySubmitError is returned by WorkerPool.TrySubmit when a task cannot be
// enqueued without blocking.
type TrySubmitError struct {
	Closed bool
}

func (e *TrySubmitError) Error() string {
	if e.Closed {
		return "worker pool is closed"
	}
	return "task queue is full"
}

// Task is a unit of work submitted to a WorkerPool.
type Task struct {
	ID        TaskID
	Priority  TaskPriority
	Func      func(ctx context.Context) (any, error)
	Timeout   time.Duration
	CreatedAt time.Time
}

// NewTask wraps fn with default priority Normal and no explicit timeout (the
// pool's default_timeout applies).
func NewTask(fn func(ctx context.Context) (any, error)) Task {
	return Task{ID: NewTaskID(), Priority: PriorityNormal, Func: fn, CreatedAt: time.Now()}
}

// WithPriority returns a copy of the task with Priority set.
func (t Task) WithPriority(p TaskPriority) Task {
	t.Priority = p
	return t
}

// WithTimeout returns a copy of the task with an explicit Timeout.
func (t Task) WithTimeout(d time.Duration) Task {
	t.Timeout = d
	return t
}

// queuedTask is the internal heap element: priority-and-age-ordered, carrying
// a result channel and the resolved effective timeout.
type queuedTask struct {
	id        TaskID
	priority  TaskPriority
	createdAt time.Time
	fn        func(ctx context.Context) (any, error)
	timeout   time.Duration
	resultCh  chan TaskResult
	index     int
}

// taskHeap orders by priority ascending, then by createdAt ascending
// (earlier first) — Critical before Background, FIFO within a priority.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].createdAt.Before(h[j].createdAt)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*queuedTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// WorkerPoolConfig configures a WorkerPool's size and defaults.
type WorkerPoolConfig struct {
	WorkerCount     int
	QueueSize       int
	DefaultTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultWorkerPoolConfig returns the pool's out-of-the-box configuration.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:     4,
		QueueSize:       1000,
		DefaultTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// WorkerPoolStats is a snapshot of a WorkerPool's counters.
type WorkerPoolStats struct {
	ActiveWorkers       int
	QueuedTasks         int
	CompletedTasks      uint64
	FailedTasks         uint64
	TimeoutTasks        uint64
	RejectedTasks       uint64
	AvgProcessingTimeMs float64
}

// WorkerPool runs a fixed number of goroutines draining a priority-ordered
// task queue.
type WorkerPool struct {
	config WorkerPoolConfig

	mu     sync.Mutex
	cond   *sync.Cond
	queue  taskHeap
	closed bool

	activeWorkers        atomic.Int64
	completedTasks       atomic.Uint64
	failedTasks          atomic.Uint64
	timeoutTasks         atomic.Uint64
	rejectedTasks        atomic.Uint64
	totalProcessingTimeUs atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool with workerCount workers and a bounded queue.
func NewWorkerPool(workerCount, queueSize int) *WorkerPool {
	cfg := DefaultWorkerPoolConfig()
	cfg.WorkerCount = workerCount
	cfg.QueueSize = queueSize
	return NewWorkerPoolWithConfig(cfg)
}

// NewWorkerPoolWithConfig creates a pool from an explicit configuration.
func NewWorkerPoolWithConfig(cfg WorkerPoolConfig) *WorkerPool {
	p := &WorkerPool{
		config: cfg,
		stopCh: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	heap.Init(&p.queue)

	for i := 0; i < cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	return p
}

func (p *WorkerPool) runWorker(id int) {
	defer p.wg.Done()

	for {
		qt := p.dequeue()
		if qt == nil {
			return // shutdown, queue drained
		}

		p.activeWorkers.Add(1)
		start := time.Now()

		result := p.execute(qt)

		elapsed := time.Since(start)
		p.totalProcessingTimeUs.Add(uint64(elapsed.Microseconds()))

		switch result.Kind {
		case ResultSuccess:
			p.completedTasks.Add(1)
		case ResultFailure:
			p.failedTasks.Add(1)
		case ResultTimeout:
			p.timeoutTasks.Add(1)
		}

		qt.resultCh <- result
		close(qt.resultCh)
		p.activeWorkers.Add(-1)
	}
}

// execute runs the task's function, honoring its effective timeout.
func (p *WorkerPool) execute(qt *queuedTask) TaskResult {
	if qt.timeout <= 0 {
		value, err := qt.fn(context.Background())
		if err != nil {
			return TaskResult{Kind: ResultFailure, Message: err.Error()}
		}
		return TaskResult{Kind: ResultSuccess, Value: value}
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt.timeout)
	defer cancel()

	done := make(chan TaskResult, 1)
	go func() {
		value, err := qt.fn(ctx)
		if err != nil {
			done <- TaskResult{Kind: ResultFailure, Message: err.Error()}
			return
		}
		done <- TaskResult{Kind: ResultSuccess, Value: value}
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return TaskResult{Kind: ResultTimeout}
	}
}

// dequeue blocks until a task is available or the pool is closed and the
// queue drained, in which case it returns nil.
func (p *WorkerPool) dequeue() *queuedTask {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.queue.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.queue.Len() == 0 {
		return nil
	}
	return heap.Pop(&p.queue).(*queuedTask)
}

// Submit enqueues a task and blocks until it completes, times out, or the
// context is cancelled.
func (p *WorkerPool) Submit(ctx context.Context, task Task) (TaskResult, error) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = p.config.DefaultTimeout
	}

	qt := &queuedTask{
		id:        task.ID,
		priority:  task.Priority,
		createdAt: task.CreatedAt,
		fn:        task.Func,
		timeout:   timeout,
		resultCh:  make(chan TaskResult, 1),
	}

	if err := p.enqueue(qt); err != nil {
		if _, ok := err.(*TrySubmitError); ok {
			p.rejectedTasks.Add(1)
			return TaskResult{Kind: ResultRejected, Message: "task queue full"}, nil
		}
		return TaskResult{}, err
	}

	select {
	case result := <-qt.resultCh:
		return result, nil
	case <-ctx.Done():
		return TaskResult{Kind: ResultCancelled}, nil
	}
}

// TrySubmit enqueues a task without blocking, returning a channel the caller
// can read the eventual TaskResult from.
//
// The fields below are read into locals before task.Func is lifted out,
// mirroring a partial-move pattern in the original implementation (reading a
// struct's Copy fields before taking ownership of its non-Copy closure
// field). Go has no borrow checker to force this ordering, so it is purely
// stylistic here — kept as a known refactor target, not changed.
func (p *WorkerPool) TrySubmit(task Task) (<-chan TaskResult, error) {
	taskID := task.ID
	taskPriority := task.Priority
	taskCreatedAt := task.CreatedAt
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = p.config.DefaultTimeout
	}

	taskFunc := task.Func
	task.Func = nil // take ownership, as if by Option::take()

	qt := &queuedTask{
		id:        taskID,
		priority:  taskPriority,
		createdAt: taskCreatedAt,
		fn:        taskFunc,
		timeout:   timeout,
		resultCh:  make(chan TaskResult, 1),
	}

	if err := p.enqueue(qt); err != nil {
		if tse, ok := err.(*TrySubmitError); ok && !tse.Closed {
			p.rejectedTasks.Add(1)
		}
		return nil, err
	}
	return qt.resultCh, nil
}

func (p *WorkerPool) enqueue(qt *queuedTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &TrySubmitError{Closed: true}
	}
	if p.queue.Len() >= p.config.QueueSize {
		return &TrySubmitError{}
	}

	heap.Push(&p.queue, qt)
	p.cond.Signal()
	return nil
}

// Stats returns a snapshot of the pool's counters.
func (p *WorkerPool) Stats() WorkerPoolStats {
	p.mu.Lock()
	queued := p.queue.Len()
	p.mu.Unlock()

	completed := p.completedTasks.Load()
	var avgMs float64
	if completed > 0 {
		avgMs = float64(p.totalProcessingTimeUs.Load()) / float64(completed) / 1000
	}

	return WorkerPoolStats{
		ActiveWorkers:       int(p.activeWorkers.Load()),
		QueuedTasks:         queued,
		CompletedTasks:      completed,
		FailedTasks:         p.failedTasks.Load(),
		TimeoutTasks:        p.timeoutTasks.Load(),
		RejectedTasks:       p.rejectedTasks.Load(),
		AvgProcessingTimeMs: avgMs,
	}
}

// Shutdown signals all workers to stop once the queue drains, waiting up to
// shutdown_timeout before giving up.
func (p *WorkerPool) Shutdown() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		log.Warn("worker pool shutdown timed out, workers may still be draining")
		return fmt.Errorf("worker pool shutdown timed out after %s", p.config.ShutdownTimeout)
	}
}
