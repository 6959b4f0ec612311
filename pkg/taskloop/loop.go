package taskloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrStopped = errors.New("task loop stopped")

// Task is a unit of work run on the loop.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Stats is a point-in-time view of the loop.
type Stats struct {
	QueueSize      int    `json:"queue_size"`
	QueueDepth     int    `json:"queue_depth"`
	IsProcessing   bool   `json:"is_processing"`
	TotalPosted    int64  `json:"total_posted"`
	TotalYielded   int64  `json:"total_yielded"`
	TotalProcessed int64  `json:"total_processed"`
	TotalDropped   int64  `json:"total_dropped"`
	TotalErrors    int64  `json:"total_errors"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	LastTaskName   string `json:"last_task_name,omitempty"`
}

// Loop is a cooperative execution context: one goroutine consumes tasks in
// FIFO order, so the state they touch needs no locks of its own.
// External tasks (Post) are bounded by the queue size. Continuations (Yield)
// are not, so work already started always gets to finish.
type Loop struct {
	queueSize int

	mu       sync.Mutex
	queue    []Task
	lastTask string
	wake     chan struct{}

	wg        sync.WaitGroup
	stopOnce  sync.Once
	startOnce sync.Once
	stopped   int32
	stopCh    chan struct{}
	startTime time.Time

	processing int32

	// Metrics
	totalPosted    int64
	totalYielded   int64
	totalProcessed int64
	totalDropped   int64
	totalErrors    int64
}

// New creates a loop holding up to queueSize pending external tasks.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Loop{
		queueSize: queueSize,
		queue:     make([]Task, 0, queueSize),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the loop goroutine. Later calls do nothing.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.startTime = time.Now()
		l.wg.Add(1)
		go l.run(ctx)
		logrus.Infof("[TASK_LOOP] Started, queue size: %d", l.queueSize)
	})
}

// TryPost queues an external task without blocking and reports whether it was accepted.
func (l *Loop) TryPost(task Task) bool {
	if atomic.LoadInt32(&l.stopped) == 1 {
		atomic.AddInt64(&l.totalDropped, 1)
		return false
	}

	l.mu.Lock()
	if len(l.queue) >= l.queueSize {
		l.mu.Unlock()
		atomic.AddInt64(&l.totalDropped, 1)
		logrus.Warnf("[TASK_LOOP] Queue full, dropping task %q", task.Name)
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	atomic.AddInt64(&l.totalPosted, 1)
	l.signal()
	return true
}

// Post queues an external task. A full queue drops it, which is fine for
// triggers that fire again; continuations of started work use Yield.
func (l *Loop) Post(task Task) bool {
	return l.TryPost(task)
}

// Yield queues a continuation of running work behind everything already pending.
func (l *Loop) Yield(task Task) {
	if atomic.LoadInt32(&l.stopped) == 1 {
		atomic.AddInt64(&l.totalDropped, 1)
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	atomic.AddInt64(&l.totalYielded, 1)
	l.signal()
}

// PostAfter posts task once delay has passed.
func (l *Loop) PostAfter(delay time.Duration, task Task) *time.Timer {
	return time.AfterFunc(delay, func() { l.Post(task) })
}

// YieldAfter queues task as a continuation once delay has passed.
func (l *Loop) YieldAfter(delay time.Duration, task Task) *time.Timer {
	return time.AfterFunc(delay, func() { l.Yield(task) })
}

// Do runs fn on the loop and waits for its result. It must not be called
// from a task running on the same loop.
func (l *Loop) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	ok := l.TryPost(Task{Name: name, Run: func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			done <- err
		}()
		return fn(ctx)
	}})
	if !ok {
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return ErrStopped
	}
}

// Stop halts the loop after running whatever is still queued.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		atomic.StoreInt32(&l.stopped, 1)
		close(l.stopCh)
		logrus.Info("[TASK_LOOP] Stopping...")
		l.wg.Wait()
		logrus.Info("[TASK_LOOP] Stopped")
	})
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	depth := len(l.queue)
	last := l.lastTask
	l.mu.Unlock()

	var uptime int64
	if !l.startTime.IsZero() {
		uptime = int64(time.Since(l.startTime).Seconds())
	}

	return Stats{
		QueueSize:      l.queueSize,
		QueueDepth:     depth,
		IsProcessing:   atomic.LoadInt32(&l.processing) == 1,
		TotalPosted:    atomic.LoadInt64(&l.totalPosted),
		TotalYielded:   atomic.LoadInt64(&l.totalYielded),
		TotalProcessed: atomic.LoadInt64(&l.totalProcessed),
		TotalDropped:   atomic.LoadInt64(&l.totalDropped),
		TotalErrors:    atomic.LoadInt64(&l.totalErrors),
		UptimeSeconds:  uptime,
		LastTaskName:   last,
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) pop() (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return Task{}, false
	}
	task := l.queue[0]
	l.queue[0] = Task{}
	l.queue = l.queue[1:]
	l.lastTask = task.Name
	return task, true
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		if task, ok := l.pop(); ok {
			l.execute(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			l.drainQueue(ctx)
			return
		case <-l.stopCh:
			l.drainQueue(ctx)
			return
		case <-l.wake:
		}
	}
}

func (l *Loop) execute(ctx context.Context, task Task) {
	if task.Run == nil {
		return
	}
	atomic.StoreInt32(&l.processing, 1)
	defer atomic.StoreInt32(&l.processing, 0)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return task.Run(ctx)
	}()

	atomic.AddInt64(&l.totalProcessed, 1)
	if err != nil {
		atomic.AddInt64(&l.totalErrors, 1)
		logrus.Errorf("[TASK_LOOP] Task %q failed: %v", task.Name, err)
	}
}

// drainQueue runs the tasks pending at stop. Continuations queued while
// draining are discarded.
func (l *Loop) drainQueue(ctx context.Context) {
	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(pending) > 0 {
		logrus.Debugf("[TASK_LOOP] Draining %d pending tasks", len(pending))
	}
	for _, task := range pending {
		l.execute(ctx, task)
	}
}
