package workerpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// TaskResult carries the outcome of a submitted task
type TaskResult struct {
	Data  interface{}
	Error error
}

// Config worker pool configuration
type Config struct {
	Workers   int // number of workers
	QueueSize int // pending task buffer (0 = unbuffered submission)
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:   32,
		QueueSize: 256,
	}
}

// Statistics tracks submitted/completed/failed counts
type Statistics struct {
	mu sync.RWMutex

	Submitted int64
	Completed int64
	Failed    int64
	Running   int64
}

func (s *Statistics) incSubmitted() {
	s.mu.Lock()
	s.Submitted++
	s.mu.Unlock()
}

func (s *Statistics) taskStarted() {
	s.mu.Lock()
	s.Running++
	s.mu.Unlock()
}

func (s *Statistics) taskDone() {
	s.mu.Lock()
	s.Running--
	s.Completed++
	s.mu.Unlock()
}

func (s *Statistics) incFailed() {
	s.mu.Lock()
	s.Failed++
	s.mu.Unlock()
}

func (s *Statistics) Get() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Statistics{
		Submitted: s.Submitted,
		Completed: s.Completed,
		Failed:    s.Failed,
		Running:   s.Running,
	}
}

// Pool is a fixed-size worker pool backed by ants.
// Panics inside tasks are contained by the ants panic handler.
type Pool struct {
	pool   *ants.Pool
	stats  *Statistics
	logger *zap.Logger
}

// New creates a worker pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	antsPool, err := ants.NewPool(config.Workers,
		ants.WithMaxBlockingTasks(config.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			logger.Error("worker panic", zap.Any("error", err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	return &Pool{
		pool:   antsPool,
		stats:  &Statistics{},
		logger: logger,
	}, nil
}

// Submit schedules a task for execution
func (p *Pool) Submit(task func()) error {
	if p.pool.IsClosed() {
		return ErrPoolClosed
	}

	p.stats.incSubmitted()
	return p.pool.Submit(func() {
		p.stats.taskStarted()
		defer p.stats.taskDone()
		task()
	})
}

// SubmitWithResult schedules a task and returns a channel carrying its result.
// The channel is buffered so the worker never blocks on a slow consumer.
func (p *Pool) SubmitWithResult(task func() (interface{}, error)) <-chan TaskResult {
	resultCh := make(chan TaskResult, 1)

	err := p.Submit(func() {
		data, err := task()
		if err != nil {
			p.stats.incFailed()
		}
		resultCh <- TaskResult{Data: data, Error: err}
		close(resultCh)
	})
	if err != nil {
		resultCh <- TaskResult{Error: err}
		close(resultCh)
	}

	return resultCh
}

// Running returns the number of busy workers
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Free returns the number of idle workers
func (p *Pool) Free() int {
	return p.pool.Free()
}

// Stats returns a snapshot of pool statistics
func (p *Pool) Stats() Statistics {
	return p.stats.Get()
}

// Shutdown releases all workers
func (p *Pool) Shutdown() {
	p.pool.Release()
}
