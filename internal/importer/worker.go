package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// TaskKind identifies a unit of background work.
type TaskKind int

const (
	TaskProcess TaskKind = iota // parse + validate
	TaskCommit
)

func (k TaskKind) String() string {
	switch k {
	case TaskProcess:
		return "process"
	case TaskCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// Task is one asynchronous unit of work for a job.
type Task struct {
	JobID uuid.UUID
	Kind  TaskKind
}

// ErrQueueFull is returned when the task queue cannot accept more work.
var ErrQueueFull = errors.New("task queue is full")

// Pool runs pipeline tasks on a bounded set of background workers. The
// HTTP-facing operations only flip job status synchronously; the heavy
// parse/validate/commit work always runs here.
type Pool struct {
	service *Service
	tasks   chan Task
	workers int

	once sync.Once
	wg   sync.WaitGroup
}

// NewPool creates a worker pool and attaches it to the service as its
// scheduler.
func NewPool(service *Service, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &Pool{
		service: service,
		tasks:   make(chan Task, queueSize),
		workers: workers,
	}
	service.SetScheduler(p)
	return p
}

// Enqueue schedules a task without blocking the caller.
func (p *Pool) Enqueue(task Task) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. They drain until the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.workerLoop(ctx)
		}
	})
}

// Wait blocks until all workers have stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			p.run(ctx, task)
		}
	}
}

// run executes one task. Failures, including panics, are absorbed at this
// boundary and surface only as a FAILED job status; they never crash the
// worker.
func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WORKER] panic in %s task for job %s: %v", task.Kind, task.JobID, r)
			if err := p.service.failJob(ctx, task.JobID, fmt.Sprintf("internal error: %v", r)); err != nil {
				log.Printf("[WORKER] failed to record panic for job %s: %v", task.JobID, err)
			}
		}
	}()

	var err error
	switch task.Kind {
	case TaskProcess:
		err = p.service.ProcessJob(ctx, task.JobID)
	case TaskCommit:
		err = p.service.RunCommit(ctx, task.JobID)
	default:
		err = fmt.Errorf("unknown task kind %d", task.Kind)
	}
	if err != nil {
		log.Printf("[WORKER] %s task for job %s failed: %v", task.Kind, task.JobID, err)
	}
}
