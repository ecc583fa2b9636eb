// Package worker runs queued schema change requests through the
// orchestration engine on a bounded pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fieldgov/internal/orchestrator"
	"github.com/fyrsmithlabs/fieldgov/internal/schema"
)

// ErrQueueFull means the request queue is at capacity; the caller should
// surface backpressure instead of blocking the ingress path.
var ErrQueueFull = errors.New("worker: request queue is full")

// ErrStopped means the pool is no longer accepting work.
var ErrStopped = errors.New("worker: pool is stopped")

// Provisioner is the orchestration entry point a worker drives.
// *orchestrator.Engine satisfies this.
type Provisioner interface {
	ValidateAndProvision(ctx context.Context, req schema.ElementRequest) (*orchestrator.Result, error)
}

// Notifier posts the run outcome back to the originating ticket.
// *jira.Client satisfies this.
type Notifier interface {
	AddComment(ctx context.Context, key, text, token string) error
}

// Config sizes the pool.
type Config struct {
	Count     int
	QueueSize int
}

// Pool is a bounded request queue drained by a fixed set of workers. Each
// dequeued request runs one full orchestration; the outcome is posted back
// to the requesting ticket as a comment, best effort.
type Pool struct {
	engine   Provisioner
	notifier Notifier
	queue    chan schema.ElementRequest
	logger   *zap.Logger

	count int
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewPool creates a worker pool. Start must be called before Enqueue
// delivers anything.
func NewPool(engine Provisioner, notifier Notifier, cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Pool{
		engine:   engine,
		notifier: notifier,
		queue:    make(chan schema.ElementRequest, cfg.QueueSize),
		logger:   logger,
		count:    cfg.Count,
	}
}

// Start launches the workers. They drain the queue until Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.count),
		zap.Int("queue_size", cap(p.queue)),
	)
}

// Stop closes the queue and waits for in-flight requests to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Enqueue hands a request to the pool without blocking.
func (p *Pool) Enqueue(req schema.ElementRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth reports the number of queued requests.
func (p *Pool) Depth() int {
	return len(p.queue)
}

func (p *Pool) run(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	for req := range p.queue {
		result, err := p.engine.ValidateAndProvision(ctx, req)
		if err != nil {
			logger.Error("request failed",
				zap.String("issue_key", req.IssueKey),
				zap.String("name", req.Name),
				zap.Error(err),
			)
		}
		p.notify(ctx, req, result, err)
	}
}

// notify posts the outcome back to the originating ticket. Failures are
// logged and dropped; a missed comment never fails the run.
func (p *Pool) notify(ctx context.Context, req schema.ElementRequest, result *orchestrator.Result, runErr error) {
	if p.notifier == nil || req.IssueKey == "" {
		return
	}

	text := formatOutcome(req, result, runErr)
	if err := p.notifier.AddComment(ctx, req.IssueKey, text, uuid.New().String()); err != nil {
		p.logger.Warn("outcome comment not delivered",
			zap.String("issue_key", req.IssueKey),
			zap.Error(err),
		)
	}
}

// formatOutcome renders the run result as a ticket comment.
func formatOutcome(req schema.ElementRequest, result *orchestrator.Result, runErr error) string {
	var b strings.Builder

	switch {
	case result == nil:
		fmt.Fprintf(&b, "Field request %q failed: %v", req.Name, runErr)
	case result.State == orchestrator.StateComplete:
		fmt.Fprintf(&b, "Field %q provisioned (id %s)", req.Name, result.Element.ID)
		if len(result.Element.Options) > 0 {
			fmt.Fprintf(&b, " with options %s", strings.Join(result.Element.Options, ", "))
		}
	case result.State == orchestrator.StateRejected:
		fmt.Fprintf(&b, "Field request %q rejected:", req.Name)
		for _, f := range result.Findings {
			fmt.Fprintf(&b, "\n- [%s] %s", f.Severity, f.Message)
		}
	default:
		fmt.Fprintf(&b, "Field request %q failed: %s", req.Name, result.Err)
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "\n- %s", w)
		}
	}

	return b.String()
}
