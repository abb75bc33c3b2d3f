package executor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/fentz26/aiorg/internal/logging"
)

// Pool runs one executor per agent concurrently. One agent giving up does not
// stop the others.
type Pool struct {
	executors []*Executor
	log       zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewPool creates a pool over executors.
func NewPool(executors ...*Executor) *Pool {
	return &Pool{
		executors: executors,
		log:       logging.Component("pool"),
	}
}

// Run blocks until every executor has returned. The result joins the errors
// of agents that gave up.
func (p *Pool) Run(ctx context.Context) error {
	workers := pool.New().WithContext(ctx)
	for _, ex := range p.executors {
		ex := ex
		workers.Go(func(ctx context.Context) error {
			err := ex.Run(ctx)
			if err != nil {
				p.log.Error().Err(err).Str("agent", ex.AgentID()).Msg("agent stopped")
			}
			return err
		})
	}
	return workers.Wait()
}

// Start runs the pool in the background.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		err := p.Run(ctx)
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}()
	p.log.Info().Int("agents", len(p.executors)).Msg("pool started")
}

// Stop cancels every executor, waits for in-flight steps to finish and
// returns the joined agent errors.
func (p *Pool) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done
	p.log.Info().Msg("pool stopped")

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns per-agent outcome counters.
func (p *Pool) Stats() []Stats {
	out := make([]Stats, 0, len(p.executors))
	for _, ex := range p.executors {
		out = append(out, ex.Stats())
	}
	return out
}
