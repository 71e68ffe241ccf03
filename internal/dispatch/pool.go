package dispatch

import (
	"golang.org/x/sync/errgroup"

	"reqid/util"
)

// Pool runs a fixed number of workers over one dispatcher.
type Pool struct {
	d      *Dispatcher
	size   int
	group  errgroup.Group
	logger *util.Logger
}

// NewPool returns a pool of size workers (floor 1) for d.  Nothing runs
// until Start.
func NewPool(d *Dispatcher, size int, logger *util.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{d: d, size: size, logger: logger}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		id := i
		p.group.Go(func() error {
			p.logger.Debug("worker %d started", id)
			err := p.d.Run()
			p.logger.Debug("worker %d exited", id)
			return err
		})
	}
}

// Wait blocks until every worker has returned, which happens only
// after the dispatcher is stopped and drained.  It returns the first
// worker error, if any worker recovered from a handler panic.
func (p *Pool) Wait() error {
	return p.group.Wait()
}
