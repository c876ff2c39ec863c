// Package workerpool runs independent tasks on a bounded set of goroutines.
// When every slot is busy the submitting goroutine runs the task itself.
package workerpool

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/smallbiznis/storepulse/internal/config"
)

const defaultSize = 5

type Task func(ctx context.Context) error

type Pool struct {
	size int64
	sem  *semaphore.Weighted
}

func New(size int) *Pool {
	if size <= 0 {
		size = defaultSize
	}
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Provide builds the shared pool from dashboard settings.
func Provide(cfg config.Config) *Pool {
	return New(cfg.Dashboard.PoolSize)
}

var Module = fx.Module("workerpool",
	fx.Provide(Provide),
)

func (p *Pool) Size() int {
	return int(p.size)
}

// Run executes every task and waits for all of them. The returned slice holds
// each task's error at the task's index. A panicking task reports an error.
func (p *Pool) Run(ctx context.Context, tasks ...Task) []error {
	errs := make([]error, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		if task == nil {
			continue
		}
		if p.sem.TryAcquire(1) {
			g.Go(func() error {
				defer p.sem.Release(1)
				errs[i] = runTask(ctx, task)
				return nil
			})
			continue
		}
		errs[i] = runTask(ctx, task)
	}
	_ = g.Wait()
	return errs
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workerpool: task panicked: %v", r)
		}
	}()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return task(ctx)
}
