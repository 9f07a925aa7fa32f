package pipeline

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunAll executes pipelines concurrently. Runs are independent: a failure
// never cancels another run. Results are returned in input order and the
// error combines every surfaced failure.
func (e *Engine) RunAll(ctx context.Context, pipelines []*Pipeline) ([]*Result, error) {
	results := make([]*Result, len(pipelines))
	errs := make([]error, len(pipelines))

	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}

	for i, p := range pipelines {
		g.Go(func() error {
			res, err := e.Run(ctx, p)
			results[i] = res
			if err != nil {
				e.logger.Error("pipeline failed", zap.String("pipeline", p.Name), zap.Error(err))
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, multierr.Combine(errs...)
}
