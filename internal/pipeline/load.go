package pipeline

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/metrics"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// load delivers records to the target in consecutive, strictly sequential batches
func (r *run) load(ctx context.Context, records []models.Record) error {
	conn := r.pipeline.Target
	ctx, span := r.engine.tracer.Start(ctx, "pipeline.load", trace.WithAttributes(
		attribute.String("adapter", conn.Adapter),
		attribute.String("endpoint", conn.Endpoint),
	))
	defer span.End()

	adapter, err := r.open(ctx, conn)
	if adapter != nil {
		r.target = adapter
	}
	if err != nil {
		return err
	}

	uploader, ok := adapter.(core.Uploader)
	if !ok {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("adapter %s cannot upload", conn.Adapter)).
			WithDetail("adapter", conn.Adapter)
	}

	size := BatchSize(Resolve(conn, adapter.Descriptor(), conn.RequestedItemsPerPage()), len(records))
	if len(records) == 0 {
		r.emit(models.NewEvent(models.EventInfo, "no records to deliver"))
		return nil
	}

	onFailure := r.attemptFailure("upload")
	for i, n := 0, 1; i < len(records); i, n = i+size, n+1 {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		batch := records[i:end]

		if err := r.wait(ctx); err != nil {
			return err
		}

		_, ok, err := retry.Do(ctx, r.executor, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, uploader.Upload(ctx, batch)
		}, onFailure)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeUpstream, fmt.Sprintf("upload of batch %d failed", n)).
				WithDetail("adapter", conn.Adapter).
				WithDetail("batch", n)
		}
		if !ok {
			r.result.SkippedBatches++
			metrics.BatchesSkipped.WithLabelValues(r.pipeline.Name, conn.Adapter).Inc()
			r.emit(models.NewEvent(models.EventError,
				fmt.Sprintf("batch %d skipped after %d attempts", n, r.executor.Policy().Attempts())).WithCount(len(batch)))
			continue
		}

		r.result.Batches++
		r.result.Delivered += len(batch)
		metrics.RecordsDelivered.WithLabelValues(r.pipeline.Name, conn.Adapter).Add(float64(len(batch)))
		metrics.BatchSize.WithLabelValues(r.pipeline.Name, conn.Adapter).Observe(float64(len(batch)))
		r.emit(models.NewEvent(models.EventLoad, fmt.Sprintf("delivered batch %d", n)).WithCount(len(batch)))

		if hook := r.pipeline.Hooks.OnUpload; hook != nil {
			hook(batch)
		}
	}

	span.SetAttributes(attribute.Int("delivered", r.result.Delivered), attribute.Int("batches", r.result.Batches))
	return nil
}

// BatchSize is the target batch size: the resolved offset-style page size, or
// the whole dataset as one batch.
func BatchSize(res Resolution, total int) int {
	if res.Style == core.PaginationOffset && res.ItemsPerPage > 0 {
		return res.ItemsPerPage
	}
	if total <= 0 {
		return 1
	}
	return total
}
