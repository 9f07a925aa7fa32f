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

const (
	stopCapReached  = "result cap reached"
	stopNoCursor    = "no next cursor returned"
	stopShortPage   = "short page"
	stopSinglePage  = "no pagination"
	stopUnresolved  = "page size unresolved"
	stopTimeout     = "extraction timeout exceeded"
	stopEmptyResult = "no result after retries"
)

// extract drives the paginated download loop for the source connector
func (r *run) extract(ctx context.Context) ([]models.Record, error) {
	conn := r.pipeline.Source
	ctx, span := r.engine.tracer.Start(ctx, "pipeline.extract", trace.WithAttributes(
		attribute.String("adapter", conn.Adapter),
		attribute.String("endpoint", conn.Endpoint),
	))
	defer span.End()

	adapter, err := r.open(ctx, conn)
	if adapter != nil {
		r.source = adapter
	}
	if err != nil {
		return nil, err
	}

	downloader, ok := adapter.(core.Downloader)
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("adapter %s cannot download", conn.Adapter)).
			WithDetail("adapter", conn.Adapter)
	}

	// resolved once, before the first download
	pg := Resolve(conn, adapter.Descriptor(), conn.RequestedItemsPerPage())
	for _, note := range pg.Notes {
		r.emit(models.NewEvent(models.EventInfo, note))
	}

	var offset interface{}
	if pg.Style == core.PaginationOffset {
		offset = models.OffsetInt(conn.StartOffset())
	} else {
		offset = conn.StartOffset()
	}

	var (
		records   []models.Record
		reason    string
		loopStart = r.engine.now()
		onFailure = r.attemptFailure("download")
	)

	for n := 1; ; n++ {
		if n > 1 && conn.Timeout > 0 && r.engine.now().Sub(loopStart) > conn.Timeout {
			r.result.TimedOut = true
			reason = stopTimeout
			// a normal stop: reported, never returned
			r.emit(models.NewEvent(models.EventInfo, fmt.Sprintf("%s: extraction exceeded timeout %s after %d pages",
				errors.ErrorTypeTimeout, conn.Timeout, r.result.Pages)))
			break
		}
		if err := r.wait(ctx); err != nil {
			return nil, err
		}

		opts := models.PageOptions{Limit: pg.ItemsPerPage, Offset: offset}
		page, ok, err := retry.Do(ctx, r.executor, func(ctx context.Context) (*models.Page, error) {
			return downloader.Download(ctx, opts)
		}, onFailure)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeUpstream, fmt.Sprintf("download of page %d failed", n)).
				WithDetail("adapter", conn.Adapter).
				WithDetail("page", n)
		}
		if !ok || page == nil {
			page = &models.Page{}
		}

		r.result.Pages++
		metrics.PagesFetched.WithLabelValues(r.pipeline.Name, conn.Adapter).Inc()
		records = append(records, page.Data...)
		r.emit(models.NewEvent(models.EventExtract, fmt.Sprintf("fetched page %d", n)).WithCount(page.Len()))

		if conn.Limit > 0 && len(records) >= conn.Limit {
			reason = stopCapReached
			break
		}
		if !ok {
			reason = stopEmptyResult
			break
		}
		if !pg.Paginated() {
			reason = stopSinglePage
			if pg.Style != core.PaginationNone {
				reason = stopUnresolved
			}
			break
		}

		if pg.Style == core.PaginationCursor {
			if page.Options.NextOffset == nil {
				reason = stopNoCursor
				break
			}
			offset = page.Options.NextOffset
		} else {
			if page.Len() < pg.ItemsPerPage {
				reason = stopShortPage
				break
			}
			offset = models.OffsetInt(offset) + pg.ItemsPerPage
		}
		r.emit(models.NewEvent(models.EventInfo, fmt.Sprintf("advancing to page %d at offset %v", n+1, offset)))
	}

	if conn.Limit > 0 && len(records) > conn.Limit {
		r.emit(models.NewEvent(models.EventInfo,
			fmt.Sprintf("truncated %d records to cap %d", len(records), conn.Limit)))
		records = records[:conn.Limit]
	}

	r.result.StopReason = reason
	r.result.Extracted = len(records)
	metrics.RecordsExtracted.WithLabelValues(r.pipeline.Name, conn.Adapter).Add(float64(len(records)))
	span.SetAttributes(attribute.Int("records", len(records)), attribute.Int("pages", r.result.Pages))
	r.emit(models.NewEvent(models.EventExtract, "extraction stopped: "+reason).WithCount(len(records)))
	return records, nil
}
