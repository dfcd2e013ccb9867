package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/maltedev/catalog-enricher/internal/events"
	"github.com/maltedev/catalog-enricher/internal/models"
	"github.com/maltedev/catalog-enricher/internal/ratelimit"
	"github.com/maltedev/catalog-enricher/internal/scraper"
	"github.com/maltedev/catalog-enricher/internal/sheet"
	"github.com/maltedev/catalog-enricher/internal/storage"
)

// Archiver stores finished jobs outside the process.
type Archiver interface {
	SaveJob(ctx context.Context, job models.JobState, rows []models.ResultRow) error
}

// ArtifactMirror copies an output file elsewhere and returns a link to it.
type ArtifactMirror interface {
	Upload(ctx context.Context, jobID, path string) (string, error)
}

// Job is one accepted upload waiting to be processed.
type Job struct {
	ID        string
	InputPath string
}

type Runner struct {
	registry  Registry
	lookuper  scraper.Lookuper
	pacer     *ratelimit.Pacer
	writer    *sheet.Writer
	store     *storage.Local
	publisher events.Publisher
	archive   Archiver
	mirror    ArtifactMirror
	batchSize int
	logger    *slog.Logger

	wg sync.WaitGroup
}

type RunnerOption func(*Runner)

func WithPublisher(p events.Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

func WithArchive(a Archiver) RunnerOption {
	return func(r *Runner) { r.archive = a }
}

func WithMirror(m ArtifactMirror) RunnerOption {
	return func(r *Runner) { r.mirror = m }
}

func NewRunner(registry Registry, lookuper scraper.Lookuper, pacer *ratelimit.Pacer, writer *sheet.Writer,
	store *storage.Local, batchSize int, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if batchSize < 1 {
		batchSize = 1
	}
	r := &Runner{
		registry:  registry,
		lookuper:  lookuper,
		pacer:     pacer,
		writer:    writer,
		store:     store,
		publisher: events.NopPublisher{},
		batchSize: batchSize,
		logger:    logger.With("component", "job_runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the job in its own goroutine. Wait blocks until it returns.
func (r *Runner) Start(ctx context.Context, job Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Run(ctx, job); err != nil {
			r.logger.Error("job failed", "job_id", job.ID, "error", err)
		}
	}()
}

// Wait blocks until every started job has returned or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running: %w", ctx.Err())
	}
}

// Run processes every row of the staged input in order and sets the
// terminal status exactly once. The staged input is removed on every path.
func (r *Runner) Run(ctx context.Context, job Job) error {
	logger := r.logger.With("job_id", job.ID)

	defer func() {
		if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove staged input", "path", job.InputPath, "error", err)
		}
	}()

	r.publish(ctx, logger, events.EventTypeJobCreated, job.ID)

	format, err := sheet.DetectFormat(job.InputPath)
	if err != nil {
		return r.fail(ctx, logger, job.ID, nil, err)
	}

	table, err := sheet.Read(job.InputPath)
	if err != nil {
		return r.fail(ctx, logger, job.ID, nil, fmt.Errorf("cannot read input: %w", err))
	}

	if _, err := r.registry.Update(job.ID, func(s *models.JobState) { s.Total = table.Total() }); err != nil {
		return fmt.Errorf("failed to record total: %w", err)
	}
	logger.Info("job started", "rows", table.Total(), "batch_size", r.batchSize)

	results, err := r.process(ctx, logger, job.ID, table.Queries)
	if err != nil {
		return r.fail(ctx, logger, job.ID, results, err)
	}

	outputPath := r.store.OutputPath(job.ID, string(format))
	err = storage.WriteAtomic(outputPath, func(w io.Writer) error {
		return r.writer.Write(ctx, w, format, table.Layout, results)
	})
	if err != nil {
		return r.fail(ctx, logger, job.ID, results, fmt.Errorf("cannot write output: %w", err))
	}

	artifactURL := ""
	if r.mirror != nil {
		if artifactURL, err = r.mirror.Upload(ctx, job.ID, outputPath); err != nil {
			logger.Warn("artifact mirror failed", "error", err)
		}
	}

	final, err := r.registry.Update(job.ID, func(s *models.JobState) {
		s.Status = models.JobStatusCompleted
		s.Processed = s.Total
		s.OutputLocation = outputPath
		s.ArtifactURL = artifactURL
	})
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	logger.Info("job completed", "rows", len(results), "output", outputPath)
	r.publish(ctx, logger, events.EventTypeJobCompleted, job.ID)
	r.archiveJob(ctx, logger, final, results)
	return nil
}

func (r *Runner) process(ctx context.Context, logger *slog.Logger, jobID string, queries []models.ProductQuery) ([]models.ResultRow, error) {
	results := make([]models.ResultRow, 0, len(queries))
	batches := Batches(queries, r.batchSize)

	for bi, batch := range batches {
		logger.Info("processing batch", "batch", bi+1, "of", len(batches), "size", len(batch))

		for _, q := range batch {
			if err := ctx.Err(); err != nil {
				return results, err
			}

			name := strings.TrimSpace(q.ItemName)
			if name == "" {
				logger.Debug("skipping blank row", "row", q.RowIndex)
				if err := r.advance(jobID); err != nil {
					return results, err
				}
				continue
			}

			rec := r.lookuper.Lookup(ctx, name)
			if rec.Error != "" {
				logger.Warn("lookup returned partial record", "item", name, "error", rec.Error)
			}
			results = append(results, models.NewResultRow(q, rec))

			if err := r.advance(jobID); err != nil {
				return results, err
			}
			r.publish(ctx, logger, events.EventTypeJobProgress, jobID)

			if _, err := r.pacer.Item(ctx); err != nil {
				return results, err
			}
		}

		if bi < len(batches)-1 {
			d, err := r.pacer.Batch(ctx)
			if err != nil {
				return results, err
			}
			logger.Info("batch pause", "batch", bi+1, "delay", d)
		}
	}
	return results, nil
}

func (r *Runner) advance(jobID string) error {
	_, err := r.registry.Update(jobID, func(s *models.JobState) { s.Processed++ })
	return err
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, jobID string, results []models.ResultRow, cause error) error {
	final, err := r.registry.Update(jobID, func(s *models.JobState) {
		s.Status = models.JobStatusFailed
		s.Error = cause.Error()
	})
	if err != nil {
		return errors.Join(cause, err)
	}

	logger.Error("job aborted", "processed", final.Processed, "total", final.Total, "error", cause)
	r.publish(ctx, logger, events.EventTypeJobFailed, jobID)
	r.archiveJob(ctx, logger, final, results)
	return cause
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, eventType events.EventType, jobID string) {
	job, err := r.registry.Get(jobID)
	if err != nil {
		return
	}
	if err := r.publisher.Publish(context.WithoutCancel(ctx), eventType, job); err != nil {
		logger.Warn("failed to publish event", "event_type", eventType, "error", err)
	}
}

func (r *Runner) archiveJob(ctx context.Context, logger *slog.Logger, job models.JobState, rows []models.ResultRow) {
	if r.archive == nil {
		return
	}
	if err := r.archive.SaveJob(context.WithoutCancel(ctx), job, rows); err != nil {
		logger.Warn("failed to archive job", "error", err)
	}
}

// Batches splits queries into contiguous windows of at most size entries.
func Batches(queries []models.ProductQuery, size int) [][]models.ProductQuery {
	if size < 1 {
		size = 1
	}
	var out [][]models.ProductQuery
	for start := 0; start < len(queries); start += size {
		end := min(start+size, len(queries))
		out = append(out, queries[start:end])
	}
	return out
}
