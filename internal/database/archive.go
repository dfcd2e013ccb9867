package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/catalog-enricher/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS enrichment_jobs (
	job_id          TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	file_name       TEXT NOT NULL,
	processed       INTEGER NOT NULL,
	total           INTEGER NOT NULL,
	start_time      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	output_location TEXT,
	artifact_url    TEXT,
	error           TEXT
);

CREATE TABLE IF NOT EXISTS enrichment_results (
	job_id               TEXT NOT NULL REFERENCES enrichment_jobs(job_id) ON DELETE CASCADE,
	position             INTEGER NOT NULL,
	sr_no                TEXT,
	item_code            TEXT,
	item_name            TEXT NOT NULL,
	title                TEXT,
	composition          TEXT,
	price                TEXT,
	product_details      TEXT,
	image_url            TEXT,
	image_urls           TEXT[],
	source_url           TEXT,
	discontinued         TEXT,
	unspsc_code          TEXT,
	dimensions           TEXT,
	weight               TEXT,
	manufacturer         TEXT,
	asin                 TEXT,
	model_number         TEXT,
	country_of_origin    TEXT,
	date_first_available TEXT,
	included_components  TEXT,
	generic_name         TEXT,
	error                TEXT,
	PRIMARY KEY (job_id, position)
);

CREATE INDEX IF NOT EXISTS idx_enrichment_results_asin ON enrichment_results(asin);
`

// Archive keeps finished jobs and their result rows in Postgres.
type Archive struct {
	db     *DB
	logger *slog.Logger
}

func NewArchive(db *DB, logger *slog.Logger) *Archive {
	return &Archive{
		db:     db,
		logger: logger.With("component", "job_archive"),
	}
}

func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// SaveJob replaces any previous archive of the job in one transaction.
func (a *Archive) SaveJob(ctx context.Context, job models.JobState, rows []models.ResultRow) error {
	err := a.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO enrichment_jobs
			(job_id, status, file_name, processed, total, start_time, output_location, artifact_url, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (job_id) DO UPDATE SET
				status = EXCLUDED.status,
				processed = EXCLUDED.processed,
				total = EXCLUDED.total,
				finished_at = NOW(),
				output_location = EXCLUDED.output_location,
				artifact_url = EXCLUDED.artifact_url,
				error = EXCLUDED.error`,
			job.JobID, string(job.Status), job.FileName, job.Processed, job.Total, job.StartTime,
			nullable(job.OutputLocation), nullable(job.ArtifactURL), nullable(job.Error))
		if err != nil {
			return fmt.Errorf("failed to upsert job: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM enrichment_results WHERE job_id = $1`, job.JobID); err != nil {
			return fmt.Errorf("failed to clear results: %w", err)
		}

		if len(rows) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, row := range rows {
			batch.Queue(insertResult, resultArgs(job.JobID, i+1, row)...)
		}

		br := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert result row: %w", err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return err
	}

	a.logger.Info("job archived", "job_id", job.JobID, "rows", len(rows))
	return nil
}

var resultColumns = []string{
	"job_id", "position", "sr_no", "item_code", "item_name", "title", "composition",
	"price", "product_details", "image_url", "image_urls", "source_url", "discontinued",
	"unspsc_code", "dimensions", "weight", "manufacturer", "asin", "model_number",
	"country_of_origin", "date_first_available", "included_components", "generic_name", "error",
}

var insertResult = buildInsert("enrichment_results", resultColumns)

func buildInsert(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

func resultArgs(jobID string, position int, r models.ResultRow) []interface{} {
	return []interface{}{
		jobID, position, r.SrNo, r.ItemCode, r.ItemName, r.Title, r.Composition,
		r.Price, r.ProductDetails, r.ImageURL, r.ImageURLs, r.SourceURL, r.Discontinued,
		r.UnspscCode, r.Dimensions, r.Weight, r.Manufacturer, r.ASIN, r.ModelNumber,
		r.CountryOfOrigin, r.DateFirstAvailable, r.IncludedComponents, r.GenericName, nullable(r.Error),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
