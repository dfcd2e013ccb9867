package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/maltedev/catalog-enricher/internal/app"
	"github.com/maltedev/catalog-enricher/internal/config"
	"github.com/maltedev/catalog-enricher/internal/jobs"
	"github.com/maltedev/catalog-enricher/internal/sheet"
	"github.com/maltedev/catalog-enricher/pkg/logger"
)

// flagEnv maps command flags onto the environment keys they override.
var flagEnv = map[string]string{
	"backend":    "SCRAPER_BACKEND",
	"output-dir": "OUTPUT_DIR",
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	input := cmd.String("input")
	if _, err := sheet.DetectFormat(input); err != nil {
		return err
	}

	for flag, key := range flagEnv {
		if v := cmd.String(flag); v != "" {
			os.Setenv(key, v)
		}
	}
	if cmd.IsSet("batch-size") {
		os.Setenv("SCRAPER_BATCH_SIZE", strconv.Itoa(int(cmd.Int("batch-size"))))
	}

	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.Logging.Level, "text")
	log.Info("starting offline run", "input", input, "backend", cfg.Scraper.Backend)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := stageInput(a, input)
	if err != nil {
		return err
	}

	runErr := a.Runner.Run(ctx, job)

	final, err := a.Registry.Get(job.ID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(final); err != nil {
		return err
	}
	return runErr
}

// stageInput copies the input into the upload directory. The runner removes
// its input when done and the caller's file must survive.
func stageInput(a *app.App, input string) (jobs.Job, error) {
	f, err := os.Open(input)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	state, err := a.Registry.Create(filepath.Base(input))
	if err != nil {
		return jobs.Job{}, err
	}

	path, err := a.Store.StageUpload(state.JobID, input, f)
	if err != nil {
		return jobs.Job{}, err
	}
	return jobs.Job{ID: state.JobID, InputPath: path}, nil
}
