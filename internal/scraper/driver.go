package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-enricher/internal/models"
	"github.com/maltedev/catalog-enricher/internal/ratelimit"
	"github.com/maltedev/catalog-enricher/internal/retry"
)

type Selectors struct {
	SearchBox    string
	CookieAccept string
	SearchSubmit string
	FirstResult  string
}

func DefaultSelectors() Selectors {
	return Selectors{
		SearchBox:    "#twotabsearchtextbox",
		CookieAccept: "#sp-cc-accept",
		SearchSubmit: "#nav-search-submit-button",
		FirstResult:  "div.s-result-item[data-component-type='s-search-result'] img",
	}
}

type Options struct {
	BaseURL     string
	ElementWait time.Duration
	CookieWait  time.Duration
	Selectors   Selectors
	Retry       retry.Policy
}

func DefaultOptions() Options {
	return Options{
		BaseURL:     "https://www.amazon.in",
		ElementWait: 10 * time.Second,
		CookieWait:  5 * time.Second,
		Selectors:   DefaultSelectors(),
		Retry:       retry.NewPolicy(5*time.Second, 3),
	}
}

// Driver looks products up through the site search, one fresh session per
// attempt.
type Driver struct {
	sessions  SessionFactory
	extractor Extractor
	pacer     *ratelimit.Pacer
	opts      Options
	logger    *slog.Logger
}

func NewDriver(sessions SessionFactory, extractor Extractor, pacer *ratelimit.Pacer, opts Options, logger *slog.Logger) *Driver {
	return &Driver{
		sessions:  sessions,
		extractor: extractor,
		pacer:     pacer,
		opts:      opts,
		logger:    logger.With("component", "lookup_driver"),
	}
}

// Lookup runs the search-and-extract sequence under the retry policy. After
// the last failed attempt it returns the partial record with the last error.
func (d *Driver) Lookup(ctx context.Context, itemName string) models.AttributeRecord {
	logger := d.logger.With("item", itemName)

	policy := d.opts.Retry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		logger.Warn("retrying lookup", "attempt", attempt, "wait", wait, "error", err)
	}

	rec := models.NewAttributeRecord()
	var lastErr error

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		r, err := d.attempt(ctx, logger.With("attempt", attempt), itemName)
		rec = r
		lastErr = err
		return err
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		rec.Error = lastErr.Error()
		logger.Error("lookup failed", "attempts", policy.Attempts(), "error", err)
		return rec
	}

	logger.Info("lookup completed", "title", rec.Title)
	return rec
}

func (d *Driver) attempt(ctx context.Context, logger *slog.Logger, itemName string) (rec models.AttributeRecord, err error) {
	rec = models.NewAttributeRecord()
	stage := StageInit

	session, err := d.sessions.NewSession(ctx)
	if err != nil {
		return rec, stageErr(stage, fmt.Errorf("failed to open session: %w", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("failed to close session", "error", cerr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = stageErr(stage, fmt.Errorf("panic: %v", r))
		}
	}()

	sel := d.opts.Selectors

	if err := session.Navigate(ctx, d.opts.BaseURL); err != nil {
		return rec, stageErr(stage, err)
	}
	stage = StageNavigated
	logger.Debug("site opened", "stage", stage)
	if _, err := d.pacer.Action(ctx); err != nil {
		return rec, stageErr(stage, err)
	}

	if err := session.Click(ctx, sel.CookieAccept, d.opts.CookieWait); err != nil {
		logger.Debug("no cookie dialog", "error", err)
	}
	stage = StageCookie

	if err := d.search(ctx, session, itemName); err != nil {
		return rec, stageErr(stage, err)
	}
	stage = StageSearched
	logger.Debug("search submitted", "stage", stage)
	if _, err := d.pacer.Action(ctx); err != nil {
		return rec, stageErr(stage, err)
	}

	if err := session.Click(ctx, sel.FirstResult, d.opts.ElementWait); err != nil {
		return rec, stageErr(stage, fmt.Errorf("%w: %w", ErrResultMissing, err))
	}
	switched, err := session.FocusLatest(ctx)
	if err != nil {
		return rec, stageErr(stage, err)
	}
	stage = StageResultOpened
	logger.Debug("result opened", "stage", stage, "new_tab", switched)
	if _, err := d.pacer.Action(ctx); err != nil {
		return rec, stageErr(stage, err)
	}

	page, err := session.Snapshot(ctx)
	if err != nil {
		return rec, stageErr(stage, err)
	}

	rec = d.extractor.Extract(page)
	logger.Debug("page extracted", "stage", StageExtracted, "url", rec.URL)
	return rec, nil
}

func (d *Driver) search(ctx context.Context, session Session, itemName string) error {
	sel := d.opts.Selectors

	if err := session.ClearInput(ctx, sel.SearchBox, d.opts.ElementWait); err != nil {
		return fmt.Errorf("search box: %w", err)
	}

	for _, ch := range itemName {
		if err := session.TypeKey(ctx, sel.SearchBox, string(ch)); err != nil {
			return fmt.Errorf("typing query: %w", err)
		}
		if _, err := d.pacer.Keystroke(ctx); err != nil {
			return err
		}
	}

	if err := session.Click(ctx, sel.SearchSubmit, d.opts.ElementWait); err != nil {
		return fmt.Errorf("search submit: %w", err)
	}
	return nil
}
