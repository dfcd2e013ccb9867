package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/catalog-enricher/internal/models"
	"github.com/maltedev/catalog-enricher/internal/parser"
)

var (
	ErrBlocked       = errors.New("blocked by Amazon anti-bot")
	ErrResultMissing = errors.New("no search result found")
)

// Lookuper turns a product name into an attribute record. Lookups never
// fail outright: problems are reported through the record's Error field.
type Lookuper interface {
	Lookup(ctx context.Context, itemName string) models.AttributeRecord
}

// Session is one isolated browser context. It is used for a single lookup
// attempt and then closed.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	ClearInput(ctx context.Context, selector string, timeout time.Duration) error
	TypeKey(ctx context.Context, selector, key string) error
	// FocusLatest switches to the most recently opened tab, if any, and
	// reports whether the focus changed.
	FocusLatest(ctx context.Context) (bool, error)
	Snapshot(ctx context.Context) (parser.Page, error)
	Close() error
}

type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Extractor reads an attribute record off a loaded product page.
type Extractor interface {
	Extract(page parser.Page) models.AttributeRecord
}

type Stage string

const (
	StageInit         Stage = "init"
	StageNavigated    Stage = "navigated"
	StageCookie       Stage = "cookie"
	StageSearched     Stage = "searched"
	StageResultOpened Stage = "result_opened"
	StageExtracted    Stage = "extracted"
)

// StageError records the state a lookup attempt was leaving when it failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
