package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/catalog-enricher/internal/models"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobExists      = errors.New("job already exists")
	ErrJobTerminal    = errors.New("job already finished")
	ErrProgressBounds = errors.New("processed out of bounds")
)

// Registry is the process-wide job table. Entries are never removed.
type Registry interface {
	Create(fileName string) (models.JobState, error)
	Get(jobID string) (models.JobState, error)
	Update(jobID string, fn func(*models.JobState)) (models.JobState, error)
	List() []models.JobState
}

// NewID returns the first 8 hex characters of a random UUID.
func NewID() string {
	return uuid.New().String()[:8]
}

// MemoryRegistry keeps jobs in a map guarded by a RWMutex and hands out
// copies only.
type MemoryRegistry struct {
	mu    sync.RWMutex
	jobs  map[string]*models.JobState
	order []string
	newID func() string
	now   func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs:  make(map[string]*models.JobState),
		newID: NewID,
		now:   time.Now,
	}
}

// WithIDGenerator replaces the id source, e.g. for deterministic tests.
func (r *MemoryRegistry) WithIDGenerator(fn func() string) *MemoryRegistry {
	r.newID = fn
	return r
}

func (r *MemoryRegistry) WithClock(fn func() time.Time) *MemoryRegistry {
	r.now = fn
	return r
}

func (r *MemoryRegistry) Create(fileName string) (models.JobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	if _, exists := r.jobs[id]; exists {
		return models.JobState{}, fmt.Errorf("%w: %s", ErrJobExists, id)
	}

	job := &models.JobState{
		JobID:     id,
		Status:    models.JobStatusProcessing,
		StartTime: r.now(),
		FileName:  fileName,
	}
	r.jobs[id] = job
	r.order = append(r.order, id)
	return *job, nil
}

func (r *MemoryRegistry) Get(jobID string) (models.JobState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return models.JobState{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return *job, nil
}

// Update applies fn to a copy of the job and stores it only if the result
// keeps the job invariants: no transition out of a terminal status, the id
// is unchanged and processed stays within [0, total].
func (r *MemoryRegistry) Update(jobID string, fn func(*models.JobState)) (models.JobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return models.JobState{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status.IsTerminal() {
		return *job, fmt.Errorf("%w: %s is %s", ErrJobTerminal, jobID, job.Status)
	}

	next := *job
	fn(&next)
	next.JobID = job.JobID

	if next.Processed < job.Processed || next.Processed < 0 || (next.Total > 0 && next.Processed > next.Total) {
		return *job, fmt.Errorf("%w: %d of %d", ErrProgressBounds, next.Processed, next.Total)
	}

	*job = next
	return next, nil
}

// List returns every job, oldest first.
func (r *MemoryRegistry) List() []models.JobState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.JobState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.jobs[id])
	}
	return out
}
