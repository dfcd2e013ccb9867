package jobs

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-enricher/internal/models"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("job%05d", n)
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 8)
	assert.Regexp(t, "^[0-9a-f]{8}$", id)
}

func TestMemoryRegistry_CreateGet(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewMemoryRegistry().WithIDGenerator(sequentialIDs()).WithClock(func() time.Time { return start })

	job, err := r.Create("items.xlsx")
	require.NoError(t, err)

	assert.Equal(t, models.JobState{
		JobID:     "job00001",
		Status:    models.JobStatusProcessing,
		StartTime: start,
		FileName:  "items.xlsx",
	}, job)

	got, err := r.Get("job00001")
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryRegistry_DuplicateID(t *testing.T) {
	r := NewMemoryRegistry().WithIDGenerator(func() string { return "deadbeef" })

	_, err := r.Create("a.csv")
	require.NoError(t, err)
	_, err = r.Create("b.csv")
	assert.ErrorIs(t, err, ErrJobExists)
}

func TestMemoryRegistry_ReturnsCopies(t *testing.T) {
	r := NewMemoryRegistry().WithIDGenerator(sequentialIDs())
	job, _ := r.Create("a.csv")

	job.Processed = 99
	got, _ := r.Get(job.JobID)
	assert.Equal(t, 0, got.Processed)
}

func TestMemoryRegistry_UpdateInvariants(t *testing.T) {
	r := NewMemoryRegistry().WithIDGenerator(sequentialIDs())
	job, _ := r.Create("a.csv")

	_, err := r.Update(job.JobID, func(s *models.JobState) { s.Total = 2 })
	require.NoError(t, err)

	_, err = r.Update(job.JobID, func(s *models.JobState) { s.Processed = 3 })
	assert.ErrorIs(t, err, ErrProgressBounds)

	_, err = r.Update(job.JobID, func(s *models.JobState) { s.Processed = 2 })
	require.NoError(t, err)

	_, err = r.Update(job.JobID, func(s *models.JobState) { s.Processed = 1 })
	assert.ErrorIs(t, err, ErrProgressBounds, "processed never decreases")

	_, err = r.Update(job.JobID, func(s *models.JobState) { s.JobID = "hijack"; s.Status = models.JobStatusCompleted })
	require.NoError(t, err)

	got, err := r.Get(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)

	_, err = r.Update(job.JobID, func(s *models.JobState) { s.Status = models.JobStatusFailed })
	assert.ErrorIs(t, err, ErrJobTerminal)

	_, err = r.Update("missing", func(s *models.JobState) {})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryRegistry_ListInsertionOrder(t *testing.T) {
	r := NewMemoryRegistry().WithIDGenerator(sequentialIDs())
	for _, name := range []string{"c.csv", "a.csv", "b.csv"} {
		_, err := r.Create(name)
		require.NoError(t, err)
	}

	var names []string
	for _, job := range r.List() {
		names = append(names, job.FileName)
	}
	assert.Equal(t, []string{"c.csv", "a.csv", "b.csv"}, names)
}

func TestMemoryRegistry_ConcurrentAccess(t *testing.T) {
	r := NewMemoryRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			job, err := r.Create("x.csv")
			if err == nil {
				r.Update(job.JobID, func(s *models.JobState) { s.Total = 1 })
			}
		}()
		go func() {
			defer wg.Done()
			_ = r.List()
		}()
	}
	wg.Wait()

	assert.Len(t, r.List(), 20)
}
