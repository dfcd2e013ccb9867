package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAttributeRecord(t *testing.T) {
	rec := NewAttributeRecord()

	for _, f := range rec.stringFields() {
		assert.Equal(t, NA, *f)
	}
	assert.Equal(t, []string{NA}, rec.ImageURLs)
	assert.Empty(t, rec.Error)
	assert.Empty(t, NewResultRow(ProductQuery{ItemName: "x"}, rec).EmbeddableImages(5))
}

func TestAttributeRecord_Normalize(t *testing.T) {
	rec := AttributeRecord{
		Title:     "  Steel Bottle ",
		Price:     "",
		ImageURLs: []string{"", "https://m.media-amazon.com/a.jpg", "https://m.media-amazon.com/a.jpg", NA},
	}

	rec.Normalize()

	assert.Equal(t, "Steel Bottle", rec.Title)
	assert.Equal(t, NA, rec.Price)
	assert.Equal(t, NA, rec.GenericName)
	assert.Equal(t, []string{"https://m.media-amazon.com/a.jpg"}, rec.ImageURLs)
	assert.Equal(t, rec.ImageURLs, NewResultRow(ProductQuery{ItemName: "x"}, rec).EmbeddableImages(5))

	empty := AttributeRecord{}
	empty.Normalize()
	assert.Equal(t, []string{NA}, empty.ImageURLs)
}

func TestNewResultRow(t *testing.T) {
	rec := NewAttributeRecord()
	rec.Title = "Cello Bottle"
	rec.Composition = "Stainless steel"
	rec.Error = "lookup failed"

	row := NewResultRow(ProductQuery{RowIndex: 3, ItemName: "cello bottle", ItemCode: "IC-9"}, rec)

	assert.Equal(t, NA, row.SrNo)
	assert.Equal(t, "IC-9", row.ItemCode)
	assert.Equal(t, "cello bottle", row.ItemName)
	assert.Equal(t, "Cello Bottle", row.Title)
	assert.Equal(t, "Stainless steel", row.Composition, "falls back to composition when description is NA")
	assert.Equal(t, "lookup failed", row.Error)

	rec.Description = "A bottle"
	row = NewResultRow(ProductQuery{ItemName: "x"}, rec)
	assert.Equal(t, "A bottle", row.Composition)
}

func TestResultRow_EmbeddableImages(t *testing.T) {
	row := ResultRow{ImageURLs: []string{NA, "a", "b", "c"}}
	assert.Equal(t, []string{"a", "b"}, row.EmbeddableImages(2))

	row = ResultRow{ImageURLs: []string{NA}}
	assert.Empty(t, row.EmbeddableImages(5))
}

func TestJobState_ProgressPercentage(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		total     int
		expected  float64
	}{
		{"unknown total", 0, 0, 0},
		{"one third", 1, 3, 33.3},
		{"two thirds", 2, 3, 66.7},
		{"complete", 12, 12, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := JobState{Processed: tt.processed, Total: tt.total}
			assert.Equal(t, tt.expected, job.ProgressPercentage())
		})
	}
}

func TestJobState_View(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	job := JobState{JobID: "abcd1234", Status: JobStatusProcessing, Processed: 1, Total: 4, StartTime: start}

	view := job.View(start.Add(time.Hour + 2*time.Minute + 5*time.Second + 300*time.Millisecond))

	assert.Equal(t, 25.0, view.ProgressPercentage)
	assert.InDelta(t, 3725.3, view.ElapsedSeconds, 0.001)
	assert.Equal(t, "1:02:05", view.ElapsedFormatted)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00:00", FormatElapsed(0))
	assert.Equal(t, "0:01:05", FormatElapsed(65*time.Second))
	assert.Equal(t, "27:46:40", FormatElapsed(100000*time.Second))
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}
