package models

import (
	"fmt"
	"math"
	"time"
)

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobState is the registry entry of one upload.
type JobState struct {
	JobID          string    `json:"job_id"`
	Status         JobStatus `json:"status"`
	Processed      int       `json:"processed"`
	Total          int       `json:"total"`
	StartTime      time.Time `json:"start_time"`
	FileName       string    `json:"file_name"`
	OutputLocation string    `json:"output_file,omitempty"`
	ArtifactURL    string    `json:"artifact_url,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// ProgressPercentage is processed/total*100 rounded to one decimal, or 0 while
// the total is unknown.
func (j JobState) ProgressPercentage() float64 {
	if j.Total <= 0 {
		return 0
	}
	return math.Round(float64(j.Processed)/float64(j.Total)*1000) / 10
}

// JobStatusView is the status payload returned to pollers.
type JobStatusView struct {
	JobState
	ProgressPercentage float64 `json:"progress_percentage"`
	ElapsedSeconds     float64 `json:"elapsed_seconds"`
	ElapsedFormatted   string  `json:"elapsed_formatted"`
}

// View derives the read-time fields of a job state.
func (j JobState) View(now time.Time) JobStatusView {
	elapsed := now.Sub(j.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	return JobStatusView{
		JobState:           j,
		ProgressPercentage: j.ProgressPercentage(),
		ElapsedSeconds:     elapsed.Seconds(),
		ElapsedFormatted:   FormatElapsed(elapsed),
	}
}

// JobSummary is one entry of the job listing.
type JobSummary struct {
	Status             JobStatus `json:"status"`
	FileName           string    `json:"file_name"`
	Processed          int       `json:"processed"`
	Total              int       `json:"total"`
	ProgressPercentage float64   `json:"progress_percentage"`
	StartTime          time.Time `json:"start_time"`
}

func (j JobState) Summary() JobSummary {
	return JobSummary{
		Status:             j.Status,
		FileName:           j.FileName,
		Processed:          j.Processed,
		Total:              j.Total,
		ProgressPercentage: j.ProgressPercentage(),
		StartTime:          j.StartTime,
	}
}

// FormatElapsed renders a duration as H:MM:SS, truncating fractional seconds.
func FormatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
