package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-enricher/internal/models"
)

// EventType represents the type of job lifecycle event
type EventType string

const (
	EventTypeJobCreated   EventType = "JOB_CREATED"
	EventTypeJobProgress  EventType = "JOB_PROGRESS"
	EventTypeJobCompleted EventType = "JOB_COMPLETED"
	EventTypeJobFailed    EventType = "JOB_FAILED"
)

const DefaultStream = "stream:catalog_jobs"

// Publisher announces job lifecycle changes to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, eventType EventType, job models.JobState) error
}

// RedisClient is the subset of *redis.Client the stream publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// StreamPublisher appends events to a Redis stream.
type StreamPublisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
	now    func() time.Time
}

func NewStreamPublisher(client RedisClient, stream string, logger *slog.Logger) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

func (p *StreamPublisher) Publish(ctx context.Context, eventType EventType, job models.JobState) error {
	eventID := uuid.New().String()
	ts := p.now()

	streamData := map[string]interface{}{
		"id":             eventID,
		"type":           eventType,
		"aggregate_type": "enrichment_job",
		"aggregate_id":   job.JobID,
		"timestamp":      ts.Format(time.RFC3339),
		"payload":        job.View(ts),
		"metadata": map[string]interface{}{
			"source": "catalog-enricher",
		},
	}

	dataJSON, err := json.Marshal(streamData)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":           string(dataJSON),
			"type":           string(eventType),
			"timestamp":      fmt.Sprintf("%d", ts.UnixNano()),
			"original_id":    eventID,
			"aggregate_id":   job.JobID,
			"aggregate_type": "enrichment_job",
			"event_type":     string(eventType),
		},
	}

	if _, err := p.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published",
		"event_type", eventType,
		"job_id", job.JobID,
		"stream", p.stream)

	return nil
}

// NopPublisher drops every event. Used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, EventType, models.JobState) error {
	return nil
}
