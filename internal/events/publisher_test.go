package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-enricher/internal/models"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func testJob() models.JobState {
	return models.JobState{
		JobID:     "a1b2c3d4",
		Status:    models.JobStatusProcessing,
		Processed: 3,
		Total:     12,
		StartTime: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		FileName:  "items.xlsx",
	}
}

func TestStreamPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("appends event to the stream", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		p := NewStreamPublisher(mockRedis, "", slog.Default())
		p.now = func() time.Time { return time.Date(2025, 3, 1, 10, 1, 0, 0, time.UTC) }

		var captured *redis.XAddArgs
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			captured = args
			return args.Stream == DefaultStream &&
				args.Values["event_type"] == "JOB_PROGRESS" &&
				args.Values["aggregate_id"] == "a1b2c3d4"
		})).Return(nil)

		require.NoError(t, p.Publish(ctx, EventTypeJobProgress, testJob()))
		mockRedis.AssertExpectations(t)

		var data map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(captured.Values["data"].(string)), &data))
		payload := data["payload"].(map[string]interface{})
		assert.Equal(t, 25.0, payload["progress_percentage"])
		assert.Equal(t, "0:01:00", payload["elapsed_formatted"])
	})

	t.Run("redis failure is returned", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		p := NewStreamPublisher(mockRedis, "stream:custom", slog.Default())

		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused"))

		err := p.Publish(ctx, EventTypeJobFailed, testJob())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to publish to redis")
	})
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), EventTypeJobCreated, testJob()))
}
