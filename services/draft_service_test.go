package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"quizsession/session"
)

func startRedis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		require.NoError(t, c.Terminate(ctx))
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestDraftServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb := startRedis(ctx, t)
	drafts := NewDraftService(rdb, time.Hour)
	drafts.now = func() time.Time { return gradedAt }

	d, err := drafts.LoadDraft(ctx, studentID, "3")
	require.NoError(t, err)
	assert.Nil(t, d)

	started := gradedAt.Add(-time.Minute)
	require.NoError(t, drafts.SaveProgress(ctx, studentID, "3", session.Draft{
		Answers:              map[string]string{"10": "21"},
		CurrentQuestionIndex: 1,
		FlaggedQuestions:     []string{"11"},
		StartedAt:            &started,
		ElapsedSeconds:       60,
	}))
	require.NoError(t, drafts.SaveAnswer(ctx, studentID, "3", "12", "Tokyo"))
	require.NoError(t, drafts.SaveAnswer(ctx, studentID, "3", "10", ""))

	d, err = drafts.LoadDraft(ctx, studentID, "3")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, map[string]string{"12": "Tokyo"}, d.Answers)
	assert.Equal(t, 1, d.CurrentQuestionIndex)
	assert.Equal(t, []string{"11"}, d.FlaggedQuestions)
	require.NotNil(t, d.StartedAt)
	assert.True(t, started.Equal(*d.StartedAt))
	assert.True(t, gradedAt.Equal(d.LastSaved))

	ttl, err := rdb.TTL(ctx, draftKey(studentID, "3")).Result()
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)

	other, err := drafts.LoadDraft(ctx, studentID+1, "3")
	require.NoError(t, err)
	assert.Nil(t, other, "drafts are per student")

	require.NoError(t, drafts.ClearDraft(ctx, studentID, "3"))
	d, err = drafts.LoadDraft(ctx, studentID, "3")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDraftServiceConcurrentAnswers(t *testing.T) {
	ctx := context.Background()
	rdb := startRedis(ctx, t)
	drafts := NewDraftService(rdb, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, drafts.SaveAnswer(ctx, studentID, "5", fmt.Sprint(i), "v"))
		}(i)
	}
	wg.Wait()

	d, err := drafts.LoadDraft(ctx, studentID, "5")
	require.NoError(t, err)
	assert.Len(t, d.Answers, 4)
}

func TestDraftServiceRejectsCorruptDraft(t *testing.T) {
	ctx := context.Background()
	rdb := startRedis(ctx, t)
	drafts := NewDraftService(rdb, time.Hour)
	require.NoError(t, rdb.Set(ctx, draftKey(studentID, "9"), `{"answers": 3}`, 0).Err())

	_, err := drafts.LoadDraft(ctx, studentID, "9")
	assert.True(t, errors.Is(err, ErrInvalidDraft))

	// a fresh answer replaces the unreadable draft
	require.NoError(t, drafts.SaveAnswer(ctx, studentID, "9", "1", "a"))
	d, err := drafts.LoadDraft(ctx, studentID, "9")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "a"}, d.Answers)
}

func TestValidateDraft(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"minimal", `{"answers": {}, "currentQuestionIndex": 0}`, true},
		{"full", `{"answers": {"1": "a"}, "currentQuestionIndex": 2, "flaggedQuestions": ["1"],
			"lastSaved": "2024-03-01T09:00:00Z", "startedAt": null, "elapsedSeconds": 40}`, true},
		{"null flags", `{"answers": {}, "currentQuestionIndex": 0, "flaggedQuestions": null}`, true},
		{"missing answers", `{"currentQuestionIndex": 0}`, false},
		{"negative index", `{"answers": {}, "currentQuestionIndex": -1}`, false},
		{"non-string answer", `{"answers": {"1": 2}, "currentQuestionIndex": 0}`, false},
		{"fractional index", `{"answers": {}, "currentQuestionIndex": 1.5}`, false},
		{"not json", `answers`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDraft([]byte(tt.doc))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidDraft), "got %v", err)
			}
		})
	}
}
