package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arbiter-labs/verdict-cli/internal/audit"
	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
	"github.com/arbiter-labs/verdict-cli/internal/model"
)

func putJob(t *testing.T, store jobstore.Store, job model.QuestionJob) {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), jobstore.JobKey(job.RequestContext), data))
}

func getAnswer(t *testing.T, store jobstore.Store, requestContext, agentID string) *model.AnswerRecord {
	t.Helper()
	data, err := store.Get(context.Background(), jobstore.AnswerKey(requestContext, agentID))
	require.NoError(t, err)
	if data == nil {
		return nil
	}
	var rec model.AnswerRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return &rec
}

func testJob(requestContext string) model.QuestionJob {
	return model.QuestionJob{
		RequestContext: requestContext,
		Question:       "Is the claim correct?",
		KnowledgeBase:  "kb/sources",
	}
}

func newTestCoordinator(store jobstore.Store, agentID string) (*Coordinator, *mockFetcher, *mockGenerator) {
	fetcher := &mockFetcher{}
	gen := &mockGenerator{}
	c := NewCoordinator(store, fetcher, gen, audit.NewStoreSink(store), agentID)
	return c, fetcher, gen
}

func TestPollOnce_AnswersPendingJob(t *testing.T) {
	store := jobstore.NewMemory()
	putJob(t, store, testJob("req_1"))

	c, fetcher, gen := newTestCoordinator(store, "0xA")
	fetcher.On("Fetch", mock.Anything, "kb/sources").Return("source text", nil).Once()
	gen.On("GenerateAnswer", mock.Anything, "Is the claim correct?", "source text", "req_1").
		Return("Yes, verified.", nil).Once()

	n, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := getAnswer(t, store, "req_1", "0xA")
	require.NotNil(t, rec)
	assert.Equal(t, "Yes, verified.", rec.Answer)
	assert.Equal(t, model.AnswerStatusAnswered, rec.Status)
	assert.Equal(t, "0xA", rec.AgentID)

	// The question job is intentionally retained for other agents.
	jobData, err := store.Get(context.Background(), jobstore.JobKey("req_1"))
	require.NoError(t, err)
	assert.NotNil(t, jobData)
}

func TestPollOnce_IdempotentAcrossCycles(t *testing.T) {
	store := jobstore.NewMemory()
	putJob(t, store, testJob("req_1"))

	c, fetcher, gen := newTestCoordinator(store, "0xA")
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return("source", nil).Once()
	gen.On("GenerateAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("answer", nil).Once()

	n, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Further cycles see the existing record and write nothing; the mocks'
	// Once() would fail if fetch or generation ran again.
	for i := 0; i < 3; i++ {
		n, err = c.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
	fetcher.AssertExpectations(t)
	gen.AssertExpectations(t)
}

func TestPollOnce_IdempotentAcrossRestart(t *testing.T) {
	store := jobstore.NewMemory()
	putJob(t, store, testJob("req_1"))

	c1, fetcher1, gen1 := newTestCoordinator(store, "0xA")
	fetcher1.On("Fetch", mock.Anything, mock.Anything).Return("source", nil).Once()
	gen1.On("GenerateAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("answer", nil).Once()

	_, err := c1.PollOnce(context.Background())
	require.NoError(t, err)

	// A fresh coordinator with the same credential-derived identity
	// simulates a process restart: zero additional writes.
	c2, _, _ := newTestCoordinator(store, "0xA")
	n, err := c2.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPollOnce_TwoAgentsBothAnswer(t *testing.T) {
	store := jobstore.NewMemory()
	putJob(t, store, testJob("req_1"))

	for _, agentID := range []string{"0xA", "0xB"} {
		c, fetcher, gen := newTestCoordinator(store, agentID)
		fetcher.On("Fetch", mock.Anything, mock.Anything).Return("source", nil).Once()
		gen.On("GenerateAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("answer from "+agentID, nil).Once()

		n, err := c.PollOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	keys, err := store.List(context.Background(), jobstore.AnswerPrefix("req_1"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestPollOnce_MalformedJobSkippedLoopContinues(t *testing.T) {
	store := jobstore.NewMemory()
	// Missing the question field.
	require.NoError(t, store.Put(context.Background(), jobstore.JobKey("req_bad"),
		[]byte(`{"request_context":"req_bad","knowledge_base":"kb/x"}`)))
	// Not JSON at all.
	require.NoError(t, store.Put(context.Background(), jobstore.JobKey("req_junk"), []byte("{{")))
	putJob(t, store, testJob("req_good"))

	c, fetcher, gen := newTestCoordinator(store, "0xA")
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return("source", nil).Once()
	gen.On("GenerateAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("answer", nil).Once()

	n, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the good job in the same cycle must still be processed")

	assert.Nil(t, getAnswer(t, store, "req_bad", "0xA"))
	assert.NotNil(t, getAnswer(t, store, "req_good", "0xA"))

	events, err := audit.List(context.Background(), store, "req_bad")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventJobSkipped, events[0].Type)
}

func TestPollOnce_GenerationFailureWritesNoPartialRecord(t *testing.T) {
	store := jobstore.NewMemory()
	putJob(t, store, testJob("req_1"))

	c, fetcher, gen := newTestCoordinator(store, "0xA")
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return("source", nil)
	gen.On("GenerateAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", eris.New("model overloaded"))

	n, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Nil(t, getAnswer(t, store, "req_1", "0xA"))

	events, err := audit.List(context.Background(), store, "req_1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAnswerFailed, events[0].Type)
	assert.Equal(t, "generate", events[0].Details["stage"])
}

func TestPollOnce_FetchFailureIsIsolated(t *testing.T) {
	store := jobstore.NewMemory()
	putJob(t, store, testJob("req_1"))
	putJob(t, store, testJob("req_2"))

	c, fetcher, gen := newTestCoordinator(store, "0xA")
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return("", eris.New("kb gone")).Once()
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return("source", nil).Once()
	gen.On("GenerateAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("answer", nil).Once()

	n, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
