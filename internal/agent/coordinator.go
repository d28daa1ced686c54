// Package agent implements the answer deduplication coordinator: each
// agent identity answers a given request at most once, safe under
// concurrent agents and process restarts, with no central lock. The
// job-store answer key is the exclusion boundary.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arbiter-labs/verdict-cli/internal/audit"
	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
	"github.com/arbiter-labs/verdict-cli/internal/model"
)

// Coordinator polls the job store for pending question jobs and answers
// the ones this agent has not answered yet.
type Coordinator struct {
	store   jobstore.Store
	fetcher Fetcher
	gen     Generator
	sink    audit.Sink
	agentID string
}

// NewCoordinator wires a Coordinator for one agent identity.
func NewCoordinator(store jobstore.Store, fetcher Fetcher, gen Generator, sink audit.Sink, agentID string) *Coordinator {
	return &Coordinator{
		store:   store,
		fetcher: fetcher,
		gen:     gen,
		sink:    sink,
		agentID: agentID,
	}
}

// PollOnce runs one poll cycle and returns how many new answers were
// written. Individual job failures are isolated and logged; only a
// failure to list jobs at all surfaces as an error.
func (c *Coordinator) PollOnce(ctx context.Context) (int, error) {
	keys, err := c.store.List(ctx, jobstore.JobPrefix)
	if err != nil {
		return 0, eris.Wrap(err, "agent: list jobs")
	}

	answered := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return answered, nil
		}
		if c.processJob(ctx, key) {
			answered++
		}
	}
	return answered, nil
}

// processJob handles one discovered job key. Returns true only when a
// new answer record was written.
func (c *Coordinator) processJob(ctx context.Context, key string) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		zap.L().Error("job fetch failed",
			zap.String("job_key", key),
			zap.Error(err),
		)
		return false
	}

	var job model.QuestionJob
	if data == nil {
		err = eris.Wrap(ErrJobDataInvalid, "job object absent")
	} else if err = json.Unmarshal(data, &job); err != nil {
		err = eris.Wrapf(ErrJobDataInvalid, "unmarshal: %v", err)
	} else if !job.Valid() {
		err = eris.Wrap(ErrJobDataInvalid, "missing request context, question, or knowledge base")
	}
	if err != nil {
		zap.L().Error("skipping malformed question job",
			zap.String("job_key", key),
			zap.String("request_context", job.RequestContext),
			zap.Error(err),
		)
		c.appendAudit(ctx, model.EventJobSkipped, map[string]any{
			"job_key": key,
			"error":   err.Error(),
		}, job.RequestContext)
		return false
	}

	// Idempotency gate: this agent's answer key either exists or it
	// doesn't. The check-then-write race is accepted; the key is unique
	// per agent, so a same-agent double write is a harmless overwrite
	// with identical intent, and different agents are both expected to
	// answer.
	answerKey := jobstore.AnswerKey(job.RequestContext, c.agentID)
	existing, err := c.store.Get(ctx, answerKey)
	if err != nil {
		zap.L().Error("answer record check failed",
			zap.String("request_context", job.RequestContext),
			zap.Error(err),
		)
		return false
	}
	if existing != nil {
		zap.L().Debug("already answered",
			zap.String("request_context", job.RequestContext),
			zap.String("agent_id", c.agentID),
		)
		return false
	}

	content, err := c.fetcher.Fetch(ctx, job.KnowledgeBase)
	if err != nil {
		c.logAnswerFailure(ctx, job, "fetch", err)
		return false
	}

	answer, err := c.gen.GenerateAnswer(ctx, job.Question, content, job.RequestContext)
	if err != nil {
		c.logAnswerFailure(ctx, job, "generate", err)
		return false
	}

	record := model.AnswerRecord{
		RequestContext: job.RequestContext,
		AgentID:        c.agentID,
		Answer:         answer,
		Status:         model.AnswerStatusAnswered,
		CreatedAt:      time.Now().UTC(),
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		c.logAnswerFailure(ctx, job, "marshal", err)
		return false
	}
	if err := c.store.Put(ctx, answerKey, recordJSON); err != nil {
		c.logAnswerFailure(ctx, job, "write", err)
		return false
	}

	zap.L().Info("answer recorded",
		zap.String("request_context", job.RequestContext),
		zap.String("agent_id", c.agentID),
	)
	c.appendAudit(ctx, model.EventAnswerRecorded, map[string]any{
		"agent_id": c.agentID,
	}, job.RequestContext)
	return true
}

func (c *Coordinator) logAnswerFailure(ctx context.Context, job model.QuestionJob, stage string, err error) {
	wrapped := eris.Wrapf(ErrAnswerGenerationFailed, "stage %s: %v", stage, err)
	zap.L().Error("answer attempt failed",
		zap.String("request_context", job.RequestContext),
		zap.String("agent_id", c.agentID),
		zap.String("stage", stage),
		zap.Error(wrapped),
	)
	c.appendAudit(ctx, model.EventAnswerFailed, map[string]any{
		"agent_id": c.agentID,
		"stage":    stage,
		"error":    err.Error(),
	}, job.RequestContext)
}

func (c *Coordinator) appendAudit(ctx context.Context, eventType string, details map[string]any, requestContext string) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Append(ctx, eventType, details, requestContext); err != nil {
		zap.L().Error("audit append failed", zap.Error(err))
	}
}

// Run polls at a fixed interval until the context is cancelled. The job
// store has no push primitive, so polling is the scheduling model; one
// cycle runs immediately on start.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := c.PollOnce(ctx); err != nil {
			zap.L().Error("poll cycle failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("poll cycle complete", zap.Int("answered", n))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
