package model

import (
	"time"
)

// QuestionJob is one pending question discovered in the job store. The
// original job object is retained after answering so that late-joining
// agents can still discover and answer it.
type QuestionJob struct {
	RequestContext string    `json:"request_context"`
	Question       string    `json:"question"`
	KnowledgeBase  string    `json:"knowledge_base"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// Valid reports whether the job carries every field an agent needs.
func (j QuestionJob) Valid() bool {
	return j.RequestContext != "" && j.Question != "" && j.KnowledgeBase != ""
}

// AnswerStatus tracks the outcome of one agent's answer attempt.
type AnswerStatus string

const (
	AnswerStatusAnswered AnswerStatus = "answered"
)

// AnswerRecord is one agent's answer to one request. It is keyed by
// (request context, agent identity); its existence is the idempotency
// guard against the same agent answering twice.
type AnswerRecord struct {
	RequestContext string       `json:"request_context"`
	AgentID        string       `json:"agent_id"`
	Answer         string       `json:"answer"`
	Status         AnswerStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// CommitResult is returned to the caller of a successful verdict commit.
type CommitResult struct {
	ProtocolRequestID string `json:"protocol_request_id"`
	TxHash            string `json:"tx_hash"`
	CiphertextHash    string `json:"ciphertext_hash"`
}

// Commitment is the full immutable record of one on-chain verdict commit.
type Commitment struct {
	Verdict           string    `json:"verdict"`
	RevealHeight      uint64    `json:"reveal_height"`
	Ciphertext        []byte    `json:"ciphertext"`
	ProtocolRequestID string    `json:"protocol_request_id"`
	TxHash            string    `json:"tx_hash"`
	CiphertextHash    string    `json:"ciphertext_hash"`
	CreatedAt         time.Time `json:"created_at"`
}

// Audit event types emitted by the coordination layer.
const (
	EventRevealReceived     = "TIMELOCK_REVEAL_RECEIVED"
	EventRevealDecodeFailed = "TIMELOCK_REVEAL_DECODE_FAILED"
	EventVerdictCommitted   = "VERDICT_COMMITTED"
	EventAnswerRecorded     = "AGENT_ANSWER_RECORDED"
	EventJobSkipped         = "QUESTION_JOB_SKIPPED"
	EventAnswerFailed       = "AGENT_ANSWER_FAILED"
)

// AuditEvent is one entry in the append-only audit log.
type AuditEvent struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	RequestContext string         `json:"request_context,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
