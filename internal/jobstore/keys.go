package jobstore

import (
	"fmt"
	"strings"
	"time"
)

// Key layout. Question jobs are never deleted; answer keys embed the agent
// identity so the existence of the key is the per-agent idempotency guard.
const (
	JobPrefix   = "jobs/"
	AuditPrefix = "audit/"
	answersRoot = "answers/"
)

// JobKey returns the storage key for a question job.
func JobKey(requestContext string) string {
	return JobPrefix + requestContext
}

// AnswerKey returns the storage key for one agent's answer to one request.
func AnswerKey(requestContext, agentID string) string {
	return answersRoot + requestContext + "/" + agentID
}

// AnswerPrefix returns the listing prefix for all answers to a request.
func AnswerPrefix(requestContext string) string {
	return answersRoot + requestContext + "/"
}

// AuditKey returns a unique, time-ordered storage key for an audit event.
func AuditKey(requestContext, eventID string, at time.Time) string {
	return fmt.Sprintf("%s%s/%d-%s", AuditPrefix, requestContext, at.UnixNano(), eventID)
}

// RequestContextFromJobKey recovers the request context from a job key.
// Returns "" for keys outside the job prefix.
func RequestContextFromJobKey(key string) string {
	if !strings.HasPrefix(key, JobPrefix) {
		return ""
	}
	return strings.TrimPrefix(key, JobPrefix)
}
