package agent

import "github.com/rotisserie/eris"

var (
	// ErrJobDataInvalid marks a question job missing required fields.
	// Per-job: skip and log, never fatal to the poll loop.
	ErrJobDataInvalid = eris.New("question job data invalid")

	// ErrAnswerGenerationFailed marks a failed content fetch or answer
	// generation. Per-job: skip and log, no partial record is written.
	ErrAnswerGenerationFailed = eris.New("answer generation failed")
)
