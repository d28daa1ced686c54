package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
	"github.com/arbiter-labs/verdict-cli/internal/model"
)

func TestStoreSink_AppendAndList(t *testing.T) {
	st := jobstore.NewMemory()
	sink := NewStoreSink(st)
	ctx := context.Background()

	err := sink.Append(ctx, model.EventRevealReceived, map[string]any{
		"revealed_verdict": "Verified",
		"tx_hash":          "0xfeed",
	}, "req_42")
	require.NoError(t, err)

	err = sink.Append(ctx, model.EventJobSkipped, map[string]any{"reason": "malformed"}, "req_42")
	require.NoError(t, err)

	// Events for another request stay under their own prefix.
	err = sink.Append(ctx, model.EventAnswerRecorded, nil, "req_7")
	require.NoError(t, err)

	events, err := List(ctx, st, "req_42")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, model.EventRevealReceived, events[0].Type)
	assert.Equal(t, "req_42", events[0].RequestContext)
	assert.Equal(t, "Verified", events[0].Details["revealed_verdict"])
	assert.Equal(t, model.EventJobSkipped, events[1].Type)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestList_Empty(t *testing.T) {
	st := jobstore.NewMemory()
	events, err := List(context.Background(), st, "req_none")
	require.NoError(t, err)
	assert.Empty(t, events)
}
