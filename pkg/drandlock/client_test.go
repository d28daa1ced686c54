package drandlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlockDelayDuration(t *testing.T) {
	assert.Equal(t, 60*time.Second, BlockDelayDuration(5, 12))
	assert.Equal(t, 2*time.Second, BlockDelayDuration(1, 2))
	assert.Equal(t, time.Duration(0), BlockDelayDuration(0, 12))
}
