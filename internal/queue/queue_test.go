package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDedupKeyIsDeterministic(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, DedupKey(id), DedupKey(id))
	assert.Equal(t, "outbound:dispatch:task:"+id.String(), DedupKey(id))

	other := uuid.New()
	assert.NotEqual(t, DedupKey(id), DedupKey(other))
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, RetryBackoff(5*time.Second, 1))
	assert.Equal(t, 10*time.Second, RetryBackoff(5*time.Second, 2))
	assert.Equal(t, 20*time.Second, RetryBackoff(5*time.Second, 3))

	// defaults kick in for degenerate inputs
	assert.Equal(t, 5*time.Second, RetryBackoff(0, 0))
}
