package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	clock := time.Now()
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 2, Timeout: time.Second})
	cb.now = func() time.Time { return clock }

	boom := errors.New("boom")
	calls := 0
	failing := func() error { calls++; return boom }

	assert.ErrorIs(t, cb.Execute(failing), boom)
	assert.ErrorIs(t, cb.Execute(failing), boom)
	assert.Equal(t, stateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(failing), ErrOpen)
	assert.Equal(t, 2, calls)

	clock = clock.Add(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(failing), boom)
	assert.Equal(t, stateOpen, cb.State(), "failed probe reopens")

	clock = clock.Add(2 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, stateClosed, cb.State())
}
