package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(3, time.Minute)
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.CanExecute())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New(3, time.Minute)
	b.OnFailure()
	b.OnFailure()
	assert.True(t, b.CanExecute())
	b.OnFailure()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.CanExecute())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := New(2, time.Minute)
	fixed := time.Now()
	b.now = func() time.Time { return fixed }

	b.OnFailure()
	b.OnFailure()
	assert.Equal(t, Open, b.State())

	b.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	assert.Equal(t, HalfOpen, b.State())
	assert.True(t, b.CanExecute())
}

func TestBreaker_SuccessCloses(t *testing.T) {
	b := New(1, time.Minute)
	b.OnFailure()
	assert.False(t, b.CanExecute())

	b.OnSuccess()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.CanExecute())
}
