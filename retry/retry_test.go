package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("503")
		}
		return nil
	}, WithInitialDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsAtMaxRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	boom := errors.New("boom")
	err := Do(context.Background(), func() error {
		attempts++
		return boom
	}, WithMaxRetries(2), WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	attempts := 0
	notFound := errors.New("404")
	err := Do(context.Background(), func() error {
		attempts++
		return Permanent(notFound)
	}, WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, notFound)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, func() error {
		attempts++
		cancel()
		return errors.New("temporary")
	}, WithInitialDelay(time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestPermanent_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}
