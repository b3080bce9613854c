package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall(t *testing.T) {
	v, err := Call(context.Background(), time.Second, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	cause := errors.New("boom")
	_, err = Call(context.Background(), time.Second, func() (int, error) { return 0, cause })
	assert.ErrorIs(t, err, cause)
}

func TestCall_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	_, err := Call(context.Background(), 20*time.Millisecond, func() (int, error) {
		<-block
		return 1, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestCall_Cancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, time.Second, func() (int, error) {
		<-block
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
