package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesSecondHolder(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "cash-session:ana", time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "cash-session:ana", time.Second)
	assert.ErrorIs(t, err, ErrBusy)

	other, err := l.Acquire(ctx, "cash-session:ben", time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := l.Acquire(ctx, "cash-session:ana", time.Second)
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}
