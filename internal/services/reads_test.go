package services

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/chaterr"
)

func TestUnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)

	var last int64
	for i := 1; i <= 10; i++ {
		last = f.send(t, room.ID, 1, fmt.Sprintf("k%d", i), "m").ID
	}
	require.Equal(t, int64(10), last)

	ok, err := f.reads.MarkRead(ctx, room.ID, 2, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := f.reads.UnreadCount(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.reads.MarkRead(ctx, room.ID, 2, 10)
	require.NoError(t, err)
	n, err = f.reads.UnreadCount(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.reads.UnreadCount(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestUnreadCountSkipsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)
	f.send(t, room.ID, 1, "a", "a")
	gone := f.send(t, room.ID, 1, "b", "b")
	_, err := f.messages.SoftDelete(ctx, 1, gone.ID)
	require.NoError(t, err)

	n, err := f.reads.UnreadCount(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.reads.UnreadCount(ctx, room.ID, 3)
	assert.ErrorIs(t, err, chaterr.ErrNotAParticipant)
}

func TestReadPointerIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)
	for i := 1; i <= 20; i++ {
		f.send(t, room.ID, 1, fmt.Sprintf("k%d", i), "m")
	}

	rng := rand.New(rand.NewSource(7))
	var highest int64
	for i := 0; i < 200; i++ {
		id := int64(rng.Intn(20) + 1)
		advanced, err := f.reads.MarkRead(ctx, room.ID, 2, id)
		require.NoError(t, err)
		assert.Equal(t, id > highest, advanced)
		if id > highest {
			highest = id
		}

		statuses, err := f.reads.Statuses(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, statuses, 2)
		require.NotNil(t, statuses[1].MessageID)
		assert.Equal(t, highest, *statuses[1].MessageID)
	}
}

func TestMarkReadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)
	other := f.group(t, 3)
	msg := f.send(t, room.ID, 1, "k", "m")

	_, err := f.reads.MarkRead(ctx, room.ID, 2, 999)
	assert.ErrorIs(t, err, chaterr.ErrMessageNotFound)

	_, err = f.reads.MarkRead(ctx, other.ID, 3, msg.ID)
	assert.ErrorIs(t, err, chaterr.ErrRoomMismatch)

	_, err = f.reads.MarkRead(ctx, room.ID, 4, msg.ID)
	assert.ErrorIs(t, err, chaterr.ErrNotAParticipant)
}
