package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

func TestSaveIsIdempotentPerClientMessageID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)

	req := SaveRequest{RoomID: room.ID, SenderID: 1, Content: "hi", Type: models.MessageTypeText, ClientMessageID: "k1"}
	first, replayed, err := f.messages.Save(ctx, req)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Zero(t, first.Version)

	second, replayed, err := f.messages.Save(ctx, req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	page, err := f.messages.ListByRoom(ctx, room.ID, models.PageRequest{}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestSaveReplaySkipsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)
	original := f.send(t, room.ID, 1, "k-replay", "hi")

	require.NoError(t, f.rooms.SoftDelete(ctx, room.ID, 1))

	again, replayed, err := f.messages.Save(ctx, SaveRequest{RoomID: room.ID, SenderID: 1, Content: "hi", Type: models.MessageTypeText, ClientMessageID: "k-replay"})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, original.ID, again.ID)
}

func TestConcurrentSavesWithSameKeyPersistOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1)

	var wg sync.WaitGroup
	ids := make(chan int64, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, _, err := f.messages.Save(ctx, SaveRequest{RoomID: room.ID, SenderID: 1, Content: "x", Type: models.MessageTypeText, ClientMessageID: "race"})
			assert.NoError(t, err)
			ids <- msg.ID
		}()
	}
	wg.Wait()
	close(ids)

	unique := map[int64]struct{}{}
	for id := range ids {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, 1)
}

func TestSaveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)

	cases := map[string]struct {
		req  SaveRequest
		want error
	}{
		"missing key":     {SaveRequest{RoomID: room.ID, SenderID: 1, Content: "x", Type: models.MessageTypeText}, chaterr.ErrMissingIdempotencyKey},
		"key too long":    {SaveRequest{RoomID: room.ID, SenderID: 1, Content: "x", Type: models.MessageTypeText, ClientMessageID: strings.Repeat("k", 65)}, chaterr.ErrIdempotencyKeyTooLong},
		"system type":     {SaveRequest{RoomID: room.ID, SenderID: 1, Content: "x", Type: models.MessageTypeSystem, ClientMessageID: "a"}, chaterr.ErrUnsupportedType},
		"unknown room":    {SaveRequest{RoomID: 999, SenderID: 1, Content: "x", Type: models.MessageTypeText, ClientMessageID: "b"}, chaterr.ErrRoomNotFound},
		"unknown sender":  {SaveRequest{RoomID: room.ID, SenderID: 50, Content: "x", Type: models.MessageTypeText, ClientMessageID: "c"}, chaterr.ErrSenderNotFound},
		"not participant": {SaveRequest{RoomID: room.ID, SenderID: 3, Content: "x", Type: models.MessageTypeText, ClientMessageID: "d"}, chaterr.ErrNotAParticipant},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.messages.Save(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSaveAcceptsKeyAtColumnWidth(t *testing.T) {
	f := newFixture(t)
	room := f.group(t, 1)

	key := strings.Repeat("é", MaxClientMessageIDLength)
	msg, replayed, err := f.messages.Save(context.Background(), SaveRequest{
		RoomID: room.ID, SenderID: 1, Content: "x", Type: models.MessageTypeText, ClientMessageID: key,
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, key, *msg.ClientMessageID)

	_, _, err = f.messages.Save(context.Background(), SaveRequest{
		RoomID: room.ID, SenderID: 1, Content: "x", Type: models.MessageTypeText, ClientMessageID: key + "é",
	})
	assert.Equal(t, "IDEMPOTENCY_KEY_TOO_LONG", chaterr.Code(err))
	assert.Equal(t, chaterr.KindValidation, chaterr.KindOf(err))
}

func TestSaveSystemMessageRejectsDeletedRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1)
	require.NoError(t, f.rooms.Leave(ctx, room.ID, 1))

	_, err := f.messages.SaveSystemMessage(ctx, room.ID, "alice left.")
	assert.ErrorIs(t, err, chaterr.ErrRoomDeleted)

	_, err = f.messages.SaveSystemMessage(ctx, 999, "ghost joined.")
	assert.ErrorIs(t, err, chaterr.ErrRoomNotFound)

	page, err := f.messages.ListByRoom(ctx, room.ID, models.PageRequest{Size: 10}, false)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestSaveSystemMessage(t *testing.T) {
	f := newFixture(t)
	room := f.group(t, 1)

	msg, err := f.messages.SaveSystemMessage(context.Background(), room.ID, "alice joined.")
	require.NoError(t, err)
	assert.Nil(t, msg.SenderID)
	assert.Nil(t, msg.ClientMessageID)
	assert.Equal(t, models.MessageTypeSystem, msg.Type)
}

func TestEditWindowBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1)
	early := f.send(t, room.ID, 1, "k-early", "v1")
	late := f.send(t, room.ID, 1, "k-late", "v1")

	f.clock.Advance(4*time.Minute + 59*time.Second)
	edited, err := f.messages.Edit(ctx, 1, early.ID, "v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", edited.Content)
	assert.Equal(t, early.Version+1, edited.Version)

	f.clock.Advance(2 * time.Second)
	_, err = f.messages.Edit(ctx, 1, late.ID, "v2")
	assert.ErrorIs(t, err, chaterr.ErrEditWindowExpired)
	_, err = f.messages.SoftDelete(ctx, 1, late.ID)
	assert.ErrorIs(t, err, chaterr.ErrEditWindowExpired)
}

func TestEditAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)
	msg := f.send(t, room.ID, 1, "k", "mine")

	_, err := f.messages.Edit(ctx, 2, msg.ID, "theirs")
	assert.ErrorIs(t, err, chaterr.ErrNotSender)

	_, err = f.messages.Edit(ctx, 1, 12345, "x")
	assert.ErrorIs(t, err, chaterr.ErrMessageNotFound)

	_, err = f.messages.Edit(ctx, 1, msg.ID, "  ")
	assert.ErrorIs(t, err, chaterr.ErrInvalidContent)
}

// readBarrier holds every GetMessage until n callers have read, so they all
// observe the same version.
type readBarrier struct {
	repositories.MessageRepository
	wg *sync.WaitGroup
}

func (b readBarrier) GetMessage(ctx context.Context, id int64) (models.Message, error) {
	msg, err := b.MessageRepository.GetMessage(ctx, id)
	b.wg.Done()
	b.wg.Wait()
	return msg, err
}

func TestConcurrentEditsExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1)
	msg := f.send(t, room.ID, 1, "k", "v0")

	conflictsBefore := conflictCount(t, "edit")
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	store := NewMessageStore(readBarrier{MessageRepository: f.store, wg: barrier}, f.store, f.members, nil, f.clock.Now)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, content := range []string{"a", "b"} {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			_, err := store.Edit(ctx, 1, msg.ID, content)
			errs <- err
		}(content)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case chaterr.KindOf(err) == chaterr.KindConflict:
			conflicts++
			assert.True(t, chaterr.Retryable(err))
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, conflictsBefore+1, conflictCount(t, "edit"))

	stored, err := f.messages.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Version+1, stored.Version)
}

func TestSoftDeleteRestoreAndRender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)
	msg := f.send(t, room.ID, 1, "k", "secret")

	deleted, err := f.messages.SoftDelete(ctx, 1, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	views := f.messages.Render(ctx, deleted)
	require.Len(t, views, 1)
	assert.Equal(t, models.MessageTypeSystem, views[0].Type)
	assert.Equal(t, models.DeletedPlaceholder, views[0].Content)
	assert.Nil(t, views[0].Sender)

	restored, err := f.messages.Restore(ctx, 1, msg.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)
	assert.Equal(t, msg.Version+2, restored.Version)

	views = f.messages.Render(ctx, restored)
	assert.Equal(t, "secret", views[0].Content)
	require.NotNil(t, views[0].Sender)
	assert.Equal(t, "alice", views[0].Sender.Name)
	assert.Equal(t, "alice.png", views[0].Sender.AvatarRef)
}

func TestListByRoomAndRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.group(t, 1)

	var msgs []models.Message
	for _, key := range []string{"a", "b", "c", "d"} {
		msgs = append(msgs, f.send(t, room.ID, 1, key, key))
		f.clock.Advance(time.Second)
	}
	_, err := f.messages.SoftDelete(ctx, 1, msgs[3].ID)
	require.NoError(t, err)

	live, err := f.messages.ListByRoom(ctx, room.ID, models.PageRequest{Size: 2}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), live.Total)
	require.Len(t, live.Items, 2)
	assert.Equal(t, msgs[0].ID, live.Items[0].ID)

	recent, err := f.messages.Recent(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, msgs[2].ID, recent[0].ID)
	assert.Equal(t, msgs[1].ID, recent[1].ID)

	all, err := f.messages.Recent(ctx, room.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func conflictCount(t *testing.T, op string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "chat_message_conflicts_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "op" && label.GetValue() == op {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
