package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-engine/internal/members"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock    *testClock
	store    *repositories.MemoryStore
	members  *members.StaticDirectory
	rooms    *RoomDirectory
	messages *MessageStore
	reads    *ReadTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	store := repositories.NewMemoryStore(clock.Now)
	dir := members.NewStaticDirectory(
		models.Member{ID: 1, Name: "alice", AvatarURL: "alice.png"},
		models.Member{ID: 2, Name: "bob"},
		models.Member{ID: 3, Name: "carol"},
		models.Member{ID: 4, Name: "dave"},
	)
	return &fixture{
		clock:    clock,
		store:    store,
		members:  dir,
		rooms:    NewRoomDirectory(store, dir, nil),
		messages: NewMessageStore(store, store, dir, nil, clock.Now),
		reads:    NewReadTracker(store, store, nil),
	}
}

func (f *fixture) group(t *testing.T, requester int64, others ...int64) models.RoomView {
	t.Helper()
	room, err := f.rooms.CreateGroupRoom(context.Background(), requester, "team", others)
	require.NoError(t, err)
	return room
}

func (f *fixture) send(t *testing.T, roomID, sender int64, key, content string) models.Message {
	t.Helper()
	msg, _, err := f.messages.Save(context.Background(), SaveRequest{
		RoomID: roomID, SenderID: sender, Content: content, Type: models.MessageTypeText, ClientMessageID: key,
	})
	require.NoError(t, err)
	return msg
}
