package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/models"
)

// MemoryStore keeps rooms, participants and messages in process. It satisfies
// RoomRepository, MessageRepository and ReadStateRepository with the same
// conditional-write semantics as the Postgres repositories.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextRoomID    int64
	nextMessageID int64

	rooms        map[int64]*models.Room
	privateKeys  map[string]int64
	participants map[int64]map[int64]*models.Participant
	messages     map[int64]*models.Message
	byClientID   map[string]int64
	roomMessages map[int64][]int64
}

// NewMemoryStore creates an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:          now,
		rooms:        map[int64]*models.Room{},
		privateKeys:  map[string]int64{},
		participants: map[int64]map[int64]*models.Participant{},
		messages:     map[int64]*models.Message{},
		byClientID:   map[string]int64{},
		roomMessages: map[int64][]int64{},
	}
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID int64) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, chaterr.ErrRoomNotFound
	}
	return *room, nil
}

func (s *MemoryStore) FindPrivateRoom(_ context.Context, key string) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.privateKeys[key]
	if !ok {
		return models.Room{}, chaterr.ErrRoomNotFound
	}
	return *s.rooms[id], nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, room models.Room, memberIDs []int64) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.PrivateKey != nil {
		if _, taken := s.privateKeys[*room.PrivateKey]; taken {
			return models.Room{}, ErrPrivateRoomExists
		}
	}

	now := s.now()
	s.nextRoomID++
	created := room
	created.ID = s.nextRoomID
	created.IsDeleted = false
	created.CreatedAt = now
	created.UpdatedAt = now
	s.rooms[created.ID] = &created
	if created.PrivateKey != nil {
		s.privateKeys[*created.PrivateKey] = created.ID
	}

	members := map[int64]*models.Participant{}
	for _, id := range dedupe(memberIDs) {
		members[id] = &models.Participant{RoomID: created.ID, MemberID: id, JoinedAt: now}
	}
	s.participants[created.ID] = members
	return created, nil
}

func (s *MemoryStore) ListRoomsForMember(_ context.Context, memberID int64, page models.PageRequest) ([]models.Room, int64, error) {
	s.mu.RLock()
	var rooms []models.Room
	for roomID, members := range s.participants {
		if _, ok := members[memberID]; !ok {
			continue
		}
		if room := s.rooms[roomID]; !room.IsDeleted {
			rooms = append(rooms, *room)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt) {
			return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
		}
		return rooms[i].ID > rooms[j].ID
	})
	return paginate(rooms, page), int64(len(rooms)), nil
}

func (s *MemoryStore) ParticipantIDs(_ context.Context, roomID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.participants[roomID]))
	for id := range s.participants[roomID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) IsParticipant(_ context.Context, roomID int64, memberID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.participants[roomID][memberID]
	return ok, nil
}

func (s *MemoryStore) AddParticipants(_ context.Context, roomID int64, memberIDs []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.participants[roomID]
	if !ok {
		return 0, chaterr.ErrRoomNotFound
	}
	added := 0
	for _, id := range dedupe(memberIDs) {
		if _, exists := members[id]; exists {
			continue
		}
		members[id] = &models.Participant{RoomID: roomID, MemberID: id, JoinedAt: s.now()}
		added++
	}
	return added, nil
}

func (s *MemoryStore) RemoveParticipant(_ context.Context, roomID int64, memberID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.participants[roomID]
	delete(members, memberID)
	return len(members), nil
}

func (s *MemoryStore) MarkDeleted(_ context.Context, roomID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || room.IsDeleted {
		return false, nil
	}
	room.IsDeleted = true
	room.UpdatedAt = s.now()
	if room.PrivateKey != nil && s.privateKeys[*room.PrivateKey] == roomID {
		delete(s.privateKeys, *room.PrivateKey)
	}
	return true, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, messageID int64) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, chaterr.ErrMessageNotFound
	}
	return *msg, nil
}

func (s *MemoryStore) GetByClientMessageID(_ context.Context, clientMessageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byClientID[clientMessageID]
	if !ok {
		return models.Message{}, chaterr.ErrMessageNotFound
	}
	return *s.messages[id], nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, msg models.Message) (models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ClientMessageID != nil {
		if id, ok := s.byClientID[*msg.ClientMessageID]; ok {
			return *s.messages[id], false, nil
		}
	}
	room, ok := s.rooms[msg.RoomID]
	if !ok {
		return models.Message{}, false, chaterr.ErrRoomNotFound
	}

	now := s.now()
	s.nextMessageID++
	saved := msg
	saved.ID = s.nextMessageID
	saved.IsDeleted = false
	saved.Version = 0
	saved.CreatedAt = now
	saved.UpdatedAt = now
	s.messages[saved.ID] = &saved
	s.roomMessages[saved.RoomID] = append(s.roomMessages[saved.RoomID], saved.ID)
	if saved.ClientMessageID != nil {
		s.byClientID[*saved.ClientMessageID] = saved.ID
	}
	room.UpdatedAt = now
	return saved, true, nil
}

func (s *MemoryStore) UpdateMessage(_ context.Context, msg models.Message, expectedVersion int64) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.messages[msg.ID]
	if !ok || stored.Version != expectedVersion {
		return models.Message{}, chaterr.ErrConcurrentModification
	}
	stored.Content = msg.Content
	stored.IsDeleted = msg.IsDeleted
	stored.Version++
	stored.UpdatedAt = s.now()
	return *stored, nil
}

func (s *MemoryStore) ListByRoom(_ context.Context, roomID int64, page models.PageRequest, excludeDeleted bool) ([]models.Message, int64, error) {
	s.mu.RLock()
	msgs := make([]models.Message, 0, len(s.roomMessages[roomID]))
	for _, id := range s.roomMessages[roomID] {
		msg := s.messages[id]
		if excludeDeleted && msg.IsDeleted {
			continue
		}
		msgs = append(msgs, *msg)
	}
	s.mu.RUnlock()
	return paginate(msgs, page), int64(len(msgs)), nil
}

func (s *MemoryStore) Recent(_ context.Context, roomID int64, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.roomMessages[roomID]
	msgs := []models.Message{}
	for i := len(ids) - 1; i >= 0 && len(msgs) < limit; i-- {
		if msg := s.messages[ids[i]]; !msg.IsDeleted {
			msgs = append(msgs, *msg)
		}
	}
	return msgs, nil
}

func (s *MemoryStore) CountAfter(_ context.Context, roomID int64, afterID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, id := range s.roomMessages[roomID] {
		if id > afterID && !s.messages[id].IsDeleted {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetParticipant(_ context.Context, roomID int64, memberID int64) (models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[roomID][memberID]
	if !ok {
		return models.Participant{}, chaterr.ErrNotAParticipant
	}
	return *p, nil
}

func (s *MemoryStore) AdvanceLastRead(_ context.Context, roomID int64, memberID int64, messageID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][memberID]
	if !ok {
		return false, nil
	}
	if p.LastReadMessageID != nil && *p.LastReadMessageID >= messageID {
		return false, nil
	}
	id := messageID
	p.LastReadMessageID = &id
	return true, nil
}

func (s *MemoryStore) ListReadStatuses(_ context.Context, roomID int64) ([]models.ReadStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statuses := make([]models.ReadStatus, 0, len(s.participants[roomID]))
	for _, p := range s.participants[roomID] {
		statuses = append(statuses, models.ReadStatus{RoomID: roomID, MemberID: p.MemberID, MessageID: p.LastReadMessageID})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].MemberID < statuses[j].MemberID })
	return statuses, nil
}

func paginate[T any](items []T, page models.PageRequest) []T {
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
