package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/logging"
	"chat-engine/internal/members"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
	"chat-engine/internal/telemetry"
)

// RoomDirectory owns room and participant lifecycles.
type RoomDirectory struct {
	rooms   repositories.RoomRepository
	members members.Directory
	events  *telemetry.Emitter
}

// NewRoomDirectory builds a RoomDirectory. events may be nil.
func NewRoomDirectory(rooms repositories.RoomRepository, directory members.Directory, events *telemetry.Emitter) *RoomDirectory {
	return &RoomDirectory{rooms: rooms, members: directory, events: events}
}

// CreatePrivateRoom returns the live private room between the two members,
// creating it when none exists.
func (d *RoomDirectory) CreatePrivateRoom(ctx context.Context, requesterID, targetID int64) (models.RoomView, error) {
	if requesterID == targetID {
		return models.RoomView{}, chaterr.ErrInvalidMembers
	}
	found, err := d.members.BulkMembers(ctx, []int64{requesterID, targetID})
	if err != nil {
		return models.RoomView{}, err
	}
	if _, ok := found[requesterID]; !ok {
		return models.RoomView{}, chaterr.ErrMemberNotFound
	}
	if _, ok := found[targetID]; !ok {
		return models.RoomView{}, chaterr.ErrMemberNotFound
	}

	participants := sortedIDs([]int64{requesterID, targetID})
	key := models.PrivateRoomKey(requesterID, targetID)

	room, err := d.rooms.FindPrivateRoom(ctx, key)
	if err == nil {
		return models.RoomView{Room: room, ParticipantIDs: participants}, nil
	}
	if !errors.Is(err, chaterr.ErrRoomNotFound) {
		return models.RoomView{}, err
	}

	room, err = d.rooms.CreateRoom(ctx, models.Room{Type: models.RoomTypePrivate, PrivateKey: &key}, participants)
	if errors.Is(err, repositories.ErrPrivateRoomExists) {
		// a concurrent request created it first
		room, err = d.rooms.FindPrivateRoom(ctx, key)
		if err != nil {
			return models.RoomView{}, err
		}
		return models.RoomView{Room: room, ParticipantIDs: participants}, nil
	}
	if err != nil {
		return models.RoomView{}, err
	}

	logging.Ctx(ctx).Info().Int64(logging.FieldRoomID, room.ID).Int64(logging.FieldMemberID, requesterID).Msg("private room created")
	d.events.Emit(ctx, telemetry.EventRoomCreated, room.ID, roomEvent{RoomID: room.ID, Type: room.Type, MemberIDs: participants})
	return models.RoomView{Room: room, ParticipantIDs: participants}, nil
}

// CreateGroupRoom creates a named room for the requester and memberIDs.
func (d *RoomDirectory) CreateGroupRoom(ctx context.Context, requesterID int64, name string, memberIDs []int64) (models.RoomView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.RoomView{}, chaterr.ErrInvalidName
	}

	participants := sortedIDs(append([]int64{requesterID}, memberIDs...))
	found, err := d.members.BulkMembers(ctx, participants)
	if err != nil {
		return models.RoomView{}, err
	}
	for _, id := range participants {
		if _, ok := found[id]; !ok {
			return models.RoomView{}, chaterr.ErrInvalidMembers
		}
	}

	room, err := d.rooms.CreateRoom(ctx, models.Room{Type: models.RoomTypeGroup, Name: &name}, participants)
	if err != nil {
		return models.RoomView{}, err
	}

	logging.Ctx(ctx).Info().Int64(logging.FieldRoomID, room.ID).Int("participants", len(participants)).Msg("group room created")
	d.events.Emit(ctx, telemetry.EventRoomCreated, room.ID, roomEvent{RoomID: room.ID, Type: room.Type, MemberIDs: participants})
	return models.RoomView{Room: room, ParticipantIDs: participants}, nil
}

// ListRooms pages through the member's live rooms, most recently active first.
func (d *RoomDirectory) ListRooms(ctx context.Context, memberID int64, page models.PageRequest) (models.Page[models.Room], error) {
	page = page.Normalize()
	rooms, total, err := d.rooms.ListRoomsForMember(ctx, memberID, page)
	if err != nil {
		return models.Page[models.Room]{}, err
	}
	return models.Page[models.Room]{Items: rooms, Page: page.Page, Size: page.Size, Total: total}, nil
}

// Invite adds members to a group room. Unknown ids and existing participants
// are skipped. It returns the number of members added.
func (d *RoomDirectory) Invite(ctx context.Context, roomID int64, memberIDs []int64) (int, error) {
	room, err := d.liveRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if room.Type == models.RoomTypePrivate {
		return 0, chaterr.ErrInvalidRoomType
	}

	existing, err := d.rooms.ParticipantIDs(ctx, roomID)
	if err != nil {
		return 0, err
	}
	current := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		current[id] = struct{}{}
	}

	candidates := make([]int64, 0, len(memberIDs))
	for _, id := range sortedIDs(memberIDs) {
		if _, ok := current[id]; !ok {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	found, err := d.members.BulkMembers(ctx, candidates)
	if err != nil {
		return 0, err
	}
	newIDs := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := found[id]; ok {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		return 0, nil
	}

	added, err := d.rooms.AddParticipants(ctx, roomID, newIDs)
	if err != nil {
		return 0, err
	}
	d.events.Emit(ctx, telemetry.EventMemberJoined, roomID, roomEvent{RoomID: roomID, Type: room.Type, MemberIDs: newIDs})
	return added, nil
}

// Leave removes the member from the room and deletes the room once nobody
// is left. A private room is deleted as soon as either side leaves and keeps
// both participant rows.
func (d *RoomDirectory) Leave(ctx context.Context, roomID, memberID int64) error {
	room, err := d.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if room.Type == models.RoomTypePrivate {
		ok, err := d.rooms.IsParticipant(ctx, roomID, memberID)
		if err != nil || !ok {
			return err
		}
		return d.markDeleted(ctx, room, memberID)
	}

	remaining, err := d.rooms.RemoveParticipant(ctx, roomID, memberID)
	if err != nil {
		return err
	}
	d.events.Emit(ctx, telemetry.EventMemberLeft, roomID, roomEvent{RoomID: roomID, Type: room.Type, MemberIDs: []int64{memberID}})
	if remaining > 0 || room.IsDeleted {
		return nil
	}
	return d.markDeleted(ctx, room, memberID)
}

// SoftDelete marks the room deleted on behalf of a participant.
func (d *RoomDirectory) SoftDelete(ctx context.Context, roomID, memberID int64) error {
	room, err := d.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsDeleted {
		return chaterr.ErrAlreadyDeleted
	}
	ok, err := d.rooms.IsParticipant(ctx, roomID, memberID)
	if err != nil {
		return err
	}
	if !ok {
		return chaterr.ErrNotAParticipant
	}
	return d.markDeleted(ctx, room, memberID)
}

// GetRoom returns the room, deleted or not, with its participants.
func (d *RoomDirectory) GetRoom(ctx context.Context, roomID int64) (models.RoomView, error) {
	room, err := d.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.RoomView{}, err
	}
	ids, err := d.rooms.ParticipantIDs(ctx, roomID)
	if err != nil {
		return models.RoomView{}, err
	}
	return models.RoomView{Room: room, ParticipantIDs: ids}, nil
}

// ParticipantIDs returns the sorted participant ids of a room.
func (d *RoomDirectory) ParticipantIDs(ctx context.Context, roomID int64) ([]int64, error) {
	return d.rooms.ParticipantIDs(ctx, roomID)
}

// IsParticipant reports membership.
func (d *RoomDirectory) IsParticipant(ctx context.Context, roomID, memberID int64) (bool, error) {
	return d.rooms.IsParticipant(ctx, roomID, memberID)
}

// RequireParticipant returns the live room when memberID belongs to it.
func (d *RoomDirectory) RequireParticipant(ctx context.Context, roomID, memberID int64) (models.Room, error) {
	room, err := d.liveRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	ok, err := d.rooms.IsParticipant(ctx, roomID, memberID)
	if err != nil {
		return models.Room{}, err
	}
	if !ok {
		return models.Room{}, chaterr.ErrNotAParticipant
	}
	return room, nil
}

func (d *RoomDirectory) liveRoom(ctx context.Context, roomID int64) (models.Room, error) {
	room, err := d.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if room.IsDeleted {
		return models.Room{}, chaterr.ErrRoomDeleted
	}
	return room, nil
}

func (d *RoomDirectory) markDeleted(ctx context.Context, room models.Room, memberID int64) error {
	changed, err := d.rooms.MarkDeleted(ctx, room.ID)
	if err != nil {
		return err
	}
	if changed {
		logging.Audit(ctx, "room.deleted", memberID, "room marked deleted")
		d.events.Emit(ctx, telemetry.EventRoomDeleted, room.ID, roomEvent{RoomID: room.ID, Type: room.Type, MemberIDs: []int64{memberID}})
	}
	return nil
}

type roomEvent struct {
	RoomID    int64           `json:"roomId"`
	Type      models.RoomType `json:"type"`
	MemberIDs []int64         `json:"memberIds"`
}

func sortedIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
