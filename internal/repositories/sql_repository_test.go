package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/chaterr"
	"chat-engine/internal/models"
)

var (
	roomCols    = []string{"id", "type", "name", "private_key", "is_deleted", "created_at", "updated_at"}
	messageCols = []string{"id", "room_id", "sender_id", "content", "type", "client_message_id", "is_deleted", "version", "created_at", "updated_at"}
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestRoomRepoGetRoomNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT (.+) FROM chat_rooms WHERE id=").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(roomCols))

	_, err := NewRoomRepo(db).GetRoom(context.Background(), 7)
	assert.ErrorIs(t, err, chaterr.ErrRoomNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepoCreateRoomInsertsSortedParticipants(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	key := models.PrivateRoomKey(2, 9)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO chat_rooms").
		WillReturnRows(sqlmock.NewRows(roomCols).AddRow(11, "PRIVATE", nil, key, false, now, now))
	mock.ExpectExec("INSERT INTO chat_participants").WithArgs(11, 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chat_participants").WithArgs(11, 9).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	room, err := NewRoomRepo(db).CreateRoom(context.Background(),
		models.Room{Type: models.RoomTypePrivate, PrivateKey: &key}, []int64{9, 2, 9})
	require.NoError(t, err)
	assert.Equal(t, int64(11), room.ID)
	assert.Equal(t, models.RoomTypePrivate, room.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepoCreateRoomPrivateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	key := models.PrivateRoomKey(1, 2)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO chat_rooms").WillReturnRows(sqlmock.NewRows(roomCols))
	mock.ExpectRollback()

	_, err := NewRoomRepo(db).CreateRoom(context.Background(),
		models.Room{Type: models.RoomTypePrivate, PrivateKey: &key}, []int64{1, 2})
	assert.ErrorIs(t, err, ErrPrivateRoomExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepoRemoveParticipantReportsRemaining(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chat_participants").WithArgs(3, 4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT").WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectCommit()

	remaining, err := NewRoomRepo(db).RemoveParticipant(context.Background(), 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepoMarkDeletedOnlyOnce(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE chat_rooms SET is_deleted = TRUE").WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := NewRoomRepo(db).MarkDeleted(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepoInsertReplaysExistingClientID(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	clientID := "c-1"
	sender := int64(4)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO chat_messages").WillReturnRows(sqlmock.NewRows(messageCols))
	mock.ExpectQuery("SELECT (.+) FROM chat_messages WHERE client_message_id=").
		WithArgs(clientID).
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow(21, 3, sender, "hi", "TEXT", clientID, false, 0, now, now))
	mock.ExpectCommit()

	saved, inserted, err := NewMessageRepo(db).InsertMessage(context.Background(), models.Message{
		RoomID: 3, SenderID: &sender, Content: "hi", Type: models.MessageTypeText, ClientMessageID: &clientID,
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, int64(21), saved.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepoInsertTouchesRoom(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	clientID := "c-2"
	sender := int64(4)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO chat_messages").
		WillReturnRows(sqlmock.NewRows(messageCols).AddRow(22, 3, sender, "hi", "TEXT", clientID, false, 0, now, now))
	mock.ExpectExec("UPDATE chat_rooms SET updated_at").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	saved, inserted, err := NewMessageRepo(db).InsertMessage(context.Background(), models.Message{
		RoomID: 3, SenderID: &sender, Content: "hi", Type: models.MessageTypeText, ClientMessageID: &clientID,
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(22), saved.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepoUpdateStaleVersion(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE chat_messages").
		WithArgs("edited", false, 5, 2).
		WillReturnRows(sqlmock.NewRows(messageCols))

	_, err := NewMessageRepo(db).UpdateMessage(context.Background(),
		models.Message{ID: 5, Content: "edited"}, 2)
	assert.ErrorIs(t, err, chaterr.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepoCountAfter(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT COUNT(.+) FROM chat_messages").
		WithArgs(3, 10).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := NewMessageRepo(db).CountAfter(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadStateRepoAdvanceIgnoresStale(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE chat_participants SET last_read_message_id").
		WithArgs(10, 1, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	advanced, err := NewReadStateRepo(db).AdvanceLastRead(context.Background(), 1, 2, 10)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadStateRepoGetParticipantMissing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT (.+) FROM chat_participants").
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"room_id", "member_id", "last_read_message_id", "joined_at"}))

	_, err := NewReadStateRepo(db).GetParticipant(context.Background(), 1, 2)
	assert.ErrorIs(t, err, chaterr.ErrNotAParticipant)
	assert.NoError(t, mock.ExpectationsWereMet())
}
