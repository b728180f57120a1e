package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"chat-engine/internal/auth"
	"chat-engine/internal/chaterr"
)

type fakeInvoker struct {
	method string
	req    *structpb.Struct
	reply  map[string]any
	err    error
}

func (f *fakeInvoker) Invoke(_ context.Context, method string, args any, reply any, _ ...grpc.CallOption) error {
	f.method = method
	f.req = args.(*structpb.Struct)
	if f.err != nil {
		return f.err
	}
	s, err := structpb.NewStruct(f.reply)
	if err != nil {
		return err
	}
	reply.(*structpb.Struct).Fields = s.Fields
	return nil
}

func TestAuthClientVerify(t *testing.T) {
	inv := &fakeInvoker{reply: map[string]any{"valid": true, "user_id": 12, "role": "ADMIN"}}
	id, err := NewAuthClient(inv).Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{MemberID: 12, Role: auth.RoleAdmin}, id)
	assert.Equal(t, validateTokenMethod, inv.method)
	assert.Equal(t, "tok", inv.req.GetFields()["token"].GetStringValue())
}

func TestAuthClientRejectsInvalid(t *testing.T) {
	inv := &fakeInvoker{reply: map[string]any{"valid": false}}
	_, err := NewAuthClient(inv).Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, chaterr.ErrUnauthenticated)

	_, err = NewAuthClient(inv).Verify(context.Background(), "")
	assert.ErrorIs(t, err, chaterr.ErrUnauthenticated)
}

func TestAuthClientTransportError(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("unavailable")}
	_, err := NewAuthClient(inv).Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, chaterr.ErrUnauthenticated)
}

func TestUserClientBulkMembers(t *testing.T) {
	inv := &fakeInvoker{reply: map[string]any{"users": []any{
		map[string]any{"id": 1, "username": "alice", "avatar_url": "a.png"},
		map[string]any{"id": 2, "username": "bob"},
	}}}

	got, err := NewUserClient(inv).BulkMembers(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "alice", got[1].Name)
	assert.Equal(t, "a.png", got[1].AvatarURL)
	assert.Equal(t, bulkUsersMethod, inv.method)
	assert.Len(t, inv.req.GetFields()["ids"].GetListValue().GetValues(), 3)
}

func TestUserClientEmptyIDsSkipsCall(t *testing.T) {
	inv := &fakeInvoker{}
	got, err := NewUserClient(inv).BulkMembers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, inv.method)
}
