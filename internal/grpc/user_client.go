package grpc

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"chat-engine/internal/models"
)

const bulkUsersMethod = "/user.UserInternal/BulkUsers"

// UserClient resolves member profiles from the user service.
type UserClient struct {
	conn Invoker
}

// NewUserClient constructs the wrapper.
func NewUserClient(conn Invoker) *UserClient {
	return &UserClient{conn: conn}
}

// BulkMembers fetches multiple members in one call. Unknown ids are absent
// from the result.
func (u *UserClient) BulkMembers(ctx context.Context, ids []int64) (map[int64]models.Member, error) {
	out := make(map[int64]models.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, float64(id))
	}
	req, err := structpb.NewStruct(map[string]any{"ids": values})
	if err != nil {
		return nil, err
	}

	resp := &structpb.Struct{}
	if err := u.conn.Invoke(ctx, bulkUsersMethod, req, resp); err != nil {
		return nil, fmt.Errorf("bulk users: %w", err)
	}

	for _, v := range resp.GetFields()["users"].GetListValue().GetValues() {
		user := v.GetStructValue().GetFields()
		id := int64(user["id"].GetNumberValue())
		if id == 0 {
			continue
		}
		out[id] = models.Member{
			ID:        id,
			Name:      user["username"].GetStringValue(),
			AvatarURL: user["avatar_url"].GetStringValue(),
		}
	}
	return out, nil
}
