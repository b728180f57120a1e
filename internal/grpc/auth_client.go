package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"chat-engine/internal/auth"
	"chat-engine/internal/chaterr"
)

const validateTokenMethod = "/auth.AuthService/ValidateToken"

// Invoker is the subset of *grpc.ClientConn used by the clients.
type Invoker interface {
	Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error
}

// AuthClient verifies tokens against the auth service.
type AuthClient struct {
	conn Invoker
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(conn Invoker) *AuthClient {
	return &AuthClient{conn: conn}
}

// Verify validates the token remotely and returns the authenticated member.
func (a *AuthClient) Verify(ctx context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, chaterr.ErrUnauthenticated
	}
	req, err := structpb.NewStruct(map[string]any{"token": token})
	if err != nil {
		return auth.Identity{}, err
	}

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, validateTokenMethod, req, resp); err != nil {
		return auth.Identity{}, fmt.Errorf("validate token: %w", err)
	}

	fields := resp.GetFields()
	memberID := int64(fields["user_id"].GetNumberValue())
	if !fields["valid"].GetBoolValue() || memberID <= 0 {
		return auth.Identity{}, chaterr.ErrUnauthenticated
	}

	role := fields["role"].GetStringValue()
	if role == "" {
		role = auth.RoleMember
	}
	return auth.Identity{MemberID: memberID, Role: role}, nil
}
