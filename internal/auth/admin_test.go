// ABOUTME: Unit tests for admin gate interceptor
// ABOUTME: Tests role-based access control for gated gRPC methods

package auth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const gatedMethod = "/reelchat.v1.PresenceService/ListOnline"

func passHandler(ctx context.Context, req any) (any, error) {
	return "success", nil
}

func TestAdminGate(t *testing.T) {
	interceptor := RequireAdmin(gatedMethod)

	tests := []struct {
		name     string
		ctx      context.Context
		method   string
		wantCode codes.Code
	}{
		{
			name:     "admin can",
			ctx:      WithAuth(context.Background(), &AuthContext{UserID: "ops", Roles: []string{"admin"}}),
			method:   gatedMethod,
			wantCode: codes.OK,
		},
		{
			name:     "member cannot",
			ctx:      WithUser(context.Background(), "alice"),
			method:   gatedMethod,
			wantCode: codes.PermissionDenied,
		},
		{
			name:     "no auth context",
			ctx:      context.Background(),
			method:   gatedMethod,
			wantCode: codes.Unauthenticated,
		},
		{
			name:     "ungated method open",
			ctx:      WithUser(context.Background(), "alice"),
			method:   "/reelchat.v1.PresenceService/IsOnline",
			wantCode: codes.OK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, passHandler)
			if got := status.Code(err); got != tt.wantCode {
				t.Fatalf("status code = %v, want %v", got, tt.wantCode)
			}
			if tt.wantCode == codes.OK && resp != "success" {
				t.Errorf("response = %v, want success", resp)
			}
		})
	}
}
