// ABOUTME: Admin gate interceptor restricting selected gRPC methods to admin/owner roles
// ABOUTME: Used as second interceptor after authentication to enforce RBAC

package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RequireAdmin returns a gRPC unary interceptor that enforces admin role
// for the listed full method names. Other methods pass through unchanged.
func RequireAdmin(methods ...string) grpc.UnaryServerInterceptor {
	gated := make(map[string]bool, len(methods))
	for _, m := range methods {
		gated[m] = true
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !gated[info.FullMethod] {
			return handler(ctx, req)
		}

		auth := FromContext(ctx)
		if auth == nil {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}

		if !auth.IsAdmin() {
			return nil, status.Error(codes.PermissionDenied, "admin role required")
		}

		return handler(ctx, req)
	}
}
