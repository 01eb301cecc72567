// Package auth provides authentication and authorization for reelchat.
//
// # Tokens
//
// Users authenticate with HS256 JWTs signed with the configured jwt_secret.
// The "sub" claim carries the user ID; an optional "roles" claim carries
// roles such as "admin". Secrets shorter than MinSecretLength are rejected.
//
// # HTTP and WebSocket
//
// HTTPAuthMiddleware reads "Authorization: Bearer <token>" and falls back to a
// "token" query parameter, which is how browsers authenticate WebSocket
// upgrades. The resulting AuthContext is stored on the request context:
//
//	ctx := auth.WithUser(ctx, "alice")
//	userID := auth.UserID(ctx)
//
// # gRPC
//
// UnaryInterceptor and StreamInterceptor read the same bearer token from the
// "authorization" metadata key. RequireAdmin gates individual methods to
// admin or owner roles and must run after authentication.
package auth
