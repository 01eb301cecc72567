// Package gateway orchestrates the reelchat-gateway server components.
//
// # Overview
//
// The gateway owns the store, the conversation directory, the message
// service and the realtime hub, and serves them over three surfaces:
//
//   - an HTTP JSON API under /api (bearer JWT)
//   - the WebSocket push channel at /ws (JWT in the Authorization header or ?token=)
//   - an optional gRPC admin service, reelchat.v1.PresenceService
//
// The message service publishes through the hub, so a message accepted by
// POST /api/messages is persisted first and then fanned out to the
// conversation room and to every connection of both participants.
//
// # HTTP API
//
//   - GET /api/conversations - List the caller's conversations, most recent first
//   - POST /api/conversations - Get or create the conversation with {"peer_id"}
//   - GET /api/conversations/{id} - Get one conversation
//   - GET /api/conversations/{id}/messages - History page (?cursor=&limit=)
//   - POST /api/conversations/{id}/read - Zero the caller's unread counter
//   - POST /api/messages - Send a message
//   - DELETE /api/messages/{id} - Delete one of the caller's messages
//   - GET /api/unread - Aggregate and per-conversation unread counts
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (store ping)
//
// Errors are returned as {"error": "..."} with the status chosen by
// chaterr.HTTPStatus.
//
// # Listeners
//
// By default the gateway listens on server.http_addr and, when set,
// server.grpc_addr. With tailscale.enabled it joins the tailnet through
// tsnet instead and serves HTTP on :80 (or :443 via Funnel) and gRPC on
// :50051.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
package gateway
