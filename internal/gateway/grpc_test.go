// ABOUTME: Tests for the PresenceService gRPC admin service
// ABOUTME: Runs the service over bufconn with the real auth interceptor chain

package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/realtime"
)

type presenceFixture struct {
	hub      *realtime.Hub
	client   *PresenceClient
	verifier *auth.JWTVerifier
}

func newPresenceFixture(t *testing.T) *presenceFixture {
	t.Helper()

	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)

	hub := realtime.NewHub(realtime.HubOptions{}, nil)
	srv := newGRPCServer(verifier, nil)
	registerPresenceService(srv, newPresenceService(hub, nil))

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		hub.Close()
	})

	return &presenceFixture{hub: hub, client: NewPresenceClient(conn), verifier: verifier}
}

func (f *presenceFixture) ctx(t *testing.T, userID string, roles ...string) context.Context {
	t.Helper()
	tok, err := f.verifier.Generate(userID, time.Hour, roles...)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func TestPresenceService_AdminCalls(t *testing.T) {
	f := newPresenceFixture(t)
	_, err := f.hub.Register("bob")
	require.NoError(t, err)
	_, err = f.hub.Register("alice")
	require.NoError(t, err)
	_, err = f.hub.Register("alice")
	require.NoError(t, err)

	ctx := f.ctx(t, "root", "admin")

	online, err := f.client.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)

	stats, err := f.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, realtime.Stats{OnlineUsers: 2, Connections: 3}, stats)
}

func TestPresenceService_IsOnlineForAnyUser(t *testing.T) {
	f := newPresenceFixture(t)
	_, err := f.hub.Register("bob")
	require.NoError(t, err)

	ctx := f.ctx(t, "alice")

	online, err := f.client.IsOnline(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, online)

	online, err = f.client.IsOnline(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, online)

	_, err = f.client.IsOnline(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPresenceService_AuthEnforced(t *testing.T) {
	f := newPresenceFixture(t)

	_, err := f.client.IsOnline(context.Background(), "bob")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = f.client.ListOnline(f.ctx(t, "alice"))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = f.client.Stats(f.ctx(t, "alice"))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = f.client.Disconnect(f.ctx(t, "alice"), "bob")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestPresenceService_Disconnect(t *testing.T) {
	f := newPresenceFixture(t)
	c1, err := f.hub.Register("bob")
	require.NoError(t, err)
	_, err = f.hub.Register("bob")
	require.NoError(t, err)

	n, err := f.client.Disconnect(f.ctx(t, "root", "admin"), "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, f.hub.Presence().IsOnline("bob"))

	// Outbound queue is closed once drained.
	for range c1.Outbound() {
	}

	n, err = f.client.Disconnect(f.ctx(t, "root", "admin"), "bob")
	require.NoError(t, err)
	assert.Zero(t, n)
}
