// ABOUTME: Shared fixtures for gateway tests
// ABOUTME: Builds a gateway over a MockStore with seeded users and token helpers

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/reelchat/internal/config"
	"github.com/2389/reelchat/internal/store"
)

const testSecret = "test-secret-key-for-jwt-signing!"

type testGateway struct {
	gw     *Gateway
	store  *store.MockStore
	server *httptest.Server
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = testSecret
	return cfg
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	return newTestGatewayWithConfig(t, testConfig())
}

func newTestGatewayWithConfig(t *testing.T, cfg *config.Config) *testGateway {
	t.Helper()

	s := store.NewMockStore()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.UpsertUser(context.Background(), &store.User{ID: id, Username: id, CreatedAt: time.Now()}))
	}

	gw, err := NewWithStore(cfg, s, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		gw.hub.Close()
		srv.Close()
		_ = gw.Shutdown(context.Background())
	})

	return &testGateway{gw: gw, store: s, server: srv}
}

func (tg *testGateway) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tok, err := tg.gw.verifier.Generate(userID, time.Hour, roles...)
	require.NoError(t, err)
	return tok
}

// do sends a request as userID (anonymous when empty) and decodes a JSON
// response into out when out is non-nil.
func (tg *testGateway) do(t *testing.T, userID, method, path string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, tg.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tg.token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}
