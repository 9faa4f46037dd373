package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makequeue-backend/config"
	"makequeue-backend/internal/model"
)

func newTestDirectory(t *testing.T, handler http.HandlerFunc) (*HTTPDirectory, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.IdentityConfig{BaseURL: server.URL, CacheTTLSeconds: 60}
	cfg.Timeout = 0 // default client timeout is fine against httptest
	return NewHTTPDirectory(cfg), server
}

func TestGetUserDetails(t *testing.T) {
	var hits int
	dir, _ := newTestDirectory(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		switch r.URL.Path {
		case "/users/alice":
			w.Header().Set("Content-Type", "application/json")
			err := json.NewEncoder(w).Encode(map[string]string{
				"username": "alice", "display_name": "Alice Hansen", "role": "member",
			})
			assert.NoError(t, err)
		case "/users/oddrole":
			w.Header().Set("Content-Type", "application/json")
			err := json.NewEncoder(w).Encode(map[string]string{
				"username": "oddrole", "display_name": "Odd Role", "role": "wizard",
			})
			assert.NoError(t, err)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()

	details, err := dir.GetUserDetails(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "Alice Hansen", details.DisplayName)
	assert.Equal(t, model.RoleMember, details.Role)

	// Second lookup is served from the cache.
	_, err = dir.GetUserDetails(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	// Misses are nil, nil and cached too.
	missing, err := dir.GetUserDetails(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
	missing, err = dir.GetUserDetails(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, 2, hits)

	// Unrecognized roles degrade to external.
	odd, err := dir.GetUserDetails(ctx, "oddrole")
	require.NoError(t, err)
	require.NotNil(t, odd)
	assert.Equal(t, model.RoleExternal, odd.Role)
}

func TestEventExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/events/workshop-42" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker := NewHTTPEventChecker(&config.EventsConfig{BaseURL: server.URL})

	exists, err := checker.EventExists(context.Background(), "workshop-42")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = checker.EventExists(context.Background(), "no-such-event")
	require.NoError(t, err)
	assert.False(t, exists)
}
