package vercel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const userBody = `{"user": {"id": "usr_1", "username": "hatchpad-bot", "email": "ops@hatchpad.dev"}}`

const projectsBody = `{"projects": [
	{"id": "prj_web", "name": "marketing-site", "framework": "nextjs", "updatedAt": 1756300000000},
	{"id": "prj_docs", "name": "docs", "framework": "astro", "updatedAt": 1756200000000}
]}`

const deploymentsBody = `{"deployments": [
	{"uid": "dpl_1", "name": "marketing-site", "url": "site-abc.vercel.app", "state": "READY", "target": "production", "created": 1756300000000},
	{"uid": "dpl_2", "name": "marketing-site", "url": "site-def.vercel.app", "state": "ERROR", "target": "preview", "created": 1756290000000}
]}`

// stubAPI fakes the three Vercel endpoints the adapter touches. Deployment
// listing can be failed per project id.
func stubAPI(t *testing.T, failDeploymentsFor string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/v2/user":
			_, _ = w.Write([]byte(userBody))
		case "/v9/projects":
			_, _ = w.Write([]byte(projectsBody))
		case "/v6/deployments":
			if r.URL.Query().Get("projectId") == failDeploymentsFor {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(deploymentsBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(url string) map[string]any {
	return map[string]any{"api_base_url": url}
}

func testSecret() map[string]any {
	return map[string]any{"token": "test-token"}
}

func TestValidateConnection(t *testing.T) {
	adapter := New(zap.NewNop())

	t.Run("valid token", func(t *testing.T) {
		server := stubAPI(t, "")

		result, err := adapter.ValidateConnection(context.Background(), testConfig(server.URL), testSecret())
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, "hatchpad-bot", result.Metadata["username"])
	})

	t.Run("rejected token", func(t *testing.T) {
		server := stubAPI(t, "")

		result, err := adapter.ValidateConnection(context.Background(), testConfig(server.URL), map[string]any{"token": "wrong"})
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "authentication failed")
	})

	t.Run("missing token", func(t *testing.T) {
		result, err := adapter.ValidateConnection(context.Background(), testConfig("https://api.vercel.com"), map[string]any{})
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "access token is required")
	})
}

func TestSync(t *testing.T) {
	adapter := New(zap.NewNop())

	t.Run("projects and deployments", func(t *testing.T) {
		server := stubAPI(t, "")

		result, err := adapter.Sync(context.Background(), testConfig(server.URL), testSecret())
		require.NoError(t, err)
		assert.Empty(t, result.Warnings)
		assert.Equal(t, 2, result.Stats["projects"])
		assert.Equal(t, 4, result.Stats["deployments"])
		assert.Len(t, result.Assets, 6)

		assert.Equal(t, "project", result.Assets[0].Type)
		assert.Equal(t, "prj_web", result.Assets[0].Key)
		assert.Equal(t, "marketing-site", result.Assets[0].Name)
		assert.Equal(t, "nextjs", result.Assets[0].Data["framework"])

		assert.Equal(t, "deployment", result.Assets[1].Type)
		assert.Equal(t, "dpl_1", result.Assets[1].Key)
		assert.Equal(t, "READY", result.Assets[1].Data["state"])
		assert.Equal(t, "prj_web", result.Assets[1].Data["project_id"])
	})

	t.Run("deployment failure for one project is a warning", func(t *testing.T) {
		server := stubAPI(t, "prj_docs")

		result, err := adapter.Sync(context.Background(), testConfig(server.URL), testSecret())
		require.NoError(t, err)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], `deployments for project "docs"`)
		assert.Equal(t, 2, result.Stats["projects"])
		assert.Equal(t, 2, result.Stats["deployments"])
	})

	t.Run("rejected token is fatal", func(t *testing.T) {
		server := stubAPI(t, "")

		_, err := adapter.Sync(context.Background(), testConfig(server.URL), map[string]any{"token": "wrong"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authentication failed")
	})
}

func TestTeamScoping(t *testing.T) {
	var gotTeamID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTeamID = r.URL.Query().Get("teamId")
		_, _ = w.Write([]byte(userBody))
	}))
	t.Cleanup(server.Close)

	adapter := New(zap.NewNop())
	cfg := map[string]any{"api_base_url": server.URL, "team_id": "team_42"}

	result, err := adapter.ValidateConnection(context.Background(), cfg, testSecret())
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "team_42", gotTeamID)
}
