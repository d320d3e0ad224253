package sourcehost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *GitHubClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base
	return NewGitHubClientWith(gh)
}

func TestAddCollaboratorRequestsPullPermission(t *testing.T) {
	mux := http.NewServeMux()
	var body map[string]string
	mux.HandleFunc("/repos/acme/ui-kit/collaborators/octocat", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.AddCollaborator(context.Background(), "acme", "ui-kit", "octocat"))
	assert.Equal(t, "pull", body["permission"])
}

func TestAddCollaboratorFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/ui-kit/collaborators/octocat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Must have admin rights"}`))
	})

	c := newTestClient(t, mux)
	err := c.AddCollaborator(context.Background(), "acme", "ui-kit", "octocat")
	assert.Error(t, err)
}

func TestPermissionLevel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/ui-kit/collaborators/octocat/permission", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"permission":"read"}`))
	})
	mux.HandleFunc("/repos/acme/ui-kit/collaborators/ghost/permission", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	})

	c := newTestClient(t, mux)
	level, err := c.PermissionLevel(context.Background(), "acme", "ui-kit", "octocat")
	require.NoError(t, err)
	assert.Equal(t, PermissionRead, level)

	level, err = c.PermissionLevel(context.Background(), "acme", "ui-kit", "ghost")
	require.NoError(t, err)
	assert.Equal(t, "none", level)
}
