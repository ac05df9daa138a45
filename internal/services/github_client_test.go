package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moltingpot/internal/config"
)

func newTestGitHubClient(t *testing.T, handler http.HandlerFunc) *GitHubClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewGitHubClient(&config.Config{
		GitHubToken:     "ghp_test",
		GitHubRepoOwner: "moltingpot",
		GitHubRepoName:  "app",
		GitHubAPIBase:   server.URL,
		UpstreamTimeout: 5 * time.Second,
		UpstreamRPS:     100,
	})
}

func TestGitHubClient_Configured(t *testing.T) {
	assert.False(t, NewGitHubClient(&config.Config{UpstreamRPS: 1}).Configured())
	assert.True(t, NewGitHubClient(&config.Config{GitHubToken: "t", GitHubRepoOwner: "o", GitHubRepoName: "r", UpstreamRPS: 1}).Configured())
}

func TestGitHubClient_DefaultBranchSendsHeaders(t *testing.T) {
	client := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/moltingpot/app", r.URL.Path)
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		w.Write([]byte(`{"default_branch":"trunk"}`))
	})

	branch, err := client.DefaultBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "trunk", branch)
}

func TestGitHubClient_ContributionSequence(t *testing.T) {
	var putBody map[string]string
	var prBody map[string]string

	client := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/moltingpot/app/git/ref/heads/main":
			w.Write([]byte(`{"object":{"sha":"abc123"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/repos/moltingpot/app/git/refs":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "refs/heads/agent/crab-1", body["ref"])
			assert.Equal(t, "abc123", body["sha"])
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && r.URL.Path == "/repos/moltingpot/app/contents/docs/new.md":
			assert.Equal(t, "agent/crab-1", r.URL.Query().Get("ref"))
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/repos/moltingpot/app/contents/docs/new.md":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&putBody))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && r.URL.Path == "/repos/moltingpot/app/pulls":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&prBody))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"number":7,"html_url":"https://github.com/moltingpot/app/pull/7"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	sha, err := client.BranchHead(ctx, "main")
	require.NoError(t, err)
	require.NoError(t, client.CreateBranch(ctx, "agent/crab-1", sha))

	fileSHA, found, err := client.FileSHA(ctx, "docs/new.md", "agent/crab-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, fileSHA)

	require.NoError(t, client.PutFile(ctx, FileCommit{
		Path:    "docs/new.md",
		Content: []byte("hello"),
		Message: "Add doc",
		Branch:  "agent/crab-1",
	}))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), putBody["content"])
	assert.Equal(t, "agent/crab-1", putBody["branch"])
	_, hasSHA := putBody["sha"]
	assert.False(t, hasSHA)

	pr, err := client.CreatePullRequest(ctx, PullRequestInput{Title: "Add doc", Body: "body", Head: "agent/crab-1", Base: "main"})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "main", prBody["base"])
}

func TestGitHubClient_ErrorMapping(t *testing.T) {
	status := http.StatusNotFound
	client := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"Something happened"}`))
	})
	ctx := context.Background()

	_, err := client.Contents(ctx, "missing.md", "")
	assert.True(t, IsGitHubNotFound(err))

	status = http.StatusForbidden
	_, err = client.SearchCode(ctx, "x", 20)
	assert.Equal(t, KindRateLimited, KindOf(err))

	status = http.StatusUnprocessableEntity
	err = client.CreateBranch(ctx, "agent/x", "sha")
	var apiErr *GitHubAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "Something happened", apiErr.Message)
}

func TestGitHubClient_CancelledAndOversized(t *testing.T) {
	client := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"default_branch":"main","padding":"` + strings.Repeat("a", maxUpstreamBody) + `"}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.DefaultBranch(ctx)
	assert.Equal(t, KindUpstreamError, KindOf(err))
	assert.Contains(t, err.Error(), "rate limiter")

	_, err = client.DefaultBranch(context.Background())
	assert.Equal(t, KindUpstreamError, KindOf(err))
	assert.Contains(t, err.Error(), "exceeds")
}

func TestGitHubClient_ContentsDirectoryAndSearch(t *testing.T) {
	client := newTestGitHubClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/moltingpot/app/contents/internal":
			w.Write([]byte(`[{"name":"a.go","path":"internal/a.go","type":"file","size":3,"sha":"1"}]`))
		case "/search/code":
			assert.Equal(t, "upvote repo:moltingpot/app", r.URL.Query().Get("q"))
			assert.Equal(t, "20", r.URL.Query().Get("per_page"))
			w.Write([]byte(`{"items":[{"name":"a.go","path":"internal/a.go","sha":"1","html_url":"https://x"}]}`))
		case "/repos/moltingpot/app/git/trees/main":
			assert.Equal(t, "1", r.URL.Query().Get("recursive"))
			w.Write([]byte(`{"sha":"t","tree":[{"path":"internal","type":"tree"}],"truncated":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	contents, err := client.Contents(ctx, "internal", "")
	require.NoError(t, err)
	assert.Nil(t, contents.File)
	require.Len(t, contents.Entries, 1)
	assert.Equal(t, "internal/a.go", contents.Entries[0].Path)

	items, err := client.SearchCode(ctx, "upvote", 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://x", items[0].HTMLURL)

	tree, err := client.Tree(ctx, "main")
	require.NoError(t, err)
	require.Len(t, tree.Tree, 1)
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "docs/my%20file.md", escapePath("docs/my file.md"))
	assert.Equal(t, "a/b/c.go", escapePath("a/b/c.go"))
}
