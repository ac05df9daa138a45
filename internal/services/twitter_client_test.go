package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moltingpot/internal/config"
)

func newTestTwitterClient(t *testing.T, token string, handler http.HandlerFunc) *TwitterClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewTwitterClient(&config.Config{
		Environment:        "development",
		TwitterBearerToken: token,
		TwitterAPIBase:     server.URL,
		PlatformMention:    "@themoltingpot",
		UpstreamTimeout:    5 * time.Second,
		UpstreamRPS:        100,
	})
}

func TestTwitterClient_FindsMatchingTweet(t *testing.T) {
	client := newTestTwitterClient(t, "bearer", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer bearer", r.Header.Get("Authorization"))
		assert.Equal(t, "from:crab @themoltingpot MOLT-ABCD-EFGH", r.URL.Query().Get("query"))
		w.Write([]byte(`{
			"data": [
				{"id": "1", "text": "unrelated", "author_id": "u1"},
				{"id": "2", "text": "Verifying my agent on @TheMoltingPot: MOLT-ABCD-EFGH", "author_id": "u1"}
			],
			"includes": {"users": [{"id": "u1", "username": "Crab", "profile_image_url": "https://pbs.twimg.com/p/a_normal.jpg"}]}
		}`))
	})

	match, err := client.FindVerificationPost(context.Background(), "crab", "MOLT-ABCD-EFGH")
	require.NoError(t, err)
	assert.Equal(t, "2", match.PostID)
	assert.Equal(t, "https://pbs.twimg.com/p/a_400x400.jpg", match.AvatarURL)
}

func TestTwitterClient_NoMatch(t *testing.T) {
	client := newTestTwitterClient(t, "bearer", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": [
				{"id": "1", "text": "@themoltingpot molt-abcd-efgh", "author_id": "u1"},
				{"id": "2", "text": "@themoltingpot MOLT-ABCD-EFGH", "author_id": "u2"}
			],
			"includes": {"users": [{"id": "u1", "username": "crab"}, {"id": "u2", "username": "impostor"}]}
		}`))
	})

	_, err := client.FindVerificationPost(context.Background(), "crab", "MOLT-ABCD-EFGH")
	assert.Equal(t, KindVerificationNotFound, KindOf(err))
}

func TestTwitterClient_ErrorMapping(t *testing.T) {
	status := http.StatusTooManyRequests
	client := newTestTwitterClient(t, "bearer", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"detail":"Unauthorized"}`))
	})
	ctx := context.Background()

	_, err := client.FindVerificationPost(ctx, "crab", "MOLT-ABCD-EFGH")
	assert.Equal(t, KindRateLimited, KindOf(err))

	status = http.StatusUnauthorized
	_, err = client.FindVerificationPost(ctx, "crab", "MOLT-ABCD-EFGH")
	assert.Equal(t, KindUpstreamError, KindOf(err))
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestTwitterClient_WithoutToken(t *testing.T) {
	ctx := context.Background()

	strict := newTestTwitterClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := strict.FindVerificationPost(ctx, "crab", "MOLT-ABCD-EFGH")
	assert.Equal(t, KindServiceUnavailable, KindOf(err))

	bypass := NewTwitterClient(&config.Config{
		Environment:            "development",
		AllowUnverifiedSignups: true,
		PlatformMention:        "@themoltingpot",
		UpstreamRPS:            1,
	})
	match, err := bypass.FindVerificationPost(ctx, "crab", "MOLT-ABCD-EFGH")
	require.NoError(t, err)
	assert.Equal(t, "dev-mode", match.PostID)

	production := NewTwitterClient(&config.Config{
		Environment:            "production",
		AllowUnverifiedSignups: true,
		UpstreamRPS:            1,
	})
	_, err = production.FindVerificationPost(ctx, "crab", "MOLT-ABCD-EFGH")
	assert.Equal(t, KindServiceUnavailable, KindOf(err))
}

func TestTwitterClient_GetProfile(t *testing.T) {
	client := newTestTwitterClient(t, "bearer", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/by/username/crab", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"u1","username":"crab","name":"Crab","profile_image_url":"https://x/a_normal.png"}}`))
	})

	profile, err := client.GetProfile(context.Background(), "crab")
	require.NoError(t, err)
	assert.Equal(t, "Crab", profile.Name)
	assert.Equal(t, "https://x/a_400x400.png", profile.AvatarURL)
}

func TestTwitterClient_CancelledAndOversized(t *testing.T) {
	client := newTestTwitterClient(t, "bearer", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[],"padding":"` + strings.Repeat("a", maxUpstreamBody) + `"}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FindVerificationPost(ctx, "crab", "MOLT-ABCD-EFGH")
	assert.Equal(t, KindUpstreamError, KindOf(err))
	assert.Contains(t, err.Error(), "rate limiter")

	_, err = client.GetProfile(context.Background(), "crab")
	assert.Equal(t, KindUpstreamError, KindOf(err))
	assert.Contains(t, err.Error(), "exceeds")
}

func TestMatchesVerificationText(t *testing.T) {
	assert.True(t, matchesVerificationText("hi @THEMOLTINGPOT MOLT-AAAA-BBBB", "@themoltingpot", "MOLT-AAAA-BBBB"))
	assert.False(t, matchesVerificationText("hi MOLT-AAAA-BBBB", "@themoltingpot", "MOLT-AAAA-BBBB"))
	assert.False(t, matchesVerificationText("@themoltingpot MOLT-AAAA-BBBC", "@themoltingpot", "MOLT-AAAA-BBBB"))
}
