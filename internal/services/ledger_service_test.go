package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moltingpot/internal/models"
)

func TestCreatePost_ContentLength(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author, _ := env.registerAgent(t, "Crab", "crab")

	post, err := env.ledger.CreatePost(ctx, author, strings.Repeat("a", 2000))
	require.NoError(t, err)
	assert.Len(t, post.Content, 2000)
	assert.Equal(t, int64(0), post.UpvoteCount)
	assert.Equal(t, author.ID, post.Author.ID)

	_, err = env.ledger.CreatePost(ctx, author, strings.Repeat("a", 2001))
	requireKind(t, err, KindInvalidArgument)

	_, err = env.ledger.CreatePost(ctx, author, "   \n\t ")
	requireKind(t, err, KindInvalidArgument)

	// Multi-byte characters count once each
	_, err = env.ledger.CreatePost(ctx, author, strings.Repeat("🦀", 2000))
	assert.NoError(t, err)

	trimmed, err := env.ledger.CreatePost(ctx, author, "  hello pot  ")
	require.NoError(t, err)
	assert.Equal(t, "hello pot", trimmed.Content)
}

func TestToggleUpvote_TwiceIsNetZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author, _ := env.registerAgent(t, "Crab", "crab")
	voter, _ := env.registerAgent(t, "Lobster", "lobster")

	post, err := env.ledger.CreatePost(ctx, author, "first molt")
	require.NoError(t, err)

	result, err := env.ledger.ToggleUpvote(ctx, voter, models.UpvoteTargetPost, post.ID)
	require.NoError(t, err)
	assert.True(t, result.Upvoted)
	assert.Equal(t, int64(1), result.UpvoteCount)
	assert.Equal(t, int64(1), env.points(t, author.ID))

	result, err = env.ledger.ToggleUpvote(ctx, voter, models.UpvoteTargetPost, post.ID)
	require.NoError(t, err)
	assert.False(t, result.Upvoted)
	assert.Equal(t, int64(0), result.UpvoteCount)
	assert.Equal(t, int64(0), env.points(t, author.ID))

	stored, err := env.ledger.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.UpvoteCount)
}

func TestToggleUpvote_ParityOverManyToggles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author, _ := env.registerAgent(t, "Crab", "crab")
	voter, _ := env.registerAgent(t, "Lobster", "lobster")

	post, err := env.ledger.CreatePost(ctx, author, "parity")
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		result, err := env.ledger.ToggleUpvote(ctx, voter, models.UpvoteTargetPost, post.ID)
		require.NoError(t, err)
		assert.Equal(t, i%2 == 1, result.Upvoted)
		assert.Equal(t, int64(i%2), result.UpvoteCount)
	}
	assert.Equal(t, int64(1), env.points(t, author.ID))
}

func TestToggleUpvote_PointsEqualUpvotesReceived(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	crab, _ := env.registerAgent(t, "Crab", "crab")
	lobster, _ := env.registerAgent(t, "Lobster", "lobster")
	shrimp, _ := env.registerAgent(t, "Shrimp", "shrimp")
	agents := []*models.Agent{crab, lobster, shrimp}

	post, err := env.ledger.CreatePost(ctx, crab, "who wants to pair")
	require.NoError(t, err)
	comment, err := env.ledger.AddComment(ctx, lobster, post.ID, "me")
	require.NoError(t, err)

	toggles := []struct {
		voter  *models.Agent
		target models.UpvoteTarget
		id     string
	}{
		{lobster, models.UpvoteTargetPost, post.ID},
		{shrimp, models.UpvoteTargetPost, post.ID},
		{crab, models.UpvoteTargetPost, post.ID}, // self-upvote
		{crab, models.UpvoteTargetComment, comment.ID},
		{shrimp, models.UpvoteTargetComment, comment.ID},
		{shrimp, models.UpvoteTargetPost, post.ID}, // retract
	}
	for _, tg := range toggles {
		_, err := env.ledger.ToggleUpvote(ctx, tg.voter, tg.target, tg.id)
		require.NoError(t, err)
	}

	for _, a := range agents {
		assert.Equal(t, env.earnedUpvotes(t, a.ID), env.points(t, a.ID), "points for %s", a.TwitterHandle)
	}
	assert.Equal(t, int64(2), env.points(t, crab.ID))
	assert.Equal(t, int64(2), env.points(t, lobster.ID))

	stored, err := env.ledger.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.UpvoteCount)
	require.Len(t, stored.Comments, 1)
	assert.Equal(t, int64(2), stored.Comments[0].UpvoteCount)
}

func TestToggleUpvote_MissingTarget(t *testing.T) {
	env := newTestEnv(t)
	voter, _ := env.registerAgent(t, "Crab", "crab")

	_, err := env.ledger.ToggleUpvote(context.Background(), voter, models.UpvoteTargetPost, "missing")
	requireKind(t, err, KindNotFound)

	_, err = env.ledger.ToggleUpvote(context.Background(), voter, models.UpvoteTargetComment, "missing")
	requireKind(t, err, KindNotFound)
}

func TestAddComment_IncrementsCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author, _ := env.registerAgent(t, "Crab", "crab")
	commenter, _ := env.registerAgent(t, "Lobster", "lobster")

	post, err := env.ledger.CreatePost(ctx, author, "comment on me")
	require.NoError(t, err)

	for _, body := range []string{"one", "two", "three"} {
		_, err := env.ledger.AddComment(ctx, commenter, post.ID, body)
		require.NoError(t, err)
	}

	stored, err := env.ledger.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.CommentCount)
	require.Len(t, stored.Comments, 3)
	assert.Equal(t, "lobster", stored.Comments[0].Author.TwitterHandle)

	comments, err := env.ledger.ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 3)

	_, err = env.ledger.AddComment(ctx, commenter, "missing", "hello")
	requireKind(t, err, KindNotFound)

	_, err = env.ledger.AddComment(ctx, commenter, post.ID, "  ")
	requireKind(t, err, KindInvalidArgument)

	_, err = env.ledger.ListComments(ctx, "missing")
	requireKind(t, err, KindNotFound)
}

func TestDeletePost_OwnerOnlyAndRevokesPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author, _ := env.registerAgent(t, "Crab", "crab")
	other, _ := env.registerAgent(t, "Lobster", "lobster")

	post, err := env.ledger.CreatePost(ctx, author, "short lived")
	require.NoError(t, err)
	comment, err := env.ledger.AddComment(ctx, other, post.ID, "nice")
	require.NoError(t, err)

	_, err = env.ledger.ToggleUpvote(ctx, other, models.UpvoteTargetPost, post.ID)
	require.NoError(t, err)
	_, err = env.ledger.ToggleUpvote(ctx, author, models.UpvoteTargetComment, comment.ID)
	require.NoError(t, err)

	err = env.ledger.DeletePost(ctx, other, post.ID)
	requireKind(t, err, KindForbidden)

	require.NoError(t, env.ledger.DeletePost(ctx, author, post.ID))

	_, err = env.ledger.GetPost(ctx, post.ID)
	requireKind(t, err, KindNotFound)
	assert.Equal(t, int64(0), env.points(t, author.ID))
	assert.Equal(t, int64(0), env.points(t, other.ID))

	err = env.ledger.DeletePost(ctx, author, post.ID)
	requireKind(t, err, KindNotFound)
}

func TestListPosts_SortsAndFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	crab, _ := env.registerAgent(t, "Crab", "crab")
	lobster, _ := env.registerAgent(t, "Lobster", "lobster")

	base := time.Now().Add(-48 * time.Hour)
	env.ledger.now = fixedClock(base)
	old, err := env.ledger.CreatePost(ctx, crab, "old but popular")
	require.NoError(t, err)

	env.ledger.now = fixedClock(time.Now().Add(-time.Hour))
	fresh, err := env.ledger.CreatePost(ctx, lobster, "fresh")
	require.NoError(t, err)

	env.ledger.now = time.Now
	newest, err := env.ledger.CreatePost(ctx, crab, "newest")
	require.NoError(t, err)

	for _, voter := range []*models.Agent{crab, lobster} {
		_, err := env.ledger.ToggleUpvote(ctx, voter, models.UpvoteTargetPost, old.ID)
		require.NoError(t, err)
	}
	_, err = env.ledger.ToggleUpvote(ctx, crab, models.UpvoteTargetPost, fresh.ID)
	require.NoError(t, err)

	ids := func(posts []models.Post) []string {
		out := make([]string, len(posts))
		for i, p := range posts {
			out[i] = p.ID
		}
		return out
	}

	byNew, err := env.ledger.ListPosts(ctx, models.PostQuery{Sort: models.PostSortNew})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, fresh.ID, old.ID}, ids(byNew))

	byTop, err := env.ledger.ListPosts(ctx, models.PostQuery{Sort: models.PostSortTop})
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID, fresh.ID, newest.ID}, ids(byTop))

	byHot, err := env.ledger.ListPosts(ctx, models.PostQuery{Sort: models.PostSortHot})
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID, newest.ID, old.ID}, ids(byHot))

	mine, err := env.ledger.ListPosts(ctx, models.PostQuery{AuthorID: crab.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ID, old.ID}, ids(mine))

	page, err := env.ledger.ListPosts(ctx, models.PostQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID}, ids(page))
}

func TestAgentDelete_ReconcilesOtherAgents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	crab, _ := env.registerAgent(t, "Crab", "crab")
	lobster, _ := env.registerAgent(t, "Lobster", "lobster")
	shrimp, _ := env.registerAgent(t, "Shrimp", "shrimp")

	crabPost, err := env.ledger.CreatePost(ctx, crab, "crab post")
	require.NoError(t, err)
	lobsterPost, err := env.ledger.CreatePost(ctx, lobster, "lobster post")
	require.NoError(t, err)

	// lobster upvotes and comments on crab's post
	_, err = env.ledger.ToggleUpvote(ctx, lobster, models.UpvoteTargetPost, crabPost.ID)
	require.NoError(t, err)
	_, err = env.ledger.AddComment(ctx, lobster, crabPost.ID, "hi crab")
	require.NoError(t, err)

	// shrimp comments on lobster's post and crab upvotes that comment
	shrimpComment, err := env.ledger.AddComment(ctx, shrimp, lobsterPost.ID, "hi lobster")
	require.NoError(t, err)
	_, err = env.ledger.ToggleUpvote(ctx, crab, models.UpvoteTargetComment, shrimpComment.ID)
	require.NoError(t, err)
	_, err = env.ledger.ToggleUpvote(ctx, lobster, models.UpvoteTargetComment, shrimpComment.ID)
	require.NoError(t, err)

	require.NoError(t, env.agents.Delete(ctx, lobster))

	_, err = env.agents.GetByID(ctx, lobster.ID)
	requireKind(t, err, KindNotFound)

	stored, err := env.ledger.GetPost(ctx, crabPost.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.UpvoteCount)
	assert.Equal(t, int64(0), stored.CommentCount)
	assert.Empty(t, stored.Comments)

	for _, a := range []*models.Agent{crab, shrimp} {
		assert.Equal(t, env.earnedUpvotes(t, a.ID), env.points(t, a.ID), "points for %s", a.TwitterHandle)
	}
	assert.Equal(t, int64(0), env.points(t, shrimp.ID))
}
