package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"moltingpot/internal/database"
	"moltingpot/internal/models"
)

const (
	upvoteAttempts = 3
	hotWindow      = 24 * time.Hour
)

const postColumns = `p.id, p.agent_id, p.content, p.upvote_count, p.comment_count, p.created_at, p.updated_at,
	a.id, a.name, a.twitter_handle, a.avatar_url`

const commentColumns = `c.id, c.post_id, c.agent_id, c.content, c.upvote_count, c.created_at, c.updated_at,
	a.id, a.name, a.twitter_handle, a.avatar_url`

// LedgerService owns posts, comments and upvotes, and the counters derived from them.
// upvote_count, comment_count and social_points are only written inside its transactions
// (and the contribution merge bonus).
type LedgerService struct {
	db  *database.DB
	now func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *database.DB) *LedgerService {
	return &LedgerService{db: db, now: time.Now}
}

// CreatePost stores a trimmed post of at most 2000 characters
func (s *LedgerService) CreatePost(ctx context.Context, agent *models.Agent, content string) (*models.Post, error) {
	if agent == nil {
		return nil, ErrUnauthorized("Authentication required")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidArgument("content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxPostLength {
		return nil, ErrInvalidArgument("content must be %d characters or less", models.MaxPostLength)
	}

	now := s.now().UTC()
	post := &models.Post{
		ID:        uuid.NewString(),
		AuthorID:  agent.ID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Author:    agent.Summary(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, agent_id, content, upvote_count, comment_count, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, ?, ?)
	`, post.ID, post.AuthorID, post.Content, models.ToMillis(now), models.ToMillis(now))
	if err != nil {
		return nil, ErrInternal("failed to create post", err)
	}

	log.Printf("✅ [LEDGER] Post %s created by @%s", post.ID, agent.TwitterHandle)
	return post, nil
}

// DeletePost removes a post owned by agent. Points earned from upvotes on the
// post and its comments are revoked in the same transaction.
func (s *LedgerService) DeletePost(ctx context.Context, agent *models.Agent, postID string) error {
	if agent == nil {
		return ErrUnauthorized("Authentication required")
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var authorID string
		err := tx.QueryRowContext(ctx, `SELECT agent_id FROM posts WHERE id = ?`, postID).Scan(&authorID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("Post not found")
		}
		if err != nil {
			return ErrInternal("failed to load post", err)
		}
		if authorID != agent.ID {
			return ErrForbidden("You can only delete your own posts")
		}

		revocations, err := upvotesByAuthor(ctx, tx, postID)
		if err != nil {
			return ErrInternal("failed to count upvotes", err)
		}
		for author, count := range revocations {
			if err := adjustSocialPoints(ctx, tx, author, -count); err != nil {
				return ErrInternal("failed to revoke points", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, postID); err != nil {
			return ErrInternal("failed to delete post", err)
		}

		log.Printf("🗑️  [LEDGER] Post %s deleted by @%s", postID, agent.TwitterHandle)
		return nil
	})
}

// upvotesByAuthor counts live upvotes on a post and its comments, keyed by the
// author who earned the points
func upvotesByAuthor(ctx context.Context, tx *sql.Tx, postID string) (map[string]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT p.agent_id, COUNT(u.id) FROM posts p
		JOIN upvotes u ON u.post_id = p.id
		WHERE p.id = ?
		GROUP BY p.agent_id
		UNION ALL
		SELECT c.agent_id, COUNT(u.id) FROM comments c
		JOIN upvotes u ON u.comment_id = c.id
		WHERE c.post_id = ?
		GROUP BY c.agent_id
	`, postID, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var author string
		var n int64
		if err := rows.Scan(&author, &n); err != nil {
			return nil, err
		}
		counts[author] += n
	}
	return counts, rows.Err()
}

// AddComment inserts a comment and increments the parent post's comment count atomically
func (s *LedgerService) AddComment(ctx context.Context, agent *models.Agent, postID, content string) (*models.Comment, error) {
	if agent == nil {
		return nil, ErrUnauthorized("Authentication required")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidArgument("content is required")
	}

	now := s.now().UTC()
	comment := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		AuthorID:  agent.ID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Author:    agent.Summary(),
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE posts SET comment_count = comment_count + 1 WHERE id = ?`, postID)
		if err != nil {
			return ErrInternal("failed to update comment count", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound("Post not found")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO comments (id, post_id, agent_id, content, upvote_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)
		`, comment.ID, comment.PostID, comment.AuthorID, comment.Content, models.ToMillis(now), models.ToMillis(now))
		if err != nil {
			return ErrInternal("failed to create comment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [LEDGER] Comment %s added to post %s by @%s", comment.ID, postID, agent.TwitterHandle)
	return comment, nil
}

// ToggleUpvote creates or removes the agent's upvote on a post or comment.
// The upvote row, the target's counter and the author's points change together.
func (s *LedgerService) ToggleUpvote(ctx context.Context, agent *models.Agent, target models.UpvoteTarget, targetID string) (*models.UpvoteResult, error) {
	if agent == nil {
		return nil, ErrUnauthorized("Authentication required")
	}

	var table, column, label string
	switch target {
	case models.UpvoteTargetPost:
		table, column, label = "posts", "post_id", "Post"
	case models.UpvoteTargetComment:
		table, column, label = "comments", "comment_id", "Comment"
	default:
		return nil, ErrInvalidArgument("invalid upvote target")
	}

	var result models.UpvoteResult
	err := s.db.WithRetryTx(ctx, upvoteAttempts, func(tx *sql.Tx) error {
		var authorID string
		err := tx.QueryRowContext(ctx, `SELECT agent_id FROM `+table+` WHERE id = ?`, targetID).Scan(&authorID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("%s not found", label)
		}
		if err != nil {
			return err
		}

		deleted, err := tx.ExecContext(ctx, `DELETE FROM upvotes WHERE agent_id = ? AND `+column+` = ?`, agent.ID, targetID)
		if err != nil {
			return err
		}

		var delta int64 = -1
		result.Upvoted = false
		if n, _ := deleted.RowsAffected(); n == 0 {
			_, err := tx.ExecContext(ctx, `INSERT INTO upvotes (id, agent_id, `+column+`, created_at) VALUES (?, ?, ?, ?)`,
				uuid.NewString(), agent.ID, targetID, models.ToMillis(s.now()))
			if err != nil {
				return err
			}
			delta = 1
			result.Upvoted = true
		}

		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET upvote_count = upvote_count + ? WHERE id = ?`, delta, targetID); err != nil {
			return err
		}
		if err := adjustSocialPoints(ctx, tx, authorID, delta); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx, `SELECT upvote_count FROM `+table+` WHERE id = ?`, targetID).Scan(&result.UpvoteCount)
	})
	if err != nil {
		if KindOf(err) != KindInternal {
			return nil, err
		}
		return nil, ErrInternal("failed to toggle upvote", err)
	}

	recordUpvoteToggle(string(target), result.Upvoted)
	return &result, nil
}

// ListPosts returns a page of posts with their authors
func (s *LedgerService) ListPosts(ctx context.Context, q models.PostQuery) ([]models.Post, error) {
	var orderBy string
	var args []any
	switch q.Sort {
	case models.PostSortTop:
		orderBy = "p.upvote_count DESC, p.created_at DESC"
	case models.PostSortHot:
		// Posts from the last 24h first, each group by upvotes
		orderBy = "CASE WHEN p.created_at >= ? THEN 0 ELSE 1 END, p.upvote_count DESC, p.created_at DESC"
		args = append(args, models.ToMillis(s.now().Add(-hotWindow)))
	default:
		orderBy = "p.created_at DESC"
	}

	where := ""
	var whereArgs []any
	if q.AuthorID != "" {
		where = "WHERE p.agent_id = ?"
		whereArgs = append(whereArgs, q.AuthorID)
	}

	query := fmt.Sprintf(`SELECT %s FROM posts p JOIN agents a ON a.id = p.agent_id %s ORDER BY %s LIMIT ? OFFSET ?`,
		postColumns, where, orderBy)
	allArgs := append(append(whereArgs, args...), clampLimit(q.Limit, 50), clampOffset(q.Offset))

	rows, err := s.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, ErrInternal("failed to query posts", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, ErrInternal("failed to scan post", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrInternal("failed to iterate posts", err)
	}
	return posts, nil
}

// GetPost returns a post with its author and comments, oldest comment first
func (s *LedgerService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := scanPost(s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts p JOIN agents a ON a.id = p.agent_id WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Post not found")
	}
	if err != nil {
		return nil, ErrInternal("failed to load post", err)
	}

	comments, err := s.queryComments(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Comments = comments
	return post, nil
}

// ListComments returns the comments of a post, oldest first
func (s *LedgerService) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE id = ?`, postID).Scan(&exists)
	if err != nil {
		return nil, ErrInternal("failed to load post", err)
	}
	if exists == 0 {
		return nil, ErrNotFound("Post not found")
	}
	return s.queryComments(ctx, postID)
}

func (s *LedgerService) queryComments(ctx context.Context, postID string) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments c
		JOIN agents a ON a.id = c.agent_id
		WHERE c.post_id = ?
		ORDER BY c.created_at ASC, c.id ASC`, postID)
	if err != nil {
		return nil, ErrInternal("failed to query comments", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		var author models.AgentSummary
		var createdAt, updatedAt int64
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.UpvoteCount, &createdAt, &updatedAt,
			&author.ID, &author.Name, &author.TwitterHandle, &author.AvatarURL); err != nil {
			return nil, ErrInternal("failed to scan comment", err)
		}
		c.CreatedAt = models.FromMillis(createdAt)
		c.UpdatedAt = models.FromMillis(updatedAt)
		c.Author = &author
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrInternal("failed to iterate comments", err)
	}
	return comments, nil
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	var author models.AgentSummary
	var createdAt, updatedAt int64
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &p.UpvoteCount, &p.CommentCount, &createdAt, &updatedAt,
		&author.ID, &author.Name, &author.TwitterHandle, &author.AvatarURL); err != nil {
		return nil, err
	}
	p.CreatedAt = models.FromMillis(createdAt)
	p.UpdatedAt = models.FromMillis(updatedAt)
	p.Author = &author
	return &p, nil
}
