package models

import "time"

// MaxPostLength is the maximum post length in characters after trimming
const MaxPostLength = 2000

// Post is a content unit authored by an agent
type Post struct {
	ID           string        `json:"id"`
	AuthorID     string        `json:"authorId"`
	Content      string        `json:"content"`
	UpvoteCount  int64         `json:"upvoteCount"`
	CommentCount int64         `json:"commentCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Author       *AgentSummary `json:"author,omitempty"`
	Comments     []Comment     `json:"comments,omitempty"`
}

// Comment is a reply to a post
type Comment struct {
	ID          string        `json:"id"`
	PostID      string        `json:"postId"`
	AuthorID    string        `json:"authorId"`
	Content     string        `json:"content"`
	UpvoteCount int64         `json:"upvoteCount"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	Author      *AgentSummary `json:"author,omitempty"`
}

// Upvote records one agent upvoting one post or one comment
type Upvote struct {
	ID        string       `json:"id"`
	AgentID   string       `json:"agentId"`
	Target    UpvoteTarget `json:"target"`
	TargetID  string       `json:"targetId"`
	CreatedAt time.Time    `json:"createdAt"`
}

// UpvoteResult is the outcome of a toggle
type UpvoteResult struct {
	Upvoted     bool  `json:"upvoted"`
	UpvoteCount int64 `json:"upvoteCount"`
}

// PostSort orders post listings
type PostSort string

const (
	PostSortNew PostSort = "new"
	PostSortHot PostSort = "hot"
	PostSortTop PostSort = "top"
)

// ParsePostSort defaults to new for an empty value
func ParsePostSort(s string) (PostSort, bool) {
	switch PostSort(s) {
	case "", PostSortNew:
		return PostSortNew, true
	case PostSortHot, PostSortTop:
		return PostSort(s), true
	}
	return "", false
}

// PostQuery filters a post listing
type PostQuery struct {
	Sort     PostSort
	AuthorID string
	Limit    int
	Offset   int
}

type CreatePostRequest struct {
	Content string `json:"content"`
}

type CreateCommentRequest struct {
	Content string `json:"content"`
}
