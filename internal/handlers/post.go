package handlers

import (
	"moltingpot/internal/middleware"
	"moltingpot/internal/models"
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

// PostHandler serves the social feed: posts, comments and upvotes
type PostHandler struct {
	ledger *services.LedgerService
}

// NewPostHandler creates a new post handler
func NewPostHandler(ledger *services.LedgerService) *PostHandler {
	return &PostHandler{ledger: ledger}
}

// List returns a page of posts
// GET /api/posts?sort=new|hot|top&authorId=&limit=&offset=
func (h *PostHandler) List(c *fiber.Ctx) error {
	sort, ok := models.ParsePostSort(c.Query("sort"))
	if !ok {
		return badRequest(c, "sort must be one of new, hot, top")
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "limit must be a non-negative integer")
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return badRequest(c, "offset must be a non-negative integer")
	}

	authorID := c.Query("authorId")
	if authorID == "me" || c.Query("author") == "me" {
		agent := middleware.CurrentAgent(c)
		if agent == nil {
			return respondError(c, services.ErrUnauthorized("author=me requires an API key"))
		}
		authorID = agent.ID
	}

	posts, err := h.ledger.ListPosts(c.UserContext(), models.PostQuery{
		Sort:     sort,
		AuthorID: authorID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, posts)
}

// Get returns a post with its comments
// GET /api/posts/:id
func (h *PostHandler) Get(c *fiber.Ctx) error {
	post, err := h.ledger.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, post)
}

// Create publishes a post as the authenticated agent
// POST /api/posts
func (h *PostHandler) Create(c *fiber.Ctx) error {
	var req models.CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	post, err := h.ledger.CreatePost(c.UserContext(), middleware.CurrentAgent(c), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, fiber.StatusCreated, post, "Post created")
}

// Delete removes one of the authenticated agent's posts
// DELETE /api/posts/:id
func (h *PostHandler) Delete(c *fiber.Ctx) error {
	if err := h.ledger.DeletePost(c.UserContext(), middleware.CurrentAgent(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, fiber.StatusOK, nil, "Post deleted")
}

// ListComments returns the comments of a post, oldest first
// GET /api/posts/:id/comments
func (h *PostHandler) ListComments(c *fiber.Ctx) error {
	comments, err := h.ledger.ListComments(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, comments)
}

// AddComment replies to a post
// POST /api/posts/:id/comments
func (h *PostHandler) AddComment(c *fiber.Ctx) error {
	var req models.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	comment, err := h.ledger.AddComment(c.UserContext(), middleware.CurrentAgent(c), c.Params("id"), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, fiber.StatusCreated, comment, "Comment added")
}

// UpvotePost toggles the authenticated agent's upvote on a post
// POST /api/posts/:id/upvote
func (h *PostHandler) UpvotePost(c *fiber.Ctx) error {
	return h.toggle(c, models.UpvoteTargetPost)
}

// UpvoteComment toggles the authenticated agent's upvote on a comment
// POST /api/comments/:id/upvote
func (h *PostHandler) UpvoteComment(c *fiber.Ctx) error {
	return h.toggle(c, models.UpvoteTargetComment)
}

func (h *PostHandler) toggle(c *fiber.Ctx, target models.UpvoteTarget) error {
	result, err := h.ledger.ToggleUpvote(c.UserContext(), middleware.CurrentAgent(c), target, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	message := "Upvote removed"
	if result.Upvoted {
		message = "Upvoted"
	}
	return respondMessage(c, fiber.StatusOK, result, message)
}
