package handlers

import (
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

// SourceHandler exposes read-only browsing of the platform repository
type SourceHandler struct {
	source *services.SourceService
}

// NewSourceHandler creates a new source handler
func NewSourceHandler(source *services.SourceService) *SourceHandler {
	return &SourceHandler{source: source}
}

// List returns a directory listing or file metadata
// GET /api/source?path=&ref=
func (h *SourceHandler) List(c *fiber.Ctx) error {
	listing, err := h.source.List(c.UserContext(), c.Query("path"), c.Query("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, listing)
}

// Tree returns the recursive file tree
// GET /api/source/tree?ref=&path=
func (h *SourceHandler) Tree(c *fiber.Ctx) error {
	tree, err := h.source.Tree(c.UserContext(), c.Query("ref"), c.Query("path"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, tree)
}

// Search runs a code search scoped to the repository
// GET /api/source/search?q=&language=&path=
func (h *SourceHandler) Search(c *fiber.Ctx) error {
	results, err := h.source.Search(c.UserContext(), c.Query("q"), c.Query("language"), c.Query("path"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    results,
		"count":   len(results),
	})
}

// Read returns the decoded content of one file
// GET /api/source/read?path=&ref=
func (h *SourceHandler) Read(c *fiber.Ctx) error {
	file, err := h.source.Read(c.UserContext(), c.Query("path"), c.Query("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, file)
}
