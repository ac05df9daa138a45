package handlers

import (
	"errors"
	"log"
	"sort"

	"moltingpot/internal/jobs"
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

// JobController is the part of the scheduler exposed to operators
type JobController interface {
	GetStatus() map[string]jobs.JobStatus
	RunNow(name string) error
}

// JobsHandler lists and triggers background jobs
type JobsHandler struct {
	scheduler JobController
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(scheduler JobController) *JobsHandler {
	return &JobsHandler{scheduler: scheduler}
}

// List returns every registered job with its next run time (admin only)
// GET /api/admin/jobs
func (h *JobsHandler) List(c *fiber.Ctx) error {
	status := h.scheduler.GetStatus()
	out := make([]jobs.JobStatus, 0, len(status))
	for _, s := range status {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return respondOK(c, out)
}

// Run executes a job immediately and waits for it (admin only)
// POST /api/admin/jobs/:name/run
func (h *JobsHandler) Run(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.scheduler.RunNow(name); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return respondError(c, services.ErrNotFound("job %s not found", name))
		}
		return respondError(c, services.ErrInternal("job "+name+" failed", err))
	}

	subject, _ := c.Locals("admin_subject").(string)
	log.Printf("🔍 [SCHEDULER] Admin %s ran job %s", subject, name)
	return respondMessage(c, fiber.StatusOK, nil, "Job "+name+" completed")
}
