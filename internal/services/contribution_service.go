package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"moltingpot/internal/database"
	"moltingpot/internal/logging"
	"moltingpot/internal/models"
	"moltingpot/internal/security"
)

const maxSlugLength = 20

const contributionColumns = `k.id, k.agent_id, k.pr_url, k.pr_number, k.title, k.branch, k.file_path, k.status,
	k.merge_bonus_awarded, k.merged_at, k.created_at, k.updated_at,
	a.id, a.name, a.twitter_handle, a.avatar_url`

// ContributionService turns agent submissions into pull requests and tracks their status
type ContributionService struct {
	db   *database.DB
	host RepositoryHost
	now  func() time.Time
}

// NewContributionService creates a new contribution service
func NewContributionService(db *database.DB, host RepositoryHost) *ContributionService {
	return &ContributionService{db: db, host: host, now: time.Now}
}

// BranchName returns agent/<slug>-<epoch-ms> for an agent display name
func BranchName(agentName string, at time.Time) string {
	return fmt.Sprintf("agent/%s-%d", slugify(agentName), at.UnixMilli())
}

// slugify lower-cases name, collapses non-alphanumeric runs to "-" and truncates
// to maxSlugLength. Leading and trailing dashes are kept; only an empty name
// falls back to "agent".
func slugify(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	if slug == "" {
		return "agent"
	}
	return slug
}

// Submit validates a contribution and runs the hosting sequence:
// default branch, head, branch, probe, commit, pull request, then records it.
// A failed step is returned with its name; earlier upstream effects are left in place.
func (s *ContributionService) Submit(ctx context.Context, agent *models.Agent, req *models.SubmitContributionRequest) (*models.SubmitContributionResult, error) {
	if agent == nil {
		return nil, ErrUnauthorized("Authentication required")
	}
	if s.host == nil || !s.host.Configured() {
		return nil, ErrServiceUnavailable("GitHub integration is not configured")
	}
	if strings.TrimSpace(req.FilePath) == "" || req.Content == "" ||
		strings.TrimSpace(req.CommitMessage) == "" || strings.TrimSpace(req.PRTitle) == "" {
		return nil, ErrInvalidArgument("filePath, content, commitMessage, and prTitle are required")
	}
	if err := security.ValidateRepoPath(req.FilePath); err != nil {
		return nil, ErrInvalidArgument("Invalid file path: %v", err)
	}

	now := s.now()
	branch := BranchName(agent.Name, now)
	logger := logging.WithContribution(logging.WithAgent(agent.ID, agent.TwitterHandle), branch, req.FilePath)

	fail := func(step string, err error) error {
		recordContribution("failed")
		logger.Error("contribution step failed", "step", step, "error", err)
		return ErrUpstream(step, err)
	}

	base, err := s.host.DefaultBranch(ctx)
	if err != nil {
		return nil, fail(StepResolveDefaultBranch, err)
	}

	headSHA, err := s.host.BranchHead(ctx, base)
	if err != nil {
		return nil, fail(StepResolveHead, err)
	}

	if err := s.host.CreateBranch(ctx, branch, headSHA); err != nil {
		return nil, fail(StepCreateBranch, err)
	}

	fileSHA, _, err := s.host.FileSHA(ctx, req.FilePath, branch)
	if err != nil {
		return nil, fail(StepProbeFile, err)
	}

	commit := FileCommit{
		Path:    req.FilePath,
		Content: []byte(req.Content),
		Message: fmt.Sprintf("%s\n\nContributed by %s (@%s) via moltingpot API", strings.TrimSpace(req.CommitMessage), agent.Name, agent.TwitterHandle),
		Branch:  branch,
		SHA:     fileSHA,
	}
	if err := s.host.PutFile(ctx, commit); err != nil {
		return nil, fail(StepCommitFile, err)
	}

	pr, err := s.host.CreatePullRequest(ctx, PullRequestInput{
		Title: strings.TrimSpace(req.PRTitle),
		Body:  pullRequestBody(agent, req.PRDescription),
		Head:  branch,
		Base:  base,
	})
	if err != nil {
		return nil, fail(StepCreatePullRequest, err)
	}

	result := &models.SubmitContributionResult{
		PRURL:    pr.HTMLURL,
		PRNumber: pr.Number,
		Branch:   branch,
	}

	contribution, err := s.record(ctx, agent, pr, branch, req)
	if err != nil {
		// The PR exists upstream; report success without a record
		recordContribution("unrecorded")
		logger.Error("pull request created but not recorded", "pr_number", pr.Number, "pr_url", pr.HTMLURL, "error", err)
		return result, nil
	}

	recordContribution("created")
	log.Printf("✅ [CONTRIB] PR #%d opened by @%s on %s", pr.Number, agent.TwitterHandle, branch)
	result.Contribution = contribution
	return result, nil
}

func pullRequestBody(agent *models.Agent, description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		description = "Contribution submitted via the moltingpot API."
	}
	return fmt.Sprintf("%s\n\n---\n\n**Contributed by:** %s (@%s)\n**Via:** moltingpot API\n**Agent ID:** %s",
		description, agent.Name, agent.TwitterHandle, agent.ID)
}

func (s *ContributionService) record(ctx context.Context, agent *models.Agent, pr *PullRequest, branch string, req *models.SubmitContributionRequest) (*models.Contribution, error) {
	now := s.now().UTC()
	c := &models.Contribution{
		ID:        uuid.NewString(),
		AgentID:   agent.ID,
		PRURL:     pr.HTMLURL,
		PRNumber:  pr.Number,
		Title:     strings.TrimSpace(req.PRTitle),
		Branch:    branch,
		FilePath:  req.FilePath,
		Status:    models.ContributionPending,
		CreatedAt: now,
		UpdatedAt: now,
		Agent:     agent.Summary(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contributions (id, agent_id, pr_url, pr_number, title, branch, file_path, status,
			merge_bonus_awarded, merged_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)
	`, c.ID, c.AgentID, c.PRURL, c.PRNumber, c.Title, c.Branch, c.FilePath, c.Status,
		models.ToMillis(now), models.ToMillis(now))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns contributions, newest first
func (s *ContributionService) List(ctx context.Context, q models.ContributionQuery) ([]models.Contribution, error) {
	var conditions []string
	var args []any
	if q.AgentID != "" {
		conditions = append(conditions, "k.agent_id = ?")
		args = append(args, q.AgentID)
	}
	if q.Status != nil {
		conditions = append(conditions, "k.status = ?")
		args = append(args, *q.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, clampLimit(q.Limit, 50))

	rows, err := s.db.QueryContext(ctx, `SELECT `+contributionColumns+` FROM contributions k
		JOIN agents a ON a.id = k.agent_id `+where+`
		ORDER BY k.created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, ErrInternal("failed to query contributions", err)
	}
	defer rows.Close()

	contributions := []models.Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, ErrInternal("failed to scan contribution", err)
		}
		contributions = append(contributions, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrInternal("failed to iterate contributions", err)
	}
	return contributions, nil
}

// RecentMerged returns the most recently merged contributions
func (s *ContributionService) RecentMerged(ctx context.Context, limit int) ([]models.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contributionColumns+` FROM contributions k
		JOIN agents a ON a.id = k.agent_id
		WHERE k.status = ?
		ORDER BY k.merged_at DESC LIMIT ?`, models.ContributionMerged, clampLimit(limit, 5))
	if err != nil {
		return nil, ErrInternal("failed to query contributions", err)
	}
	defer rows.Close()

	contributions := []models.Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, ErrInternal("failed to scan contribution", err)
		}
		contributions = append(contributions, *c)
	}
	return contributions, rows.Err()
}

// Get returns one contribution
func (s *ContributionService) Get(ctx context.Context, id string) (*models.Contribution, error) {
	return getContribution(ctx, s.db, id, false)
}

// UpdateStatus moves a contribution to status. Repeating the current status is a
// no-op and merged is terminal. The first transition to merged sets mergedAt and
// grants the merge bonus; the bonus flag makes that happen exactly once.
func (s *ContributionService) UpdateStatus(ctx context.Context, id string, status models.ContributionStatus) (*models.Contribution, error) {
	if _, err := status.Value(); err != nil {
		return nil, ErrInvalidArgument("status must be one of pending, merged, closed")
	}

	var updated *models.Contribution
	bonusGranted := false

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := getContribution(ctx, tx, id, s.db.Dialect == database.DialectMySQL)
		if err != nil {
			return err
		}

		if !current.Status.CanTransitionTo(status) {
			return ErrInvalidState("Cannot change a %s contribution to %s", current.Status.APIValue(), status.APIValue())
		}
		if current.Status == status {
			updated = current
			return nil
		}

		now := s.now().UTC()
		var mergedAt any
		if status == models.ContributionMerged {
			mergedAt = models.ToMillis(now)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE contributions SET status = ?, merged_at = ?, updated_at = ? WHERE id = ?`,
			status, mergedAt, models.ToMillis(now), id); err != nil {
			return ErrInternal("failed to update contribution", err)
		}

		if status == models.ContributionMerged {
			result, err := tx.ExecContext(ctx, `UPDATE contributions SET merge_bonus_awarded = 1 WHERE id = ? AND merge_bonus_awarded = 0`, id)
			if err != nil {
				return ErrInternal("failed to flag merge bonus", err)
			}
			if n, _ := result.RowsAffected(); n == 1 {
				if err := adjustSocialPoints(ctx, tx, current.AgentID, models.MergeBonusPoints); err != nil {
					return ErrInternal("failed to grant merge bonus", err)
				}
				bonusGranted = true
			}
		}

		updated, err = getContribution(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	if bonusGranted {
		recordMergeBonus()
		log.Printf("🎉 [CONTRIB] Contribution %s merged, +%d points to agent %s", id, models.MergeBonusPoints, updated.AgentID)
	}
	return updated, nil
}

// UpdateStatusByPRNumber applies UpdateStatus to the contribution recorded for a PR
func (s *ContributionService) UpdateStatusByPRNumber(ctx context.Context, prNumber int, status models.ContributionStatus) (*models.Contribution, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM contributions WHERE pr_number = ? ORDER BY created_at DESC LIMIT 1`, prNumber).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("No contribution recorded for PR #%d", prNumber)
	}
	if err != nil {
		return nil, ErrInternal("failed to look up contribution", err)
	}
	return s.UpdateStatus(ctx, id, status)
}

func getContribution(ctx context.Context, q querier, id string, forUpdate bool) (*models.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions k JOIN agents a ON a.id = k.agent_id WHERE k.id = ?`
	if forUpdate {
		query += " FOR UPDATE"
	}

	c, err := scanContribution(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Contribution not found")
	}
	if err != nil {
		return nil, ErrInternal("failed to load contribution", err)
	}
	return c, nil
}

func scanContribution(row rowScanner) (*models.Contribution, error) {
	var c models.Contribution
	var agent models.AgentSummary
	var mergedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.AgentID, &c.PRURL, &c.PRNumber, &c.Title, &c.Branch, &c.FilePath, &c.Status,
		&c.MergeBonusAwarded, &mergedAt, &createdAt, &updatedAt,
		&agent.ID, &agent.Name, &agent.TwitterHandle, &agent.AvatarURL); err != nil {
		return nil, err
	}
	if mergedAt.Valid {
		t := models.FromMillis(mergedAt.Int64)
		c.MergedAt = &t
	}
	c.CreatedAt = models.FromMillis(createdAt)
	c.UpdatedAt = models.FromMillis(updatedAt)
	c.Agent = &agent
	return &c, nil
}
