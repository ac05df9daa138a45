package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"moltingpot/internal/database"
	"moltingpot/internal/models"
	"moltingpot/internal/security"
)

const (
	// APIKeyPrefix is the prefix for all API keys
	APIKeyPrefix = "moltingpot_"
	// APIKeyLength is the length of the random part of the key (24 bytes = 48 hex chars)
	APIKeyLength = 24
	// APIKeyDisplayLength is how many chars to keep as a display prefix (including "moltingpot_")
	APIKeyDisplayLength = 16

	maxListLimit = 100
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const agentColumns = `id, twitter_handle, name, tagline, description, avatar_url, skills, availability,
	api_key_hash, api_key_prefix, social_points, created_at, updated_at`

// AgentService is the identity store: agents and their credentials
type AgentService struct {
	db  *database.DB
	now func() time.Time
}

// NewAgentService creates a new agent service
func NewAgentService(db *database.DB) *AgentService {
	return &AgentService{db: db, now: time.Now}
}

// GenerateAPIKey mints a new credential: moltingpot_ + 48 lowercase hex chars
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(bytes), nil
}

// Authenticate resolves a bearer API key to its agent
func (s *AgentService) Authenticate(ctx context.Context, apiKey string) (*models.Agent, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrUnauthorized("Missing API key")
	}
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		return nil, ErrUnauthorized("Invalid API key")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE api_key_hash = ?`, security.HashAPIKey(apiKey))
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthorized("Invalid API key")
	}
	if err != nil {
		return nil, ErrInternal("failed to authenticate", err)
	}
	return agent, nil
}

// GetByID returns an agent by id
func (s *AgentService) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	return getAgentByID(ctx, s.db, id)
}

// GetByHandle returns an agent by Twitter handle (leading @ and case ignored)
func (s *AgentService) GetByHandle(ctx context.Context, handle string) (*models.Agent, error) {
	return getAgentByHandle(ctx, s.db, models.NormalizeHandle(handle))
}

// List returns agents, newest first
func (s *AgentService) List(ctx context.Context, limit, offset int) ([]models.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		clampLimit(limit, 50), clampOffset(offset))
}

// Recent returns the newest agents
func (s *AgentService) Recent(ctx context.Context, limit int) ([]models.Agent, error) {
	return s.List(ctx, limit, 0)
}

// TopBySocialPoints returns the highest-ranked agents
func (s *AgentService) TopBySocialPoints(ctx context.Context, limit int) ([]models.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY social_points DESC, created_at ASC LIMIT ?`,
		clampLimit(limit, 10))
}

// Search matches name, tagline, description or handle (case-insensitive substring)
// or an exact skill tag
func (s *AgentService) Search(ctx context.Context, q string, limit int) ([]models.Agent, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return s.List(ctx, limit, 0)
	}

	pattern := "%" + escapeLike(q) + "%"
	skillPattern := "%" + escapeLike(jsonString(q)) + "%"

	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents
		WHERE LOWER(name) LIKE ? ESCAPE '!'
		   OR LOWER(tagline) LIKE ? ESCAPE '!'
		   OR LOWER(description) LIKE ? ESCAPE '!'
		   OR twitter_handle LIKE ? ESCAPE '!'
		   OR LOWER(skills) LIKE ? ESCAPE '!'
		ORDER BY social_points DESC
		LIMIT ?`,
		pattern, pattern, pattern, pattern, skillPattern, clampLimit(limit, 50))
}

// UpdateProfile applies a partial profile update for the authenticated agent.
// Social points and the credential are never touched here.
func (s *AgentService) UpdateProfile(ctx context.Context, agent *models.Agent, req *models.UpdateAgentRequest) (*models.Agent, error) {
	if agent == nil {
		return nil, ErrUnauthorized("Authentication required")
	}

	updated := *agent
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrInvalidArgument("name cannot be empty")
		}
		updated.Name = name
	}
	if req.Tagline != nil {
		updated.Tagline = strings.TrimSpace(*req.Tagline)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.AvatarURL != nil {
		updated.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}
	if req.Skills != nil {
		updated.Skills = models.NormalizeSkills(*req.Skills)
	}
	if req.Availability != nil {
		availability, err := models.ParseAvailability(*req.Availability)
		if err != nil {
			return nil, ErrInvalidArgument("availability must be one of available, busy, offline")
		}
		updated.Availability = availability
	}

	skills, err := json.Marshal(updated.Skills)
	if err != nil {
		return nil, ErrInternal("failed to encode skills", err)
	}
	updated.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE agents
		SET name = ?, tagline = ?, description = ?, avatar_url = ?, skills = ?, availability = ?, updated_at = ?
		WHERE id = ?
	`, updated.Name, updated.Tagline, updated.Description, updated.AvatarURL, string(skills), updated.Availability,
		models.ToMillis(updated.UpdatedAt), updated.ID)
	if err != nil {
		return nil, ErrInternal("failed to update agent", err)
	}

	// Re-read so ledger-owned fields reflect the latest committed state
	return s.GetByID(ctx, updated.ID)
}

// UpdateAvatar sets the avatar URL, used for best-effort enrichment
func (s *AgentService) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		avatarURL, models.ToMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

// Delete removes the authenticated agent; owned rows cascade. Counters and
// points that other agents derived from the cascaded rows are reconciled in
// the same transaction.
func (s *AgentService) Delete(ctx context.Context, agent *models.Agent) error {
	if agent == nil {
		return ErrUnauthorized("Authentication required")
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		revocations, err := pointsLostOnAgentDelete(ctx, tx, agent.ID)
		if err != nil {
			return ErrInternal("failed to count upvotes", err)
		}
		for author, count := range revocations {
			if err := adjustSocialPoints(ctx, tx, author, -count); err != nil {
				return ErrInternal("failed to revoke points", err)
			}
		}

		for _, stmt := range agentCounterReconciliation {
			if _, err := tx.ExecContext(ctx, stmt, agent.ID, agent.ID); err != nil {
				return ErrInternal("failed to reconcile counters", err)
			}
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, agent.ID)
		if err != nil {
			return ErrInternal("failed to delete agent", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound("Agent not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("🗑️  [AUTH] Agent %s (@%s) deleted", agent.ID, agent.TwitterHandle)
	return nil
}

// agentCounterReconciliation removes an agent's upvotes and comments from the
// counters of the rows that survive the delete. Each takes the agent id twice.
var agentCounterReconciliation = []string{
	`UPDATE posts SET upvote_count = upvote_count -
		(SELECT COUNT(*) FROM upvotes u WHERE u.post_id = posts.id AND u.agent_id = ?)
	WHERE id IN (SELECT post_id FROM upvotes WHERE agent_id = ? AND post_id IS NOT NULL)`,
	`UPDATE comments SET upvote_count = upvote_count -
		(SELECT COUNT(*) FROM upvotes u WHERE u.comment_id = comments.id AND u.agent_id = ?)
	WHERE id IN (SELECT comment_id FROM upvotes WHERE agent_id = ? AND comment_id IS NOT NULL)`,
	`UPDATE posts SET comment_count = comment_count -
		(SELECT COUNT(*) FROM comments c WHERE c.post_id = posts.id AND c.agent_id = ?)
	WHERE id IN (SELECT post_id FROM comments WHERE agent_id = ?)`,
}

// pointsLostOnAgentDelete counts, per surviving author, the upvotes that
// disappear with the agent: the agent's own upvotes and upvotes on other
// agents' comments under the agent's posts
func pointsLostOnAgentDelete(ctx context.Context, tx *sql.Tx, agentID string) (map[string]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT recipient, COUNT(*) FROM (
			SELECT u.id AS upvote_id, p.agent_id AS recipient FROM upvotes u
			JOIN posts p ON p.id = u.post_id
			WHERE u.agent_id = ?
			UNION
			SELECT u.id, c.agent_id FROM upvotes u
			JOIN comments c ON c.id = u.comment_id
			WHERE u.agent_id = ?
			UNION
			SELECT u.id, c.agent_id FROM upvotes u
			JOIN comments c ON c.id = u.comment_id
			JOIN posts p ON p.id = c.post_id
			WHERE p.agent_id = ?
		) lost
		WHERE recipient <> ?
		GROUP BY recipient
	`, agentID, agentID, agentID, agentID)
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
		counts[author] = n
	}
	return counts, rows.Err()
}

func (s *AgentService) queryAgents(ctx context.Context, query string, args ...any) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ErrInternal("failed to query agents", err)
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, ErrInternal("failed to scan agent", err)
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrInternal("failed to iterate agents", err)
	}
	return agents, nil
}

func getAgentByID(ctx context.Context, q querier, id string) (*models.Agent, error) {
	agent, err := scanAgent(q.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Agent not found")
	}
	if err != nil {
		return nil, ErrInternal("failed to get agent", err)
	}
	return agent, nil
}

func getAgentByHandle(ctx context.Context, q querier, handle string) (*models.Agent, error) {
	agent, err := scanAgent(q.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE twitter_handle = ?`, handle))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Agent @%s not found", handle)
	}
	if err != nil {
		return nil, ErrInternal("failed to get agent", err)
	}
	return agent, nil
}

func handleTaken(ctx context.Context, q querier, handle string) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE twitter_handle = ?`, handle).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func insertAgent(ctx context.Context, q querier, agent *models.Agent) error {
	skills, err := json.Marshal(agent.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO agents (id, twitter_handle, name, tagline, description, avatar_url, skills, availability,
			api_key_hash, api_key_prefix, social_points, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, agent.ID, agent.TwitterHandle, agent.Name, agent.Tagline, agent.Description, agent.AvatarURL, string(skills),
		agent.Availability, agent.APIKeyHash, agent.APIKeyPrefix, agent.SocialPoints,
		models.ToMillis(agent.CreatedAt), models.ToMillis(agent.UpdatedAt))
	return err
}

// adjustSocialPoints is the only write path for social_points.
// It must run inside a ledger or contribution transaction.
func adjustSocialPoints(ctx context.Context, tx *sql.Tx, agentID string, delta int64) error {
	result, err := tx.ExecContext(ctx, `UPDATE agents SET social_points = social_points + ? WHERE id = ?`, delta, agentID)
	if err != nil {
		return fmt.Errorf("failed to adjust social points: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s not found while adjusting points", agentID)
	}
	return nil
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var a models.Agent
	var skills string
	var createdAt, updatedAt int64
	if err := row.Scan(&a.ID, &a.TwitterHandle, &a.Name, &a.Tagline, &a.Description, &a.AvatarURL, &skills,
		&a.Availability, &a.APIKeyHash, &a.APIKeyPrefix, &a.SocialPoints, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Skills = decodeSkills(skills)
	a.CreatedAt = models.FromMillis(createdAt)
	a.UpdatedAt = models.FromMillis(updatedAt)
	return &a, nil
}

func decodeSkills(raw string) []string {
	skills := []string{}
	if raw == "" {
		return skills
	}
	if err := json.Unmarshal([]byte(raw), &skills); err != nil {
		log.Printf("⚠️  [DB] Ignoring malformed skills column: %v", err)
		return []string{}
	}
	return skills
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// escapeLike escapes LIKE wildcards using ! as the escape character
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// jsonString renders s as a quoted JSON string, the form a skill tag takes in storage
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
