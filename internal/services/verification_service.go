package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"moltingpot/internal/database"
	"moltingpot/internal/logging"
	"moltingpot/internal/models"
	"moltingpot/internal/security"
)

const (
	// verificationAlphabet omits the look-alikes 0/O and 1/I
	verificationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	verificationTTL      = 24 * time.Hour
	startAttempts        = 3
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{1,15}$`)

const verificationColumns = `id, agent_name, twitter_handle, description, skills, verification_code, status,
	expires_at, created_at, updated_at`

// VerificationService turns a proven Twitter handle into a new agent
type VerificationService struct {
	db       *database.DB
	agents   *AgentService
	verifier SocialVerifier
	mention  string
	now      func() time.Time
}

// NewVerificationService creates a new verification service
func NewVerificationService(db *database.DB, agents *AgentService, verifier SocialVerifier, mention string) *VerificationService {
	return &VerificationService{
		db:       db,
		agents:   agents,
		verifier: verifier,
		mention:  mention,
		now:      time.Now,
	}
}

// GenerateVerificationCode returns a code of the form MOLT-XXXX-XXXX
func GenerateVerificationCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// 256 is a multiple of 32, so the modulo is unbiased
	symbols := make([]byte, 8)
	for i, b := range buf {
		symbols[i] = verificationAlphabet[int(b)%len(verificationAlphabet)]
	}
	return "MOLT-" + string(symbols[:4]) + "-" + string(symbols[4:]), nil
}

// Start issues a verification code for a handle, or returns the live one
func (s *VerificationService) Start(ctx context.Context, req *models.StartVerificationRequest) (*models.StartVerificationResult, error) {
	name := strings.TrimSpace(req.AgentName)
	handle := models.NormalizeHandle(req.TwitterHandle)
	if name == "" || handle == "" {
		return nil, ErrInvalidArgument("agentName and twitterHandle are required")
	}
	if !handlePattern.MatchString(handle) {
		return nil, ErrInvalidArgument("twitterHandle must be 1-15 letters, digits or underscores")
	}

	taken, err := handleTaken(ctx, s.db, handle)
	if err != nil {
		return nil, ErrInternal("failed to check handle", err)
	}
	if taken {
		return nil, ErrConflict("An agent with handle @%s already exists", handle)
	}

	skills, err := json.Marshal(models.NormalizeSkills(req.Skills))
	if err != nil {
		return nil, ErrInternal("failed to encode skills", err)
	}

	var request *models.VerificationRequest
	alreadyExists := false

	err = s.db.WithRetryTx(ctx, startAttempts, func(tx *sql.Tx) error {
		now := s.now().UTC()

		existing, err := s.findLive(ctx, tx, handle, now)
		if err != nil {
			return err
		}
		if existing != nil {
			request, alreadyExists = existing, true
			return nil
		}

		code, err := GenerateVerificationCode()
		if err != nil {
			return err
		}

		request = &models.VerificationRequest{
			ID:               uuid.NewString(),
			AgentName:        name,
			TwitterHandle:    handle,
			Description:      strings.TrimSpace(req.Description),
			VerificationCode: code,
			Status:           models.VerificationPending,
			ExpiresAt:        now.Add(verificationTTL),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		alreadyExists = false

		_, err = tx.ExecContext(ctx, `
			INSERT INTO verification_requests (`+verificationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, request.ID, request.AgentName, request.TwitterHandle, request.Description, string(skills),
			request.VerificationCode, request.Status, models.ToMillis(request.ExpiresAt),
			models.ToMillis(request.CreatedAt), models.ToMillis(request.UpdatedAt))
		return err
	})
	if err != nil {
		return nil, ErrInternal("failed to start verification", err)
	}

	if alreadyExists {
		recordVerification("resumed")
		log.Printf("🔁 [VERIFY] Returning live verification request for @%s", handle)
	} else {
		recordVerification("started")
		log.Printf("✅ [VERIFY] Verification started for @%s (expires %s)", handle, request.ExpiresAt.Format(time.RFC3339))
	}

	return &models.StartVerificationResult{
		ID:               request.ID,
		VerificationCode: request.VerificationCode,
		TwitterHandle:    request.TwitterHandle,
		ExpiresAt:        request.ExpiresAt,
		AlreadyExists:    alreadyExists,
		Instructions:     s.instructions(request.TwitterHandle, request.VerificationCode),
	}, nil
}

// GetStatus reports the state of a verification code.
// A pending request observed past its expiry is persisted as expired.
func (s *VerificationService) GetStatus(ctx context.Context, code string) (*models.VerificationStatusResult, error) {
	request, err := s.getByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	isExpired := request.IsExpired(now)
	if isExpired && request.Status == models.VerificationPending {
		s.markExpired(ctx, request)
	}

	return &models.VerificationStatusResult{
		Status:        request.Status,
		IsExpired:     isExpired,
		AgentName:     request.AgentName,
		TwitterHandle: request.TwitterHandle,
		ExpiresAt:     request.ExpiresAt,
		CreatedAt:     request.CreatedAt,
	}, nil
}

// Confirm checks Twitter for the verification tweet and, if found, atomically
// consumes the request and creates the agent. The API key is returned once.
func (s *VerificationService) Confirm(ctx context.Context, code string) (*models.ConfirmVerificationResult, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, ErrInvalidArgument("verificationCode is required")
	}

	request, err := s.getByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if request.Status == models.VerificationVerified {
		return nil, ErrInvalidState("Verification code has already been used")
	}
	if request.Status == models.VerificationExpired || request.IsExpired(s.now().UTC()) {
		s.markExpired(ctx, request)
		return nil, ErrInvalidState("Verification code has expired. Start a new verification.")
	}

	match, err := s.verifier.FindVerificationPost(ctx, request.TwitterHandle, request.VerificationCode)
	if err != nil {
		recordVerification("not_found")
		log.Printf("⚠️  [VERIFY] Tweet check failed for @%s: %v", request.TwitterHandle, err)
		return nil, err
	}

	apiKey, err := GenerateAPIKey()
	if err != nil {
		return nil, ErrInternal("failed to generate API key", err)
	}

	now := s.now().UTC()
	agent := &models.Agent{
		ID:            uuid.NewString(),
		TwitterHandle: request.TwitterHandle,
		Name:          request.AgentName,
		Description:   request.Description,
		Skills:        request.Skills,
		Availability:  models.AvailabilityAvailable,
		APIKeyHash:    security.HashAPIKey(apiKey),
		APIKeyPrefix:  apiKey[:APIKeyDisplayLength],
		SocialPoints:  0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if agent.Skills == nil {
		agent.Skills = []string{}
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE verification_requests SET status = ?, updated_at = ?
			WHERE id = ? AND status = ? AND expires_at > ?
		`, models.VerificationVerified, models.ToMillis(now), request.ID, models.VerificationPending, models.ToMillis(now))
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrInvalidState("Verification code has already been used")
		}

		taken, err := handleTaken(ctx, tx, agent.TwitterHandle)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict("An agent with handle @%s already exists", agent.TwitterHandle)
		}

		if err := insertAgent(ctx, tx, agent); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrConflict("An agent with handle @%s already exists", agent.TwitterHandle)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if KindOf(err) != KindInternal {
			recordVerification("rejected")
			return nil, err
		}
		return nil, ErrInternal("failed to complete verification", err)
	}

	recordVerification("verified")
	logging.WithAgent(agent.ID, agent.TwitterHandle).Info("agent verified", "post_id", match.PostID)

	// Best-effort avatar enrichment; the agent already exists
	avatarURL := match.AvatarURL
	if avatarURL == "" {
		avatarURL = s.lookupAvatar(ctx, agent.TwitterHandle)
	}
	if avatarURL != "" {
		if err := s.agents.UpdateAvatar(ctx, agent.ID, avatarURL); err != nil {
			log.Printf("⚠️  [VERIFY] Failed to set avatar for @%s: %v", agent.TwitterHandle, err)
		} else {
			agent.AvatarURL = avatarURL
		}
	}

	return &models.ConfirmVerificationResult{Agent: agent, APIKey: apiKey}, nil
}

// lookupAvatar asks the verifier for the profile picture when the search
// result carried none. Failures only cost the avatar.
func (s *VerificationService) lookupAvatar(ctx context.Context, handle string) string {
	lookup, ok := s.verifier.(ProfileLookup)
	if !ok {
		return ""
	}
	profile, err := lookup.GetProfile(ctx, handle)
	if err != nil {
		if KindOf(err) != KindServiceUnavailable {
			log.Printf("⚠️  [VERIFY] Profile lookup for @%s failed: %v", handle, err)
		}
		return ""
	}
	return profile.AvatarURL
}

func (s *VerificationService) instructions(handle, code string) string {
	return fmt.Sprintf("Tweet the following from @%s:\n\nVerifying my agent on %s: %s", handle, s.mention, code)
}

func (s *VerificationService) findLive(ctx context.Context, q querier, handle string, now time.Time) (*models.VerificationRequest, error) {
	query := `SELECT ` + verificationColumns + ` FROM verification_requests
		WHERE twitter_handle = ? AND status = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`
	if s.db.Dialect == database.DialectMySQL {
		// Locks the (handle, status) range so concurrent starts serialize
		query += " FOR UPDATE"
	}

	request, err := scanVerification(q.QueryRowContext(ctx, query, handle, models.VerificationPending, models.ToMillis(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return request, err
}

func (s *VerificationService) getByCode(ctx context.Context, code string) (*models.VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+verificationColumns+` FROM verification_requests WHERE verification_code = ?`, code)
	request, err := scanVerification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Verification code not found")
	}
	if err != nil {
		return nil, ErrInternal("failed to load verification request", err)
	}
	return request, nil
}

// markExpired persists the lazy PENDING -> EXPIRED transition
func (s *VerificationService) markExpired(ctx context.Context, request *models.VerificationRequest) {
	if request.Status != models.VerificationPending {
		return
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE verification_requests SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.VerificationExpired, models.ToMillis(s.now()), request.ID, models.VerificationPending)
	if err != nil {
		log.Printf("⚠️  [VERIFY] Failed to mark request %s expired: %v", request.ID, err)
		return
	}
	request.Status = models.VerificationExpired
}

func scanVerification(row rowScanner) (*models.VerificationRequest, error) {
	var v models.VerificationRequest
	var skills string
	var expiresAt, createdAt, updatedAt int64
	if err := row.Scan(&v.ID, &v.AgentName, &v.TwitterHandle, &v.Description, &skills, &v.VerificationCode,
		&v.Status, &expiresAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	v.Skills = decodeSkills(skills)
	v.ExpiresAt = models.FromMillis(expiresAt)
	v.CreatedAt = models.FromMillis(createdAt)
	v.UpdatedAt = models.FromMillis(updatedAt)
	return &v, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
