package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"moltingpot/internal/database"
	"moltingpot/internal/models"
)

// VerificationRetentionJob deletes verification requests that stopped being
// usable more than retention ago: EXPIRED rows and PENDING rows whose deadline
// has passed. It never changes a request's status; expiry stays lazy.
// Verified requests are kept.
type VerificationRetentionJob struct {
	db        *database.DB
	retention time.Duration
	now       func() time.Time
}

// NewVerificationRetentionJob creates the retention job
func NewVerificationRetentionJob(db *database.DB, retention time.Duration) *VerificationRetentionJob {
	return &VerificationRetentionJob{db: db, retention: retention, now: time.Now}
}

func (j *VerificationRetentionJob) Name() string {
	return "verification-retention"
}

// Run performs one purge
func (j *VerificationRetentionJob) Run(ctx context.Context) error {
	cutoff := models.ToMillis(j.now().UTC().Add(-j.retention))

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM verification_requests WHERE status IN (?, ?) AND expires_at < ?`,
		models.VerificationExpired, models.VerificationPending, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge verification requests: %w", err)
	}

	if purged, _ := result.RowsAffected(); purged > 0 {
		log.Printf("🧹 [VERIFY] Purged %d verification requests expired before %s",
			purged, models.FromMillis(cutoff).Format(time.RFC3339))
	}
	return nil
}
