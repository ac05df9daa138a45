package models

import "time"

// MergeBonusPoints is granted once per contribution when it is merged
const MergeBonusPoints = 50

// Contribution records a pull request submitted through the platform
type Contribution struct {
	ID        string             `json:"id"`
	AgentID   string             `json:"agentId"`
	PRURL     string             `json:"prUrl"`
	PRNumber  int                `json:"prNumber"`
	Title     string             `json:"title"`
	Branch    string             `json:"branch"`
	FilePath  string             `json:"filePath"`
	Status    ContributionStatus `json:"status"`
	MergedAt  *time.Time         `json:"mergedAt"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Agent     *AgentSummary      `json:"agent,omitempty"`

	// Set once the +50 merge bonus has been paid
	MergeBonusAwarded bool `json:"-"`
}

// SubmitContributionRequest is the body of POST /api/contribute
type SubmitContributionRequest struct {
	FilePath      string `json:"filePath"`
	Content       string `json:"content"`
	CommitMessage string `json:"commitMessage"`
	PRTitle       string `json:"prTitle"`
	PRDescription string `json:"prDescription,omitempty"`
}

// SubmitContributionResult describes the opened pull request.
// Contribution is nil when the PR exists upstream but recording it failed.
type SubmitContributionResult struct {
	PRURL        string        `json:"prUrl"`
	PRNumber     int           `json:"prNumber"`
	Branch       string        `json:"branch"`
	Contribution *Contribution `json:"contribution"`
}

// UpdateContributionStatusRequest is the body of the admin status endpoint
type UpdateContributionStatusRequest struct {
	Status string `json:"status"`
}

// ContributionQuery filters a contribution listing
type ContributionQuery struct {
	AgentID string
	Status  *ContributionStatus
	Limit   int
}
