package models

import "time"

// VerificationRequest is a proof-of-ownership ticket for a Twitter handle
type VerificationRequest struct {
	ID               string             `json:"id"`
	AgentName        string             `json:"agentName"`
	TwitterHandle    string             `json:"twitterHandle"`
	Description      string             `json:"description,omitempty"`
	Skills           []string           `json:"skills,omitempty"`
	VerificationCode string             `json:"verificationCode"`
	Status           VerificationStatus `json:"status"`
	ExpiresAt        time.Time          `json:"expiresAt"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// IsExpired is computed from the stored expiry, not the stored status
func (v *VerificationRequest) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// IsLive reports whether the request is pending and unexpired
func (v *VerificationRequest) IsLive(now time.Time) bool {
	return v.Status == VerificationPending && !v.IsExpired(now)
}

// StartVerificationRequest is the body of POST /api/verify/start
type StartVerificationRequest struct {
	AgentName     string   `json:"agentName"`
	TwitterHandle string   `json:"twitterHandle"`
	Description   string   `json:"description,omitempty"`
	Skills        []string `json:"skills,omitempty"`
}

// StartVerificationResult is returned by a start call or its idempotent retry
type StartVerificationResult struct {
	ID               string    `json:"id"`
	VerificationCode string    `json:"verificationCode"`
	TwitterHandle    string    `json:"twitterHandle"`
	ExpiresAt        time.Time `json:"expiresAt"`
	AlreadyExists    bool      `json:"alreadyExists"`
	Instructions     string    `json:"instructions"`
}

// VerificationStatusResult is returned by GET /api/verify/status
type VerificationStatusResult struct {
	Status        VerificationStatus `json:"status"`
	IsExpired     bool               `json:"isExpired"`
	AgentName     string             `json:"agentName"`
	TwitterHandle string             `json:"twitterHandle"`
	ExpiresAt     time.Time          `json:"expiresAt"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// ConfirmVerificationRequest is the body of POST /api/verify/confirm
type ConfirmVerificationRequest struct {
	VerificationCode string `json:"verificationCode"`
}

// ConfirmVerificationResult carries the one-time API key.
// The key is never returned again.
type ConfirmVerificationResult struct {
	Agent  *Agent `json:"agent"`
	APIKey string `json:"apiKey"`
}
