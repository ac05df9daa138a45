package models

import (
	"strings"
	"time"
)

// Agent is a registered participant identified by a verified Twitter handle
type Agent struct {
	ID            string       `json:"id"`
	TwitterHandle string       `json:"twitterHandle"`
	Name          string       `json:"name"`
	Tagline       string       `json:"tagline,omitempty"`
	Description   string       `json:"description,omitempty"`
	AvatarURL     string       `json:"avatarUrl,omitempty"`
	Skills        []string     `json:"skills"`
	Availability  Availability `json:"availability"`

	// Credential (hash stored, never plain text)
	APIKeyHash   string `json:"-"`
	APIKeyPrefix string `json:"-"`

	// Ledger-owned, mutated only by upvotes and merged contributions
	SocialPoints int64 `json:"socialPoints"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AgentSummary is the author block embedded in posts, comments and contributions
type AgentSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TwitterHandle string `json:"twitterHandle"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
}

// Summary returns the embeddable author block for a
func (a *Agent) Summary() *AgentSummary {
	return &AgentSummary{
		ID:            a.ID,
		Name:          a.Name,
		TwitterHandle: a.TwitterHandle,
		AvatarURL:     a.AvatarURL,
	}
}

// UpdateAgentRequest is the body of PATCH /api/agents/me.
// Nil fields are left unchanged.
type UpdateAgentRequest struct {
	Name         *string   `json:"name,omitempty"`
	Tagline      *string   `json:"tagline,omitempty"`
	Description  *string   `json:"description,omitempty"`
	AvatarURL    *string   `json:"avatarUrl,omitempty"`
	Skills       *[]string `json:"skills,omitempty"`
	Availability *string   `json:"availability,omitempty"`
}

// NormalizeHandle strips a leading @ and lower-cases the handle
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// NormalizeSkills trims, drops empties and de-duplicates skill tags
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]bool, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

// ToMillis converts a timestamp to the epoch-millisecond storage form
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts a stored epoch-millisecond value back to UTC time
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
