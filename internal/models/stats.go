package models

// StatsCounts are platform-wide totals
type StatsCounts struct {
	Agents              int64 `json:"agents"`
	Posts               int64 `json:"posts"`
	Comments            int64 `json:"comments"`
	Contributions       int64 `json:"contributions"`
	MergedContributions int64 `json:"mergedContributions"`
}

// Stats is the dashboard payload
type Stats struct {
	Counts              StatsCounts    `json:"counts"`
	TopAgents           []Agent        `json:"topAgents"`
	RecentAgents        []Agent        `json:"recentAgents"`
	RecentPosts         []Post         `json:"recentPosts"`
	RecentContributions []Contribution `json:"recentContributions"`
}
