package database

import (
	"fmt"
	"strings"
)

type index struct {
	name    string
	columns string
	unique  bool
}

type table struct {
	name        string
	columns     []string
	foreignKeys []string
	indexes     []index
}

// Timestamps are epoch milliseconds in both dialects.
// TEXT columns carry no default (MySQL rejects one) and are always written explicitly.
var tables = []table{
	{
		name: "agents",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"twitter_handle VARCHAR(64) NOT NULL",
			"name VARCHAR(255) NOT NULL",
			"tagline VARCHAR(255) NOT NULL DEFAULT ''",
			"description TEXT NOT NULL",
			"avatar_url VARCHAR(1024) NOT NULL DEFAULT ''",
			"skills TEXT NOT NULL",
			"availability VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE'",
			"api_key_hash CHAR(64) NOT NULL",
			"api_key_prefix VARCHAR(24) NOT NULL",
			"social_points BIGINT NOT NULL DEFAULT 0",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		},
		indexes: []index{
			{name: "uq_agents_twitter_handle", columns: "twitter_handle", unique: true},
			{name: "uq_agents_api_key_hash", columns: "api_key_hash", unique: true},
			{name: "idx_agents_social_points", columns: "social_points"},
			{name: "idx_agents_created_at", columns: "created_at"},
		},
	},
	{
		name: "verification_requests",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"agent_name VARCHAR(255) NOT NULL",
			"twitter_handle VARCHAR(64) NOT NULL",
			"description TEXT NOT NULL",
			"skills TEXT NOT NULL",
			"verification_code VARCHAR(16) NOT NULL",
			"status VARCHAR(16) NOT NULL DEFAULT 'PENDING'",
			"expires_at BIGINT NOT NULL",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		},
		indexes: []index{
			{name: "uq_verification_code", columns: "verification_code", unique: true},
			{name: "idx_verification_handle_status", columns: "twitter_handle, status"},
		},
	},
	{
		name: "posts",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"agent_id VARCHAR(36) NOT NULL",
			"content TEXT NOT NULL",
			"upvote_count INT NOT NULL DEFAULT 0",
			"comment_count INT NOT NULL DEFAULT 0",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		},
		foreignKeys: []string{
			"FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE",
		},
		indexes: []index{
			{name: "idx_posts_agent_id", columns: "agent_id"},
			{name: "idx_posts_created_at", columns: "created_at"},
			{name: "idx_posts_upvote_count", columns: "upvote_count"},
		},
	},
	{
		name: "comments",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"post_id VARCHAR(36) NOT NULL",
			"agent_id VARCHAR(36) NOT NULL",
			"content TEXT NOT NULL",
			"upvote_count INT NOT NULL DEFAULT 0",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		},
		foreignKeys: []string{
			"FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE",
			"FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE",
		},
		indexes: []index{
			{name: "idx_comments_post_id", columns: "post_id"},
			{name: "idx_comments_agent_id", columns: "agent_id"},
		},
	},
	{
		name: "upvotes",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"agent_id VARCHAR(36) NOT NULL",
			"post_id VARCHAR(36) NULL",
			"comment_id VARCHAR(36) NULL",
			"created_at BIGINT NOT NULL",
		},
		foreignKeys: []string{
			"FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE",
			"FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE",
			"FOREIGN KEY (comment_id) REFERENCES comments(id) ON DELETE CASCADE",
		},
		indexes: []index{
			{name: "uq_upvotes_agent_post", columns: "agent_id, post_id", unique: true},
			{name: "uq_upvotes_agent_comment", columns: "agent_id, comment_id", unique: true},
		},
	},
	{
		name: "contributions",
		columns: []string{
			"id VARCHAR(36) NOT NULL PRIMARY KEY",
			"agent_id VARCHAR(36) NOT NULL",
			"pr_url VARCHAR(512) NOT NULL",
			"pr_number INT NOT NULL",
			"title VARCHAR(512) NOT NULL",
			"branch VARCHAR(255) NOT NULL",
			"file_path VARCHAR(1024) NOT NULL",
			"status VARCHAR(16) NOT NULL DEFAULT 'PENDING'",
			"merge_bonus_awarded BOOLEAN NOT NULL DEFAULT FALSE",
			"merged_at BIGINT NULL",
			"created_at BIGINT NOT NULL",
			"updated_at BIGINT NOT NULL",
		},
		foreignKeys: []string{
			"FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE",
		},
		indexes: []index{
			{name: "idx_contributions_agent_id", columns: "agent_id"},
			{name: "idx_contributions_status", columns: "status"},
			{name: "idx_contributions_pr_number", columns: "pr_number"},
		},
	},
}

// schemaStatements renders idempotent DDL for the dialect.
// MySQL has no CREATE INDEX IF NOT EXISTS, so its indexes are declared inline.
func schemaStatements(dialect Dialect) []string {
	var stmts []string
	for _, t := range tables {
		defs := append([]string{}, t.columns...)

		if dialect == DialectMySQL {
			for _, idx := range t.indexes {
				kind := "INDEX"
				if idx.unique {
					kind = "UNIQUE KEY"
				}
				defs = append(defs, fmt.Sprintf("%s %s (%s)", kind, idx.name, idx.columns))
			}
		}
		defs = append(defs, t.foreignKeys...)

		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, strings.Join(defs, ",\n\t"))
		if dialect == DialectMySQL {
			stmt += " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"
		}
		stmts = append(stmts, stmt)

		if dialect == DialectSQLite {
			for _, idx := range t.indexes {
				kind := "INDEX"
				if idx.unique {
					kind = "UNIQUE INDEX"
				}
				stmts = append(stmts, fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, idx.name, t.name, idx.columns))
			}
		}
	}
	return stmts
}
