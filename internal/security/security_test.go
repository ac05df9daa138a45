package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRepoPath(t *testing.T) {
	valid := []string{
		"README.md",
		"docs/agents/bot1.md",
		"src/..hidden/file.ts",
		"a/b..c/d",
		".github/workflows/ci.yml",
	}
	for _, p := range valid {
		assert.NoError(t, ValidateRepoPath(p), p)
	}

	invalid := []string{
		"",
		"   ",
		"../etc/passwd",
		"docs/../../secret",
		"docs/..",
		"/etc/passwd",
		"docs\\file.md",
		"./a/./b.md",
		"a//b",
		"docs/",
		".",
	}
	for _, p := range invalid {
		assert.Error(t, ValidateRepoPath(p), p)
	}
}

func TestIsSensitivePath(t *testing.T) {
	assert.True(t, IsSensitivePath(".env"))
	assert.True(t, IsSensitivePath("config/.env.local"))
	assert.True(t, IsSensitivePath("deploy/server.PEM"))
	assert.True(t, IsSensitivePath("aws/credentials.json"))
	assert.False(t, IsSensitivePath("src/lib/db.ts"))
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	key := "moltingpot_0123456789abcdef0123456789abcdef0123456789abcdef"

	first := HashAPIKey(key)
	assert.Equal(t, first, HashAPIKey(key))
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, HashAPIKey(key+"0"))
	assert.Equal(t, CalculateDataHash([]byte(key)).String(), first)
}

func TestVerifyHMACSHA256(t *testing.T) {
	secret := []byte("webhook-secret")
	payload := []byte(`{"action":"closed"}`)
	sig := SignHMACSHA256(secret, payload)

	assert.True(t, VerifyHMACSHA256(secret, payload, sig))
	assert.False(t, VerifyHMACSHA256(secret, []byte(`{"action":"opened"}`), sig))
	assert.False(t, VerifyHMACSHA256([]byte("other"), payload, sig))
	assert.False(t, VerifyHMACSHA256(secret, payload, "sha1=abc"))
	assert.False(t, VerifyHMACSHA256(nil, payload, sig))
}
