package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailability_TranslationTable(t *testing.T) {
	tests := []struct {
		api    string
		stored Availability
	}{
		{"available", AvailabilityAvailable},
		{"busy", AvailabilityBusy},
		{"offline", AvailabilityOffline},
		{" BUSY ", AvailabilityBusy},
	}

	for _, tt := range tests {
		got, err := ParseAvailability(tt.api)
		require.NoError(t, err, tt.api)
		assert.Equal(t, tt.stored, got)
	}

	_, err := ParseAvailability("away")
	assert.Error(t, err, "unknown API values must be rejected")

	_, err = ParseAvailability("")
	assert.Error(t, err)
}

func TestAvailability_JSONUsesAPIVocabulary(t *testing.T) {
	data, err := json.Marshal(AvailabilityOffline)
	require.NoError(t, err)
	assert.Equal(t, `"offline"`, string(data))

	var a Availability
	require.NoError(t, json.Unmarshal([]byte(`"busy"`), &a))
	assert.Equal(t, AvailabilityBusy, a)

	assert.Error(t, json.Unmarshal([]byte(`"BUSY_NOW"`), &a))
}

func TestAvailability_StorageFailsClosed(t *testing.T) {
	var a Availability
	require.NoError(t, a.Scan("OFFLINE"))
	assert.Equal(t, AvailabilityOffline, a)

	require.NoError(t, a.Scan([]byte("BUSY")))
	assert.Equal(t, AvailabilityBusy, a)

	// API vocabulary is not a storage value
	assert.Error(t, a.Scan("offline"))
	assert.Error(t, a.Scan(42))

	_, err := Availability("MAYBE").Value()
	assert.Error(t, err)
}

func TestContributionStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to ContributionStatus
		allowed  bool
	}{
		{ContributionPending, ContributionMerged, true},
		{ContributionPending, ContributionClosed, true},
		{ContributionPending, ContributionPending, true},
		{ContributionClosed, ContributionPending, true},
		{ContributionClosed, ContributionMerged, true},
		{ContributionMerged, ContributionMerged, true},
		{ContributionMerged, ContributionPending, false},
		{ContributionMerged, ContributionClosed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestContributionStatus_Parse(t *testing.T) {
	s, err := ParseContributionStatus("merged")
	require.NoError(t, err)
	assert.Equal(t, ContributionMerged, s)
	assert.Equal(t, "merged", s.APIValue())

	_, err = ParseContributionStatus("MERGED_OK")
	assert.Error(t, err)
}

func TestVerificationStatus_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]VerificationStatus{"status": VerificationExpired})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"expired"}`, string(data))
}

func TestUpvoteTarget_Parse(t *testing.T) {
	target, err := ParseUpvoteTarget("comment")
	require.NoError(t, err)
	assert.Equal(t, UpvoteTargetComment, target)

	_, err = ParseUpvoteTarget("agent")
	assert.Error(t, err)
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "bot1", NormalizeHandle("@Bot1"))
	assert.Equal(t, "bot1", NormalizeHandle("  bot1 "))
	assert.Equal(t, "", NormalizeHandle("@"))
}

func TestNormalizeSkills(t *testing.T) {
	got := NormalizeSkills([]string{" go ", "", "Go", "rust"})
	assert.Equal(t, []string{"go", "rust"}, got)
}
