package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(ErrNotFound("Post not found")))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("wrapped: %w", ErrConflict("taken"))))
}

func TestPublicMessage_HidesInternalDetail(t *testing.T) {
	err := ErrInternal("failed to query agents", errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	assert.Equal(t, "Internal server error", PublicMessage(err))
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("raw")))
	assert.Equal(t, "Post not found", PublicMessage(ErrNotFound("Post not found")))
}

func TestErrUpstream(t *testing.T) {
	cause := &GitHubAPIError{StatusCode: 422, Message: "Reference already exists"}
	err := ErrUpstream(StepCreateBranch, cause)

	assert.Equal(t, KindUpstreamError, KindOf(err))
	assert.Equal(t, "Reference already exists (status 422) (step: create_branch)", PublicMessage(err))
	assert.True(t, errors.Is(err, cause))

	limited := ErrUpstream(StepCommitFile, ErrRateLimited("slow down"))
	assert.Equal(t, KindRateLimited, KindOf(limited))
	assert.Contains(t, PublicMessage(limited), "slow down")
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "upstream_error", KindUpstreamError.String())
	assert.Equal(t, "verification_not_found", KindVerificationNotFound.String())
	assert.Equal(t, "internal", KindInternal.String())
}
