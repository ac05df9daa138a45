package services

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"moltingpot/internal/database"
	"moltingpot/internal/models"
)

type fakeVerifier struct {
	mu    sync.Mutex
	match *VerificationMatch
	err   error
	calls int
}

func (f *fakeVerifier) FindVerificationPost(ctx context.Context, handle, code string) (*VerificationMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.match != nil {
		return f.match, nil
	}
	return &VerificationMatch{PostID: "tweet-" + code}, nil
}

// fakeHost records the hosting calls it receives and fails at failStep
type fakeHost struct {
	mu         sync.Mutex
	configured bool
	failStep   string
	failErr    error
	calls      []string
	commits    []FileCommit
	prs        []PullRequestInput
	nextPR     int
}

func newFakeHost() *fakeHost {
	return &fakeHost{configured: true, nextPR: 100}
}

func (f *fakeHost) step(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failStep == name {
		if f.failErr != nil {
			return f.failErr
		}
		return &GitHubAPIError{StatusCode: 422, Message: "Reference already exists"}
	}
	return nil
}

func (f *fakeHost) Configured() bool { return f.configured }

func (f *fakeHost) DefaultBranch(ctx context.Context) (string, error) {
	if err := f.step(StepResolveDefaultBranch); err != nil {
		return "", err
	}
	return "main", nil
}

func (f *fakeHost) BranchHead(ctx context.Context, branch string) (string, error) {
	if err := f.step(StepResolveHead); err != nil {
		return "", err
	}
	return "abc123", nil
}

func (f *fakeHost) CreateBranch(ctx context.Context, branch, sha string) error {
	return f.step(StepCreateBranch)
}

func (f *fakeHost) FileSHA(ctx context.Context, path, ref string) (string, bool, error) {
	if err := f.step(StepProbeFile); err != nil {
		return "", false, err
	}
	return "", false, nil
}

func (f *fakeHost) PutFile(ctx context.Context, commit FileCommit) error {
	if err := f.step(StepCommitFile); err != nil {
		return err
	}
	f.mu.Lock()
	f.commits = append(f.commits, commit)
	f.mu.Unlock()
	return nil
}

func (f *fakeHost) CreatePullRequest(ctx context.Context, input PullRequestInput) (*PullRequest, error) {
	if err := f.step(StepCreatePullRequest); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs = append(f.prs, input)
	f.nextPR++
	return &PullRequest{Number: f.nextPR, HTMLURL: "https://github.com/moltingpot/app/pull/" + strconv.Itoa(f.nextPR)}, nil
}

func (f *fakeHost) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testEnv struct {
	db            *database.DB
	agents        *AgentService
	verification  *VerificationService
	ledger        *LedgerService
	contributions *ContributionService
	stats         *StatsService
	verifier      *fakeVerifier
	host          *fakeHost
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "moltingpot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Initialize())

	env := &testEnv{
		db:       db,
		verifier: &fakeVerifier{},
		host:     newFakeHost(),
	}
	env.agents = NewAgentService(db)
	env.verification = NewVerificationService(db, env.agents, env.verifier, "@themoltingpot")
	env.ledger = NewLedgerService(db)
	env.contributions = NewContributionService(db, env.host)
	env.stats = NewStatsService(db, env.agents, env.ledger, env.contributions)
	return env
}

// registerAgent runs the full verification flow for handle
func (e *testEnv) registerAgent(t *testing.T, name, handle string) (*models.Agent, string) {
	t.Helper()
	ctx := context.Background()

	started, err := e.verification.Start(ctx, &models.StartVerificationRequest{
		AgentName:     name,
		TwitterHandle: handle,
		Skills:        []string{"go", "testing"},
	})
	require.NoError(t, err)

	confirmed, err := e.verification.Confirm(ctx, started.VerificationCode)
	require.NoError(t, err)
	return confirmed.Agent, confirmed.APIKey
}

func (e *testEnv) points(t *testing.T, agentID string) int64 {
	t.Helper()
	agent, err := e.agents.GetByID(context.Background(), agentID)
	require.NoError(t, err)
	return agent.SocialPoints
}

// earnedUpvotes counts the upvote rows on content authored by agentID
func (e *testEnv) earnedUpvotes(t *testing.T, agentID string) int64 {
	t.Helper()
	var n int64
	err := e.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM upvotes u JOIN posts p ON p.id = u.post_id WHERE p.agent_id = ?) +
			(SELECT COUNT(*) FROM upvotes u JOIN comments c ON c.id = u.comment_id WHERE c.agent_id = ?)
	`, agentID, agentID).Scan(&n)
	require.NoError(t, err)
	return n
}

func (e *testEnv) mergedBonus(t *testing.T, agentID string) int64 {
	t.Helper()
	var n int64
	err := e.db.QueryRow(`SELECT COUNT(*) FROM contributions WHERE agent_id = ? AND merge_bonus_awarded = 1`, agentID).Scan(&n)
	require.NoError(t, err)
	return n * models.MergeBonusPoints
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr), "expected *ServiceError, got %T: %v", err, err)
	require.Equal(t, kind, svcErr.Kind, "unexpected kind for %v", err)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
