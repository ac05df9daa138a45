package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"moltingpot/internal/config"
)

const githubAPIVersion = "2022-11-28"

// RepositoryHost is the version-control hosting collaborator used to
// materialize a contribution as branch + commit + pull request
type RepositoryHost interface {
	Configured() bool
	DefaultBranch(ctx context.Context) (string, error)
	BranchHead(ctx context.Context, branch string) (string, error)
	CreateBranch(ctx context.Context, branch, sha string) error
	// FileSHA returns the blob sha of path on ref; found is false on 404
	FileSHA(ctx context.Context, path, ref string) (sha string, found bool, err error)
	PutFile(ctx context.Context, commit FileCommit) error
	CreatePullRequest(ctx context.Context, pr PullRequestInput) (*PullRequest, error)
}

// RepositoryBrowser exposes read-only repository content
type RepositoryBrowser interface {
	Configured() bool
	Contents(ctx context.Context, path, ref string) (*RepoContents, error)
	Tree(ctx context.Context, ref string) (*RepoTree, error)
	SearchCode(ctx context.Context, query string, perPage int) ([]CodeSearchItem, error)
}

// FileCommit is a create-or-update of one file on a branch
type FileCommit struct {
	Path    string
	Content []byte
	Message string
	Branch  string
	SHA     string // required by GitHub when updating an existing file
}

type PullRequestInput struct {
	Title string
	Body  string
	Head  string
	Base  string
}

type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// RepoContentItem is one entry of the contents API
type RepoContentItem struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding,omitempty"`
	Content  string `json:"content,omitempty"`
}

// RepoContents is either a directory (Entries) or a single file (File)
type RepoContents struct {
	Entries []RepoContentItem
	File    *RepoContentItem
}

type RepoTreeItem struct {
	Path string `json:"path"`
	Type string `json:"type"` // blob | tree | commit
	Size int64  `json:"size"`
	SHA  string `json:"sha"`
}

type RepoTree struct {
	SHA       string         `json:"sha"`
	Tree      []RepoTreeItem `json:"tree"`
	Truncated bool           `json:"truncated"`
}

type CodeSearchItem struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
}

// GitHubAPIError is a non-2xx response from the GitHub API
type GitHubAPIError struct {
	StatusCode int
	Message    string
}

func (e *GitHubAPIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// IsGitHubNotFound reports whether err is a GitHub 404
func IsGitHubNotFound(err error) bool {
	var apiErr *GitHubAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// GitHubClient talks to the GitHub REST API for the platform repository
type GitHubClient struct {
	baseURL    string
	token      string
	owner      string
	repo       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGitHubClient creates a client from configuration
func NewGitHubClient(cfg *config.Config) *GitHubClient {
	return &GitHubClient{
		baseURL:    cfg.GitHubAPIBase,
		token:      cfg.GitHubToken,
		owner:      cfg.GitHubRepoOwner,
		repo:       cfg.GitHubRepoName,
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeout},
		limiter:    newUpstreamLimiter(cfg.UpstreamRPS),
	}
}

// maxUpstreamBody caps how much of a collaborator response is read
const maxUpstreamBody = 10 << 20

// readUpstreamBody reads at most maxUpstreamBody bytes, failing on larger bodies
func readUpstreamBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxUpstreamBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxUpstreamBody {
		return nil, fmt.Errorf("response exceeds %d bytes", maxUpstreamBody)
	}
	return body, nil
}

func newUpstreamLimiter(rps float64) *rate.Limiter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Configured reports whether token, owner and repo are all set
func (c *GitHubClient) Configured() bool {
	return c.token != "" && c.owner != "" && c.repo != ""
}

func (c *GitHubClient) repoPath() string {
	return "/repos/" + url.PathEscape(c.owner) + "/" + url.PathEscape(c.repo)
}

func (c *GitHubClient) DefaultBranch(ctx context.Context) (string, error) {
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.do(ctx, http.MethodGet, c.repoPath(), nil, &repo); err != nil {
		return "", err
	}
	if repo.DefaultBranch == "" {
		return "", fmt.Errorf("repository response has no default_branch")
	}
	return repo.DefaultBranch, nil
}

func (c *GitHubClient) BranchHead(ctx context.Context, branch string) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.do(ctx, http.MethodGet, c.repoPath()+"/git/ref/heads/"+escapePath(branch), nil, &ref); err != nil {
		return "", err
	}
	if ref.Object.SHA == "" {
		return "", fmt.Errorf("ref response has no object sha")
	}
	return ref.Object.SHA, nil
}

func (c *GitHubClient) CreateBranch(ctx context.Context, branch, sha string) error {
	body := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	return c.do(ctx, http.MethodPost, c.repoPath()+"/git/refs", body, nil)
}

func (c *GitHubClient) FileSHA(ctx context.Context, path, ref string) (string, bool, error) {
	contents, err := c.Contents(ctx, path, ref)
	if IsGitHubNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if contents.File == nil {
		return "", false, fmt.Errorf("%s is a directory", path)
	}
	return contents.File.SHA, true, nil
}

func (c *GitHubClient) PutFile(ctx context.Context, commit FileCommit) error {
	body := map[string]string{
		"message": commit.Message,
		"content": base64Encode(commit.Content),
		"branch":  commit.Branch,
	}
	if commit.SHA != "" {
		body["sha"] = commit.SHA
	}
	return c.do(ctx, http.MethodPut, c.repoPath()+"/contents/"+escapePath(commit.Path), body, nil)
}

func (c *GitHubClient) CreatePullRequest(ctx context.Context, input PullRequestInput) (*PullRequest, error) {
	body := map[string]string{
		"title": input.Title,
		"body":  input.Body,
		"head":  input.Head,
		"base":  input.Base,
	}
	var pr PullRequest
	if err := c.do(ctx, http.MethodPost, c.repoPath()+"/pulls", body, &pr); err != nil {
		return nil, err
	}
	if pr.Number == 0 || pr.HTMLURL == "" {
		return nil, fmt.Errorf("pull request response missing number or html_url")
	}
	return &pr, nil
}

func (c *GitHubClient) Contents(ctx context.Context, path, ref string) (*RepoContents, error) {
	endpoint := c.repoPath() + "/contents/" + escapePath(path)
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []RepoContentItem
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse directory listing: %w", err)
		}
		return &RepoContents{Entries: entries}, nil
	}

	var file RepoContentItem
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, fmt.Errorf("failed to parse file contents: %w", err)
	}
	return &RepoContents{File: &file}, nil
}

func (c *GitHubClient) Tree(ctx context.Context, ref string) (*RepoTree, error) {
	var tree RepoTree
	endpoint := c.repoPath() + "/git/trees/" + url.PathEscape(ref) + "?recursive=1"
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (c *GitHubClient) SearchCode(ctx context.Context, query string, perPage int) ([]CodeSearchItem, error) {
	q := query + " repo:" + c.owner + "/" + c.repo
	endpoint := "/search/code?q=" + url.QueryEscape(q) + "&per_page=" + strconv.Itoa(perPage)

	var result struct {
		Items []CodeSearchItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

// do performs one GitHub API call, decoding a JSON response into out when non-nil
func (c *GitHubClient) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return ErrUpstream("wait_rate_limit", fmt.Errorf("rate limiter: %w", err))
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	req.Header.Set("User-Agent", "moltingpot")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordUpstream("github", "error", started)
		return fmt.Errorf("GitHub request failed: %w", err)
	}
	defer resp.Body.Close()
	recordUpstream("github", strconv.Itoa(resp.StatusCode), started)

	respBody, err := readUpstreamBody(resp.Body)
	if err != nil {
		return ErrUpstream("read_response", err)
	}

	if resp.StatusCode >= 400 {
		errMsg := "GitHub API error"
		var result struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &result) == nil && result.Message != "" {
			errMsg = result.Message
		}
		apiErr := &GitHubAPIError{StatusCode: resp.StatusCode, Message: errMsg}

		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			return &ServiceError{Kind: KindRateLimited, Message: "GitHub rate limit exceeded. Try again later.", Cause: apiErr}
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// escapePath escapes each segment of a repository path
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
