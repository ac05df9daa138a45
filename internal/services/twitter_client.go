package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"moltingpot/internal/config"
)

// SocialVerifier is the social-network collaborator that proves handle ownership
type SocialVerifier interface {
	// FindVerificationPost searches recent posts from handle for the platform
	// mention and the exact code. No match yields a VerificationNotFound error.
	FindVerificationPost(ctx context.Context, handle, code string) (*VerificationMatch, error)
}

// ProfileLookup is implemented by verifiers that can fetch profile metadata
type ProfileLookup interface {
	GetProfile(ctx context.Context, handle string) (*SocialProfile, error)
}

// VerificationMatch is a post that proves ownership of a handle
type VerificationMatch struct {
	PostID    string
	AvatarURL string // empty when the network reported none
}

// SocialProfile is public profile metadata for a handle
type SocialProfile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"profile_image_url"`
}

type tweet struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
}

type twitterSearchResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Users []SocialProfile `json:"users"`
	} `json:"includes"`
}

// TwitterClient searches the Twitter API v2 for verification tweets
type TwitterClient struct {
	baseURL     string
	bearerToken string
	mention     string
	allowBypass bool
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewTwitterClient creates a client from configuration
func NewTwitterClient(cfg *config.Config) *TwitterClient {
	return &TwitterClient{
		baseURL:     cfg.TwitterAPIBase,
		bearerToken: cfg.TwitterBearerToken,
		mention:     cfg.PlatformMention,
		allowBypass: cfg.VerificationBypassEnabled(),
		httpClient:  &http.Client{Timeout: cfg.UpstreamTimeout},
		limiter:     newUpstreamLimiter(cfg.UpstreamRPS),
	}
}

func (c *TwitterClient) FindVerificationPost(ctx context.Context, handle, code string) (*VerificationMatch, error) {
	if c.bearerToken == "" {
		if c.allowBypass {
			log.Printf("⚠️  [VERIFY] Twitter API not configured, skipping tweet check for @%s (development bypass)", handle)
			return &VerificationMatch{PostID: "dev-mode"}, nil
		}
		return nil, ErrServiceUnavailable("Twitter verification is not configured")
	}

	query := fmt.Sprintf("from:%s %s %s", handle, c.mention, code)
	params := url.Values{}
	params.Set("query", query)
	params.Set("tweet.fields", "author_id")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "profile_image_url")

	var result twitterSearchResponse
	if err := c.get(ctx, "search_posts", "/tweets/search/recent?"+params.Encode(), &result); err != nil {
		return nil, err
	}

	for _, t := range result.Data {
		if !matchesVerificationText(t.Text, c.mention, code) {
			continue
		}

		var author *SocialProfile
		for i := range result.Includes.Users {
			if result.Includes.Users[i].ID == t.AuthorID {
				author = &result.Includes.Users[i]
				break
			}
		}
		// The search operator scopes by author, but a reported username must still agree
		if author != nil && author.Username != "" && !strings.EqualFold(author.Username, handle) {
			continue
		}

		match := &VerificationMatch{PostID: t.ID}
		if author != nil {
			match.AvatarURL = upgradeAvatarURL(author.AvatarURL)
		}
		return match, nil
	}

	return nil, ErrVerificationNotFound(
		"No verification tweet found from @%s. Tweet \"Verifying my agent on %s: %s\" and try again in a minute.",
		handle, c.mention, code)
}

// GetProfile fetches public profile metadata for handle
func (c *TwitterClient) GetProfile(ctx context.Context, handle string) (*SocialProfile, error) {
	if c.bearerToken == "" {
		return nil, ErrServiceUnavailable("Twitter API is not configured")
	}

	var result struct {
		Data *SocialProfile `json:"data"`
	}
	endpoint := "/users/by/username/" + url.PathEscape(handle) + "?user.fields=profile_image_url"
	if err := c.get(ctx, "get_profile", endpoint, &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, ErrNotFound("Twitter user @%s not found", handle)
	}
	result.Data.AvatarURL = upgradeAvatarURL(result.Data.AvatarURL)
	return result.Data, nil
}

func (c *TwitterClient) get(ctx context.Context, step, endpoint string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return ErrUpstream(step, fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordUpstream("twitter", "error", started)
		return ErrUpstream(step, fmt.Errorf("Twitter request failed: %w", err))
	}
	defer resp.Body.Close()
	recordUpstream("twitter", strconv.Itoa(resp.StatusCode), started)

	respBody, err := readUpstreamBody(resp.Body)
	if err != nil {
		return ErrUpstream(step, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited("Twitter API rate limit reached. Please try again in a few minutes.")
	}

	if resp.StatusCode >= 400 {
		errMsg := "X API error"
		var result struct {
			Detail string `json:"detail"`
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if json.Unmarshal(respBody, &result) == nil {
			if len(result.Errors) > 0 && result.Errors[0].Message != "" {
				errMsg = result.Errors[0].Message
			}
			if result.Detail != "" {
				errMsg = result.Detail
			}
		}
		log.Printf("❌ [VERIFY] Twitter API error: %s (status %d)", errMsg, resp.StatusCode)
		return ErrUpstream(step, fmt.Errorf("%s (status %d)", errMsg, resp.StatusCode))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return ErrUpstream(step, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// matchesVerificationText requires the mention (any case) and the exact code
func matchesVerificationText(text, mention, code string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(mention)) && strings.Contains(text, code)
}

// upgradeAvatarURL swaps the 48px thumbnail for the 400px variant
func upgradeAvatarURL(u string) string {
	return strings.Replace(u, "_normal", "_400x400", 1)
}
