package services

import (
	"context"
	"encoding/base64"
	"log"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"moltingpot/internal/models"
	"moltingpot/internal/security"
)

const (
	maxTreeEntries   = 500
	maxSourceFile    = 1 << 20 // 1 MiB
	minSearchQuery   = 3
	searchResultSize = 20
)

var excludedTreePrefixes = []string{"node_modules/", ".git/", ".next/", "dist/"}

// SourceService is a read-only browser over the platform repository.
// Tree and file reads are cached; ledger data never is.
type SourceService struct {
	browser RepositoryBrowser
	cache   *cache.Cache
}

// NewSourceService creates a source browser with a TTL cache
func NewSourceService(browser RepositoryBrowser, ttl time.Duration) *SourceService {
	return &SourceService{
		browser: browser,
		cache:   cache.New(ttl, 2*ttl),
	}
}

func (s *SourceService) ensureConfigured() error {
	if s.browser == nil || !s.browser.Configured() {
		return ErrServiceUnavailable("GitHub integration is not configured")
	}
	return nil
}

// List returns a directory listing or the metadata of a single file
func (s *SourceService) List(ctx context.Context, path, ref string) (*models.SourceListing, error) {
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}
	path = strings.Trim(path, "/")
	if security.HasTraversal(path) {
		return nil, ErrInvalidArgument("Invalid path")
	}

	contents, err := s.browser.Contents(ctx, path, ref)
	if err != nil {
		return nil, s.classify(err, "Path not found: %s", path)
	}

	listing := &models.SourceListing{Path: path, Ref: ref}
	if contents.File != nil {
		listing.Type = "file"
		listing.File = &models.SourceEntry{
			Name: contents.File.Name,
			Path: contents.File.Path,
			Type: contents.File.Type,
			Size: contents.File.Size,
			SHA:  contents.File.SHA,
		}
		return listing, nil
	}

	listing.Type = "dir"
	listing.Entries = make([]models.SourceEntry, 0, len(contents.Entries))
	for _, item := range contents.Entries {
		listing.Entries = append(listing.Entries, models.SourceEntry{
			Name: item.Name,
			Path: item.Path,
			Type: item.Type,
			Size: item.Size,
			SHA:  item.SHA,
		})
	}
	return listing, nil
}

// Tree returns the recursive repository tree under prefix, without build and
// dependency directories, capped at 500 entries
func (s *SourceService) Tree(ctx context.Context, ref, prefix string) (*models.SourceTree, error) {
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}
	prefix = strings.Trim(prefix, "/")
	if security.HasTraversal(prefix) {
		return nil, ErrInvalidArgument("Invalid path")
	}

	if ref == "" {
		branch, err := s.defaultBranch(ctx)
		if err != nil {
			return nil, err
		}
		ref = branch
	}

	cacheKey := "tree:" + ref + ":" + prefix
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*models.SourceTree), nil
	}

	raw, err := s.browser.Tree(ctx, ref)
	if err != nil {
		return nil, s.classify(err, "Ref not found: %s", ref)
	}

	tree := &models.SourceTree{Ref: ref, Entries: []models.SourceEntry{}, Truncated: raw.Truncated}
	for _, item := range raw.Tree {
		if isExcludedTreePath(item.Path) {
			continue
		}
		if prefix != "" && item.Path != prefix && !strings.HasPrefix(item.Path, prefix+"/") {
			continue
		}

		tree.Total++
		if len(tree.Entries) >= maxTreeEntries {
			tree.Truncated = true
			continue
		}

		entryType := "file"
		if item.Type == "tree" {
			entryType = "dir"
		}
		tree.Entries = append(tree.Entries, models.SourceEntry{
			Path: item.Path,
			Type: entryType,
			Size: item.Size,
			SHA:  item.SHA,
		})
	}

	s.cache.SetDefault(cacheKey, tree)
	return tree, nil
}

func isExcludedTreePath(p string) bool {
	for _, prefix := range excludedTreePrefixes {
		dir := strings.TrimSuffix(prefix, "/")
		if p == dir || strings.HasPrefix(p, prefix) || strings.Contains(p, "/"+prefix) {
			return true
		}
	}
	return false
}

// Search runs a code search scoped to the repository
func (s *SourceService) Search(ctx context.Context, q, language, path string) ([]models.SourceSearchResult, error) {
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}

	q = strings.TrimSpace(q)
	if len(q) < minSearchQuery {
		return nil, ErrInvalidArgument("Search query must be at least %d characters", minSearchQuery)
	}

	query := q
	if language = strings.TrimSpace(language); language != "" {
		query += " language:" + language
	}
	if path = strings.Trim(strings.TrimSpace(path), "/"); path != "" {
		if security.HasTraversal(path) {
			return nil, ErrInvalidArgument("Invalid path")
		}
		query += " path:" + path
	}

	items, err := s.browser.SearchCode(ctx, query, searchResultSize)
	if err != nil {
		return nil, s.classify(err, "Nothing found for %q", q)
	}

	results := make([]models.SourceSearchResult, 0, len(items))
	for _, item := range items {
		results = append(results, models.SourceSearchResult{
			Name: item.Name,
			Path: item.Path,
			SHA:  item.SHA,
			URL:  item.HTMLURL,
		})
	}
	return results, nil
}

// Read returns the decoded content of one repository file
func (s *SourceService) Read(ctx context.Context, path, ref string) (*models.SourceFile, error) {
	if err := s.ensureConfigured(); err != nil {
		return nil, err
	}

	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil, ErrInvalidArgument("path is required")
	}
	if security.HasTraversal(path) {
		return nil, ErrInvalidArgument("Invalid path")
	}
	if security.IsSensitivePath(path) {
		return nil, ErrForbidden("Access to this file is not allowed")
	}

	cacheKey := "file:" + ref + ":" + path
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*models.SourceFile), nil
	}

	contents, err := s.browser.Contents(ctx, path, ref)
	if err != nil {
		return nil, s.classify(err, "File not found: %s", path)
	}
	if contents.File == nil || contents.File.Type == "dir" {
		return nil, ErrInvalidArgument("Path is a directory. Use /api/source to list it.")
	}
	if contents.File.Size > maxSourceFile {
		return nil, ErrInvalidArgument("File is too large to read (max 1MB)")
	}

	content := contents.File.Content
	if contents.File.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
		if err != nil {
			return nil, ErrUpstream("read_file", err)
		}
		content = string(decoded)
	}

	file := &models.SourceFile{
		Path:    contents.File.Path,
		Ref:     ref,
		SHA:     contents.File.SHA,
		Size:    contents.File.Size,
		Content: content,
	}
	s.cache.SetDefault(cacheKey, file)
	return file, nil
}

func (s *SourceService) defaultBranch(ctx context.Context) (string, error) {
	if cached, ok := s.cache.Get("default_branch"); ok {
		return cached.(string), nil
	}

	host, ok := s.browser.(interface {
		DefaultBranch(ctx context.Context) (string, error)
	})
	if !ok {
		return "HEAD", nil
	}

	branch, err := host.DefaultBranch(ctx)
	if err != nil {
		return "", s.classify(err, "Repository not found")
	}
	s.cache.SetDefault("default_branch", branch)
	return branch, nil
}

func (s *SourceService) classify(err error, notFoundFormat string, args ...any) error {
	if IsGitHubNotFound(err) {
		return ErrNotFound(notFoundFormat, args...)
	}
	if KindOf(err) == KindRateLimited {
		return err
	}
	log.Printf("❌ [SOURCE] GitHub request failed: %v", err)
	return ErrUpstream("browse_repository", err)
}
