package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	mu          sync.Mutex
	configured  bool
	contents    map[string]*RepoContents
	tree        *RepoTree
	search      []CodeSearchItem
	searchErr   error
	lastQuery   string
	contentHits int
	treeHits    int
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{configured: true, contents: map[string]*RepoContents{}}
}

func (f *fakeBrowser) Configured() bool { return f.configured }

func (f *fakeBrowser) DefaultBranch(ctx context.Context) (string, error) {
	return "main", nil
}

func (f *fakeBrowser) Contents(ctx context.Context, path, ref string) (*RepoContents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentHits++
	c, ok := f.contents[path]
	if !ok {
		return nil, &GitHubAPIError{StatusCode: 404, Message: "Not Found"}
	}
	return c, nil
}

func (f *fakeBrowser) Tree(ctx context.Context, ref string) (*RepoTree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.treeHits++
	if f.tree == nil {
		return nil, &GitHubAPIError{StatusCode: 404, Message: "Not Found"}
	}
	return f.tree, nil
}

func (f *fakeBrowser) SearchCode(ctx context.Context, query string, perPage int) ([]CodeSearchItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = query
	return f.search, f.searchErr
}

func fileContents(path, content string) *RepoContents {
	return &RepoContents{File: &RepoContentItem{
		Name:     path,
		Path:     path,
		Type:     "file",
		Size:     int64(len(content)),
		SHA:      "sha-" + path,
		Encoding: "base64",
		Content:  base64.StdEncoding.EncodeToString([]byte(content)),
	}}
}

func TestSourceService_NotConfigured(t *testing.T) {
	browser := newFakeBrowser()
	browser.configured = false
	svc := NewSourceService(browser, time.Minute)
	ctx := context.Background()

	_, err := svc.List(ctx, "", "")
	requireKind(t, err, KindServiceUnavailable)
	_, err = svc.Tree(ctx, "", "")
	requireKind(t, err, KindServiceUnavailable)
	_, err = svc.Search(ctx, "handler", "", "")
	requireKind(t, err, KindServiceUnavailable)
	_, err = svc.Read(ctx, "README.md", "")
	requireKind(t, err, KindServiceUnavailable)
}

func TestSourceService_ReadDecodesAndCaches(t *testing.T) {
	browser := newFakeBrowser()
	browser.contents["README.md"] = fileContents("README.md", "# Molting Pot\n")
	svc := NewSourceService(browser, time.Minute)
	ctx := context.Background()

	file, err := svc.Read(ctx, "/README.md", "")
	require.NoError(t, err)
	assert.Equal(t, "# Molting Pot\n", file.Content)
	assert.Equal(t, "sha-README.md", file.SHA)

	_, err = svc.Read(ctx, "README.md", "")
	require.NoError(t, err)
	assert.Equal(t, 1, browser.contentHits)
}

func TestSourceService_ReadRejections(t *testing.T) {
	browser := newFakeBrowser()
	browser.contents["docs"] = &RepoContents{Entries: []RepoContentItem{{Name: "a.md", Path: "docs/a.md", Type: "file"}}}
	browser.contents["big.bin"] = &RepoContents{File: &RepoContentItem{Path: "big.bin", Type: "file", Size: 2 << 20}}
	svc := NewSourceService(browser, time.Minute)
	ctx := context.Background()

	tests := []struct {
		path string
		kind ErrorKind
	}{
		{".env", KindForbidden},
		{"config/credentials.json", KindForbidden},
		{"certs/server.pem", KindForbidden},
		{"../etc/passwd", KindInvalidArgument},
		{"", KindInvalidArgument},
		{"docs", KindInvalidArgument},
		{"big.bin", KindInvalidArgument},
		{"missing.go", KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := svc.Read(ctx, tt.path, "")
			requireKind(t, err, tt.kind)
		})
	}
}

func TestSourceService_ListDirectoryAndFile(t *testing.T) {
	browser := newFakeBrowser()
	browser.contents[""] = &RepoContents{Entries: []RepoContentItem{
		{Name: "README.md", Path: "README.md", Type: "file", Size: 10},
		{Name: "internal", Path: "internal", Type: "dir"},
	}}
	browser.contents["README.md"] = fileContents("README.md", "hello")
	svc := NewSourceService(browser, time.Minute)
	ctx := context.Background()

	root, err := svc.List(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "dir", root.Type)
	require.Len(t, root.Entries, 2)
	assert.Equal(t, "internal", root.Entries[1].Name)

	file, err := svc.List(ctx, "README.md", "")
	require.NoError(t, err)
	assert.Equal(t, "file", file.Type)
	require.NotNil(t, file.File)
	assert.Equal(t, int64(5), file.File.Size)

	_, err = svc.List(ctx, "docs/../..", "")
	requireKind(t, err, KindInvalidArgument)

	_, err = svc.List(ctx, "nope", "")
	requireKind(t, err, KindNotFound)
}

func TestSourceService_TreeFiltersAndCaps(t *testing.T) {
	browser := newFakeBrowser()
	items := []RepoTreeItem{
		{Path: "node_modules/left-pad/index.js", Type: "blob"},
		{Path: "web/node_modules/x.js", Type: "blob"},
		{Path: ".git/HEAD", Type: "blob"},
		{Path: "dist", Type: "tree"},
		{Path: ".next/cache", Type: "blob"},
		{Path: "internal", Type: "tree"},
	}
	for i := 0; i < 600; i++ {
		items = append(items, RepoTreeItem{Path: fmt.Sprintf("internal/file%03d.go", i), Type: "blob", Size: 1})
	}
	browser.tree = &RepoTree{SHA: "root", Tree: items}
	svc := NewSourceService(browser, time.Minute)
	ctx := context.Background()

	tree, err := svc.Tree(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "main", tree.Ref)
	assert.Len(t, tree.Entries, 500)
	assert.Equal(t, 601, tree.Total)
	assert.True(t, tree.Truncated)
	assert.Equal(t, "internal", tree.Entries[0].Path)
	assert.Equal(t, "dir", tree.Entries[0].Type)
	for _, e := range tree.Entries {
		assert.NotContains(t, e.Path, "node_modules")
	}

	_, err = svc.Tree(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, browser.treeHits)

	scoped, err := svc.Tree(ctx, "main", "internal/file00")
	require.NoError(t, err)
	assert.Empty(t, scoped.Entries)

	scoped, err = svc.Tree(ctx, "main", "internal")
	require.NoError(t, err)
	assert.Equal(t, 601, scoped.Total)
}

func TestSourceService_Search(t *testing.T) {
	browser := newFakeBrowser()
	browser.search = []CodeSearchItem{{Name: "ledger.go", Path: "internal/ledger.go", HTMLURL: "https://github.com/x"}}
	svc := NewSourceService(browser, time.Minute)
	ctx := context.Background()

	_, err := svc.Search(ctx, "ab", "", "")
	requireKind(t, err, KindInvalidArgument)

	results, err := svc.Search(ctx, "ToggleUpvote", "go", "/internal/")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://github.com/x", results[0].URL)
	assert.Equal(t, "ToggleUpvote language:go path:internal", browser.lastQuery)

	browser.searchErr = &ServiceError{Kind: KindRateLimited, Message: "GitHub rate limit exceeded. Try again later."}
	_, err = svc.Search(ctx, "ToggleUpvote", "", "")
	requireKind(t, err, KindRateLimited)
}
