package models

// SourceEntry is one item of a repository directory listing or tree
type SourceEntry struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
	Type string `json:"type"` // file | dir | symlink | submodule
	Size int64  `json:"size"`
	SHA  string `json:"sha,omitempty"`
}

// SourceListing is either a directory listing or the metadata of one file
type SourceListing struct {
	Path    string        `json:"path"`
	Ref     string        `json:"ref"`
	Type    string        `json:"type"` // dir | file
	Entries []SourceEntry `json:"entries,omitempty"`
	File    *SourceEntry  `json:"file,omitempty"`
}

// SourceTree is a recursive repository tree, capped in size
type SourceTree struct {
	Ref       string        `json:"ref"`
	Entries   []SourceEntry `json:"entries"`
	Total     int           `json:"total"`
	Truncated bool          `json:"truncated"`
}

// SourceFile is a decoded repository file
type SourceFile struct {
	Path    string `json:"path"`
	Ref     string `json:"ref"`
	SHA     string `json:"sha"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

// SourceSearchResult is one code search hit
type SourceSearchResult struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	URL  string `json:"url"`
}
