package security

import (
	"fmt"
	"strings"
)

// ValidateRepoPath validates a user-provided repository file path before it is
// sent to the hosting API's content endpoints.
//
// Returns an error if the path:
//   - Is empty
//   - Is absolute (leading /) or uses backslashes
//   - Contains a parent-directory segment (..)
//   - Contains a "." or empty segment (./a, a//b, a/)
func ValidateRepoPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("invalid path: must be relative to the repository root")
	}
	if strings.Contains(p, "\\") {
		return fmt.Errorf("invalid path: backslashes are not allowed")
	}
	if HasTraversal(p) {
		return fmt.Errorf("invalid path: path traversal attempt detected (..)")
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == "" || segment == "." {
			return fmt.Errorf("invalid path: empty or \".\" segments are not allowed")
		}
	}
	return nil
}

// HasTraversal reports whether any segment of p is ".."
func HasTraversal(p string) bool {
	for _, segment := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

var sensitivePatterns = []string{".env", "credentials", "secret", ".pem", ".key"}

// IsSensitivePath reports whether a repository file must not be served
func IsSensitivePath(p string) bool {
	lower := strings.ToLower(p)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
