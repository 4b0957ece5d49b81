// Package mediapath normalizes media identifiers into absolute on-disk paths
// (spec §4.A). It is a pure dependency — no state, no remote I/O — so the
// push pipeline and tests can construct one from any documents directory.
package mediapath

import (
	"os"
	"path/filepath"
	"strings"
)

const fileScheme = "file://"

// Resolver converts the three local-URI shapes the local store may hold
// into absolute filesystem paths, relative to a configured documents
// directory for bare names.
type Resolver struct {
	documentsDir string
}

// New creates a Resolver rooted at documentsDir (an absolute path).
func New(documentsDir string) *Resolver {
	return &Resolver{documentsDir: documentsDir}
}

// FullPath normalizes uri into an absolute path:
//   - "file://..." → the path with the scheme stripped
//   - "/..."       → used as-is
//   - anything else → joined with the documents directory
func (r *Resolver) FullPath(uri string) string {
	switch {
	case strings.HasPrefix(uri, fileScheme):
		return strings.TrimPrefix(uri, fileScheme)
	case strings.HasPrefix(uri, "/"):
		return uri
	default:
		return filepath.Join(r.documentsDir, uri)
	}
}

// Exists reports whether the file referenced by uri exists on disk. It makes
// no distinction between "missing" and "permission denied" — both report
// false, per spec §4.A.
func (r *Resolver) Exists(uri string) bool {
	_, err := os.Stat(r.FullPath(uri))
	return err == nil
}
