// Package sourceid builds canonical document IDs for filesystem-backed
// documents. IDs are stable across re-scans and collision-free between
// workspaces because they compose the owning workspace and the root-relative
// path: file://<ownerID>/<relativePath>.
package sourceid

import (
	"path/filepath"
	"strings"
)

const scheme = "file://"

// InboxOwner is the reserved owner segment for documents ingested from the
// watched inbox folder, which belongs to no workspace.
const InboxOwner = "inbox"

// Format returns the canonical document ID for a file under the given owner.
// relPath is normalized to forward slashes so IDs are portable across
// platforms.
func Format(ownerID, relPath string) string {
	rel := filepath.ToSlash(filepath.Clean(relPath))
	rel = strings.TrimPrefix(rel, "./")
	return scheme + ownerID + "/" + rel
}

// Parse splits a canonical document ID into its owner and relative path.
// ok is false when id is not a filesystem-backed document ID.
func Parse(id string) (ownerID, relPath string, ok bool) {
	if !strings.HasPrefix(id, scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(id, scheme)
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", false
	}
	return rest[:slash], rest[slash+1:], true
}

// IsFileBacked reports whether id denotes a filesystem-backed document.
func IsFileBacked(id string) bool {
	_, _, ok := Parse(id)
	return ok
}

// Owner returns the owner segment of a filesystem-backed document ID, or ""
// when id is not one.
func Owner(id string) string {
	owner, _, _ := Parse(id)
	return owner
}
