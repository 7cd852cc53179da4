// Package pathguard confines client-supplied TFTP filenames to a
// service root, following the same two-step algorithm the reference
// implementation uses: canonicalize the parent directory (resolving
// symlinks) but not the final path component, so a WRQ can still
// create a file that does not yet exist.
package pathguard

import (
	"path/filepath"
	"strings"

	"github.com/Merith-TK/tftpd/internal/tftperr"
)

// Resolve resolves a client-supplied filename against root and
// returns the absolute on-disk path to use. root must already be an
// absolute, canonical path (the service root after Chdir).
//
// It never returns the raw client string for use in a filesystem
// call; callers must always use the returned path.
func Resolve(root, clientFilename string) (string, error) {
	if clientFilename == "" {
		return "", tftperr.New(tftperr.AccessViolation, "empty filename")
	}

	// Treat the filename as relative to the service root, RFC 1350
	// gives no meaning to a leading slash and clients commonly send
	// both forms.
	rel := strings.TrimPrefix(filepath.ToSlash(clientFilename), "/")
	joined := filepath.Join(root, filepath.FromSlash(rel))

	dir := filepath.Dir(joined)
	base := filepath.Base(joined)

	canonDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", tftperr.Wrap(tftperr.AccessViolation, "permission denied", err)
	}

	canonRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", tftperr.Wrap(tftperr.AccessViolation, "permission denied", err)
	}

	resolved := filepath.Join(canonDir, base)

	if !withinRoot(canonRoot, canonDir) {
		return "", tftperr.New(tftperr.AccessViolation, "permission denied")
	}

	return resolved, nil
}

// withinRoot reports whether dir is root or a descendant of root.
func withinRoot(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
