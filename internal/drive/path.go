package drive

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanPath validates and normalizes a caller-supplied drive path. The result
// is absolute, slash-separated, free of "." and ".." elements and in Unicode
// NFC form, so "café" typed on macOS (NFD) and Linux (NFC) address the same
// remote item.
func CleanPath(p string) (string, error) {
	if p == "" {
		return "", invalidArg("path", "empty")
	}

	if !strings.HasPrefix(p, "/") {
		return "", invalidArg("path", "must be absolute: "+p)
	}

	if strings.ContainsRune(p, 0) {
		return "", invalidArg("path", "contains NUL byte")
	}

	return path.Clean(norm.NFC.String(p)), nil
}

// SplitPath returns the parent directory and final element of a cleaned
// path. The root has no parent and is rejected.
func SplitPath(p string) (dir, name string, err error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", "", err
	}

	if clean == "/" {
		return "", "", invalidArg("path", "root has no parent")
	}

	return path.Dir(clean), path.Base(clean), nil
}

// IsRoot reports whether a cleaned path is the drive root.
func IsRoot(p string) bool {
	return p == "/"
}
