// Package paths implements the path normalization rules every backend and
// layer relies on: paths are absolute, '/'-separated, free of '..' and
// duplicate slashes, and directories always carry a trailing slash. The path
// is the only addressing unit; there is no separate handle identity.
package paths

import (
	"strings"

	"github.com/unistore/unistore/pkg/errors"
)

// Normalize returns the canonical form of p. A trailing slash on the input
// marks a directory and is preserved; "" and "/" both normalize to the root
// directory "/". Normalization is idempotent. Inputs containing '..' segments
// fail with InvalidInput.
func Normalize(p string) (string, error) {
	isDir := p == "" || p == "/" || strings.HasSuffix(p, "/")

	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", errors.Errorf(errors.KindInvalidInput,
				"path %q must not contain '..' segments", p)
		default:
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 {
		return "/", nil
	}

	out := "/" + strings.Join(segments, "/")
	if isDir {
		out += "/"
	}
	return out, nil
}

// NormalizeFile normalizes p and requires the result to address a file.
func NormalizeFile(p string) (string, error) {
	n, err := Normalize(p)
	if err != nil {
		return "", err
	}
	if IsDir(n) {
		return "", errors.Errorf(errors.KindInvalidInput,
			"path %q addresses a directory, expected a file", p)
	}
	return n, nil
}

// NormalizeDir normalizes p and forces the result into directory form.
func NormalizeDir(p string) (string, error) {
	n, err := Normalize(p)
	if err != nil {
		return "", err
	}
	if !IsDir(n) {
		n += "/"
	}
	return n, nil
}

// IsDir reports whether the normalized path addresses a directory.
func IsDir(p string) bool {
	return strings.HasSuffix(p, "/")
}

// Parent returns the directory containing p, in directory form. The parent
// of the root is the root itself.
func Parent(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx <= 0 {
		return "/"
	}
	return trimmed[:idx+1]
}

// Base returns the last segment of p, without any trailing slash. The base
// of the root is "/".
func Base(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	if trimmed == "" {
		return "/"
	}
	idx := strings.LastIndexByte(trimmed, '/')
	return trimmed[idx+1:]
}

// Join appends elem to the directory dir. dir must be in directory form.
func Join(dir, elem string) string {
	return dir + strings.TrimPrefix(elem, "/")
}
