package scorm

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnsafeLaunchPath = errors.New("unsafe launch path")

	errEmptyLaunchPath = errors.Wrap(ErrUnsafeLaunchPath, "empty path")
	errNullByte        = errors.Wrap(ErrUnsafeLaunchPath, "embedded null byte")
	errTraversal       = errors.Wrap(ErrUnsafeLaunchPath, "parent directory segment")
	errSeparator       = errors.Wrap(ErrUnsafeLaunchPath, "encoded path separator")
)

// splitLaunchPath cleans a package-scoped path and returns its decoded segments plus the raw query.
// Leading slashes, empty and "." segments are dropped; "..", NUL bytes and encoded separators are rejected.
func splitLaunchPath(p string) ([]string, string, error) {
	if strings.ContainsRune(p, 0) {
		return nil, "", errNullByte
	}

	var query string
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p, query = p[:i], p[i:]
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")

	raw := strings.Split(p, "/")
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			decoded = seg // not escaped; keep it literal
		}
		switch {
		case strings.ContainsRune(decoded, 0):
			return nil, "", errNullByte
		case decoded == "..":
			return nil, "", errTraversal
		case strings.ContainsAny(decoded, "/\\"):
			return nil, "", errSeparator
		case decoded == "" || decoded == ".":
			continue
		}
		segments = append(segments, decoded)
	}
	if len(segments) == 0 {
		return nil, "", errEmptyLaunchPath
	}
	return segments, query, nil
}

// SanitizeLaunchPath returns the launch path with every segment percent-encoded and separators preserved.
// A query string or fragment is kept as is.
func SanitizeLaunchPath(p string) (string, error) {
	segments, query, err := splitLaunchPath(p)
	if err != nil {
		return "", err
	}
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/") + query, nil
}

// ContentPath returns the decoded, slash separated path a delivery collaborator should open.
func ContentPath(p string) (string, error) {
	segments, _, err := splitLaunchPath(p)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, "/"), nil
}

// LaunchURL builds the same-origin URL `/<route>/<packageID>/<sanitizedLaunchPath>`.
func LaunchURL(route, packageID, launchPath string) (string, error) {
	p, err := SanitizeLaunchPath(launchPath)
	if err != nil {
		return "", errors.Wrapf(err, "launch path %q", launchPath)
	}
	if packageID == "" {
		return "", errors.Wrap(ErrUnsafeLaunchPath, "empty package id")
	}
	route = strings.Trim(route, "/")
	if route == "" {
		return "/" + url.PathEscape(packageID) + "/" + p, nil
	}
	return "/" + route + "/" + url.PathEscape(packageID) + "/" + p, nil
}
