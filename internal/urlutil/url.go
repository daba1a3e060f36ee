package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// JoinPath joins path segments onto base, keeping a trailing slash on the
// last segment.
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	allPaths := append([]string{u.Path}, paths...)
	u.Path = path.Join(allPaths...)

	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") {
		u.Path += "/"
	}

	return u.String(), nil
}

// Origin returns the scheme://host of an absolute URL
func Origin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// WithinBase reports whether target has the scheme and host of base and a
// path at or below base's path.
func WithinBase(base, target string) bool {
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	if b.Scheme != t.Scheme || b.Host != t.Host {
		return false
	}
	prefix := strings.TrimRight(b.Path, "/")
	return t.Path == prefix || strings.HasPrefix(t.Path, prefix+"/")
}
