/*
Package pathmatch implements the normalization and matching of route path
patterns.

A pattern consists of literal segments and variable segments. A variable
segment has the form {name}, and it matches exactly one non-empty segment
of a request path, binding its value to name:

	/users/{id}/roles

matches /users/jdoe/roles, with id=jdoe.

Patterns and request paths are always compared in their normalized form,
and the presence of a trailing slash is significant: /users/{id}/ doesn't
match /users/jdoe, and /users/{id} doesn't match /users/jdoe/.
*/
package pathmatch

import (
	"strings"

	"github.com/dimfeld/httppath"
)

// Normalize returns the canonical form of a path: '.' and '..' segments
// and duplicate slashes are collapsed, a leading slash is ensured and a
// trailing slash is preserved. Variable segments are left untouched. The
// empty path is normalized to "/".
func Normalize(p string) string {
	return httppath.Clean(p)
}

func isVar(segment string) bool {
	return len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
}

func varName(segment string) string {
	return segment[1 : len(segment)-1]
}

// IsLiteral returns true when the pattern doesn't contain variable
// segments.
func IsLiteral(pattern string) bool {
	return !strings.Contains(pattern, "{")
}

// ConstantPrefix returns the whole segments of a normalized pattern
// preceding the first segment containing a '{', without the separating
// slash. For literal patterns, it returns the pattern itself, and when the
// first segment already contains a variable, it returns "/".
//
//	ConstantPrefix("/foo/bar/{name}/info") == "/foo/bar"
//	ConstantPrefix("/foo/v{version}/info") == "/foo"
func ConstantPrefix(pattern string) string {
	pattern = Normalize(pattern)
	i := strings.IndexByte(pattern, '{')
	if i < 0 {
		return pattern
	}

	prefix := pattern[:strings.LastIndexByte(pattern[:i], '/')]
	if prefix == "" {
		return "/"
	}

	return prefix
}

// HasPrefix tells whether a normalized path can be matched by a pattern
// with the given constant prefix, comparing whole segments.
func HasPrefix(path, prefix string) bool {
	if prefix == "/" || path == prefix {
		return true
	}

	if strings.HasSuffix(prefix, "/") {
		return false
	}

	return strings.HasPrefix(path, prefix) && path[len(prefix)] == '/'
}

// Match compares a pattern with a path segment by segment, after
// normalizing both. Literal segments need to be equal, variable segments
// match any non-empty segment. When the path matches, the returned map
// contains the values of the variables, or nil when the pattern has none.
func Match(pattern, path string) (map[string]string, bool) {
	return match(Normalize(pattern), Normalize(path))
}

// MatchNormalized is like Match, but expects both arguments to be
// normalized already, e.g. when comparing against stored route paths.
func MatchNormalized(pattern, path string) (map[string]string, bool) {
	return match(pattern, path)
}

func match(pattern, path string) (map[string]string, bool) {
	if IsLiteral(pattern) {
		return nil, pattern == path
	}

	ps := strings.Split(pattern, "/")
	ss := strings.Split(path, "/")
	if len(ps) != len(ss) {
		return nil, false
	}

	var params map[string]string
	for i, p := range ps {
		s := ss[i]
		if !isVar(p) {
			if p != s {
				return nil, false
			}

			continue
		}

		if s == "" {
			return nil, false
		}

		if params == nil {
			params = make(map[string]string)
		}

		params[varName(p)] = s
	}

	return params, true
}

// Expand replaces the {name} placeholders in s with the values found in
// the provided maps, checked in order. Placeholders without a value are
// left unchanged.
func Expand(s string, values ...map[string]string) string {
	if !strings.Contains(s, "{") {
		return s
	}

	var sb strings.Builder
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			break
		}

		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			break
		}

		end += start
		name := s[start+1 : end]
		v, ok := "", false
		if !strings.Contains(name, "{") {
			v, ok = lookup(name, values)
		}

		// not a placeholder, a later '{' may still start one
		if !ok {
			sb.WriteString(s[:start+1])
			s = s[start+1:]
			continue
		}

		sb.WriteString(s[:start])
		sb.WriteString(v)
		s = s[end+1:]
	}

	sb.WriteString(s)
	return sb.String()
}

func lookup(name string, values []map[string]string) (string, bool) {
	for _, m := range values {
		if v, ok := m[name]; ok {
			return v, true
		}
	}

	return "", false
}
