package scopes

import (
	"slices"
	"strings"
)

const (
	// ScopeSeparator separates scopes in a token string.
	ScopeSeparator = " "

	// ScopeWildcard matches every scope, or every scope below a namespace
	// when used as the last part ("notify.*").
	ScopeWildcard = "*"

	// ScopeDelimiter separates scope parts (e.g. "notify.1").
	ScopeDelimiter = "."
)

// ParseScopes splits a space-separated string into scopes, dropping empty
// entries. Returns nil for empty input.
//
// Example:
//
//	scopes.ParseScopes("watch notify.1 notify.4")
//	// []string{"watch", "notify.1", "notify.4"}
func ParseScopes(scopesStr string) []string {
	scopesStr = strings.TrimSpace(scopesStr)
	if scopesStr == "" {
		return nil
	}

	parts := strings.Split(scopesStr, ScopeSeparator)
	out := make([]string, 0, len(parts))
	for i := range parts {
		if parts[i] = strings.TrimSpace(parts[i]); parts[i] != "" {
			out = append(out, parts[i])
		}
	}
	return out
}

// JoinScopes is the inverse of ParseScopes.
func JoinScopes(scopes []string) string {
	if len(scopes) == 0 {
		return ""
	}
	return strings.Join(scopes, ScopeSeparator)
}

// ScopeMatches reports whether scope is granted by pattern.
//
// Pattern matching rules:
//   - Direct match: "watch" matches "watch"
//   - Global wildcard: "*" matches any scope
//   - Namespace wildcard: "notify.*" matches any scope starting with "notify."
func ScopeMatches(scope, pattern string) bool {
	if scope == pattern || pattern == ScopeWildcard {
		return true
	}

	if strings.HasSuffix(pattern, ScopeWildcard) {
		prefix := strings.TrimSuffix(pattern, ScopeWildcard)
		prefix = strings.TrimSuffix(prefix, ScopeDelimiter)
		return strings.HasPrefix(scope, prefix+ScopeDelimiter)
	}

	return false
}

// HasScope reports whether any of granted matches scope.
func HasScope(granted []string, scope string) bool {
	for _, s := range granted {
		if ScopeMatches(scope, s) {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether every required scope is granted.
// An empty required list is always satisfied.
func HasAllScopes(granted, required []string) bool {
	if len(required) == 0 {
		return true
	}
	if slices.Contains(granted, ScopeWildcard) {
		return true
	}
	for _, req := range required {
		if !HasScope(granted, req) {
			return false
		}
	}
	return true
}

// HasAnyScopes reports whether at least one required scope is granted.
// An empty required list is always satisfied.
func HasAnyScopes(granted, required []string) bool {
	if len(required) == 0 {
		return true
	}
	if slices.Contains(granted, ScopeWildcard) {
		return true
	}
	return slices.ContainsFunc(required, func(req string) bool {
		return HasScope(granted, req)
	})
}

// ValidateScopes reports whether every scope is allowed by one of the
// validScopes patterns. Empty scopes are valid; empty validScopes rejects
// anything non-empty.
func ValidateScopes(scopes, validScopes []string) bool {
	if len(scopes) == 0 {
		return true
	}
	if len(validScopes) == 0 {
		return false
	}
	for _, scope := range scopes {
		if !HasScope(validScopes, scope) {
			return false
		}
	}
	return true
}

// NormalizeScopes removes duplicates and sorts. Returns nil for empty input.
func NormalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	out := slices.Clone(scopes)
	slices.Sort(out)
	return slices.Compact(out)
}
