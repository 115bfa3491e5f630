package scopes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrymomot/watchqueue/pkg/notification"
)

// Well-known scopes.
const (
	// ScopeWatch allows attaching a watch to a resource.
	ScopeWatch = "watch"
	// ScopeFilter allows installing a queue filter on queues created with
	// watchqueue.WithFilterCheck(Require(ScopeFilter)).
	ScopeFilter = "filter"
	// ScopeNotify is the namespace of per-type delivery scopes. See TypeScope.
	ScopeNotify = "notify"
)

// TypeScope returns the scope that allows a watcher to receive records of typ,
// e.g. "notify.1".
func TypeScope(typ notification.Type) string {
	return ScopeNotify + ScopeDelimiter + strconv.FormatUint(uint64(typ), 10)
}

// Token is an immutable, normalized set of scopes used as a watchqueue
// credential. Tokens are comparable: two tokens granting the same scopes
// are equal regardless of the order they were built in.
type Token struct {
	set string
}

// NewToken builds a token from individual scopes.
func NewToken(scopes ...string) Token {
	var all []string
	for _, s := range scopes {
		all = append(all, ParseScopes(s)...)
	}
	return Token{set: JoinScopes(NormalizeScopes(all))}
}

// ParseToken builds a token from a space-separated string and checks every
// scope against the allowed patterns. With no allowed patterns every
// syntactically valid scope is accepted.
func ParseToken(s string, allowed ...string) (Token, error) {
	parsed := ParseScopes(s)
	for _, scope := range parsed {
		if strings.HasPrefix(scope, ScopeDelimiter) || strings.HasSuffix(scope, ScopeDelimiter) ||
			strings.Contains(scope, ScopeDelimiter+ScopeDelimiter) {
			return Token{}, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
		}
	}
	if len(allowed) > 0 && !ValidateScopes(parsed, allowed) {
		return Token{}, fmt.Errorf("%w: %q", ErrScopeNotAllowed, s)
	}
	return Token{set: JoinScopes(NormalizeScopes(parsed))}, nil
}

// Scopes returns the granted scopes, sorted.
func (t Token) Scopes() []string { return ParseScopes(t.set) }

// IsZero reports whether the token grants nothing.
func (t Token) IsZero() bool { return t.set == "" }

// Has reports whether the token grants scope.
func (t Token) Has(scope string) bool { return HasScope(t.Scopes(), scope) }

// HasAll reports whether the token grants every scope in required.
func (t Token) HasAll(required ...string) bool { return HasAllScopes(t.Scopes(), required) }

// HasAny reports whether the token grants at least one scope in required.
func (t Token) HasAny(required ...string) bool { return HasAnyScopes(t.Scopes(), required) }

func (t Token) String() string { return t.set }
