package scopes

import (
	"fmt"

	"github.com/dmitrymomot/watchqueue/pkg/notification"
	"github.com/dmitrymomot/watchqueue/pkg/watchqueue"
)

// FromCredential extracts a Token from a watchqueue credential. Token and
// *Token are accepted as is; strings are parsed.
func FromCredential(cred watchqueue.Credential) (Token, error) {
	switch c := cred.(type) {
	case Token:
		return c, nil
	case *Token:
		if c == nil {
			return Token{}, ErrMissingToken
		}
		return *c, nil
	case string:
		return ParseToken(c)
	case nil:
		return Token{}, ErrMissingToken
	default:
		return Token{}, fmt.Errorf("%w: %T", ErrUnsupportedCredential, cred)
	}
}

// Require returns an access check that admits credentials granting every
// listed scope. Use it with watchqueue.WithAccessCheck:
//
//	list, err := m.NewWatchList(nil, watchqueue.WithAccessCheck(scopes.Require(scopes.ScopeWatch)))
func Require(required ...string) watchqueue.AccessCheck {
	return func(cred watchqueue.Credential) error {
		tok, err := FromCredential(cred)
		if err != nil {
			return err
		}
		for _, scope := range required {
			if !tok.Has(scope) {
				return fmt.Errorf("%w: %s", ErrScopeNotAllowed, scope)
			}
		}
		return nil
	}
}

// TypePostCheck returns a post check that delivers a record only to watches
// whose credential grants TypeScope of the record's type. Watches without a
// readable token receive nothing.
func TypePostCheck() watchqueue.PostCheck {
	return func(watcher, _ watchqueue.Credential, r notification.Record) bool {
		tok, err := FromCredential(watcher)
		if err != nil {
			return false
		}
		return tok.Has(TypeScope(r.Type()))
	}
}
