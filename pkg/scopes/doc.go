// Package scopes implements scope-string credentials for watchqueue.
//
// A scope is a permission encoded as a plain string, e.g. "watch" or
// "notify.1". A Token is a normalized, comparable set of scopes that can be
// passed wherever watchqueue expects a Credential: as the owner of a queue,
// as the credential of a watch or as the poster credential.
//
// # Syntax
//
//   - ScopeSeparator (" ") separates scopes in a token string.
//   - ScopeDelimiter (".") separates hierarchy parts, so "notify.*" covers
//     every scope starting with "notify.".
//   - ScopeWildcard ("*") alone matches everything.
//
// # Usage
//
//	tok, err := scopes.ParseToken("watch notify.*")
//	if err != nil {
//	    return err
//	}
//
//	m := watchqueue.New(cfg, watchqueue.WithPostCheck(scopes.TypePostCheck()))
//	list, _ := m.NewWatchList(nil, watchqueue.WithAccessCheck(scopes.Require(scopes.ScopeWatch)))
//	q, _ := m.NewQueue(64, watchqueue.WithFilterCheck(scopes.Require(scopes.ScopeFilter)))
//	_, err = m.AddWatch(q, list, 1, tok, nil)
//
// Require rejects credentials missing a scope with ErrScopeNotAllowed, which
// watchqueue reports joined with its own ErrPermissionDenied. TypePostCheck
// limits delivery to watches whose token grants TypeScope(record type).
package scopes
