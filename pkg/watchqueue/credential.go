package watchqueue

import "github.com/dmitrymomot/watchqueue/pkg/notification"

// Credential is an opaque permission token. The engine only stores, compares
// and hands credentials back to hooks, so dynamic values must be comparable.
type Credential = any

// AccessCheck decides whether cred may attach a watch to a list.
// A non-nil error is reported to the caller joined with ErrPermissionDenied.
type AccessCheck func(cred Credential) error

// AllocationCheck decides whether owner may allocate size bytes of slot storage.
// A non-nil error is reported joined with ErrResourceLimit.
type AllocationCheck func(owner Credential, size int64) error

// PostCheck is consulted for every watch a post reaches. watcher is the
// credential captured when the watch was added; poster is the credential the
// producer passed to Post. Returning false skips the watch silently.
type PostCheck func(watcher, poster Credential, r notification.Record) bool
