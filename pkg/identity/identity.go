package identity

import "plant-diagnostics-web/pkg/predict"

// SourceKind tags where a resolved identifier came from.
type SourceKind string

const (
	SourceCookie  SourceKind = "cookie"
	SourceSession SourceKind = "session"
	SourceLocal   SourceKind = "local"
	SourceNone    SourceKind = "none"
)

// Identity is the acting user for one operation.
type Identity struct {
	UserID int
	Source SourceKind
}

// IsGuest reports whether this identity is the anonymous sentinel.
func (i Identity) IsGuest() bool {
	return i.UserID == predict.GuestUserID
}

// Source reads a user identifier from one storage backend.
// A malformed or missing value reports ok=false; reads never mutate storage.
type Source interface {
	Kind() SourceKind
	TryRead() (userID int, ok bool)
}

// Clearer is implemented by sources whose backing store can be wiped on logout.
type Clearer interface {
	Clear()
}

// Resolver walks a fixed priority chain of identity sources.
type Resolver struct {
	sources []Source
}

// NewResolver builds a resolver over the given sources, highest priority first.
// The conventional chain is cookie, then session store, then local store.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Resolve returns the first well-formed non-negative identifier in priority
// order. When every source is absent or malformed it returns the guest
// sentinel, never an absent identity, so callers need not branch on presence.
func (r *Resolver) Resolve() Identity {
	for _, src := range r.sources {
		if id, ok := src.TryRead(); ok && id >= 0 {
			return Identity{UserID: id, Source: src.Kind()}
		}
	}
	return Identity{UserID: predict.GuestUserID, Source: SourceNone}
}

// IsAuthenticated reports whether the backend can durably associate this
// user with an account. That requires the cookie source specifically to
// hold a value and the resolved identifier to be positive; a positive id
// surfacing only from a weaker-priority store never counts.
func (r *Resolver) IsAuthenticated() bool {
	cookiePresent := false
	for _, src := range r.sources {
		if src.Kind() == SourceCookie {
			if _, ok := src.TryRead(); ok {
				cookiePresent = true
			}
			break
		}
	}
	if !cookiePresent {
		return false
	}
	return r.Resolve().UserID > 0
}

// Logout wipes every source that supports clearing, including any cached
// role or email values those stores carry.
func (r *Resolver) Logout() {
	for _, src := range r.sources {
		if c, ok := src.(Clearer); ok {
			c.Clear()
		}
	}
}
