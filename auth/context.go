// Package auth resolves request credentials into an authorisation context.
// Three credential families are probed in order: signed-client headers, IdP
// JWTs and stored tokens (user, agent, ticket).
package auth

import (
	"fmt"

	"github.com/sharedcode/cascade"
)

// Realm aliases rewriting to the caller's own realm.
const (
	AliasMe    = "@me"
	AliasTilde = "~"
)

// Context is the resolved authorisation of one request.
type Context struct {
	UserID         string
	Realm          string
	TokenID        string
	CanRead        bool
	CanWrite       bool
	CanIssueTicket bool
	// AllowedKeys restricts reads to the listed keys when non-nil.
	AllowedKeys []cascade.Key
	// Ticket is set when the credential is a ticket.
	Ticket *cascade.Token
}

// MayRead reports whether the context permits reading the key.
func (c Context) MayRead(key cascade.Key) bool {
	if !c.CanRead {
		return false
	}
	if c.AllowedKeys == nil {
		return true
	}
	for _, k := range c.AllowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ResolveRealm maps the requested realm through the aliases and enforces the
// scoping rule: a request may only address its own realm.
func (c Context) ResolveRealm(requested string) (string, error) {
	if requested == AliasMe || requested == AliasTilde {
		return c.Realm, nil
	}
	if requested != c.Realm {
		return "", cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("realm %s is not accessible with this credential", requested)}
	}
	return requested, nil
}
