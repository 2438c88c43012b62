// Package admin exposes the operator views over users and their websites.
package admin

import (
	"strings"

	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

// Authorizer checks identities against the admin allow-list.
type Authorizer struct {
	allowed map[string]struct{}
}

// NewAuthorizer builds an authorizer from email addresses. Matching is case
// insensitive and ignores surrounding spaces.
func NewAuthorizer(emails []string) *Authorizer {
	allowed := make(map[string]struct{}, len(emails))

	for _, e := range emails {
		if e = normalize(e); e != "" {
			allowed[e] = struct{}{}
		}
	}

	return &Authorizer{allowed: allowed}
}

// IsAdmin reports whether email is on the allow-list.
func (a *Authorizer) IsAdmin(email string) bool {
	_, ok := a.allowed[normalize(email)]
	return ok
}

// Authorize returns ErrUnauthorized without an identity and ErrAdminRequired
// for identities outside the allow-list.
func (a *Authorizer) Authorize(email string) error {
	if normalize(email) == "" {
		return coreerrors.ErrUnauthorized
	}

	if !a.IsAdmin(email) {
		return coreerrors.ErrAdminRequired
	}

	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
