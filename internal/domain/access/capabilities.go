// Package access models what an authenticated actor may do as a set of
// granted capability tokens. Roles and fine-grained permissions are both
// tokens; a single predicate answers "any of" and "all of" checks.
package access

import (
	"sort"
	"strings"
)

// Well-known capability tokens.
const (
	// Wildcard grants every capability.
	Wildcard = "admin:all"

	// CorrectXP allows administrative XP corrections, including decreases.
	CorrectXP = "xp:correct"

	// ManageBadges allows re-driving badge evaluation for another user.
	ManageBadges = "badges:manage"

	RoleAdmin   = "role:admin"
	RoleTeacher = "role:teacher"
	RoleStudent = "role:student"
)

// Mode selects how required capabilities are matched.
type Mode int

const (
	// Any requires at least one of the required tokens.
	Any Mode = iota
	// All requires every required token.
	All
)

// Capabilities is an immutable set of granted tokens.
type Capabilities struct {
	granted map[string]struct{}
}

// New builds a capability set. Tokens are trimmed and lower-cased; empty
// tokens are dropped.
func New(tokens ...string) Capabilities {
	c := Capabilities{granted: make(map[string]struct{}, len(tokens))}
	for _, t := range tokens {
		t = normalize(t)
		if t == "" {
			continue
		}
		c.granted[t] = struct{}{}
	}
	return c
}

// FromRolesAndPermissions maps role names to "role:<name>" tokens and keeps
// permissions as-is. An "admin" role also grants the wildcard.
func FromRolesAndPermissions(roles, permissions []string) Capabilities {
	tokens := make([]string, 0, len(roles)+len(permissions)+1)
	for _, r := range roles {
		r = normalize(r)
		if r == "" {
			continue
		}
		if !strings.HasPrefix(r, "role:") {
			r = "role:" + r
		}
		tokens = append(tokens, r)
		if r == RoleAdmin {
			tokens = append(tokens, Wildcard)
		}
	}
	tokens = append(tokens, permissions...)
	return New(tokens...)
}

// Has reports whether token is granted, directly or through the wildcard.
func (c Capabilities) Has(token string) bool {
	if _, ok := c.granted[Wildcard]; ok {
		return true
	}
	_, ok := c.granted[normalize(token)]
	return ok
}

// Allows checks required tokens under mode. An empty requirement is
// always satisfied.
func (c Capabilities) Allows(mode Mode, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		has := c.Has(r)
		if mode == Any && has {
			return true
		}
		if mode == All && !has {
			return false
		}
	}
	return mode == All
}

// Tokens returns the granted tokens in sorted order.
func (c Capabilities) Tokens() []string {
	out := make([]string, 0, len(c.granted))
	for t := range c.granted {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether nothing is granted.
func (c Capabilities) IsEmpty() bool {
	return len(c.granted) == 0
}

func normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
