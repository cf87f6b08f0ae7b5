// Package auth contains the permission model and token helpers of the hash
// equivalence server.
//
// Permissions are plain strings prefixed with "@". A user holding PermAll
// implicitly holds every other permission. Tokens are random UUIDs handed to
// the user exactly once; the server only stores their bcrypt hash.
package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Permission is a single named capability
type Permission string

const (
	PermNone      Permission = "@none"       // No access at all
	PermRead      Permission = "@read"       // Lookups, streams, stats
	PermReport    Permission = "@report"     // Reporting new equivalences
	PermDBAdmin   Permission = "@db-admin"   // Remove, gc, stats reset, usage
	PermUserAdmin Permission = "@user-admin" // Managing users and impersonation
	PermAll       Permission = "@all"        // Everything above
)

// allPermissions lists every permission in canonical order
var allPermissions = []Permission{PermNone, PermRead, PermReport, PermDBAdmin, PermUserAdmin, PermAll}

// Permissions is a set of permissions
type Permissions map[Permission]struct{}

// ParsePermissions validates a list of permission names.
// "@none" may only be combined with nothing else.
func ParsePermissions(names []string) (Permissions, error) {
	perms := make(Permissions, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p := Permission(name)
		if !isKnown(p) {
			return nil, fmt.Errorf("unknown permission %q", name)
		}
		perms[p] = struct{}{}
	}

	if _, ok := perms[PermNone]; ok && len(perms) > 1 {
		return nil, fmt.Errorf("permission %s can't be combined with other permissions", PermNone)
	}
	if _, ok := perms[PermNone]; ok {
		return Permissions{}, nil
	}
	return perms, nil
}

// MustParsePermissions is ParsePermissions for constant input
func MustParsePermissions(names ...string) Permissions {
	perms, err := ParsePermissions(names)
	if err != nil {
		panic(err)
	}
	return perms
}

// Has reports whether p is granted (directly or through PermAll)
func (perms Permissions) Has(p Permission) bool {
	if _, ok := perms[PermAll]; ok {
		return true
	}
	_, ok := perms[p]
	return ok
}

// Union returns the permissions held in perms or other
func (perms Permissions) Union(other Permissions) Permissions {
	out := make(Permissions, len(perms)+len(other))
	for p := range perms {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// List returns the permission names in canonical order
func (perms Permissions) List() []string {
	out := make([]string, 0, len(perms))
	for _, p := range allPermissions {
		if _, ok := perms[p]; ok {
			out = append(out, string(p))
		}
	}
	return out
}

// String joins the permissions with commas (the storage format)
func (perms Permissions) String() string {
	return strings.Join(perms.List(), ",")
}

// FromString parses the storage format written by String
func FromString(s string) (Permissions, error) {
	if s == "" {
		return Permissions{}, nil
	}
	return ParsePermissions(strings.Split(s, ","))
}

// Known returns all valid permission names, sorted
func Known() []string {
	out := make([]string, 0, len(allPermissions))
	for _, p := range allPermissions {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

func isKnown(p Permission) bool {
	for _, k := range allPermissions {
		if k == p {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Tokens
// --------------------------------------------------------------------------

// hashCost is the bcrypt cost used for new token hashes. Tests lower it.
var hashCost = bcrypt.DefaultCost

// NewToken generates a fresh random token
func NewToken() string {
	return uuid.NewString()
}

// HashToken returns the bcrypt hash stored for a token
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(h), nil
}

// CheckToken reports whether token matches the stored hash
func CheckToken(hash, token string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// SetHashCost changes the bcrypt cost for new hashes. It exists for tests and
// low powered deployments; values outside bcrypt's range are clamped.
func SetHashCost(cost int) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	hashCost = cost
}
