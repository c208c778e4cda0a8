// Package roles defines actor roles and the authority order between them.
//
// Authority, lowest first:
//
//	employee < specialist < manager < deputy_md < md < admin
//
// Only specialist, deputy_md and md review purchase orders. admin is an
// override role: it may act for whichever reviewer the current stage needs.
package roles

import (
	"fmt"
	"strings"
)

// Role identifies what an actor is allowed to do.
type Role string

const (
	Employee   Role = "employee"
	Specialist Role = "specialist"
	Manager    Role = "manager"
	DeputyMD   Role = "deputy_md"
	MD         Role = "md"
	Admin      Role = "admin"
)

// rank orders roles by authority. Unknown roles rank 0.
var rank = map[Role]int{
	Employee:   1,
	Specialist: 2,
	Manager:    3,
	DeputyMD:   4,
	MD:         5,
	Admin:      6,
}

// All returns every known role, lowest authority first.
func All() []Role {
	return []Role{Employee, Specialist, Manager, DeputyMD, MD, Admin}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	_, ok := rank[r]
	return ok
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Rank returns the authority rank of r (0 for unknown roles).
func (r Role) Rank() int {
	return rank[r]
}

// Outranks reports whether r carries strictly more authority than other.
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

// IsReviewer reports whether r is one of the reviewer roles that decide on
// purchase orders. admin is not a reviewer; see IsAdminOverride.
func IsReviewer(r Role) bool {
	switch r {
	case Specialist, DeputyMD, MD:
		return true
	}
	return false
}

// IsAdminOverride reports whether r bypasses reviewer matching.
func IsAdminOverride(r Role) bool {
	return r == Admin
}

// CanDecide reports whether r may submit approval decisions at all.
func CanDecide(r Role) bool {
	return IsReviewer(r) || IsAdminOverride(r)
}

// Parse converts s into a Role. Matching ignores case and surrounding space.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor is an authenticated caller as resolved by the authorization gate.
type Actor struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
	Active bool   `json:"is_active"`
}
