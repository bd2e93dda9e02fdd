package engine

import "confessd/pkg/config"

// Role is the capability resolved once per invocation and passed into
// every handler; nothing re-queries the privileged set ad hoc.
type Role int

const (
	RoleMember Role = iota
	RoleAdmin
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "member"
}

// RoleFor resolves the invoking actor's role by membership test against
// the static privileged set.
func RoleFor(cfg *config.Config, actorID int64) Role {
	if cfg.IsAdmin(actorID) {
		return RoleAdmin
	}
	return RoleMember
}
