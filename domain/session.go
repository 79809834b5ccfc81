package domain

// Role is the closed set of claims this service understands. Anything else in
// the identity provider's claim bag collapses to RoleFan.
type Role string

const (
	RoleFan   Role = "fan"
	RoleDJ    Role = "dj"
	RoleAdmin Role = "admin"
)

// ParseRole maps a raw claim value onto the closed role set.
func ParseRole(raw string) Role {
	switch raw {
	case string(RoleDJ):
		return RoleDJ
	case string(RoleAdmin):
		return RoleAdmin
	default:
		return RoleFan
	}
}

// Session is a verified identity, produced once per request by the identity
// provider adapter and carried through the handler chain.
type Session struct {
	UID   string
	Email string
	Name  string
	Role  Role
}
