package common

// Role names recognised by the marketplace engines. Landlord and tenant are
// not roles: they are identities recorded on the rental itself.
const (
	RoleAdmin      = "ROLE_ADMIN"
	RoleArbitrator = "ROLE_ARBITRATOR"
)

// RoleView answers role-membership queries for a pre-authenticated caller
// identity. The engines trust the view; authentication happens upstream.
type RoleView interface {
	HasRole(addr [20]byte, role string) bool
}

// RoleSet is an in-memory RoleView backed by explicit grants.
type RoleSet struct {
	grants map[string]map[[20]byte]struct{}
}

// NewRoleSet constructs an empty role set.
func NewRoleSet() *RoleSet {
	return &RoleSet{grants: make(map[string]map[[20]byte]struct{})}
}

// Grant adds addr to the membership of role.
func (r *RoleSet) Grant(role string, addr [20]byte) {
	if r == nil || role == "" {
		return
	}
	if r.grants == nil {
		r.grants = make(map[string]map[[20]byte]struct{})
	}
	members, ok := r.grants[role]
	if !ok {
		members = make(map[[20]byte]struct{})
		r.grants[role] = members
	}
	members[addr] = struct{}{}
}

// HasRole implements RoleView.
func (r *RoleSet) HasRole(addr [20]byte, role string) bool {
	if r == nil || r.grants == nil {
		return false
	}
	members, ok := r.grants[role]
	if !ok {
		return false
	}
	_, ok = members[addr]
	return ok
}
