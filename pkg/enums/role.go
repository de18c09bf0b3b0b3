package enums

// Role is the closed set of actor roles recognized by the authorization policy.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

var roles = closedSet[Role]{RoleCustomer, RoleVendor, RoleAdmin}

func (r Role) IsValid() bool { return roles.has(r) }
