// README: Request-scoped actor identity supplied by the identity provider.
package types

type Role string

const (
	RoleCustomer Role = "customer"
	RoleMerchant Role = "merchant"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated party behind a request. The core trusts it
// verbatim; no session logic lives here.
type Actor struct {
	ID   ID
	Role Role
}

func (a Actor) Is(r Role) bool {
	return a.Role == r
}
