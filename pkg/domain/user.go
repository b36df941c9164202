package domain

// Role controls which operations the API accepts for a user.
type Role string

const (
	RoleVolunteer Role = "volunteer"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// User is a registered wallet holder.
type User struct {
	ID            string `json:"id"`
	WalletAddress string `json:"walletAddress"`
	Role          Role   `json:"role"`
	Name          string `json:"name,omitempty"`
}

// CanManageEvents reports whether the role may create, update or delete events.
func (r Role) CanManageEvents() bool {
	return r == RoleOrganizer || r == RoleAdmin
}
