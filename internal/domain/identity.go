package domain

// Role is the role a connection holds inside one room, fixed at join time.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleManager Role = "manager"
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// Account roles allowed to manage a live match they do not own.
const (
	AccountRoleAdmin     = "admin"
	AccountRoleModerator = "moderator"
	AccountRoleOrganizer = "organizer"
)

// CanManage reports whether the identity may take the manager role for a
// match owned by ownerID.
func (i Identity) CanManage(ownerID string) bool {
	if ownerID != "" && i.UserID == ownerID {
		return true
	}
	for _, r := range i.Roles {
		switch r {
		case AccountRoleAdmin, AccountRoleModerator, AccountRoleOrganizer:
			return true
		}
	}
	return false
}
