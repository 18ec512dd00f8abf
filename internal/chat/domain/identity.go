package domain

// Role 使用者角色，來自 JWT claim
type Role string

const (
	// RoleAdmin school administrator
	RoleAdmin Role = "admin"
	// RoleTeacher teacher
	RoleTeacher Role = "teacher"
	// RoleStudent student
	RoleStudent Role = "student"
)

// Identity the authenticated caller
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin check caller is administrator
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
