package models

// Role distinguishes creator/admin capability from assigned-operator capability.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Principal is an authenticated actor. It is produced by the auth layer
// from an already-verified token; services never see raw credentials.
type Principal struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// IsAdmin reports whether the principal carries admin capability.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
