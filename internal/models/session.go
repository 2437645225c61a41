package models

// Session identifies the caller of a protocol operation.
type Session struct {
	UserID  int
	Role    Role
	Country string
	Phone   string
	Email   string
}

func (s Session) IsAgent() bool {
	return s.Role == RoleAgent
}
