package domain

import "time"

// Token represents issued authentication token metadata.
type Token struct {
	Value     string
	UserID    int64
	Role      Role
	ExpiresAt time.Time
}

// Caller is the authenticated identity a service operation runs as.
type Caller struct {
	UserID int64
	Role   Role
}

// IsAHO reports whether the caller belongs to facilities staff.
func (c Caller) IsAHO() bool {
	return c.Role.IsAHO()
}
