package domain

import "time"

// User is an employee, facilities staff member or manager.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	MiddleName   string
	Position     string
	Role         Role
	DeskNumber   string
	BirthDate    *time.Time
	AvatarKey    string
	OfficeID     *int64
	Office       *Office
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName renders "Last First Middle" without dangling spaces.
func (u *User) FullName() string {
	name := u.LastName
	for _, part := range []string{u.FirstName, u.MiddleName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}
