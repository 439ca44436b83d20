package dto

import "time"

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the profile shape returned by login and profile reads.
type UserResponse struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	MiddleName    string `json:"middle_name"`
	City          string `json:"city"`
	OfficeAddress string `json:"officeAddress"`
	Position      string `json:"position"`
	DeskNumber    string `json:"deskNumber"`
	BirthDate     string `json:"birthDate"`
	AvatarURL     string `json:"avatarUrl"`
	Role          string `json:"role"`
}

// UserSummary is the compact shape used in user directories.
type UserSummary struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name"`
	Role       string `json:"role"`
	OfficeID   *int64 `json:"officeId"`
}

// LoginResponse standard response for the login endpoint.
type LoginResponse struct {
	Success   bool         `json:"success"`
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}
