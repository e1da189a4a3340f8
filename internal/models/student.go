package models

import "time"

// Student represents a resident registered in the hostel roster. UserID
// links the roster entry to the login account acting as the resident.
type Student struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	NIS           string    `db:"nis" json:"nis"`
	FullName      string    `db:"full_name" json:"full_name"`
	Gender        string    `db:"gender" json:"gender"`
	Room          string    `db:"room" json:"room"`
	Phone         string    `db:"phone" json:"phone"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	InstitutionID string
	Search        string
	Room          string
	Active        *bool
	Page          int
	PageSize      int
}
