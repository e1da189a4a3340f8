package models

import "time"

// Guardian links a parent login account to exactly one student. A guardian
// may only decide on leaves owned by that student.
type Guardian struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Phone         string    `db:"phone" json:"phone"`
	Email         string    `db:"email" json:"email"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
