package models

import "time"

// LocationPing is a geolocation sample reported by a student on leave.
type LocationPing struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	LeaveID       string    `db:"leave_id" json:"leave_id"`
	Latitude      float64   `db:"latitude" json:"latitude"`
	Longitude     float64   `db:"longitude" json:"longitude"`
	Accuracy      float64   `db:"accuracy" json:"accuracy"`
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
}
