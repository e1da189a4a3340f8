package dto

import "time"

// LocationPingRequest is a geolocation sample submitted by a student.
type LocationPingRequest struct {
	LeaveID   string  `json:"leaveId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// LastKnownLocation is the most recent position of a student on leave.
type LastKnownLocation struct {
	StudentID  string    `json:"student_id"`
	LeaveID    string    `json:"leave_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}
