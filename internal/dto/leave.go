package dto

import (
	"time"

	"github.com/noah-isme/sma-asrama-api/internal/models"
)

// CreateLeaveRequest payload for submitting a new outing request. Dates use
// the 2006-01-02 layout; times are free-form labels like "08:30".
type CreateLeaveRequest struct {
	Reason  string `json:"reason"`
	Type    string `json:"type"`
	OutDate string `json:"outDate"`
	InDate  string `json:"inDate"`
	OutTime string `json:"outTime,omitempty"`
	InTime  string `json:"inTime,omitempty"`
}

// LeaveDecisionRequest captures an approval or rejection by a reviewer.
type LeaveDecisionRequest struct {
	Decision models.ParentApprovalStatus `json:"decision"`
	Reason   string                      `json:"reason,omitempty"`
}

// LeaveQuery mirrors supported listing filters.
type LeaveQuery struct {
	Status    []models.LeaveStatus
	Type      string
	StudentID string
	Limit     int
	Offset    int
}

// LeaveView is the role-appropriate projection of a leave returned to
// callers. Identity and reviewer fields are populated per viewer role.
type LeaveView struct {
	ID                    string                      `json:"id"`
	Status                models.LeaveStatus          `json:"status"`
	Reason                string                      `json:"reason"`
	Type                  string                      `json:"type"`
	OutDate               string                      `json:"out_date"`
	InDate                string                      `json:"in_date"`
	OutTime               *string                     `json:"out_time,omitempty"`
	InTime                *string                     `json:"in_time,omitempty"`
	ParentApprovalStatus  models.ParentApprovalStatus `json:"parent_approval_status"`
	ParentApprovedAt      *time.Time                  `json:"parent_approved_at,omitempty"`
	ParentRejectionReason *string                     `json:"parent_rejection_reason,omitempty"`
	ApprovedAt            *time.Time                  `json:"approved_at,omitempty"`
	RejectionReason       *string                     `json:"rejection_reason,omitempty"`
	StatusHistory         []LeaveHistoryView          `json:"status_history"`
	CreatedAt             time.Time                   `json:"created_at"`

	// Supervisor-only fields.
	StudentID        string  `json:"student_id,omitempty"`
	StudentName      string  `json:"student_name,omitempty"`
	StudentNIS       string  `json:"student_nis,omitempty"`
	StudentRoom      string  `json:"student_room,omitempty"`
	ParentApprovedBy *string `json:"parent_approved_by,omitempty"`
	ApprovedBy       *string `json:"approved_by,omitempty"`
}

// LeaveHistoryView is one serialized audit-trail entry.
type LeaveHistoryView struct {
	Status    models.LeaveStatus `json:"status"`
	Role      models.LeaveActor  `json:"role"`
	UpdatedBy string             `json:"updated_by,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
