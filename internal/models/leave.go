package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LeaveStatus captures the workflow states of an outing request.
type LeaveStatus string

const (
	LeaveStatusPendingParent    LeaveStatus = "PENDING_PARENT"
	LeaveStatusApprovedByParent LeaveStatus = "APPROVED_BY_PARENT"
	LeaveStatusRejectedByParent LeaveStatus = "REJECTED_BY_PARENT"
	LeaveStatusApproved         LeaveStatus = "APPROVED"
	LeaveStatusRejected         LeaveStatus = "REJECTED"
	LeaveStatusCancelled        LeaveStatus = "CANCELLED"

	// LeaveStatusLegacyPending appears on rows migrated from the previous
	// system; it behaves exactly like PENDING_PARENT for cancellation.
	LeaveStatusLegacyPending LeaveStatus = "PENDING"
)

// CancellablePending reports whether the status counts as the initial
// pending state for cancellation purposes.
func (s LeaveStatus) CancellablePending() bool {
	return s == LeaveStatusPendingParent || s == LeaveStatusLegacyPending
}

// Terminal reports whether no further transition exists from the status.
func (s LeaveStatus) Terminal() bool {
	switch s {
	case LeaveStatusApproved, LeaveStatusRejected, LeaveStatusRejectedByParent, LeaveStatusCancelled:
		return true
	}
	return false
}

// ParentApprovalStatus mirrors the guardian's decision on a leave.
type ParentApprovalStatus string

const (
	ParentApprovalPending  ParentApprovalStatus = "PENDING"
	ParentApprovalApproved ParentApprovalStatus = "APPROVED"
	ParentApprovalRejected ParentApprovalStatus = "REJECTED"
)

// LeaveActor is the closed set of roles that may act on a leave.
type LeaveActor string

const (
	ActorStudent LeaveActor = "STUDENT"
	ActorParent  LeaveActor = "PARENT"
	ActorWarden  LeaveActor = "WARDEN"
)

// LeaveEvent identifies a requested transition.
type LeaveEvent string

const (
	LeaveEventParentApprove LeaveEvent = "PARENT_APPROVE"
	LeaveEventParentReject  LeaveEvent = "PARENT_REJECT"
	LeaveEventWardenApprove LeaveEvent = "WARDEN_APPROVE"
	LeaveEventWardenReject  LeaveEvent = "WARDEN_REJECT"
	LeaveEventCancel        LeaveEvent = "CANCEL"
)

// leaveTransition is one edge of the workflow graph.
type leaveTransition struct {
	Actor LeaveActor
	To    LeaveStatus
	From  func(LeaveStatus) bool
}

// leaveTransitions is the full transition table. Creation is not listed:
// it has no source state and always yields PENDING_PARENT.
var leaveTransitions = map[LeaveEvent]leaveTransition{
	LeaveEventParentApprove: {
		Actor: ActorParent,
		To:    LeaveStatusApprovedByParent,
		From:  LeaveStatus.CancellablePending,
	},
	LeaveEventParentReject: {
		Actor: ActorParent,
		To:    LeaveStatusRejectedByParent,
		From:  LeaveStatus.CancellablePending,
	},
	LeaveEventWardenApprove: {
		Actor: ActorWarden,
		To:    LeaveStatusApproved,
		From:  func(s LeaveStatus) bool { return s == LeaveStatusApprovedByParent },
	},
	LeaveEventWardenReject: {
		Actor: ActorWarden,
		To:    LeaveStatusRejected,
		From:  func(s LeaveStatus) bool { return s == LeaveStatusApprovedByParent },
	},
	LeaveEventCancel: {
		Actor: ActorStudent,
		To:    LeaveStatusCancelled,
		From:  LeaveStatus.CancellablePending,
	},
}

// NextStatus validates an edge of the transition table. It returns the
// target status, or an explanation of why the edge is not available.
func NextStatus(current LeaveStatus, event LeaveEvent, actor LeaveActor) (LeaveStatus, error) {
	edge, ok := leaveTransitions[event]
	if !ok {
		return "", fmt.Errorf("unknown leave event %q", event)
	}
	if edge.Actor != actor {
		return "", fmt.Errorf("event %s requires actor %s", event, edge.Actor)
	}
	if !edge.From(current) {
		return "", fmt.Errorf("event %s is not allowed from status %s", event, current)
	}
	return edge.To, nil
}

// LeaveStatusChange is a single audit-trail entry.
type LeaveStatusChange struct {
	Status    LeaveStatus `json:"status"`
	Role      LeaveActor  `json:"role"`
	UpdatedBy string      `json:"updated_by,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// LeaveStatusHistory is the append-only transition log stored as JSONB.
type LeaveStatusHistory []LeaveStatusChange

// Value implements driver.Valuer for JSONB persistence.
func (h LeaveStatusHistory) Value() (driver.Value, error) {
	if h == nil {
		h = LeaveStatusHistory{}
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *LeaveStatusHistory) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("unsupported status history source %T", src)
	}
}

// Append returns a new history with the entry added; the receiver is not
// modified so prior snapshots stay intact.
func (h LeaveStatusHistory) Append(entry LeaveStatusChange) LeaveStatusHistory {
	next := make(LeaveStatusHistory, 0, len(h)+1)
	next = append(next, h...)
	return append(next, entry)
}

// Leave is an outing request owned by a student and reviewed first by the
// linked guardian, then by a warden of the same institution.
type Leave struct {
	ID                    string               `db:"id" json:"id"`
	InstitutionID         string               `db:"institution_id" json:"institution_id"`
	StudentID             string               `db:"student_id" json:"student_id"`
	Reason                string               `db:"reason" json:"reason"`
	Type                  string               `db:"type" json:"type"`
	OutDate               time.Time            `db:"out_date" json:"out_date"`
	InDate                time.Time            `db:"in_date" json:"in_date"`
	OutTime               *string              `db:"out_time" json:"out_time,omitempty"`
	InTime                *string              `db:"in_time" json:"in_time,omitempty"`
	Status                LeaveStatus          `db:"status" json:"status"`
	ParentApprovalStatus  ParentApprovalStatus `db:"parent_approval_status" json:"parent_approval_status"`
	ParentApprovedBy      *string              `db:"parent_approved_by" json:"parent_approved_by,omitempty"`
	ParentApprovedAt      *time.Time           `db:"parent_approved_at" json:"parent_approved_at,omitempty"`
	ParentRejectionReason *string              `db:"parent_rejection_reason" json:"parent_rejection_reason,omitempty"`
	ApprovedBy            *string              `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt            *time.Time           `db:"approved_at" json:"approved_at,omitempty"`
	RejectionReason       *string              `db:"rejection_reason" json:"rejection_reason,omitempty"`
	StatusHistory         LeaveStatusHistory   `db:"status_history" json:"status_history"`
	CreatedAt             time.Time            `db:"created_at" json:"created_at"`
}

// LeaveFilter constrains listing queries. InstitutionID is always bound by
// the repository regardless of the remaining fields.
type LeaveFilter struct {
	InstitutionID string
	StudentID     string
	Status        []LeaveStatus
	Type          string
	Limit         int
	Offset        int
}
