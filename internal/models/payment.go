package models

import "time"

// FeeStatus tracks the lifecycle of a hostel fee invoice.
type FeeStatus string

const (
	FeeStatusPending FeeStatus = "PENDING"
	FeeStatusPaid    FeeStatus = "PAID"
	FeeStatusOverdue FeeStatus = "OVERDUE"
)

// Fee is a hostel fee invoice raised against a student.
type Fee struct {
	ID            string     `db:"id" json:"id"`
	InstitutionID string     `db:"institution_id" json:"institution_id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	Description   string     `db:"description" json:"description"`
	AmountCents   int64      `db:"amount_cents" json:"amount_cents"`
	Currency      string     `db:"currency" json:"currency"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	Status        FeeStatus  `db:"status" json:"status"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	GatewayRef    *string    `db:"gateway_ref" json:"gateway_ref,omitempty"`
	ReminderSent  *time.Time `db:"reminder_sent" json:"reminder_sent,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// FeeFilter constrains fee listing queries.
type FeeFilter struct {
	InstitutionID string
	StudentID     string
	Status        []FeeStatus
	DueBefore     *time.Time
	Limit         int
	Offset        int
}
