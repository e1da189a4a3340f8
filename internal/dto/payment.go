package dto

import "github.com/noah-isme/sma-asrama-api/internal/models"

// CreateFeeRequest payload for raising a hostel fee invoice.
type CreateFeeRequest struct {
	StudentID   string `json:"studentId"`
	Description string `json:"description"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	DueDate     string `json:"dueDate"`
}

// PayFeeRequest records a gateway capture against an invoice.
type PayFeeRequest struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	GatewaySig     string `json:"gatewaySignature"`
}

// FeeQuery mirrors supported fee listing filters.
type FeeQuery struct {
	StudentID string
	Status    []models.FeeStatus
	Limit     int
	Offset    int
}
