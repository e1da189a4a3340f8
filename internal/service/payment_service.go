package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-asrama-api/internal/dto"
	"github.com/noah-isme/sma-asrama-api/internal/models"
	appErrors "github.com/noah-isme/sma-asrama-api/pkg/errors"
	"github.com/noah-isme/sma-asrama-api/pkg/export"
)

type feeStore interface {
	Create(ctx context.Context, fee *models.Fee) error
	GetByID(ctx context.Context, id, institutionID string) (*models.Fee, error)
	List(ctx context.Context, filter models.FeeFilter) ([]models.Fee, error)
	MarkPaid(ctx context.Context, id, institutionID, gatewayRef string, paidAt time.Time) error
	ListDueForReminder(ctx context.Context, cutoff time.Time) ([]models.Fee, error)
	MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error
}

// PaymentGateway wraps the external payment provider. The service only
// verifies captures; reconciliation stays with the provider.
type PaymentGateway interface {
	VerifyCapture(ctx context.Context, orderID, signature string, amountCents int64) error
}

type feeReminderSink interface {
	FeeReminder(fee models.Fee, recipient string)
}

type paymentGuardianLookup interface {
	FindByStudentID(ctx context.Context, studentID, institutionID string) (*models.Guardian, error)
}

// PaymentService manages hostel fee invoices, captures and reminders.
type PaymentService struct {
	repo      feeStore
	gateway   PaymentGateway
	reminders feeReminderSink
	guardians paymentGuardianLookup
	receipts  passRenderer
	logger    *zap.Logger
	leadTime  time.Duration
}

// NewPaymentService constructs the service.
func NewPaymentService(repo feeStore, gateway PaymentGateway, reminders feeReminderSink, guardians paymentGuardianLookup, receipts passRenderer, logger *zap.Logger, leadTime time.Duration) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if leadTime <= 0 {
		leadTime = 72 * time.Hour
	}
	return &PaymentService{
		repo:      repo,
		gateway:   gateway,
		reminders: reminders,
		guardians: guardians,
		receipts:  receipts,
		logger:    logger,
		leadTime:  leadTime,
	}
}

// CreateFee raises a fee invoice against a student.
func (s *PaymentService) CreateFee(ctx context.Context, req dto.CreateFeeRequest, actor *models.JWTClaims) (*models.Fee, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.StudentID == "" || strings.TrimSpace(req.Description) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId and description are required")
	}
	if req.AmountCents <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amountCents must be positive")
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dueDate must use YYYY-MM-DD")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "IDR"
	}

	fee := &models.Fee{
		InstitutionID: actor.InstitutionID,
		StudentID:     req.StudentID,
		Description:   strings.TrimSpace(req.Description),
		AmountCents:   req.AmountCents,
		Currency:      currency,
		DueDate:       dueDate,
		Status:        models.FeeStatusPending,
	}
	if err := s.repo.Create(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee")
	}
	return fee, nil
}

// List returns fee invoices visible to the caller.
func (s *PaymentService) List(ctx context.Context, query dto.FeeQuery, actor *models.JWTClaims) ([]models.Fee, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.FeeFilter{
		InstitutionID: actor.InstitutionID,
		StudentID:     query.StudentID,
		Status:        query.Status,
		Limit:         query.Limit,
		Offset:        query.Offset,
	}
	fees, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fees")
	}
	return fees, nil
}

// Pay verifies a gateway capture and marks the invoice paid. A second
// capture on an already paid invoice is rejected without mutation.
func (s *PaymentService) Pay(ctx context.Context, id string, req dto.PayFeeRequest, actor *models.JWTClaims) (*models.Fee, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	fee, err := s.repo.GetByID(ctx, id, actor.InstitutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	if fee.Status == models.FeeStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "fee is already paid")
	}
	if s.gateway != nil {
		if err := s.gateway.VerifyCapture(ctx, req.GatewayOrderID, req.GatewaySig, fee.AmountCents); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "gateway capture verification failed")
		}
	}

	now := time.Now().UTC()
	if err := s.repo.MarkPaid(ctx, fee.ID, fee.InstitutionID, req.GatewayOrderID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "fee was already settled by another request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark fee paid")
	}
	fee.Status = models.FeeStatusPaid
	fee.PaidAt = &now
	ref := req.GatewayOrderID
	fee.GatewayRef = &ref
	return fee, nil
}

// Receipt renders a PDF receipt for a paid invoice.
func (s *PaymentService) Receipt(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.receipts == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "receipt rendering not configured")
	}
	fee, err := s.repo.GetByID(ctx, id, actor.InstitutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	if fee.Status != models.FeeStatusPaid || fee.PaidAt == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "receipt is only available for paid fees")
	}

	doc := export.Document{
		Title:    "Fee Receipt",
		Subtitle: fmt.Sprintf("Invoice %s", fee.ID),
		Fields: []export.Field{
			{Label: "Description", Value: fee.Description},
			{Label: "Amount", Value: fmt.Sprintf("%d.%02d %s", fee.AmountCents/100, fee.AmountCents%100, fee.Currency)},
			{Label: "Paid at", Value: fee.PaidAt.Format(time.RFC3339)},
		},
		Footer: "Keep this receipt for your records.",
	}
	if fee.GatewayRef != nil {
		doc.Fields = append(doc.Fields, export.Field{Label: "Reference", Value: *fee.GatewayRef})
	}
	receipt, err := s.receipts.Render(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return receipt, nil
}

// RunReminderLoop periodically enqueues reminders for invoices falling due.
// It shares no state with the leave workflow and stops with the context.
func (s *PaymentService) RunReminderLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.remindDueFees(ctx)
		}
	}
}

func (s *PaymentService) remindDueFees(ctx context.Context) {
	cutoff := time.Now().UTC().Add(s.leadTime)
	fees, err := s.repo.ListDueForReminder(ctx, cutoff)
	if err != nil {
		s.logger.Warn("failed to list fees due for reminder", zap.Error(err))
		return
	}
	for _, fee := range fees {
		guardian, err := s.guardians.FindByStudentID(ctx, fee.StudentID, fee.InstitutionID)
		if err != nil {
			s.logger.Warn("no guardian for fee reminder", zap.String("fee_id", fee.ID), zap.Error(err))
			continue
		}
		if s.reminders != nil {
			s.reminders.FeeReminder(fee, guardian.Email)
		}
		if err := s.repo.MarkReminderSent(ctx, fee.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to stamp fee reminder", zap.String("fee_id", fee.ID), zap.Error(err))
		}
	}
}
