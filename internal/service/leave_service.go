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
	"github.com/noah-isme/sma-asrama-api/internal/repository"
	appErrors "github.com/noah-isme/sma-asrama-api/pkg/errors"
	"github.com/noah-isme/sma-asrama-api/pkg/export"
)

const leaveDateLayout = "2006-01-02"

type leaveStore interface {
	Create(ctx context.Context, leave *models.Leave) error
	GetByID(ctx context.Context, id, institutionID string) (*models.Leave, error)
	List(ctx context.Context, filter models.LeaveFilter) ([]models.Leave, error)
	UpdateStatus(ctx context.Context, params repository.UpdateLeaveStatusParams) error
}

type studentDirectory interface {
	FindByUserID(ctx context.Context, userID, institutionID string) (*models.Student, error)
	FindByID(ctx context.Context, id, institutionID string) (*models.Student, error)
}

type guardianDirectory interface {
	FindByUserID(ctx context.Context, userID, institutionID string) (*models.Guardian, error)
}

// LeaveNotifier is told about successful transitions. Implementations must
// return immediately; delivery happens off the request path and a failed
// notification never affects the transition itself.
type LeaveNotifier interface {
	LeaveTransition(leave *models.Leave)
}

type passRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// LeaveService owns the outing-request workflow: transition validation,
// ownership checks, audit history construction and role projection.
type LeaveService struct {
	repo      leaveStore
	students  studentDirectory
	guardians guardianDirectory
	audit     auditLogger
	notifier  LeaveNotifier
	passes    passRenderer
	logger    *zap.Logger
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// LeaveServiceOption configures the service.
type LeaveServiceOption func(*LeaveService)

// WithLeaveNotifier attaches the fire-and-forget transition notifier.
func WithLeaveNotifier(notifier LeaveNotifier) LeaveServiceOption {
	return func(s *LeaveService) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithPassRenderer attaches the gate-pass PDF renderer.
func WithPassRenderer(renderer passRenderer) LeaveServiceOption {
	return func(s *LeaveService) {
		if renderer != nil {
			s.passes = renderer
		}
	}
}

// NewLeaveService constructs the workflow service.
func NewLeaveService(repo leaveStore, students studentDirectory, guardians guardianDirectory, audit auditLogger, logger *zap.Logger, opts ...LeaveServiceOption) *LeaveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LeaveService{
		repo:      repo,
		students:  students,
		guardians: guardians,
		audit:     audit,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create validates and persists a new outing request owned by the calling
// student. The first history entry always records creation.
func (s *LeaveService) Create(ctx context.Context, req dto.CreateLeaveRequest, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may submit leave requests")
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}
	if strings.TrimSpace(req.Type) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "type is required")
	}
	outDate, err := time.Parse(leaveDateLayout, req.OutDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "outDate must use YYYY-MM-DD")
	}
	inDate, err := time.Parse(leaveDateLayout, req.InDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "inDate must use YYYY-MM-DD")
	}
	if !outDate.Before(inDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "outDate must be strictly before inDate")
	}

	student, err := s.students.FindByUserID(ctx, actor.UserID, actor.InstitutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	now := time.Now().UTC()
	leave := &models.Leave{
		InstitutionID:        actor.InstitutionID,
		StudentID:            student.ID,
		Reason:               reason,
		Type:                 strings.TrimSpace(req.Type),
		OutDate:              outDate,
		InDate:               inDate,
		OutTime:              optionalString(req.OutTime),
		InTime:               optionalString(req.InTime),
		Status:               models.LeaveStatusPendingParent,
		ParentApprovalStatus: models.ParentApprovalPending,
		StatusHistory: models.LeaveStatusHistory{{
			Status:    models.LeaveStatusPendingParent,
			Role:      models.ActorStudent,
			UpdatedBy: student.ID,
			Timestamp: now,
		}},
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}

	s.emitAudit(ctx, actor, models.AuditActionLeaveCreate, leave.ID)
	s.notifyTransition(leave)
	return s.project(leave, actor.Role, student), nil
}

// List returns leaves visible to the caller. Students see their own,
// parents see their linked student's, wardens see the institution.
func (s *LeaveService) List(ctx context.Context, query dto.LeaveQuery, actor *models.JWTClaims) ([]dto.LeaveView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.LeaveFilter{
		InstitutionID: actor.InstitutionID,
		Status:        query.Status,
		Type:          query.Type,
		Limit:         query.Limit,
		Offset:        query.Offset,
	}
	switch actor.Role {
	case models.RoleStudent:
		student, err := s.students.FindByUserID(ctx, actor.UserID, actor.InstitutionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
		}
		filter.StudentID = student.ID
	case models.RoleParent:
		guardian, err := s.guardians.FindByUserID(ctx, actor.UserID, actor.InstitutionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "no guardian profile for caller")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve guardian")
		}
		filter.StudentID = guardian.StudentID
	case models.RoleWarden, models.RoleAdmin, models.RoleSuperAdmin:
		filter.StudentID = query.StudentID
	default:
		return nil, appErrors.ErrForbidden
	}

	leaves, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leaves")
	}
	views := make([]dto.LeaveView, 0, len(leaves))
	for i := range leaves {
		views = append(views, *s.project(&leaves[i], actor.Role, nil))
	}
	return views, nil
}

// Get returns a single leave enforcing visibility rules.
func (s *LeaveService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	leave, err := s.loadLeave(ctx, id, actor.InstitutionID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleStudent:
		student, err := s.resolveOwnedStudent(ctx, actor, leave)
		if err != nil {
			return nil, err
		}
		return s.project(leave, actor.Role, student), nil
	case models.RoleParent:
		if _, err := s.resolveLinkedGuardian(ctx, actor, leave); err != nil {
			return nil, err
		}
		return s.project(leave, actor.Role, nil), nil
	case models.RoleWarden, models.RoleAdmin, models.RoleSuperAdmin:
		return s.project(leave, actor.Role, s.lookupStudent(ctx, leave)), nil
	default:
		return nil, appErrors.ErrForbidden
	}
}

// DecideAsParent records the guardian's first-tier decision.
func (s *LeaveService) DecideAsParent(ctx context.Context, id string, req dto.LeaveDecisionRequest, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	guardian, err := s.guardians.FindByUserID(ctx, actor.UserID, actor.InstitutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no guardian profile for caller")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve guardian")
	}

	leave, err := s.loadLeave(ctx, id, actor.InstitutionID)
	if err != nil {
		return nil, err
	}
	if leave.StudentID != guardian.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "guardian is not linked to this student")
	}

	event, err := parentEvent(req.Decision)
	if err != nil {
		return nil, err
	}
	next, err := models.NextStatus(leave.Status, event, models.ActorParent)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, err.Error())
	}

	now := time.Now().UTC()
	updated := *leave
	updated.Status = next
	if event == models.LeaveEventParentApprove {
		updated.ParentApprovalStatus = models.ParentApprovalApproved
		updated.ParentApprovedBy = &guardian.ID
		updated.ParentApprovedAt = &now
	} else {
		updated.ParentApprovalStatus = models.ParentApprovalRejected
		updated.ParentRejectionReason = optionalString(req.Reason)
	}
	updated.StatusHistory = leave.StatusHistory.Append(models.LeaveStatusChange{
		Status:    next,
		Role:      models.ActorParent,
		UpdatedBy: guardian.ID,
		Reason:    strings.TrimSpace(req.Reason),
		Timestamp: now,
	})

	if err := s.commit(ctx, leave, &updated); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionLeaveDecision, leave.ID)
	s.notifyTransition(&updated)
	return s.project(&updated, actor.Role, nil), nil
}

// DecideAsWarden records the final supervisor decision. Only requests the
// guardian already approved may be finalized.
func (s *LeaveService) DecideAsWarden(ctx context.Context, id string, req dto.LeaveDecisionRequest, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleWarden, models.RoleAdmin, models.RoleSuperAdmin:
	default:
		return nil, appErrors.ErrForbidden
	}

	leave, err := s.loadLeave(ctx, id, actor.InstitutionID)
	if err != nil {
		return nil, err
	}

	event, err := wardenEvent(req.Decision)
	if err != nil {
		return nil, err
	}
	next, err := models.NextStatus(leave.Status, event, models.ActorWarden)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only parent-approved requests may be finalized")
	}

	now := time.Now().UTC()
	updated := *leave
	updated.Status = next
	if event == models.LeaveEventWardenApprove {
		updated.ApprovedBy = &actor.UserID
		updated.ApprovedAt = &now
	} else {
		updated.RejectionReason = optionalString(req.Reason)
	}
	updated.StatusHistory = leave.StatusHistory.Append(models.LeaveStatusChange{
		Status:    next,
		Role:      models.ActorWarden,
		UpdatedBy: actor.UserID,
		Reason:    strings.TrimSpace(req.Reason),
		Timestamp: now,
	})

	if err := s.commit(ctx, leave, &updated); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionLeaveDecision, leave.ID)
	s.notifyTransition(&updated)
	return s.project(&updated, actor.Role, s.lookupStudent(ctx, &updated)), nil
}

// Cancel withdraws a still-pending request. Only the owning student may
// cancel, and only before the guardian has decided.
func (s *LeaveService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student may cancel")
	}
	leave, err := s.loadLeave(ctx, id, actor.InstitutionID)
	if err != nil {
		return nil, err
	}
	student, err := s.resolveOwnedStudent(ctx, actor, leave)
	if err != nil {
		return nil, err
	}

	next, err := models.NextStatus(leave.Status, models.LeaveEventCancel, models.ActorStudent)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only pending requests may be cancelled")
	}

	now := time.Now().UTC()
	updated := *leave
	updated.Status = next
	updated.StatusHistory = leave.StatusHistory.Append(models.LeaveStatusChange{
		Status:    next,
		Role:      models.ActorStudent,
		UpdatedBy: student.ID,
		Timestamp: now,
	})

	if err := s.commit(ctx, leave, &updated); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionLeaveCancel, leave.ID)
	s.notifyTransition(&updated)
	return s.project(&updated, actor.Role, student), nil
}

// GatePass renders a printable pass for an approved leave. Available to
// supervisors and the owning student.
func (s *LeaveService) GatePass(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.passes == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "gate pass rendering not configured")
	}
	leave, err := s.loadLeave(ctx, id, actor.InstitutionID)
	if err != nil {
		return nil, err
	}

	var student *models.Student
	switch actor.Role {
	case models.RoleStudent:
		student, err = s.resolveOwnedStudent(ctx, actor, leave)
		if err != nil {
			return nil, err
		}
	case models.RoleWarden, models.RoleAdmin, models.RoleSuperAdmin:
		student = s.lookupStudent(ctx, leave)
	default:
		return nil, appErrors.ErrForbidden
	}
	if leave.Status != models.LeaveStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "gate pass is only available for approved leaves")
	}

	doc := export.Document{
		Title:    "Gate Pass",
		Subtitle: fmt.Sprintf("Leave %s", leave.ID),
		Fields: []export.Field{
			{Label: "Type", Value: leave.Type},
			{Label: "Reason", Value: leave.Reason},
			{Label: "Out", Value: formatDateWithTime(leave.OutDate, leave.OutTime)},
			{Label: "Return", Value: formatDateWithTime(leave.InDate, leave.InTime)},
		},
		Footer: "Present this pass at the hostel gate. Valid only for the dates shown.",
	}
	if student != nil {
		doc.Fields = append([]export.Field{
			{Label: "Student", Value: student.FullName},
			{Label: "NIS", Value: student.NIS},
			{Label: "Room", Value: student.Room},
		}, doc.Fields...)
	}
	pass, err := s.passes.Render(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gate pass")
	}
	return pass, nil
}

func (s *LeaveService) loadLeave(ctx context.Context, id, institutionID string) (*models.Leave, error) {
	leave, err := s.repo.GetByID(ctx, id, institutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	return leave, nil
}

// commit writes the transition conditionally on the status observed at
// read time. A conflicting writer surfaces as INVALID_STATE carrying the
// freshly persisted status; the caller may retry with new state.
func (s *LeaveService) commit(ctx context.Context, before, after *models.Leave) error {
	err := s.repo.UpdateStatus(ctx, repository.UpdateLeaveStatusParams{
		ID:                    before.ID,
		InstitutionID:         before.InstitutionID,
		ExpectedStatus:        before.Status,
		Status:                after.Status,
		ParentApprovalStatus:  after.ParentApprovalStatus,
		ParentApprovedBy:      after.ParentApprovedBy,
		ParentApprovedAt:      after.ParentApprovedAt,
		ParentRejectionReason: after.ParentRejectionReason,
		ApprovedBy:            after.ApprovedBy,
		ApprovedAt:            after.ApprovedAt,
		RejectionReason:       after.RejectionReason,
		StatusHistory:         after.StatusHistory,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		current, loadErr := s.repo.GetByID(ctx, before.ID, before.InstitutionID)
		if loadErr == nil {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("leave status changed to %s by another request", current.Status))
		}
		return appErrors.Clone(appErrors.ErrInvalidState, "leave status changed by another request")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update leave request")
}

func (s *LeaveService) resolveOwnedStudent(ctx context.Context, actor *models.JWTClaims, leave *models.Leave) (*models.Student, error) {
	student, err := s.students.FindByUserID(ctx, actor.UserID, actor.InstitutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	if leave.StudentID != student.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "leave belongs to another student")
	}
	return student, nil
}

func (s *LeaveService) resolveLinkedGuardian(ctx context.Context, actor *models.JWTClaims, leave *models.Leave) (*models.Guardian, error) {
	guardian, err := s.guardians.FindByUserID(ctx, actor.UserID, actor.InstitutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no guardian profile for caller")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve guardian")
	}
	if leave.StudentID != guardian.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "guardian is not linked to this student")
	}
	return guardian, nil
}

// lookupStudent enriches supervisor views; a missing roster entry only
// degrades the projection and is never an error.
func (s *LeaveService) lookupStudent(ctx context.Context, leave *models.Leave) *models.Student {
	student, err := s.students.FindByID(ctx, leave.StudentID, leave.InstitutionID)
	if err != nil {
		return nil
	}
	return student
}

// project builds the role-appropriate read view. Supervisors get student
// identity and reviewer identifiers; student and parent views omit them.
func (s *LeaveService) project(leave *models.Leave, role models.UserRole, student *models.Student) *dto.LeaveView {
	supervisor := role == models.RoleWarden || role == models.RoleAdmin || role == models.RoleSuperAdmin

	view := &dto.LeaveView{
		ID:                    leave.ID,
		Status:                leave.Status,
		Reason:                leave.Reason,
		Type:                  leave.Type,
		OutDate:               leave.OutDate.Format(leaveDateLayout),
		InDate:                leave.InDate.Format(leaveDateLayout),
		OutTime:               leave.OutTime,
		InTime:                leave.InTime,
		ParentApprovalStatus:  leave.ParentApprovalStatus,
		ParentApprovedAt:      leave.ParentApprovedAt,
		ParentRejectionReason: leave.ParentRejectionReason,
		ApprovedAt:            leave.ApprovedAt,
		RejectionReason:       leave.RejectionReason,
		CreatedAt:             leave.CreatedAt,
	}
	view.StatusHistory = make([]dto.LeaveHistoryView, 0, len(leave.StatusHistory))
	for _, entry := range leave.StatusHistory {
		h := dto.LeaveHistoryView{
			Status:    entry.Status,
			Role:      entry.Role,
			Reason:    entry.Reason,
			Timestamp: entry.Timestamp,
		}
		if supervisor {
			h.UpdatedBy = entry.UpdatedBy
		}
		view.StatusHistory = append(view.StatusHistory, h)
	}
	if supervisor {
		view.StudentID = leave.StudentID
		view.ParentApprovedBy = leave.ParentApprovedBy
		view.ApprovedBy = leave.ApprovedBy
		if student != nil {
			view.StudentName = student.FullName
			view.StudentNIS = student.NIS
			view.StudentRoom = student.Room
		}
	}
	return view
}

func (s *LeaveService) notifyTransition(leave *models.Leave) {
	if s.notifier == nil {
		return
	}
	s.notifier.LeaveTransition(leave)
}

func (s *LeaveService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, leaveID string) {
	if s.audit == nil {
		return
	}
	userID := actor.UserID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "leave",
		ResourceID: &leaveID,
		IPAddress:  "system",
		UserAgent:  "leave-service",
	}); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func parentEvent(decision models.ParentApprovalStatus) (models.LeaveEvent, error) {
	switch decision {
	case models.ParentApprovalApproved:
		return models.LeaveEventParentApprove, nil
	case models.ParentApprovalRejected:
		return models.LeaveEventParentReject, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVED or REJECTED")
	}
}

func wardenEvent(decision models.ParentApprovalStatus) (models.LeaveEvent, error) {
	switch decision {
	case models.ParentApprovalApproved:
		return models.LeaveEventWardenApprove, nil
	case models.ParentApprovalRejected:
		return models.LeaveEventWardenReject, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVED or REJECTED")
	}
}

func formatDateWithTime(date time.Time, clock *string) string {
	if clock != nil && *clock != "" {
		return fmt.Sprintf("%s %s", date.Format(leaveDateLayout), *clock)
	}
	return date.Format(leaveDateLayout)
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
