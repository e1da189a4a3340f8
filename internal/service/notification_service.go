package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-asrama-api/internal/models"
	"github.com/noah-isme/sma-asrama-api/pkg/jobs"
)

// Mailer delivers a single email message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type notificationGuardianLookup interface {
	FindByStudentID(ctx context.Context, studentID, institutionID string) (*models.Guardian, error)
}

type notificationStudentLookup interface {
	FindByID(ctx context.Context, id, institutionID string) (*models.Student, error)
}

type notificationUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveByRole(ctx context.Context, institutionID string, role models.UserRole) ([]models.User, error)
}

// NotificationService dispatches workflow emails through the background
// queue. Enqueueing never blocks a state transition; delivery failures are
// retried by the queue and ultimately only logged.
type NotificationService struct {
	queue     *jobs.Queue
	mailer    Mailer
	guardians notificationGuardianLookup
	students  notificationStudentLookup
	users     notificationUserLookup
	logger    *zap.Logger
}

type leaveMailJob struct {
	Leave models.Leave
}

type feeMailJob struct {
	Fee       models.Fee
	Recipient string
}

// NewNotificationService builds the service and its queue. Call Start
// before enqueueing and Stop on shutdown.
func NewNotificationService(mailer Mailer, guardians notificationGuardianLookup, students notificationStudentLookup, users notificationUserLookup, logger *zap.Logger, workers int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		mailer:    mailer,
		guardians: guardians,
		students:  students,
		users:     users,
		logger:    logger,
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// LeaveTransition implements LeaveNotifier. A full enqueue failure (queue
// stopped or saturated) is logged and dropped; the transition stands.
func (s *NotificationService) LeaveTransition(leave *models.Leave) {
	if s == nil || leave == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "leave_transition",
		Payload: leaveMailJob{Leave: *leave},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue leave notification", zap.String("leave_id", leave.ID), zap.Error(err))
	}
}

// FeeReminder enqueues a due-date reminder email.
func (s *NotificationService) FeeReminder(fee models.Fee, recipient string) {
	if s == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "fee_reminder",
		Payload: feeMailJob{Fee: fee, Recipient: recipient},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue fee reminder", zap.String("fee_id", fee.ID), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	switch payload := job.Payload.(type) {
	case leaveMailJob:
		return s.deliverLeaveMail(ctx, &payload.Leave)
	case feeMailJob:
		subject := fmt.Sprintf("Hostel fee reminder: %s", payload.Fee.Description)
		body := fmt.Sprintf("A hostel fee of %d %s is due on %s. Please settle it before the due date.",
			payload.Fee.AmountCents/100, payload.Fee.Currency, payload.Fee.DueDate.Format("2006-01-02"))
		return s.mailer.Send(ctx, payload.Recipient, subject, body)
	default:
		s.logger.Warn("unknown notification job type", zap.String("type", job.Type))
		return nil
	}
}

// deliverLeaveMail tells the party whose action comes next, or the student
// once a terminal state is reached.
func (s *NotificationService) deliverLeaveMail(ctx context.Context, leave *models.Leave) error {
	subject := fmt.Sprintf("Leave request %s: %s", leave.ID, leave.Status)

	switch leave.Status {
	case models.LeaveStatusPendingParent, models.LeaveStatusLegacyPending:
		guardian, err := s.guardians.FindByStudentID(ctx, leave.StudentID, leave.InstitutionID)
		if err != nil {
			return fmt.Errorf("resolve guardian for leave %s: %w", leave.ID, err)
		}
		body := fmt.Sprintf("A new outing request (%s, %s to %s) awaits your approval.",
			leave.Type, leave.OutDate.Format("2006-01-02"), leave.InDate.Format("2006-01-02"))
		return s.mailer.Send(ctx, guardian.Email, subject, body)
	case models.LeaveStatusApprovedByParent:
		wardens, err := s.users.ListActiveByRole(ctx, leave.InstitutionID, models.RoleWarden)
		if err != nil {
			return fmt.Errorf("resolve wardens for leave %s: %w", leave.ID, err)
		}
		if len(wardens) == 0 {
			s.logger.Warn("no active warden to notify", zap.String("leave_id", leave.ID), zap.String("institution_id", leave.InstitutionID))
			return nil
		}
		body := fmt.Sprintf("A parent-approved outing request (%s, %s to %s) awaits your decision.",
			leave.Type, leave.OutDate.Format("2006-01-02"), leave.InDate.Format("2006-01-02"))
		for _, warden := range wardens {
			if err := s.mailer.Send(ctx, warden.Email, subject, body); err != nil {
				return fmt.Errorf("notify warden %s for leave %s: %w", warden.ID, leave.ID, err)
			}
		}
		return nil
	default:
		student, err := s.students.FindByID(ctx, leave.StudentID, leave.InstitutionID)
		if err != nil {
			return fmt.Errorf("resolve student for leave %s: %w", leave.ID, err)
		}
		user, err := s.users.FindByID(ctx, student.UserID)
		if err != nil {
			return fmt.Errorf("resolve account for student %s: %w", student.ID, err)
		}
		body := fmt.Sprintf("Your outing request is now %s.", leave.Status)
		return s.mailer.Send(ctx, user.Email, subject, body)
	}
}
