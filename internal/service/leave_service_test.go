package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-asrama-api/internal/dto"
	"github.com/noah-isme/sma-asrama-api/internal/models"
	"github.com/noah-isme/sma-asrama-api/internal/repository"
	appErrors "github.com/noah-isme/sma-asrama-api/pkg/errors"
	"github.com/noah-isme/sma-asrama-api/pkg/export"
)

type passRendererFunc func(export.Document) ([]byte, error)

func (f passRendererFunc) Render(doc export.Document) ([]byte, error) { return f(doc) }

type leaveRepoStub struct {
	leaves map[string]*models.Leave
	filter models.LeaveFilter
	seq    int
}

func newLeaveRepoStub() *leaveRepoStub {
	return &leaveRepoStub{leaves: make(map[string]*models.Leave)}
}

func (r *leaveRepoStub) Create(ctx context.Context, leave *models.Leave) error {
	if leave.ID == "" {
		r.seq++
		leave.ID = fmt.Sprintf("leave-%d", r.seq)
	}
	stored := *leave
	r.leaves[leave.ID] = &stored
	return nil
}

func (r *leaveRepoStub) GetByID(ctx context.Context, id, institutionID string) (*models.Leave, error) {
	leave, ok := r.leaves[id]
	if !ok || leave.InstitutionID != institutionID {
		return nil, sql.ErrNoRows
	}
	copy := *leave
	return &copy, nil
}

func (r *leaveRepoStub) List(ctx context.Context, filter models.LeaveFilter) ([]models.Leave, error) {
	r.filter = filter
	result := make([]models.Leave, 0, len(r.leaves))
	for _, leave := range r.leaves {
		if leave.InstitutionID != filter.InstitutionID {
			continue
		}
		if filter.StudentID != "" && leave.StudentID != filter.StudentID {
			continue
		}
		result = append(result, *leave)
	}
	return result, nil
}

func (r *leaveRepoStub) UpdateStatus(ctx context.Context, params repository.UpdateLeaveStatusParams) error {
	leave, ok := r.leaves[params.ID]
	if !ok || leave.InstitutionID != params.InstitutionID || leave.Status != params.ExpectedStatus {
		return sql.ErrNoRows
	}
	leave.Status = params.Status
	leave.ParentApprovalStatus = params.ParentApprovalStatus
	leave.ParentApprovedBy = params.ParentApprovedBy
	leave.ParentApprovedAt = params.ParentApprovedAt
	leave.ParentRejectionReason = params.ParentRejectionReason
	leave.ApprovedBy = params.ApprovedBy
	leave.ApprovedAt = params.ApprovedAt
	leave.RejectionReason = params.RejectionReason
	leave.StatusHistory = params.StatusHistory
	return nil
}

type studentDirStub struct {
	byUser map[string]*models.Student
	byID   map[string]*models.Student
}

func newStudentDirStub(students ...*models.Student) *studentDirStub {
	stub := &studentDirStub{byUser: make(map[string]*models.Student), byID: make(map[string]*models.Student)}
	for _, s := range students {
		stub.byUser[s.UserID] = s
		stub.byID[s.ID] = s
	}
	return stub
}

func (s *studentDirStub) FindByUserID(ctx context.Context, userID, institutionID string) (*models.Student, error) {
	student, ok := s.byUser[userID]
	if !ok || student.InstitutionID != institutionID {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func (s *studentDirStub) FindByID(ctx context.Context, id, institutionID string) (*models.Student, error) {
	student, ok := s.byID[id]
	if !ok || student.InstitutionID != institutionID {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

type guardianDirStub struct {
	byUser map[string]*models.Guardian
}

func newGuardianDirStub(guardians ...*models.Guardian) *guardianDirStub {
	stub := &guardianDirStub{byUser: make(map[string]*models.Guardian)}
	for _, g := range guardians {
		stub.byUser[g.UserID] = g
	}
	return stub
}

func (g *guardianDirStub) FindByUserID(ctx context.Context, userID, institutionID string) (*models.Guardian, error) {
	guardian, ok := g.byUser[userID]
	if !ok || guardian.InstitutionID != institutionID {
		return nil, sql.ErrNoRows
	}
	return guardian, nil
}

type auditTrailStub struct {
	logs []*models.AuditLog
}

func (a *auditTrailStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type notifierStub struct {
	leaves []*models.Leave
}

func (n *notifierStub) LeaveTransition(leave *models.Leave) {
	n.leaves = append(n.leaves, leave)
}

func testStudent() *models.Student {
	return &models.Student{
		ID:            "student-1",
		InstitutionID: "inst-1",
		UserID:        "user-student-1",
		NIS:           "2026001",
		FullName:      "Aisyah Putri",
		Room:          "B-12",
		Active:        true,
	}
}

func testGuardian() *models.Guardian {
	return &models.Guardian{
		ID:            "guardian-1",
		InstitutionID: "inst-1",
		UserID:        "user-parent-1",
		StudentID:     "student-1",
		FullName:      "Budi Putra",
		Email:         "budi@example.com",
	}
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-student-1", InstitutionID: "inst-1", Role: models.RoleStudent}
}

func parentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-parent-1", InstitutionID: "inst-1", Role: models.RoleParent}
}

func wardenClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-warden-1", InstitutionID: "inst-1", Role: models.RoleWarden}
}

func seedLeave(repo *leaveRepoStub, status models.LeaveStatus) *models.Leave {
	leave := &models.Leave{
		ID:                   "leave-1",
		InstitutionID:        "inst-1",
		StudentID:            "student-1",
		Reason:               "family visit",
		Type:                 "HOME",
		OutDate:              time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC),
		InDate:               time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		Status:               status,
		ParentApprovalStatus: models.ParentApprovalPending,
		StatusHistory: models.LeaveStatusHistory{{
			Status:    models.LeaveStatusPendingParent,
			Role:      models.ActorStudent,
			UpdatedBy: "student-1",
			Timestamp: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		}},
		CreatedAt: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
	}
	stored := *leave
	repo.leaves[leave.ID] = &stored
	return leave
}

func newTestLeaveService(repo *leaveRepoStub, opts ...LeaveServiceOption) (*LeaveService, *auditTrailStub) {
	audit := &auditTrailStub{}
	svc := NewLeaveService(repo, newStudentDirStub(testStudent()), newGuardianDirStub(testGuardian()), audit, nil, opts...)
	return svc, audit
}

func TestLeaveServiceCreate(t *testing.T) {
	repo := newLeaveRepoStub()
	notifier := &notifierStub{}
	svc, audit := newTestLeaveService(repo, WithLeaveNotifier(notifier))

	view, err := svc.Create(context.Background(), dto.CreateLeaveRequest{
		Reason:  "  family visit  ",
		Type:    "HOME",
		OutDate: "2026-09-05",
		InDate:  "2026-09-07",
		OutTime: "08:30",
	}, studentClaims())
	require.NoError(t, err)
	require.Equal(t, models.LeaveStatusPendingParent, view.Status)
	require.Equal(t, "family visit", view.Reason)
	require.Len(t, view.StatusHistory, 1)
	require.Equal(t, models.ActorStudent, view.StatusHistory[0].Role)
	require.Len(t, audit.logs, 1)
	require.Len(t, notifier.leaves, 1)

	stored := repo.leaves[view.ID]
	require.Equal(t, "student-1", stored.StudentID)
	require.Equal(t, models.ParentApprovalPending, stored.ParentApprovalStatus)
}

func TestLeaveServiceCreateRejectsInvertedDates(t *testing.T) {
	svc, _ := newTestLeaveService(newLeaveRepoStub())

	for _, tc := range []struct{ out, in string }{
		{"2026-09-07", "2026-09-05"},
		{"2026-09-05", "2026-09-05"},
	} {
		_, err := svc.Create(context.Background(), dto.CreateLeaveRequest{
			Reason: "trip", Type: "HOME", OutDate: tc.out, InDate: tc.in,
		}, studentClaims())
		require.Error(t, err)
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestLeaveServiceCreateRequiresStudentRole(t *testing.T) {
	svc, _ := newTestLeaveService(newLeaveRepoStub())

	_, err := svc.Create(context.Background(), dto.CreateLeaveRequest{
		Reason: "trip", Type: "HOME", OutDate: "2026-09-05", InDate: "2026-09-07",
	}, wardenClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLeaveServiceParentApprove(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	svc, audit := newTestLeaveService(repo)

	view, err := svc.DecideAsParent(context.Background(), "leave-1", dto.LeaveDecisionRequest{
		Decision: models.ParentApprovalApproved,
	}, parentClaims())
	require.NoError(t, err)
	require.Equal(t, models.LeaveStatusApprovedByParent, view.Status)
	require.Equal(t, models.ParentApprovalApproved, view.ParentApprovalStatus)
	require.NotNil(t, view.ParentApprovedAt)
	require.Len(t, view.StatusHistory, 2)
	require.Len(t, audit.logs, 1)

	stored := repo.leaves["leave-1"]
	require.Equal(t, models.LeaveStatusApprovedByParent, stored.Status)
	require.Equal(t, "guardian-1", *stored.ParentApprovedBy)
}

func TestLeaveServiceParentRejectRecordsReason(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	svc, _ := newTestLeaveService(repo)

	view, err := svc.DecideAsParent(context.Background(), "leave-1", dto.LeaveDecisionRequest{
		Decision: models.ParentApprovalRejected,
		Reason:   "exam week",
	}, parentClaims())
	require.NoError(t, err)
	require.Equal(t, models.LeaveStatusRejectedByParent, view.Status)
	require.Equal(t, "exam week", *view.ParentRejectionReason)
	require.Equal(t, "exam week", view.StatusHistory[1].Reason)
}

func TestLeaveServiceParentDecisionUnlinkedGuardian(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	audit := &auditTrailStub{}
	other := &models.Guardian{ID: "guardian-2", InstitutionID: "inst-1", UserID: "user-parent-2", StudentID: "student-9"}
	svc := NewLeaveService(repo, newStudentDirStub(testStudent()), newGuardianDirStub(other), audit, nil)

	_, err := svc.DecideAsParent(context.Background(), "leave-1", dto.LeaveDecisionRequest{
		Decision: models.ParentApprovalApproved,
	}, &models.JWTClaims{UserID: "user-parent-2", InstitutionID: "inst-1", Role: models.RoleParent})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	require.Equal(t, models.LeaveStatusPendingParent, repo.leaves["leave-1"].Status)
}

func TestLeaveServiceParentDecisionFromTerminalState(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusCancelled)
	svc, _ := newTestLeaveService(repo)

	_, err := svc.DecideAsParent(context.Background(), "leave-1", dto.LeaveDecisionRequest{
		Decision: models.ParentApprovalApproved,
	}, parentClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestLeaveServiceWardenApprove(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusApprovedByParent)
	svc, _ := newTestLeaveService(repo)

	view, err := svc.DecideAsWarden(context.Background(), "leave-1", dto.LeaveDecisionRequest{
		Decision: models.ParentApprovalApproved,
	}, wardenClaims())
	require.NoError(t, err)
	require.Equal(t, models.LeaveStatusApproved, view.Status)
	require.Equal(t, "user-warden-1", *view.ApprovedBy)
	require.NotNil(t, view.ApprovedAt)
	// Supervisor projection carries the roster identity.
	require.Equal(t, "Aisyah Putri", view.StudentName)
	require.Equal(t, "B-12", view.StudentRoom)
}

func TestLeaveServiceWardenCannotSkipParent(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	svc, _ := newTestLeaveService(repo)

	_, err := svc.DecideAsWarden(context.Background(), "leave-1", dto.LeaveDecisionRequest{
		Decision: models.ParentApprovalApproved,
	}, wardenClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	require.Contains(t, appErr.Message, "parent-approved")
	require.Equal(t, models.LeaveStatusPendingParent, repo.leaves["leave-1"].Status)
}

func TestLeaveServiceCancelPending(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	svc, _ := newTestLeaveService(repo)

	view, err := svc.Cancel(context.Background(), "leave-1", studentClaims())
	require.NoError(t, err)
	require.Equal(t, models.LeaveStatusCancelled, view.Status)
	require.Len(t, view.StatusHistory, 2)
}

func TestLeaveServiceCancelLegacyPending(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusLegacyPending)
	svc, _ := newTestLeaveService(repo)

	view, err := svc.Cancel(context.Background(), "leave-1", studentClaims())
	require.NoError(t, err)
	require.Equal(t, models.LeaveStatusCancelled, view.Status)
}

func TestLeaveServiceCancelAfterParentDecision(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusApprovedByParent)
	svc, _ := newTestLeaveService(repo)

	_, err := svc.Cancel(context.Background(), "leave-1", studentClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	require.Contains(t, appErr.Message, "pending")
	require.Equal(t, models.LeaveStatusApprovedByParent, repo.leaves["leave-1"].Status)
	require.Len(t, repo.leaves["leave-1"].StatusHistory, 1)
}

func TestLeaveServiceCancelByNonOwner(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	audit := &auditTrailStub{}
	other := &models.Student{ID: "student-2", InstitutionID: "inst-1", UserID: "user-student-2"}
	svc := NewLeaveService(repo, newStudentDirStub(testStudent(), other), newGuardianDirStub(testGuardian()), audit, nil)

	_, err := svc.Cancel(context.Background(), "leave-1", &models.JWTClaims{
		UserID: "user-student-2", InstitutionID: "inst-1", Role: models.RoleStudent,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLeaveServiceCommitConflictSurfacesCurrentStatus(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	svc, _ := newTestLeaveService(repo)

	leave, err := svc.loadLeave(context.Background(), "leave-1", "inst-1")
	require.NoError(t, err)

	// Another writer lands between read and commit.
	repo.leaves["leave-1"].Status = models.LeaveStatusCancelled

	updated := *leave
	updated.Status = models.LeaveStatusApprovedByParent
	err = svc.commit(context.Background(), leave, &updated)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	require.Contains(t, appErr.Message, string(models.LeaveStatusCancelled))
	require.Equal(t, models.LeaveStatusCancelled, repo.leaves["leave-1"].Status)
}

func TestLeaveServiceGetCrossInstitution(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	svc, _ := newTestLeaveService(repo)

	_, err := svc.Get(context.Background(), "leave-1", &models.JWTClaims{
		UserID: "user-warden-9", InstitutionID: "inst-2", Role: models.RoleWarden,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLeaveServiceListScopesByRole(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	svc, _ := newTestLeaveService(repo)

	_, err := svc.List(context.Background(), dto.LeaveQuery{}, studentClaims())
	require.NoError(t, err)
	require.Equal(t, "student-1", repo.filter.StudentID)

	_, err = svc.List(context.Background(), dto.LeaveQuery{}, parentClaims())
	require.NoError(t, err)
	require.Equal(t, "student-1", repo.filter.StudentID)

	_, err = svc.List(context.Background(), dto.LeaveQuery{StudentID: "student-7"}, wardenClaims())
	require.NoError(t, err)
	require.Equal(t, "student-7", repo.filter.StudentID)
	require.Equal(t, "inst-1", repo.filter.InstitutionID)
}

func TestLeaveServiceProjectionHidesReviewerIdentity(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusPendingParent)
	svc, _ := newTestLeaveService(repo)

	studentView, err := svc.Get(context.Background(), "leave-1", studentClaims())
	require.NoError(t, err)
	require.Empty(t, studentView.StudentID)
	require.Empty(t, studentView.StatusHistory[0].UpdatedBy)

	wardenView, err := svc.Get(context.Background(), "leave-1", wardenClaims())
	require.NoError(t, err)
	require.Equal(t, "student-1", wardenView.StudentID)
	require.Equal(t, "student-1", wardenView.StatusHistory[0].UpdatedBy)
	require.Equal(t, "2026001", wardenView.StudentNIS)
}

func TestLeaveServiceGatePass(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusApproved)
	rendered := [][]byte{}
	renderer := passRendererFunc(func(doc export.Document) ([]byte, error) {
		rendered = append(rendered, []byte(doc.Title))
		return []byte("%PDF-stub"), nil
	})
	svc, _ := newTestLeaveService(repo, WithPassRenderer(renderer))

	pass, err := svc.GatePass(context.Background(), "leave-1", studentClaims())
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-stub"), pass)
	require.Len(t, rendered, 1)
}

func TestLeaveServiceGatePassRequiresApproval(t *testing.T) {
	repo := newLeaveRepoStub()
	seedLeave(repo, models.LeaveStatusApprovedByParent)
	renderer := passRendererFunc(func(doc export.Document) ([]byte, error) {
		return []byte("%PDF-stub"), nil
	})
	svc, _ := newTestLeaveService(repo, WithPassRenderer(renderer))

	_, err := svc.GatePass(context.Background(), "leave-1", studentClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}
