package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-asrama-api/internal/models"
)

func newLeaveRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func leaveRows(leave *models.Leave) *sqlmock.Rows {
	history, _ := leave.StatusHistory.Value()
	return sqlmock.NewRows([]string{
		"id", "institution_id", "student_id", "reason", "type", "out_date", "in_date", "out_time", "in_time",
		"status", "parent_approval_status", "parent_approved_by", "parent_approved_at", "parent_rejection_reason",
		"approved_by", "approved_at", "rejection_reason", "status_history", "created_at",
	}).AddRow(
		leave.ID, leave.InstitutionID, leave.StudentID, leave.Reason, leave.Type, leave.OutDate, leave.InDate,
		leave.OutTime, leave.InTime, leave.Status, leave.ParentApprovalStatus, leave.ParentApprovedBy,
		leave.ParentApprovedAt, leave.ParentRejectionReason, leave.ApprovedBy, leave.ApprovedAt,
		leave.RejectionReason, history, leave.CreatedAt,
	)
}

func sampleLeave() *models.Leave {
	return &models.Leave{
		ID:                   "leave-1",
		InstitutionID:        "inst-1",
		StudentID:            "student-1",
		Reason:               "family visit",
		Type:                 "HOME",
		OutDate:              time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC),
		InDate:               time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		Status:               models.LeaveStatusPendingParent,
		ParentApprovalStatus: models.ParentApprovalPending,
		StatusHistory: models.LeaveStatusHistory{{
			Status: models.LeaveStatusPendingParent,
			Role:   models.ActorStudent,
		}},
		CreatedAt: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestLeaveRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO leaves")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	leave := sampleLeave()
	leave.ID = ""
	require.NoError(t, repo.Create(context.Background(), leave))
	require.NotEmpty(t, leave.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRepositoryGetByIDScopesInstitution(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRepository(db)
	leave := sampleLeave()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, institution_id, student_id")).
		WithArgs("leave-1", "inst-1").
		WillReturnRows(leaveRows(leave))

	found, err := repo.GetByID(context.Background(), "leave-1", "inst-1")
	require.NoError(t, err)
	require.Equal(t, leave.ID, found.ID)
	require.Len(t, found.StatusHistory, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, institution_id, student_id")).
		WithArgs("leave-1", "inst-2").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), "leave-1", "inst-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRepositoryListBindsFilters(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, institution_id, student_id")).
		WithArgs("inst-1", "student-1", string(models.LeaveStatusPendingParent), string(models.LeaveStatusApprovedByParent)).
		WillReturnRows(leaveRows(sampleLeave()))

	leaves, err := repo.List(context.Background(), models.LeaveFilter{
		InstitutionID: "inst-1",
		StudentID:     "student-1",
		Status:        []models.LeaveStatus{models.LeaveStatusPendingParent, models.LeaveStatusApprovedByParent},
	})
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRepositoryUpdateStatusConditionalOnExpected(t *testing.T) {
	db, mock, cleanup := newLeaveRepoMock(t)
	defer cleanup()

	repo := NewLeaveRepository(db)
	params := UpdateLeaveStatusParams{
		ID:                   "leave-1",
		InstitutionID:        "inst-1",
		ExpectedStatus:       models.LeaveStatusPendingParent,
		Status:               models.LeaveStatusApprovedByParent,
		ParentApprovalStatus: models.ParentApprovalApproved,
		StatusHistory:        sampleLeave().StatusHistory,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE leaves SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), params))

	// A concurrent writer already moved the row: zero rows matched.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE leaves SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), params)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
