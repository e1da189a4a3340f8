package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-asrama-api/internal/dto"
	"github.com/noah-isme/sma-asrama-api/internal/middleware"
	"github.com/noah-isme/sma-asrama-api/internal/models"
	appErrors "github.com/noah-isme/sma-asrama-api/pkg/errors"
)

type leaveServiceMock struct {
	view      *dto.LeaveView
	listResp  []dto.LeaveView
	err       error
	pass      []byte
	lastQuery dto.LeaveQuery
}

func (m *leaveServiceMock) Create(ctx context.Context, req dto.CreateLeaveRequest, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *leaveServiceMock) List(ctx context.Context, query dto.LeaveQuery, actor *models.JWTClaims) ([]dto.LeaveView, error) {
	m.lastQuery = query
	return m.listResp, m.err
}

func (m *leaveServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *leaveServiceMock) DecideAsParent(ctx context.Context, id string, req dto.LeaveDecisionRequest, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *leaveServiceMock) DecideAsWarden(ctx context.Context, id string, req dto.LeaveDecisionRequest, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *leaveServiceMock) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*dto.LeaveView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *leaveServiceMock) GatePass(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.pass, nil
}

func leaveTestContext(t *testing.T, method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func TestLeaveHandlerCreate(t *testing.T) {
	mock := &leaveServiceMock{view: &dto.LeaveView{ID: "leave-1", Status: models.LeaveStatusPendingParent}}
	handler := NewLeaveHandler(mock)
	body, _ := json.Marshal(dto.CreateLeaveRequest{
		Reason: "family visit", Type: "HOME", OutDate: "2026-09-05", InDate: "2026-09-07",
	})
	c, w := leaveTestContext(t, http.MethodPost, "/leaves", body,
		&models.JWTClaims{UserID: "user-1", InstitutionID: "inst-1", Role: models.RoleStudent})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestLeaveHandlerCreateInvalidBody(t *testing.T) {
	handler := NewLeaveHandler(&leaveServiceMock{})
	c, w := leaveTestContext(t, http.MethodPost, "/leaves", []byte(`invalid`),
		&models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaveHandlerCreateMissingClaims(t *testing.T) {
	handler := NewLeaveHandler(&leaveServiceMock{})
	body, _ := json.Marshal(dto.CreateLeaveRequest{Reason: "x", Type: "HOME"})
	c, w := leaveTestContext(t, http.MethodPost, "/leaves", body, nil)

	handler.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLeaveHandlerListParsesStatusCSV(t *testing.T) {
	mock := &leaveServiceMock{listResp: []dto.LeaveView{}}
	handler := NewLeaveHandler(mock)
	c, w := leaveTestContext(t, http.MethodGet, "/leaves?status=pending_parent,%20approved&limit=5", nil,
		&models.JWTClaims{UserID: "user-1", Role: models.RoleWarden})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.LeaveStatus{models.LeaveStatusPendingParent, models.LeaveStatusApproved}, mock.lastQuery.Status)
	require.Equal(t, 5, mock.lastQuery.Limit)
}

func TestLeaveHandlerDecisionConflictStatus(t *testing.T) {
	mock := &leaveServiceMock{err: appErrors.Clone(appErrors.ErrInvalidState, "leave is not parent-approved")}
	handler := NewLeaveHandler(mock)
	body, _ := json.Marshal(dto.LeaveDecisionRequest{Decision: models.ParentApprovalApproved})
	c, w := leaveTestContext(t, http.MethodPost, "/leaves/leave-1/decision", body,
		&models.JWTClaims{UserID: "user-1", Role: models.RoleWarden})
	c.Params = gin.Params{{Key: "id", Value: "leave-1"}}

	handler.WardenDecision(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestLeaveHandlerPassDownload(t *testing.T) {
	mock := &leaveServiceMock{pass: []byte("%PDF-stub")}
	handler := NewLeaveHandler(mock)
	c, w := leaveTestContext(t, http.MethodGet, "/leaves/leave-1/pass", nil,
		&models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "leave-1"}}

	handler.Pass(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "gate-pass.pdf")
	require.Equal(t, "%PDF-stub", w.Body.String())
}
