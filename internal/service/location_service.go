package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-asrama-api/internal/dto"
	"github.com/noah-isme/sma-asrama-api/internal/models"
	appErrors "github.com/noah-isme/sma-asrama-api/pkg/errors"
)

type locationStore interface {
	Create(ctx context.Context, ping *models.LocationPing) error
	ListByStudent(ctx context.Context, studentID, institutionID string, limit int) ([]models.LocationPing, error)
}

type locationLeaveLookup interface {
	GetByID(ctx context.Context, id, institutionID string) (*models.Leave, error)
}

// LocationService records geolocation pings during approved leaves and keeps
// the last known position in Redis for warden dashboards.
type LocationService struct {
	repo     locationStore
	leaves   locationLeaveLookup
	students studentDirectory
	redis    *redis.Client
	metrics  *MetricsService
	logger   *zap.Logger
	ttl      time.Duration
}

// NewLocationService constructs the service. metrics may be nil.
func NewLocationService(repo locationStore, leaves locationLeaveLookup, students studentDirectory, redisClient *redis.Client, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &LocationService{
		repo:     repo,
		leaves:   leaves,
		students: students,
		redis:    redisClient,
		metrics:  metrics,
		logger:   logger,
		ttl:      ttl,
	}
}

func lastKnownKey(institutionID, studentID string) string {
	return fmt.Sprintf("location:last:%s:%s", institutionID, studentID)
}

// Ping stores a geolocation sample for the caller's active approved leave.
func (s *LocationService) Ping(ctx context.Context, req dto.LocationPingRequest, actor *models.JWTClaims) (*models.LocationPing, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students submit location pings")
	}
	if req.LeaveID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "leaveId is required")
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coordinates out of range")
	}

	student, err := s.students.FindByUserID(ctx, actor.UserID, actor.InstitutionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no student record for this account")
	}
	leave, err := s.leaves.GetByID(ctx, req.LeaveID, actor.InstitutionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave not found")
	}
	if leave.StudentID != student.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "leave belongs to another student")
	}
	if leave.Status != models.LeaveStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "location tracking is only active for approved leaves")
	}

	ping := &models.LocationPing{
		InstitutionID: actor.InstitutionID,
		StudentID:     student.ID,
		LeaveID:       leave.ID,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Accuracy:      req.Accuracy,
		RecordedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, ping); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store location ping")
	}
	s.cacheLastKnown(ctx, ping)
	return ping, nil
}

// LastKnown returns the most recent position of a student. The Redis entry
// is consulted first; a miss falls back to the ping history table.
func (s *LocationService) LastKnown(ctx context.Context, studentID string, actor *models.JWTClaims) (*dto.LastKnownLocation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.redis != nil {
		start := time.Now()
		raw, err := s.redis.Get(ctx, lastKnownKey(actor.InstitutionID, studentID)).Result()
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		if err == nil {
			var loc dto.LastKnownLocation
			if err := json.Unmarshal([]byte(raw), &loc); err == nil {
				return &loc, nil
			}
			s.logger.Warn("corrupt last-known location entry", zap.String("student_id", studentID))
		} else if err != redis.Nil {
			s.logger.Warn("redis lookup failed", zap.Error(err))
		}
	}

	pings, err := s.repo.ListByStudent(ctx, studentID, actor.InstitutionID, 1)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location history")
	}
	if len(pings) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no location recorded for this student")
	}
	ping := pings[0]
	return &dto.LastKnownLocation{
		StudentID:  ping.StudentID,
		LeaveID:    ping.LeaveID,
		Latitude:   ping.Latitude,
		Longitude:  ping.Longitude,
		Accuracy:   ping.Accuracy,
		RecordedAt: ping.RecordedAt,
	}, nil
}

// History returns recent pings for a student, newest first.
func (s *LocationService) History(ctx context.Context, studentID string, limit int, actor *models.JWTClaims) ([]models.LocationPing, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	pings, err := s.repo.ListByStudent(ctx, studentID, actor.InstitutionID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location history")
	}
	return pings, nil
}

func (s *LocationService) cacheLastKnown(ctx context.Context, ping *models.LocationPing) {
	if s.redis == nil {
		return
	}
	loc := dto.LastKnownLocation{
		StudentID:  ping.StudentID,
		LeaveID:    ping.LeaveID,
		Latitude:   ping.Latitude,
		Longitude:  ping.Longitude,
		Accuracy:   ping.Accuracy,
		RecordedAt: ping.RecordedAt,
	}
	raw, err := json.Marshal(loc)
	if err != nil {
		s.logger.Warn("failed to encode last-known location", zap.Error(err))
		return
	}
	key := lastKnownKey(ping.InstitutionID, ping.StudentID)
	start := time.Now()
	if err := s.redis.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to cache last-known location", zap.String("key", key), zap.Error(err))
		return
	}
	s.metrics.ObserveCacheWrite(time.Since(start))
}
