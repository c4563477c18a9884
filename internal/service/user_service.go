package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tasktrack-api/internal/models"
	appErrors "github.com/noah-isme/tasktrack-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, page, pageSize int) ([]models.User, int, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	UpdateRole(ctx context.Context, id int64, role models.UserRole) error
	Delete(ctx context.Context, id int64) error
}

type sessionRemover interface {
	DeleteByUserID(ctx context.Context, userID int64) error
}

// UpdateRoleRequest changes a user's role.
type UpdateRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=USER MANAGER ADMIN"`
}

// UserService handles user administration.
type UserService struct {
	repo      userRepository
	sessions  sessionRemover
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, sessions sessionRemover, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, sessions: sessions, audit: audit, validator: validate, logger: logger}
}

// List returns a page of users and pagination metadata.
func (s *UserService) List(ctx context.Context, page, pageSize int) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// UpdateRole changes the role of id. New access tokens pick it up on the next refresh.
func (s *UserService) UpdateRole(ctx context.Context, id int64, req UpdateRoleRequest, actorID int64, meta models.ClientMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := user.Role
	if err := s.repo.UpdateRole(ctx, id, req.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	user.Role = req.Role

	s.record(AuditEvent{
		UserID:     &actorID,
		Action:     models.AuditActionUserRole,
		Resource:   "users",
		ResourceID: strconv.FormatInt(id, 10),
		Values:     map[string]interface{}{"from": previous, "to": req.Role},
		Meta:       meta,
	})
	return user, nil
}

// Delete removes a user together with every refresh session they own.
func (s *UserService) Delete(ctx context.Context, id int64, actorID int64, meta models.ClientMeta) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.DeleteByUserID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.record(AuditEvent{
		UserID:     &actorID,
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: strconv.FormatInt(id, 10),
		Meta:       meta,
	})
	return nil
}

func (s *UserService) record(event AuditEvent) {
	if s.audit == nil {
		return
	}
	s.audit.Record(event)
}
