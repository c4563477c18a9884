package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/internal/repository"
	"github.com/noah-isme/tasktrack-api/internal/token"
	appErrors "github.com/noah-isme/tasktrack-api/pkg/errors"
	"github.com/noah-isme/tasktrack-api/pkg/password"
)

// Auth event names used for metrics labels.
const (
	eventRegister  = "register"
	eventLogin     = "login"
	eventRefresh   = "refresh"
	eventRenew     = "renew"
	eventLogout    = "logout"
	eventLogoutAll = "logout_all"
)

const tokenTypeBearer = "Bearer"

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type auditRecorder interface {
	Record(event AuditEvent)
}

// AuthConfig defines optional authentication behaviour.
type AuthConfig struct {
	// RotateRefreshTokens replaces the refresh secret on every refresh call.
	RotateRefreshTokens bool
}

// AuthService composes password verification, access token issuance and
// refresh sessions into the login lifecycle.
type AuthService struct {
	users     authUserRepository
	refresh   *RefreshTokenService
	codec     *token.Codec
	hasher    secretHasher
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users authUserRepository,
	refresh *RefreshTokenService,
	codec *token.Codec,
	hasher secretHasher,
	audit auditRecorder,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	config AuthConfig,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if hasher == nil {
		hasher = password.NewHasher(0)
	}
	return &AuthService{
		users:     users,
		refresh:   refresh,
		codec:     codec,
		hasher:    hasher,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Register creates an account with the default USER role.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (info *models.UserInfo, err error) {
	defer func() { s.observe(eventRegister, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrAlreadyExists, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "password too long")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Firstname:    req.Firstname,
		Lastname:     req.Lastname,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyExists, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.record(AuditEvent{
		UserID:     &user.ID,
		Action:     models.AuditActionRegister,
		Resource:   "users",
		ResourceID: strconv.FormatInt(user.ID, 10),
		Values:     map[string]interface{}{"email": user.Email, "role": user.Role},
		Meta:       req.ClientMeta,
	})
	return models.NewUserInfo(user), nil
}

// Authenticate verifies credentials and opens a new session.
func (s *AuthService) Authenticate(ctx context.Context, req models.LoginRequest) (resp *models.AuthResponse, err error) {
	defer func() { s.observe(eventLogin, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	accessToken, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}

	rawRefresh, record, err := s.refresh.Create(ctx, user.ID, req.ClientMeta)
	if err != nil {
		return nil, err
	}

	s.record(AuditEvent{
		UserID:     &user.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: record.ID,
		Values:     map[string]interface{}{"status": "success"},
		Meta:       req.ClientMeta,
	})
	return s.authResponse(accessToken, rawRefresh, user), nil
}

// Refresh issues a new access token for a live refresh session. The refresh
// secret is echoed back unchanged unless rotation is enabled.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (resp *models.AuthResponse, err error) {
	defer func() { s.observe(eventRefresh, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	record, err := s.refresh.Validate(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}

	// Reload so role changes apply to the next access token.
	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	accessToken, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}

	rawRefresh := req.RefreshToken
	sessionID := record.ID
	if s.config.RotateRefreshTokens {
		var next *models.RefreshToken
		rawRefresh, next, err = s.refresh.Rotate(ctx, record, req.ClientMeta)
		if err != nil {
			return nil, err
		}
		sessionID = next.ID
	}

	s.record(AuditEvent{
		UserID:     &user.ID,
		Action:     models.AuditActionTokenRefresh,
		Resource:   "auth",
		ResourceID: sessionID,
		Values:     map[string]interface{}{"rotated": s.config.RotateRefreshTokens},
		Meta:       req.ClientMeta,
	})
	return s.authResponse(accessToken, rawRefresh, nil), nil
}

// Renew re-issues an access token from a recently expired (or still valid)
// one without a refresh secret. Tokens expired longer than the renewal grace
// window are rejected.
func (s *AuthService) Renew(ctx context.Context, rawAccess string, meta models.ClientMeta) (resp *models.AuthResponse, err error) {
	defer func() { s.observe(eventRenew, err) }()

	claims, err := s.codec.Verify(rawAccess)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrExpired):
		if !s.codec.Renewable(claims) {
			return nil, appErrors.Clone(appErrors.ErrTokenExpired, "token expired beyond renewal window")
		}
	default:
		return nil, mapTokenError(err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Email != claims.Subject {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token subject no longer matches user")
	}

	accessToken, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}

	s.record(AuditEvent{
		UserID:   &user.ID,
		Action:   models.AuditActionTokenRenew,
		Resource: "auth",
		Meta:     meta,
	})
	return s.authResponse(accessToken, "", nil), nil
}

// Logout revokes the single session identified by the refresh secret.
func (s *AuthService) Logout(ctx context.Context, req models.LogoutRequest) (err error) {
	defer func() { s.observe(eventLogout, err) }()

	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logout payload")
	}

	record, err := s.refresh.RevokeByToken(ctx, req.RefreshToken)
	if err != nil {
		return err
	}

	s.record(AuditEvent{
		UserID:     &record.UserID,
		Action:     models.AuditActionLogout,
		Resource:   "auth",
		ResourceID: record.ID,
		Meta:       req.ClientMeta,
	})
	return nil
}

// LogoutAll revokes every session of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64, meta models.ClientMeta) (revoked int64, err error) {
	defer func() { s.observe(eventLogoutAll, err) }()

	revoked, err = s.refresh.RevokeByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.record(AuditEvent{
		UserID:   &userID,
		Action:   models.AuditActionLogoutAll,
		Resource: "auth",
		Values:   map[string]interface{}{"revoked": revoked},
		Meta:     meta,
	})
	return revoked, nil
}

// Me returns the public profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID int64) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return models.NewUserInfo(user), nil
}

// ValidateAccessToken verifies a bearer token including its expiry.
func (s *AuthService) ValidateAccessToken(raw string) (*token.Claims, error) {
	claims, err := s.codec.Verify(raw)
	if err != nil {
		return nil, mapTokenError(err)
	}
	return claims, nil
}

func (s *AuthService) issueAccess(user *models.User) (string, error) {
	signed, err := s.codec.Issue(user.Email, user.ID, user.RoleNames(), user.PermissionNames())
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	return signed, nil
}

func (s *AuthService) authResponse(accessToken, refreshToken string, user *models.User) *models.AuthResponse {
	resp := &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		IssuedAt:     s.now().UTC(),
	}
	if user != nil {
		resp.User = models.NewUserInfo(user)
	}
	return resp
}

func (s *AuthService) record(event AuditEvent) {
	if s.audit == nil {
		return
	}
	s.audit.Record(event)
}

func (s *AuthService) observe(event string, err error) {
	if err == nil {
		s.metrics.RecordAuthEvent(event, OutcomeSuccess, "")
		return
	}
	appErr := appErrors.FromError(err)
	s.metrics.RecordAuthEvent(event, OutcomeFailure, appErr.Code)
	if appErr.Status >= 500 {
		s.logger.Error("auth operation failed", zap.String("event", event), zap.Error(err))
	}
}

// mapTokenError translates codec failures into API errors. Expiry keeps its
// own code so clients know to refresh.
func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return appErrors.ErrTokenExpired
	case errors.Is(err, token.ErrBadSignature), errors.Is(err, token.ErrUnsupportedAlgorithm):
		return appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	default:
		return appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "malformed token")
	}
}
