package service

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"timetracker/internal/model"
	"timetracker/internal/repository"
	"timetracker/internal/security"
	"timetracker/pkg/apperror"
	"timetracker/pkg/pagination"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse never carries the password hash.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
}

type UserService interface {
	CreateUser(ctx context.Context, actorID string, req CreateUserRequest) (*UserResponse, error)
	BootstrapAdmin(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	Me(ctx context.Context, actorID string) (*UserResponse, error)
	ListUsers(ctx context.Context, actorID string, page, limit int) ([]UserResponse, int64, error)
	SetRole(ctx context.Context, actorID, userID string, req SetRoleRequest) (*UserResponse, error)
}

// TokenConfig signs session tokens.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

type userService struct {
	repo     repository.UserRepository
	actors   actorResolver
	tokens   TokenConfig
	security security.Logger
	roles    RoleListener
	logger   *slog.Logger
	now      func() time.Time
}

// NewUserService returns a new instance of UserService
// roles may be nil.
func NewUserService(repo repository.UserRepository, tokens TokenConfig, sec security.Logger, roles RoleListener, logger *slog.Logger) UserService {
	if tokens.TTL <= 0 {
		tokens.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &userService{
		repo:     repo,
		actors:   actorResolver{users: repo},
		tokens:   tokens,
		security: sec,
		roles:    roles,
		logger:   logger,
		now:      time.Now,
	}
}

func mapToResponse(user *model.User, role string) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

func (s *userService) CreateUser(ctx context.Context, actorID string, req CreateUserRequest) (*UserResponse, error) {
	if _, err := s.admin(ctx, actorID, "create user"); err != nil {
		return nil, err
	}
	return s.create(ctx, req)
}

// BootstrapAdmin creates the first account as an admin. It refuses once any
// user exists.
func (s *userService) BootstrapAdmin(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	_, total, err := s.repo.List(ctx, pagination.New(1, 1))
	if err != nil {
		return nil, s.fail(err)
	}
	if total > 0 {
		return nil, apperror.InvalidState("users already exist")
	}
	req.Role = model.RoleAdmin
	return s.create(ctx, req)
}

func (s *userService) create(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	if !model.IsValidRole(role) {
		return nil, apperror.Validation("role must be user or admin")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.Validation("invalid email format")
	}
	fullName, err := cleanName(req.FullName, "full name")
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("email already exists")
	} else if !repository.IsNotFound(err) {
		return nil, s.fail(err)
	}

	if len(req.Password) < 8 || len(req.Password) > 72 {
		return nil, apperror.Validation("password must be 8 to 72 bytes long")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindInternal, "failed to hash password")
	}

	user := &model.User{
		Email:    email,
		FullName: fullName,
		Password: string(hashed),
		Role:     role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, s.fail(err)
	}
	if err := s.repo.SetRole(ctx, user.ID, role); err != nil {
		return nil, s.fail(err)
	}

	return mapToResponse(user, role), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !repository.IsNotFound(err) {
			return nil, s.fail(err)
		}
		s.authFailure(email, "unknown email")
		return nil, apperror.Validation("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		s.authFailure(email, "wrong password")
		return nil, apperror.Validation("invalid email or password")
	}

	role, err := s.repo.GetRole(ctx, user.ID)
	if err != nil {
		return nil, s.fail(err)
	}

	expiresAt := s.now().Add(s.tokens.TTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": role,
		"exp":  expiresAt.Unix(),
		"iat":  s.now().Unix(),
	})
	signed, err := token.SignedString(s.tokens.Secret)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindInternal, "failed to generate token")
	}

	return &TokenResponse{
		Token:     signed,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      *mapToResponse(user, role),
	}, nil
}

func (s *userService) Me(ctx context.Context, actorID string) (*UserResponse, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, s.fail(err)
	}
	return mapToResponse(user, actor.Role), nil
}

func (s *userService) ListUsers(ctx context.Context, actorID string, page, limit int) ([]UserResponse, int64, error) {
	if _, err := s.admin(ctx, actorID, "list users"); err != nil {
		return nil, 0, err
	}
	users, total, err := s.repo.List(ctx, pagination.New(page, limit))
	if err != nil {
		return nil, 0, s.fail(err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		role, err := s.repo.GetRole(ctx, users[i].ID)
		if err != nil {
			return nil, 0, s.fail(err)
		}
		responses = append(responses, *mapToResponse(&users[i], role))
	}
	return responses, total, nil
}

// SetRole grants a role. Admins cannot demote themselves, so there is always
// at least the acting admin left.
func (s *userService) SetRole(ctx context.Context, actorID, userID string, req SetRoleRequest) (*UserResponse, error) {
	actor, err := s.admin(ctx, actorID, "set role")
	if err != nil {
		return nil, err
	}
	if !model.IsValidRole(req.Role) {
		return nil, apperror.Validation("role must be user or admin")
	}
	id, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	if id == actor.ID && req.Role != model.RoleAdmin {
		return nil, apperror.InvalidState("admins cannot remove their own admin role")
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.repo.SetRole(ctx, id, req.Role); err != nil {
		return nil, s.fail(err)
	}
	if s.roles != nil {
		s.roles.RoleChanged(id.String(), req.Role)
	}
	return mapToResponse(user, req.Role), nil
}

func (s *userService) admin(ctx context.Context, actorID, action string) (Actor, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsAdmin() {
		s.security.LogEvent(security.Event{
			Type:    security.EventPermissionDenied,
			UserID:  actor.ID.String(),
			Details: map[string]any{"action": action},
		})
		return Actor{}, apperror.PermissionDenied(action + " not allowed")
	}
	return actor, nil
}

func (s *userService) authFailure(email, reason string) {
	s.security.LogEvent(security.Event{
		Type:    security.EventAuthFailure,
		Details: map[string]any{"email": email, "reason": reason},
	})
}

func (s *userService) fail(err error) error {
	err = storeErr(err, "user")
	logUpstream(s.logger, err, "user store failure")
	return err
}
