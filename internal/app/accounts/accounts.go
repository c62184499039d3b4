// internal/app/accounts/accounts.go
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	userstore "github.com/dalemusser/bandhub/internal/app/store/users"
	"github.com/dalemusser/bandhub/internal/app/system/auditlog"
	"github.com/dalemusser/bandhub/internal/app/system/authutil"
	"github.com/dalemusser/bandhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"go.uber.org/zap"
)

// Registration is the input to Register.
type Registration struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Service registers and authenticates users.
type Service struct {
	users *userstore.Store
	audit *auditlog.Logger
	log   *zap.Logger
}

func New(users *userstore.Store, audit *auditlog.Logger, logger *zap.Logger) *Service {
	return &Service{users: users, audit: audit, log: logger}
}

// Register creates a user with a bcrypt password hash. A taken email
// is a validation failure.
func (s *Service) Register(ctx context.Context, reg Registration) (models.User, error) {
	if err := authutil.ValidateEmail(reg.Email); err != nil {
		return models.User{}, errs.Validation("%s", err.Error())
	}
	if strings.TrimSpace(reg.Name) == "" {
		return models.User{}, errs.Validation("name is required")
	}
	if err := authutil.ValidatePassword(reg.Password); err != nil {
		return models.User{}, errs.Validation("%s", err.Error())
	}
	hash, err := authutil.HashPassword(reg.Password)
	if err != nil {
		return models.User{}, err
	}

	u, err := s.users.Create(ctx, models.User{
		Email:        reg.Email,
		Name:         reg.Name,
		Phone:        reg.Phone,
		PasswordHash: hash,
	})
	if errors.Is(err, userstore.ErrDuplicateEmail) {
		return models.User{}, errs.Validation("%s", err.Error())
	}
	if err != nil {
		return models.User{}, fmt.Errorf("register: %w", err)
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	s.audit.Registered(ctx, u.ID, u.Email)
	return u, nil
}

// Authenticate checks an email/password pair. Unknown emails and wrong
// passwords both return ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		s.audit.LoginFailedUserNotFound(ctx, userstore.NormalizeEmail(email))
		return models.User{}, fmt.Errorf("invalid email or password: %w", errs.ErrUnauthenticated)
	}
	if err != nil {
		return models.User{}, err
	}
	if u.PasswordHash == "" || !authutil.CheckPassword(password, u.PasswordHash) {
		s.audit.LoginFailedWrongPassword(ctx, u.ID, u.Email)
		return models.User{}, fmt.Errorf("invalid email or password: %w", errs.ErrUnauthenticated)
	}
	s.audit.LoginSuccess(ctx, u.ID, u.Email)
	return u, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateProfile changes the caller's name and phone.
func (s *Service) UpdateProfile(ctx context.Context, id, name, phone string) (models.User, error) {
	return s.users.UpdateProfile(ctx, id, htmlsanitize.PlainText(name), htmlsanitize.PlainText(phone))
}
