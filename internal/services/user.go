package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/mail"
	"time"

	"github.com/bookhaven/apiserver/internal/auth"
	"github.com/bookhaven/apiserver/internal/store"
	"github.com/bookhaven/apiserver/types"
	"github.com/google/uuid"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 20
	minPasswordLen = 6
	maxPasswordLen = 100

	defaultRole = "user"

	// resetWindow bounds how long a requested reset token stays valid.
	resetWindow = 30 * time.Minute

	accountsChannel = "accounts"
)

// UserRepository defines persistence operations for accounts. All
// lookups are scoped to active accounts.
type UserRepository interface {
	Insert(ctx context.Context, user types.User) (types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByResetToken(ctx context.Context, token string) (types.User, error)
	List(ctx context.Context, filter store.UserFilter, offset, limit int) ([]types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// EventPublisher sends account events to a broker channel. A nil
// publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// CreateUserInput is the payload for Create and Register.
type CreateUserInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// UserPatch carries partial updates; nil fields are left unchanged.
type UserPatch struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Message string         `json:"message"`
	Token   string         `json:"access_token"`
	User    types.SafeUser `json:"user"`
}

// ResetRequestResult acknowledges a password-reset request. The token
// is echoed directly; a deployment with a mail collaborator should
// deliver it out-of-band instead and drop the field.
type ResetRequestResult struct {
	Message    string `json:"message"`
	ResetToken string `json:"reset_token"`
}

// UserService orchestrates the account lifecycle: creation,
// uniqueness, login, soft delete, and the password-reset handshake.
// It holds no mutable state between calls.
type UserService struct {
	repo   UserRepository
	hasher *auth.PasswordHasher
	issuer *auth.TokenIssuer
	events EventPublisher
	logger *slog.Logger

	// now and newID are injected so reset-window and id behavior are
	// deterministic under test.
	now   func() time.Time
	newID func() string
}

func NewUserService(repo UserRepository, hasher *auth.PasswordHasher, issuer *auth.TokenIssuer, events EventPublisher, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		issuer: issuer,
		events: events,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create validates input, enforces username uniqueness among active
// accounts, hashes the password, and persists a new account. The
// store's partial unique index is the authority for the uniqueness
// race; the pre-check only gives a friendlier early failure.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (types.SafeUser, error) {
	if err := validateUsername(input.Username); err != nil {
		return types.SafeUser{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return types.SafeUser{}, err
	}
	if err := validateEmail(input.Email); err != nil {
		return types.SafeUser{}, err
	}

	if _, err := s.repo.GetByUsername(ctx, input.Username); err == nil {
		return types.SafeUser{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.SafeUser{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return types.SafeUser{}, err
	}

	user, err := s.repo.Insert(ctx, types.User{
		ID:           s.newID(),
		Username:     input.Username,
		Email:        input.Email,
		Role:         defaultRole,
		PasswordHash: hash,
	})
	if err != nil {
		return types.SafeUser{}, err
	}

	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	s.publishEvent(ctx, types.EventUserCreated, user)
	return user.Safe(), nil
}

// Register delegates to Create; same contract.
func (s *UserService) Register(ctx context.Context, input CreateUserInput) (types.SafeUser, error) {
	return s.Create(ctx, input)
}

// FindAll returns safe views of active accounts matching the filter,
// with page/limit pagination. An empty page is not an error.
func (s *UserService) FindAll(ctx context.Context, page, limit int, filter store.UserFilter) ([]types.SafeUser, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	users, err := s.repo.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, err
	}

	views := make([]types.SafeUser, 0, len(users))
	for _, user := range users {
		views = append(views, user.Safe())
	}
	return views, nil
}

// FindOne returns the safe view of an active account.
func (s *UserService) FindOne(ctx context.Context, id string) (types.SafeUser, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.SafeUser{}, err
	}
	return user.Safe(), nil
}

// Update applies a partial update. Username changes re-validate
// uniqueness, password changes are re-hashed. On any rejection the
// account is left unchanged.
func (s *UserService) Update(ctx context.Context, id string, patch UserPatch) (types.SafeUser, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.SafeUser{}, err
	}

	if patch.Username != nil && *patch.Username != user.Username {
		if err := validateUsername(*patch.Username); err != nil {
			return types.SafeUser{}, err
		}
		if existing, err := s.repo.GetByUsername(ctx, *patch.Username); err == nil && existing.ID != id {
			return types.SafeUser{}, store.ErrConflict
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return types.SafeUser{}, err
		}
		user.Username = *patch.Username
	}
	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return types.SafeUser{}, err
		}
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return types.SafeUser{}, err
		}
		user.PasswordHash = hash
	}
	if patch.Email != nil {
		if err := validateEmail(*patch.Email); err != nil {
			return types.SafeUser{}, err
		}
		user.Email = *patch.Email
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.SafeUser{}, err
	}

	s.logger.Info("user updated", "user_id", updated.ID)
	return updated.Safe(), nil
}

// Remove soft-deletes an active account. The row persists with
// deleted_at set; the username becomes reusable.
func (s *UserService) Remove(ctx context.Context, id string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		return err
	}

	s.logger.Info("user soft-deleted", "user_id", id)
	s.publishEvent(ctx, types.EventUserDeleted, user)
	return nil
}

// Login verifies credentials against the stored hash and issues a
// session token. Unknown username and wrong password both surface as
// ErrInvalidCredentials so callers cannot probe for account existence;
// the distinction is kept internal for logging.
func (s *UserService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("login rejected: unknown username", "username", username)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.Info("login rejected: bad password", "user_id", user.ID)
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("login succeeded", "user_id", user.ID)
	return LoginResult{
		Message: "Login successful",
		Token:   token,
		User:    user.Safe(),
	}, nil
}

// Logout is a stateless acknowledgement; issued tokens remain valid
// until their expiry claim elapses.
func (s *UserService) Logout() map[string]string {
	return map[string]string{"message": "Logout successful"}
}

// RequestPasswordReset opens a reset window for the active account
// holding the email: a fresh opaque token valid for 30 minutes. Both
// reset fields are persisted together.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) (ResetRequestResult, error) {
	if email == "" {
		return ResetRequestResult{}, validationErr("email is required")
	}
	if err := validateEmail(email); err != nil {
		return ResetRequestResult{}, err
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return ResetRequestResult{}, err
	}

	token := s.newID()
	user.ResetToken = sql.NullString{String: token, Valid: true}
	user.ResetTokenExpires = sql.NullTime{Time: s.now().Add(resetWindow), Valid: true}
	if _, err := s.repo.Update(ctx, user); err != nil {
		return ResetRequestResult{}, err
	}

	s.logger.Info("password reset requested", "user_id", user.ID)
	s.publishEvent(ctx, types.EventPasswordResetStart, user)
	return ResetRequestResult{
		Message:    "Password reset token generated",
		ResetToken: token,
	}, nil
}

// ResetPassword closes a reset window: it replaces the password hash
// and clears both reset fields in a single update. A missing token, a
// token with no expiry, and an elapsed expiry all fail identically.
func (s *UserService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return ErrInvalidResetToken
	}

	user, err := s.repo.GetByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if !user.ResetTokenExpires.Valid || !user.ResetTokenExpires.Time.After(s.now()) {
		s.logger.Info("password reset rejected: window elapsed", "user_id", user.ID)
		return ErrInvalidResetToken
	}

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.ResetToken = sql.NullString{}
	user.ResetTokenExpires = sql.NullTime{}
	if _, err := s.repo.Update(ctx, user); err != nil {
		return err
	}

	s.logger.Info("password reset", "user_id", user.ID)
	s.publishEvent(ctx, types.EventPasswordResetDone, user)
	return nil
}

func (s *UserService) publishEvent(ctx context.Context, eventType string, user types.User) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(types.AccountEvent{
		Type:     eventType,
		UserID:   user.ID,
		Username: user.Username,
		At:       s.now(),
	})
	if err != nil {
		return
	}
	if _, err := s.events.Publish(ctx, accountsChannel, payload, map[string]string{"type": eventType}); err != nil {
		s.logger.Warn("failed to publish account event", "type", eventType, "error", err)
	}
}

func validateUsername(username string) error {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return validationErr("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return validationErr("password must be %d-%d characters", minPasswordLen, maxPasswordLen)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return validationErr("invalid email address")
	}
	return nil
}
