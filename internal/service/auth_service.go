package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medprep/api/internal/config"
	"medprep/api/internal/ids"
	"medprep/api/internal/models"
	"medprep/api/internal/repository"
	"medprep/api/internal/security"
)

// UserStore is the slice of the persistence layer the auth flows need.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	SetEmailVerified(ctx context.Context, email string) error
	CompleteProfile(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, email string, passwordHash string) error
}

// SessionStore manages one session row per (user, device) pair.
type SessionStore interface {
	Upsert(ctx context.Context, session models.Session) (models.Session, error)
	FindActiveConflict(ctx context.Context, userID string, deviceName string, userAgent string) (models.Session, error)
	Terminate(ctx context.Context, userID string, sessionID string) error
	TerminateAll(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
}

// Mailer dispatches the transactional templates.
type Mailer interface {
	SendVerifyEmail(ctx context.Context, to string, token string) error
	SendResetPassword(ctx context.Context, to string, token string) error
	SendWelcome(ctx context.Context, to string, firstName string) error
}

// AuthService drives the account lifecycle: signup, email verification,
// profile completion, login, password reset, token refresh and session
// management.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	mailer   Mailer
	cache    *redis.Client
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	mailer Mailer,
	cache *redis.Client,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		cache:    cache,
		cfg:      cfg,
		log:      log,
	}
}

// SessionInfo is the device identity a client supplies on login or
// verification.
type SessionInfo struct {
	DeviceName string
	UserAgent  string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
	Sessions     []models.Session
}

// Signup creates a placeholder account and dispatches the verification
// email. Duplicate emails are rejected regardless of the soft-delete flag:
// a deleted account keeps its email reserved. The caller is not logged in.
func (s *AuthService) Signup(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	user := models.User{
		ID:    ids.New(),
		Email: email,
		Role:  models.UserRoleStudent,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}

	// The row exists even if the dispatch below fails; the client can hit the
	// resend endpoint.
	if err := s.sendVerificationEmail(ctx, email); err != nil {
		s.log.Warn().Err(err).Str("email", email).Msg("verification email failed after signup")
	}
	return nil
}

// VerifyEmail consumes a purpose=verify token and flips the verification
// flag. With session info supplied it also claims a session slot and logs
// the user in.
func (s *AuthService) VerifyEmail(ctx context.Context, email string, token string, info *SessionInfo, ipAddress string) (AuthResult, error) {
	email = normalizeEmail(email)

	claims, err := security.ParseEmailToken(token, s.cfg.Security.JWTSecret)
	if err != nil || claims.Purpose != security.PurposeVerify || claims.Email != email {
		return AuthResult{}, ErrInvalidToken
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrNotFound
		}
		return AuthResult{}, err
	}
	if user.IsDeleted {
		return AuthResult{}, ErrNotFound
	}
	if user.IsEmailVerified {
		return AuthResult{}, ErrAlreadyVerified
	}

	if err := s.users.SetEmailVerified(ctx, email); err != nil {
		return AuthResult{}, err
	}
	user.IsEmailVerified = true

	if err := s.establishSession(ctx, user, info, ipAddress); err != nil {
		return AuthResult{}, err
	}

	return s.authResult(ctx, user)
}

type CompleteProfileInput struct {
	Email              string
	FirstName          string
	LastName           string
	Role               models.UserRole
	MedicalCollegeName string
	Phone              *string
	MBBSPassingYear    *string
	Password           string
}

// CompleteProfile is the one-shot transition to the Active account state:
// it sets the name fields, the role and the first password. Only the account
// owner may perform it, and only once. Tokens are not issued; the caller
// logs in separately.
func (s *AuthService) CompleteProfile(ctx context.Context, callerUserID string, input CompleteProfileInput) (models.User, error) {
	email := normalizeEmail(input.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	if user.IsDeleted {
		return models.User{}, ErrNotFound
	}
	if user.ID != callerUserID {
		return models.User{}, ErrForbidden
	}
	if !user.IsEmailVerified {
		return models.User{}, ErrNotVerified
	}
	if user.PasswordHash != "" {
		return models.User{}, ErrAlreadyCompleted
	}

	passwordHash, err := security.HashPassword(input.Password, s.cfg.Security.BcryptCost)
	if err != nil {
		return models.User{}, err
	}

	role := input.Role
	if role == "" {
		role = models.UserRoleStudent
	}

	user.FirstName = input.FirstName
	user.LastName = input.LastName
	user.Role = role
	user.MedicalCollegeName = input.MedicalCollegeName
	user.Phone = input.Phone
	user.MBBSPassingYear = input.MBBSPassingYear
	user.PasswordHash = passwordHash
	user.IsProfileCompleted = true

	if err := s.users.CompleteProfile(ctx, user); err != nil {
		return models.User{}, err
	}

	// Best effort: a failed welcome email never rolls back the completion.
	if err := s.mailer.SendWelcome(ctx, user.Email, user.FirstName); err != nil {
		s.log.Warn().Err(err).Str("email", user.Email).Msg("welcome email failed")
	}

	return user, nil
}

// Login authenticates with email and password. Accounts that have not
// completed their profile hold no password and cannot log in yet.
func (s *AuthService) Login(ctx context.Context, email string, password string, info *SessionInfo, ipAddress string) (AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrNotFound
		}
		return AuthResult{}, err
	}
	if user.IsDeleted {
		return AuthResult{}, ErrNotFound
	}
	if user.PasswordHash == "" {
		return AuthResult{}, ErrProfileIncomplete
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}

	if err := s.establishSession(ctx, user, info, ipAddress); err != nil {
		return AuthResult{}, err
	}

	return s.authResult(ctx, user)
}

// SendForgotPassword issues a purpose=reset token and mails it. An unknown
// email is reported as not found, matching the upstream contract.
func (s *AuthService) SendForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.IsDeleted {
		return ErrNotFound
	}

	return s.sendResetEmail(ctx, email)
}

// ResetPassword consumes a purpose=reset token and overwrites the password
// hash. Verification and profile-completion flags are untouched, and
// existing sessions stay valid until their own expiry.
func (s *AuthService) ResetPassword(ctx context.Context, email string, token string, newPassword string) error {
	email = normalizeEmail(email)

	claims, err := security.ParseEmailToken(token, s.cfg.Security.JWTSecret)
	if err != nil || claims.Purpose != security.PurposeReset || claims.Email != email {
		return ErrInvalidToken
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.IsDeleted {
		return ErrNotFound
	}

	passwordHash, err := security.HashPassword(newPassword, s.cfg.Security.BcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, email, passwordHash)
}

// RefreshToken exchanges a valid refresh token for a fresh access token.
// The refresh token itself is not rotated.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := security.ParseRefreshToken(refreshToken, s.cfg.Security.JWTSecret)
	if err != nil {
		return "", ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	return security.SignAccessToken(
		s.cfg.Security.JWTSecret,
		user.ID,
		string(user.Role),
		user.PasswordHash != "",
		s.cfg.Security.AccessTokenTTL,
	)
}

// ResendVerificationEmail re-issues the verify token for a still-unverified
// account. Throttled per email.
func (s *AuthService) ResendVerificationEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.IsDeleted {
		return ErrNotFound
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}

	if err := s.checkResendCooldown(ctx, "verify", email); err != nil {
		return err
	}
	return s.sendVerificationEmail(ctx, email)
}

// ResendForgotPasswordEmail re-issues the reset token. Throttled per email.
func (s *AuthService) ResendForgotPasswordEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.IsDeleted {
		return ErrNotFound
	}

	if err := s.checkResendCooldown(ctx, "reset", email); err != nil {
		return err
	}
	return s.sendResetEmail(ctx, email)
}

// Logout terminates one session when sessionID is given, or every ACTIVE
// session of the user otherwise.
func (s *AuthService) Logout(ctx context.Context, userID string, sessionID string) error {
	if sessionID == "" {
		_, err := s.sessions.TerminateAll(ctx, userID)
		return err
	}
	if err := s.sessions.Terminate(ctx, userID, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// TerminateAllSessions bulk-terminates and reports how many sessions were
// affected.
func (s *AuthService) TerminateAllSessions(ctx context.Context, userID string) (int64, error) {
	return s.sessions.TerminateAll(ctx, userID)
}

// CreateSessionForUser claims a session slot for an already-authenticated
// user, e.g. a client registering its device after the fact.
func (s *AuthService) CreateSessionForUser(ctx context.Context, userID string, info SessionInfo, ipAddress string) ([]models.Session, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.establishSession(ctx, user, &info, ipAddress); err != nil {
		return nil, err
	}
	return s.sessions.ListByUser(ctx, userID)
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// establishSession enforces the single-active-session policy for students
// and upserts the device row. Admin accounts skip the conflict check and may
// hold any number of concurrent sessions.
func (s *AuthService) establishSession(ctx context.Context, user models.User, info *SessionInfo, ipAddress string) error {
	if info == nil {
		return nil
	}

	if user.Role != models.UserRoleAdmin {
		conflict, err := s.sessions.FindActiveConflict(ctx, user.ID, info.DeviceName, info.UserAgent)
		if err == nil {
			return &SessionConflictError{DeviceName: conflict.DeviceName}
		}
		if !errors.Is(err, repository.ErrSessionNotFound) {
			return err
		}
	}

	_, err := s.sessions.Upsert(ctx, models.Session{
		ID:         ids.New(),
		UserID:     user.ID,
		DeviceName: info.DeviceName,
		UserAgent:  info.UserAgent,
		IPAddress:  ipAddress,
		Status:     models.SessionStatusActive,
	})
	return err
}

func (s *AuthService) authResult(ctx context.Context, user models.User) (AuthResult, error) {
	accessToken, err := security.SignAccessToken(
		s.cfg.Security.JWTSecret,
		user.ID,
		string(user.Role),
		user.PasswordHash != "",
		s.cfg.Security.AccessTokenTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	refreshToken, err := security.SignRefreshToken(
		s.cfg.Security.JWTSecret,
		user.ID,
		string(user.Role),
		s.cfg.Security.RefreshTokenTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	sessions, err := s.sessions.ListByUser(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		Sessions:     sessions,
	}, nil
}

func (s *AuthService) sendVerificationEmail(ctx context.Context, email string) error {
	token, err := security.SignEmailToken(s.cfg.Security.JWTSecret, email, security.PurposeVerify, s.cfg.Security.VerifyTokenTTL)
	if err != nil {
		return err
	}
	return s.mailer.SendVerifyEmail(ctx, email, token)
}

func (s *AuthService) sendResetEmail(ctx context.Context, email string) error {
	token, err := security.SignEmailToken(s.cfg.Security.JWTSecret, email, security.PurposeReset, s.cfg.Security.ResetTokenTTL)
	if err != nil {
		return err
	}
	return s.mailer.SendResetPassword(ctx, email, token)
}

// checkResendCooldown throttles the resend endpoints with a redis SETNX key.
// A cache outage never blocks the resend itself.
func (s *AuthService) checkResendCooldown(ctx context.Context, kind string, email string) error {
	if s.cache == nil {
		return nil
	}

	key := fmt.Sprintf("resend:%s:%s", kind, email)
	ok, err := s.cache.SetNX(ctx, key, 1, s.cfg.Security.ResendCooldown).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("resend cooldown check failed")
		return nil
	}
	if !ok {
		return ErrResendCooldown
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
