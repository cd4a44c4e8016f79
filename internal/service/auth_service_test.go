package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"medprep/api/internal/config"
	"medprep/api/internal/ids"
	"medprep/api/internal/models"
	"medprep/api/internal/repository"
	"medprep/api/internal/security"
)

type fakeUserStore struct {
	byEmail map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: map[string]*models.User{}}
}

func (f *fakeUserStore) Create(_ context.Context, user models.User) error {
	if _, ok := f.byEmail[user.Email]; ok {
		return errors.New("duplicate key")
	}
	u := user
	f.byEmail[user.Email] = &u
	return nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id && !u.IsDeleted {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUserStore) SetEmailVerified(_ context.Context, email string) error {
	u, ok := f.byEmail[email]
	if !ok || u.IsDeleted {
		return repository.ErrUserNotFound
	}
	u.IsEmailVerified = true
	return nil
}

func (f *fakeUserStore) CompleteProfile(_ context.Context, user models.User) error {
	u, ok := f.byEmail[user.Email]
	if !ok || u.IsDeleted {
		return repository.ErrUserNotFound
	}
	u.FirstName = user.FirstName
	u.LastName = user.LastName
	u.Role = user.Role
	u.MedicalCollegeName = user.MedicalCollegeName
	u.Phone = user.Phone
	u.MBBSPassingYear = user.MBBSPassingYear
	u.PasswordHash = user.PasswordHash
	u.IsProfileCompleted = true
	return nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, email string, passwordHash string) error {
	u, ok := f.byEmail[email]
	if !ok || u.IsDeleted {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type fakeSessionStore struct {
	sessions []*models.Session
}

func (f *fakeSessionStore) Upsert(_ context.Context, session models.Session) (models.Session, error) {
	for _, s := range f.sessions {
		if s.UserID == session.UserID && s.DeviceName == session.DeviceName && s.UserAgent == session.UserAgent {
			s.Status = models.SessionStatusActive
			s.RevokedAt = nil
			s.IPAddress = session.IPAddress
			s.LastSeenAt = time.Now()
			return *s, nil
		}
	}
	session.Status = models.SessionStatusActive
	session.CreatedAt = time.Now()
	session.LastSeenAt = time.Now()
	s := session
	f.sessions = append(f.sessions, &s)
	return s, nil
}

func (f *fakeSessionStore) FindActiveConflict(_ context.Context, userID string, deviceName string, userAgent string) (models.Session, error) {
	for _, s := range f.sessions {
		if s.UserID != userID || s.Status != models.SessionStatusActive {
			continue
		}
		sameDevice := (deviceName == "" || s.DeviceName == deviceName) &&
			(userAgent == "" || s.UserAgent == userAgent)
		if !sameDevice {
			return *s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (f *fakeSessionStore) Terminate(_ context.Context, userID string, sessionID string) error {
	for _, s := range f.sessions {
		if s.ID == sessionID && s.UserID == userID {
			now := time.Now()
			s.Status = models.SessionStatusTerminated
			s.RevokedAt = &now
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (f *fakeSessionStore) TerminateAll(_ context.Context, userID string) (int64, error) {
	var count int64
	now := time.Now()
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == models.SessionStatusActive {
			s.Status = models.SessionStatusTerminated
			s.RevokedAt = &now
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) activeCount(userID string) int {
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == models.SessionStatusActive {
			n++
		}
	}
	return n
}

type sentMail struct {
	To    string
	Token string
}

type fakeMailer struct {
	verify  []sentMail
	reset   []sentMail
	welcome []string
}

func (f *fakeMailer) SendVerifyEmail(_ context.Context, to string, token string) error {
	f.verify = append(f.verify, sentMail{To: to, Token: token})
	return nil
}

func (f *fakeMailer) SendResetPassword(_ context.Context, to string, token string) error {
	f.reset = append(f.reset, sentMail{To: to, Token: token})
	return nil
}

func (f *fakeMailer) SendWelcome(_ context.Context, to string, _ string) error {
	f.welcome = append(f.welcome, to)
	return nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			JWTSecret:       "test-secret",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 14 * 24 * time.Hour,
			VerifyTokenTTL:  24 * time.Hour,
			ResetTokenTTL:   time.Hour,
			BcryptCost:      4,
		},
	}
}

func newTestService() (*AuthService, *fakeUserStore, *fakeSessionStore, *fakeMailer) {
	users := newFakeUserStore()
	sessions := &fakeSessionStore{}
	mailer := &fakeMailer{}
	svc := NewAuthService(users, sessions, mailer, nil, testConfig(), zerolog.Nop())
	return svc, users, sessions, mailer
}

// signupAndVerify walks an account through signup and email verification
// using the token captured by the fake mailer.
func signupAndVerify(t *testing.T, svc *AuthService, mailer *fakeMailer, email string) models.User {
	t.Helper()
	ctx := context.Background()

	if err := svc.Signup(ctx, email); err != nil {
		t.Fatalf("signup: %v", err)
	}
	token := mailer.verify[len(mailer.verify)-1].Token
	result, err := svc.VerifyEmail(ctx, email, token, nil, "")
	if err != nil {
		t.Fatalf("verify email: %v", err)
	}
	return result.User
}

func completeProfile(t *testing.T, svc *AuthService, userID string, email string, role models.UserRole, password string) models.User {
	t.Helper()
	user, err := svc.CompleteProfile(context.Background(), userID, CompleteProfileInput{
		Email:              email,
		FirstName:          "Aisha",
		LastName:           "Rahman",
		Role:               role,
		MedicalCollegeName: "SOMC",
		Password:           password,
	})
	if err != nil {
		t.Fatalf("complete profile: %v", err)
	}
	return user
}

func TestSignupCreatesPendingAccount(t *testing.T) {
	svc, users, _, mailer := newTestService()
	ctx := context.Background()

	if err := svc.Signup(ctx, "Student@Example.com"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	user, err := users.FindByEmail(ctx, "student@example.com")
	if err != nil {
		t.Fatalf("account missing after signup: %v", err)
	}
	if user.IsEmailVerified || user.IsProfileCompleted || user.PasswordHash != "" {
		t.Fatalf("expected pending-verification state, got %+v", user)
	}
	if user.Role != models.UserRoleStudent {
		t.Fatalf("expected student role, got %s", user.Role)
	}
	if len(mailer.verify) != 1 || mailer.verify[0].To != "student@example.com" {
		t.Fatalf("expected exactly one verification email, got %+v", mailer.verify)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, users, _, mailer := newTestService()
	ctx := context.Background()

	if err := svc.Signup(ctx, "student@example.com"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := svc.Signup(ctx, "student@example.com"); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if len(mailer.verify) != 1 {
		t.Fatalf("no second email should be sent, got %d", len(mailer.verify))
	}

	// A soft-deleted account keeps its email reserved.
	users.byEmail["student@example.com"].IsDeleted = true
	if err := svc.Signup(ctx, "student@example.com"); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail for deleted account's email, got %v", err)
	}
}

func TestVerifyEmailRejectsWrongPurpose(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.Signup(ctx, "student@example.com"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	resetToken, err := security.SignEmailToken("test-secret", "student@example.com", security.PurposeReset, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.VerifyEmail(ctx, "student@example.com", resetToken, nil, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for reset-purpose token, got %v", err)
	}
}

func TestVerifyEmailTwice(t *testing.T) {
	svc, _, _, mailer := newTestService()
	ctx := context.Background()

	signupAndVerify(t, svc, mailer, "student@example.com")

	token := mailer.verify[0].Token
	if _, err := svc.VerifyEmail(ctx, "student@example.com", token, nil, ""); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestVerifyEmailRejectsMismatchedSubject(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.Signup(ctx, "student@example.com"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	foreign, err := security.SignEmailToken("test-secret", "other@example.com", security.PurposeVerify, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.VerifyEmail(ctx, "student@example.com", foreign, nil, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign-email token, got %v", err)
	}
}

func TestLoginRequiresCompletedProfile(t *testing.T) {
	svc, _, _, mailer := newTestService()
	ctx := context.Background()

	user := signupAndVerify(t, svc, mailer, "student@example.com")

	if _, err := svc.Login(ctx, "student@example.com", "password123", nil, ""); !errors.Is(err, ErrProfileIncomplete) {
		t.Fatalf("expected ErrProfileIncomplete before completion, got %v", err)
	}

	completeProfile(t, svc, user.ID, "student@example.com", models.UserRoleStudent, "password123")

	result, err := svc.Login(ctx, "student@example.com", "password123", nil, "")
	if err != nil {
		t.Fatalf("login after completion: %v", err)
	}
	if !result.User.IsProfileCompleted {
		t.Fatalf("expected completed profile flag")
	}
	if len(mailer.welcome) != 1 {
		t.Fatalf("expected one welcome email, got %d", len(mailer.welcome))
	}

	if _, err := svc.Login(ctx, "student@example.com", "wrong-password", nil, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123", nil, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown email, got %v", err)
	}
}

func TestCompleteProfileGuards(t *testing.T) {
	svc, _, _, mailer := newTestService()
	ctx := context.Background()

	if err := svc.Signup(ctx, "student@example.com"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	input := CompleteProfileInput{
		Email:              "student@example.com",
		FirstName:          "Aisha",
		LastName:           "Rahman",
		MedicalCollegeName: "SOMC",
		Password:           "password123",
	}

	// Unverified accounts cannot complete their profile.
	token := mailer.verify[0].Token
	if _, err := svc.CompleteProfile(ctx, "someone-else", input); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for foreign caller, got %v", err)
	}

	result, err := svc.VerifyEmail(ctx, "student@example.com", token, nil, "")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	userID := result.User.ID

	svcUnverified, lateUsers, _, _ := newTestService()
	if err := svcUnverified.Signup(ctx, "late@example.com"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	lateUser, _ := lateUsers.FindByEmail(ctx, "late@example.com")
	if _, err := svcUnverified.CompleteProfile(ctx, lateUser.ID, CompleteProfileInput{
		Email:              "late@example.com",
		FirstName:          "A",
		LastName:           "B",
		MedicalCollegeName: "SOMC",
		Password:           "password123",
	}); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}

	if _, err := svc.CompleteProfile(ctx, userID, input); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if _, err := svc.CompleteProfile(ctx, userID, input); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestStudentSessionConflict(t *testing.T) {
	svc, _, sessions, mailer := newTestService()
	ctx := context.Background()

	user := signupAndVerify(t, svc, mailer, "student@example.com")
	completeProfile(t, svc, user.ID, "student@example.com", models.UserRoleStudent, "password123")

	deviceA := &SessionInfo{DeviceName: "Pixel 8", UserAgent: "okhttp/4.9"}
	if _, err := svc.Login(ctx, "student@example.com", "password123", deviceA, "10.0.0.1"); err != nil {
		t.Fatalf("login device A: %v", err)
	}

	deviceB := &SessionInfo{DeviceName: "MacBook", UserAgent: "Safari/17"}
	_, err := svc.Login(ctx, "student@example.com", "password123", deviceB, "10.0.0.2")
	var conflict *SessionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SessionConflictError, got %v", err)
	}
	if conflict.DeviceName != "Pixel 8" {
		t.Fatalf("conflict should name the existing device, got %q", conflict.DeviceName)
	}

	// Same device logs back in without conflict and without duplicating the row.
	if _, err := svc.Login(ctx, "student@example.com", "password123", deviceA, "10.0.0.3"); err != nil {
		t.Fatalf("re-login device A: %v", err)
	}
	if got := sessions.activeCount(user.ID); got != 1 {
		t.Fatalf("expected a single active session row, got %d", got)
	}
	if len(sessions.sessions) != 1 {
		t.Fatalf("re-login must reactivate, not duplicate; rows=%d", len(sessions.sessions))
	}
	if sessions.sessions[0].IPAddress != "10.0.0.3" {
		t.Fatalf("reactivation should refresh the ip, got %s", sessions.sessions[0].IPAddress)
	}
}

func TestAdminMultiDeviceSessions(t *testing.T) {
	svc, _, sessions, mailer := newTestService()
	ctx := context.Background()

	user := signupAndVerify(t, svc, mailer, "admin@example.com")
	completeProfile(t, svc, user.ID, "admin@example.com", models.UserRoleAdmin, "password123")

	if _, err := svc.Login(ctx, "admin@example.com", "password123", &SessionInfo{DeviceName: "Desk", UserAgent: "Chrome"}, ""); err != nil {
		t.Fatalf("login device 1: %v", err)
	}
	if _, err := svc.Login(ctx, "admin@example.com", "password123", &SessionInfo{DeviceName: "Laptop", UserAgent: "Firefox"}, ""); err != nil {
		t.Fatalf("login device 2: %v", err)
	}
	if got := sessions.activeCount(user.ID); got != 2 {
		t.Fatalf("admin should hold two active sessions, got %d", got)
	}
}

func TestResetPasswordRejectsForeignToken(t *testing.T) {
	svc, _, _, mailer := newTestService()
	ctx := context.Background()

	user := signupAndVerify(t, svc, mailer, "student@example.com")
	completeProfile(t, svc, user.ID, "student@example.com", models.UserRoleStudent, "password123")

	foreign, err := security.SignEmailToken("test-secret", "other@example.com", security.PurposeReset, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if err := svc.ResetPassword(ctx, "student@example.com", foreign, "newpassword1"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign token, got %v", err)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	svc, users, _, mailer := newTestService()
	ctx := context.Background()

	user := signupAndVerify(t, svc, mailer, "student@example.com")
	completeProfile(t, svc, user.ID, "student@example.com", models.UserRoleStudent, "password123")

	if err := svc.SendForgotPassword(ctx, "student@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	token := mailer.reset[len(mailer.reset)-1].Token

	if err := svc.ResetPassword(ctx, "student@example.com", token, "newpassword1"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	if _, err := svc.Login(ctx, "student@example.com", "newpassword1", nil, ""); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	stored, _ := users.FindByEmail(ctx, "student@example.com")
	if !stored.IsEmailVerified || !stored.IsProfileCompleted {
		t.Fatalf("reset must not touch verification or completion flags")
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	svc, _, _, _ := newTestService()
	if err := svc.SendForgotPassword(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _, _, mailer := newTestService()
	ctx := context.Background()

	user := signupAndVerify(t, svc, mailer, "student@example.com")
	completeProfile(t, svc, user.ID, "student@example.com", models.UserRoleStudent, "password123")

	result, err := svc.Login(ctx, "student@example.com", "password123", nil, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.RefreshToken(ctx, result.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token, got %v", err)
	}

	accessToken, err := svc.RefreshToken(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := security.ParseAccessToken(accessToken, "test-secret")
	if err != nil {
		t.Fatalf("parse refreshed access token: %v", err)
	}
	if claims.Subject != user.ID || !claims.IsProfileComplete {
		t.Fatalf("unexpected refreshed claims: %+v", claims)
	}
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	svc, _, _, mailer := newTestService()

	signupAndVerify(t, svc, mailer, "student@example.com")

	if err := svc.ResendVerificationEmail(context.Background(), "student@example.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestLogoutAndTerminateAll(t *testing.T) {
	svc, _, sessions, mailer := newTestService()
	ctx := context.Background()

	user := signupAndVerify(t, svc, mailer, "admin@example.com")
	completeProfile(t, svc, user.ID, "admin@example.com", models.UserRoleAdmin, "password123")

	if _, err := svc.Login(ctx, "admin@example.com", "password123", &SessionInfo{DeviceName: "Desk", UserAgent: "Chrome"}, ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Login(ctx, "admin@example.com", "password123", &SessionInfo{DeviceName: "Laptop", UserAgent: "Firefox"}, ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	first := sessions.sessions[0]
	if err := svc.Logout(ctx, user.ID, first.ID); err != nil {
		t.Fatalf("logout single: %v", err)
	}
	if first.Status != models.SessionStatusTerminated || first.RevokedAt == nil {
		t.Fatalf("expected session terminated with revokedAt set")
	}
	if got := sessions.activeCount(user.ID); got != 1 {
		t.Fatalf("one session should remain active, got %d", got)
	}

	count, err := svc.TerminateAllSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("terminate all: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 terminated, got %d", count)
	}
	if got := sessions.activeCount(user.ID); got != 0 {
		t.Fatalf("expected no active sessions, got %d", got)
	}
}

func TestVerifyEmailWithSessionLogsIn(t *testing.T) {
	svc, _, sessions, mailer := newTestService()
	ctx := context.Background()

	if err := svc.Signup(ctx, "student@example.com"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	token := mailer.verify[0].Token

	result, err := svc.VerifyEmail(ctx, "student@example.com", token, &SessionInfo{DeviceName: "Pixel 8", UserAgent: "okhttp"}, "10.1.1.1")
	if err != nil {
		t.Fatalf("verify with session: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected tokens on verification")
	}
	if len(result.Sessions) != 1 {
		t.Fatalf("expected the new session in the response, got %d", len(result.Sessions))
	}
	if got := sessions.activeCount(result.User.ID); got != 1 {
		t.Fatalf("expected one active session, got %d", got)
	}
}

func TestGeneratedSessionIDs(t *testing.T) {
	if ids.New() == ids.New() {
		t.Fatalf("ids must be unique")
	}
}
