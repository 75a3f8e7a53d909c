package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sakif/tasklists/internal/apperror"
	"github.com/sakif/tasklists/internal/auth"
	"github.com/sakif/tasklists/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory implementation of repository.UserRepository.
type fakeUserRepo struct {
	users  map[string]*model.User // keyed by internal ID
	byGHID map[int64]*model.User
	nextID int
	// set to a non-nil error to simulate a database failure
	upsertErr  error
	getByIDErr error
	setRoleErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:  make(map[string]*model.User),
		byGHID: make(map[int64]*model.User),
		nextID: 1,
	}
}

func (f *fakeUserRepo) newID() string {
	id := fmt.Sprintf("user-fake-id-%d", f.nextID)
	f.nextID++
	return id
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.byGHID[user.GitHubID]; ok {
		existing.Login = user.Login
		existing.Email = user.Email
		existing.AvatarURL = user.AvatarURL
		*user = *existing
		return nil
	}
	user.ID = f.newID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	copied := *user
	f.users[user.ID] = &copied
	f.byGHID[user.GitHubID] = &copied
	return nil
}

func (f *fakeUserRepo) CreateLocal(ctx context.Context, user *model.User) error {
	for _, u := range f.users {
		if u.Login == user.Login {
			return apperror.Conflict("user", user.Login)
		}
	}
	user.ID = f.newID()
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	for _, u := range f.users {
		if u.Login == login {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", login)
}

func (f *fakeUserRepo) SetRole(ctx context.Context, id, role string) error {
	if f.setRoleErr != nil {
		return f.setRoleErr
	}
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Role = role
	return nil
}

// newTestAuthService returns an AuthService wired with fake dependencies.
func newTestAuthService(t *testing.T, repo *fakeUserRepo, adminLogins ...string) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Cost 4 is bcrypt minimum: makes tests fast
	ps := auth.NewPasswordServiceForTest(4)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(repo, ts, ps, logger, adminLogins...)
}

// =========================================================================
// LoginOrRegisterGitHub TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:        42,
		Login:     "octocat",
		Email:     "octocat@github.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/42",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	if result.Token == "" {
		t.Fatal("LoginOrRegisterGitHub() returned empty Token")
	}
	if result.User.Login != "octocat" {
		t.Errorf("User.Login = %q, want %q", result.User.Login, "octocat")
	}
	if result.User.Role != model.RoleUser {
		t.Errorf("User.Role = %q, want %q", result.User.Role, model.RoleUser)
	}
}

func TestLoginOrRegisterGitHub_ExistingUserGetsUpdatedProfile(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	first, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 99, Login: "old-login"})
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}

	second, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 99, Login: "new-login"})
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}

	if second.User.Login != "new-login" {
		t.Errorf("User.Login after update = %q, want %q", second.User.Login, "new-login")
	}
	if second.User.ID != first.User.ID {
		t.Errorf("User.ID changed from %q to %q", first.User.ID, second.User.ID)
	}
}

func TestLoginOrRegisterGitHub_TokenCarriesIDAndRole(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "testuser"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	requester, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if requester.ID != result.User.ID {
		t.Errorf("token subject = %q, want %q", requester.ID, result.User.ID)
	}
	if requester.Role != model.RoleUser {
		t.Errorf("token role = %q, want %q", requester.Role, model.RoleUser)
	}
}

func TestLoginOrRegisterGitHub_AdminLoginIsPromoted(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo, " Boss ", "")

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 3, Login: "boss"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if !result.User.IsAdmin() {
		t.Errorf("User.Role = %q, want admin", result.User.Role)
	}
	if repo.users[result.User.ID].Role != model.RoleAdmin {
		t.Error("admin role was not persisted")
	}

	requester, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if !requester.IsAdmin() {
		t.Errorf("token role = %q, want admin", requester.Role)
	}
}

func TestLoginOrRegisterGitHub_PromotionFailure(t *testing.T) {
	repo := newFakeUserRepo()
	repo.setRoleErr = errors.New("read-only database")
	svc := newTestAuthService(t, repo, "boss")

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 3, Login: "boss"}); err == nil {
		t.Fatal("LoginOrRegisterGitHub() should fail when the promotion can't be stored")
	}
}

func TestLoginOrRegisterGitHub_NilGitHubUser(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Fatal("LoginOrRegisterGitHub() should return error for nil GitHubUser")
	}
}

func TestLoginOrRegisterGitHub_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.upsertErr = errors.New("database is on fire")
	svc := newTestAuthService(t, repo)

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"}); err == nil {
		t.Fatal("LoginOrRegisterGitHub() should propagate repository errors")
	}
}

// =========================================================================
// Local account TESTS
// =========================================================================

func TestCreateLocalUser_ThenLoginLocal(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	user, err := svc.CreateLocalUser(ctx, "alice", "correct horse", "")
	if err != nil {
		t.Fatalf("CreateLocalUser() error = %v", err)
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", user.Role, model.RoleUser)
	}
	if user.PasswordHash == "" || user.PasswordHash == "correct horse" {
		t.Errorf("PasswordHash = %q, want a bcrypt hash", user.PasswordHash)
	}

	result, err := svc.LoginLocal(ctx, "alice", "correct horse")
	if err != nil {
		t.Fatalf("LoginLocal() error = %v", err)
	}
	if result.User.ID != user.ID {
		t.Errorf("logged in as %q, want %q", result.User.ID, user.ID)
	}
}

func TestCreateLocalUser_Admin(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.CreateLocalUser(ctx, "root", "s3cret-pass", model.RoleAdmin); err != nil {
		t.Fatalf("CreateLocalUser() error = %v", err)
	}
	result, err := svc.LoginLocal(ctx, "root", "s3cret-pass")
	if err != nil {
		t.Fatalf("LoginLocal() error = %v", err)
	}

	requester, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if !requester.IsAdmin() {
		t.Errorf("token role = %q, want admin", requester.Role)
	}
}

func TestCreateLocalUser_Validation(t *testing.T) {
	tests := []struct {
		name     string
		login    string
		password string
		role     string
	}{
		{"empty login", "  ", "long enough", ""},
		{"short password", "bob", "short", ""},
		{"unknown role", "bob", "long enough", "superuser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAuthService(t, newFakeUserRepo())
			_, err := svc.CreateLocalUser(context.Background(), tt.login, tt.password, tt.role)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("CreateLocalUser() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateLocalUser_DuplicateLogin(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.CreateLocalUser(ctx, "alice", "password-1", ""); err != nil {
		t.Fatalf("first CreateLocalUser() error = %v", err)
	}
	_, err := svc.CreateLocalUser(ctx, "alice", "password-2", "")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second CreateLocalUser() error = %v, want ErrConflict", err)
	}
}

func TestLoginLocal_BadCredentials(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	if _, err := svc.CreateLocalUser(ctx, "alice", "correct horse", ""); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 8, Login: "octocat"}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tests := []struct {
		name     string
		login    string
		password string
	}{
		{"wrong password", "alice", "battery staple"},
		{"unknown login", "mallory", "whatever-123"},
		{"github account has no password", "octocat", "anything-at-all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.LoginLocal(ctx, tt.login, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("LoginLocal() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

// =========================================================================
// GetUserByID / ValidateToken TESTS
// =========================================================================

func TestGetUserByID_Found(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "findme"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Login != "findme" {
		t.Errorf("user.Login = %q, want %q", user.Login, "findme")
	}
}

func TestGetUserByID_EmptyID(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.GetUserByID(context.Background(), ""); err == nil {
		t.Fatal("GetUserByID() should return error for empty ID")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.GetUserByID(context.Background(), "non-existent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestValidateToken_InvalidToken(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.ValidateToken("this.is.garbage"); err == nil {
		t.Fatal("ValidateToken() should return error for garbage token")
	}
}
