// AUTHENTICATION
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// Two ways in:
//   - GitHub OAuth: the handler exchanges the code, this service upserts
//     the user and issues a token.
//   - Local accounts: login + password, created with cmd/useradd. Useful
//     for bootstrapping the first admin and for deployments without GitHub.
//
// Either way the issued JWT carries the user's ID and role, which is all
// the list routes need to run their ownership and admin checks.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/tasklists/internal/apperror"
	"github.com/sakif/tasklists/internal/auth"
	"github.com/sakif/tasklists/internal/model"
	"github.com/sakif/tasklists/internal/repository"
)

// ErrInvalidCredentials is returned by LoginLocal for an unknown login or a
// wrong password; callers cannot tell the two apart.
var ErrInvalidCredentials = errors.New("invalid login or password")

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users       repository.UserRepository → read/write user records
//   - tokens      *auth.TokenService        → generate/validate JWTs
//   - passwords   *auth.PasswordService     → bcrypt hashing for local accounts
//   - logger      *slog.Logger              → structured logging
//   - adminLogins                           → logins promoted to admin on sign-in
type AuthService struct {
	users       repository.UserRepository
	tokens      *auth.TokenService
	passwords   *auth.PasswordService
	logger      *slog.Logger
	adminLogins map[string]bool
}

// NewAuthService creates an AuthService with all required dependencies.
// Users whose login appears in adminLogins are given the admin role the
// next time they sign in.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
	adminLogins ...string,
) *AuthService {
	admins := make(map[string]bool, len(adminLogins))
	for _, login := range adminLogins {
		if login = strings.TrimSpace(login); login != "" {
			admins[strings.ToLower(login)] = true
		}
	}
	return &AuthService{
		users:       users,
		tokens:      tokens,
		passwords:   passwords,
		logger:      logger,
		adminLogins: admins,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback.
//
//  1. Upsert the user (create on first login, refresh profile afterwards)
//  2. Promote to admin if the login is listed in ADMIN_LOGINS
//  3. Issue a JWT carrying the user's ID and role
//
// It does NOT set cookies or read HTTP requests; that's the handler's job.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	if err := s.promoteIfListed(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
		slog.String("role", user.Role),
	)

	return s.issue(user)
}

// LoginLocal authenticates a local account by login and password.
// Returns ErrInvalidCredentials for an unknown login or a wrong password.
func (s *AuthService) LoginLocal(ctx context.Context, login, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up %q: %w", login, err)
	}

	// GitHub accounts have no password hash and can't log in locally.
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("local login failed", slog.String("login", login))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service/auth: verifying password of %q: %w", login, err)
	}

	if err := s.promoteIfListed(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated locally",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
		slog.String("role", user.Role),
	)

	return s.issue(user)
}

// CreateLocalUser registers a password-authenticated account.
// An empty role means model.RoleUser.
//
// Errors:
//   - apperror.ErrValidation → empty login, unknown role, or a password
//     bcrypt can't take
//   - apperror.ErrConflict   → login already taken
func (s *AuthService) CreateLocalUser(ctx context.Context, login, password, role string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, apperror.ValidationFailed("login", "must not be empty")
	}

	switch role {
	case "":
		role = model.RoleUser
	case model.RoleUser, model.RoleAdmin:
	default:
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("must be %q or %q", model.RoleUser, model.RoleAdmin))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{Login: login, Role: role, PasswordHash: hash}
	if err := s.users.CreateLocal(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user %q: %w", login, err)
	}

	s.logger.Info("local user created",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
		slog.String("role", user.Role),
	)
	return user, nil
}

// GetUserByID returns the user for the given internal ID.
// Used by /api/me after the middleware has validated the token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}

// ValidateToken validates a JWT string and returns the requester it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (model.Requester, error) {
	requester, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return model.Requester{}, fmt.Errorf("service/auth: %w", err)
	}
	return requester, nil
}

// promoteIfListed gives the admin role to users listed in adminLogins.
// Nobody is ever demoted here; that's done in the database.
func (s *AuthService) promoteIfListed(ctx context.Context, user *model.User) error {
	if user.IsAdmin() || !s.adminLogins[strings.ToLower(user.Login)] {
		return nil
	}
	if err := s.users.SetRole(ctx, user.ID, model.RoleAdmin); err != nil {
		return fmt.Errorf("service/auth: promoting %s to admin: %w", user.ID, err)
	}
	user.Role = model.RoleAdmin
	s.logger.Info("user promoted to admin", slog.String("userID", user.ID), slog.String("login", user.Login))
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	role := user.Role
	if role == "" {
		role = model.RoleUser
	}
	token, err := s.tokens.Generate(user.ID, role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
