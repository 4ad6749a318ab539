package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/identity"
)

const maxUserPageSize = 1000

// IdentityProvider is the subset of the Firebase Auth client the service
// uses. *auth.Client satisfies it.
type IdentityProvider interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
	Users(ctx context.Context, nextPageToken string) *auth.UserIterator
}

type AuthService struct {
	provider IdentityProvider
	clients  ClientStore
	logger   *slog.Logger
}

func NewAuthService(provider IdentityProvider, clients ClientStore, logger *slog.Logger) *AuthService {
	return &AuthService{provider: provider, clients: clients, logger: logger}
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// VerifyToken checks a Firebase ID token and reads the role custom claim.
func (s *AuthService) VerifyToken(ctx context.Context, idToken string) (*identity.Identity, error) {
	token, err := s.provider.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &identity.Identity{
		UID:   token.UID,
		Email: claimString(token.Claims, "email"),
		Name:  claimString(token.Claims, "name"),
		Role:  identity.Role(claimString(token.Claims, "role")),
	}, nil
}

func toUser(rec *auth.UserRecord) *identity.User {
	u := &identity.User{Disabled: rec.Disabled}
	if rec.UserInfo != nil {
		u.UID = rec.UID
		u.Email = rec.Email
		u.DisplayName = rec.DisplayName
	}
	if role, ok := rec.CustomClaims["role"].(string); ok {
		u.Role = identity.Role(role)
	}
	return u
}

func (s *AuthService) CreateUser(ctx context.Context, req *identity.CreateUserRequest) (*identity.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, apperrors.Validationf("invalid email")
	}
	if len(req.Password) < 6 {
		return nil, apperrors.Validationf("password must have at least 6 characters")
	}
	if req.Role != "" && !req.Role.Valid() {
		return nil, apperrors.Validationf("invalid role %q", req.Role)
	}

	params := (&auth.UserToCreate{}).Email(req.Email).Password(req.Password)
	if req.DisplayName != "" {
		params = params.DisplayName(req.DisplayName)
	}
	rec, err := s.provider.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, apperrors.Validationf("email already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user := toUser(rec)
	if req.Role != "" {
		if err := s.provider.SetCustomUserClaims(ctx, rec.UID, map[string]interface{}{"role": string(req.Role)}); err != nil {
			return nil, fmt.Errorf("user %s created but role not set: %w", rec.UID, err)
		}
		user.Role = req.Role
	}
	s.logger.Info("user created", "uid", rec.UID, "role", req.Role)
	return user, nil
}

func (s *AuthService) SetRole(ctx context.Context, uid string, role identity.Role) error {
	if !role.Valid() {
		return apperrors.Validationf("invalid role %q", role)
	}
	if err := s.provider.SetCustomUserClaims(ctx, uid, map[string]interface{}{"role": string(role)}); err != nil {
		if auth.IsUserNotFound(err) {
			return apperrors.NotFoundf("user %s not found", uid)
		}
		return fmt.Errorf("failed to set role: %w", err)
	}
	s.logger.Info("role updated", "uid", uid, "role", role)
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, uid string) (*identity.User, error) {
	rec, err := s.provider.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, apperrors.NotFoundf("user %s not found", uid)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return toUser(rec), nil
}

func (s *AuthService) ListUsers(ctx context.Context, pageSize int, pageToken string) (*identity.UserPage, error) {
	if pageSize <= 0 || pageSize > maxUserPageSize {
		pageSize = 100
	}
	var records []*auth.ExportedUserRecord
	pager := iterator.NewPager(s.provider.Users(ctx, ""), pageSize, pageToken)
	next, err := pager.NextPage(&records)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	page := &identity.UserPage{Users: make([]*identity.User, 0, len(records)), NextPageToken: next}
	for _, rec := range records {
		page.Users = append(page.Users, toUser(rec.UserRecord))
	}
	return page, nil
}

// DeleteIdentity removes the identity account, treating an already missing
// account as success.
func (s *AuthService) DeleteIdentity(ctx context.Context, uid string) error {
	if err := s.provider.DeleteUser(ctx, uid); err != nil && !auth.IsUserNotFound(err) {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// DeleteUser removes the identity account and then, best effort, the client
// records linked to it.
func (s *AuthService) DeleteUser(ctx context.Context, uid string) error {
	if err := s.provider.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return apperrors.NotFoundf("user %s not found", uid)
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	linked, err := s.clients.ListByUID(ctx, uid)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("user deleted but linked clients not looked up", "uid", uid, "error", err)
		return nil
	}
	if len(linked) == 0 {
		return nil
	}
	ids := make([]string, len(linked))
	for i, c := range linked {
		ids[i] = c.ID
	}
	if err := s.clients.DeleteMany(ctx, ids); err != nil {
		s.logger.Warn("user deleted but linked clients remain", "uid", uid, "client_ids", ids, "error", err)
	}
	s.logger.Info("user deleted", "uid", uid, "client_ids", ids)
	return nil
}
