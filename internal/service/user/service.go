package user

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
	userrepo "storefront/internal/repository/user"
)

// Service keeps the local user record in step with the identity supplied by
// the auth gateway and checks the admin capability.
type Service struct {
	repo         userrepo.Repository
	adminKeyHash []byte
}

// New creates a Service. An empty adminKeyHash disables admin access.
func New(repo userrepo.Repository, adminKeyHash string) *Service {
	return &Service{repo: repo, adminKeyHash: []byte(strings.TrimSpace(adminKeyHash))}
}

// IdentifyInput carries what the gateway tells us about the caller.
type IdentifyInput struct {
	UserID      string
	Email       string
	DisplayName string
}

// Identify makes sure a user record exists so orders can be linked to it.
func (s *Service) Identify(ctx context.Context, in IdentifyInput) (*domain.User, error) {
	id := strings.TrimSpace(in.UserID)
	if id == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.repo.Ensure(ctx, domain.User{
		ID:          id,
		Email:       strings.TrimSpace(strings.ToLower(in.Email)),
		DisplayName: strings.TrimSpace(in.DisplayName),
	})
}

func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

// IsAdmin reports whether key matches the configured admin key hash.
func (s *Service) IsAdmin(key string) bool {
	if len(s.adminKeyHash) == 0 || key == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword(s.adminKeyHash, []byte(key))
	return err == nil
}

// HashAdminKey produces the value expected in ADMIN_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("admin key required")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
