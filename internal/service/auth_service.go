package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"storefront/internal/auth"
	apperrors "storefront/internal/errors"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 10

// AuthService handles registration, login and token revocation.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (accessToken string, user *model.User, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
	CurrentUser(ctx context.Context, claims *auth.Claims) (*model.User, error)
	// EnsureAdmin creates an admin account, or promotes and re-keys an existing one.
	// created reports whether a new row was inserted.
	EnsureAdmin(ctx context.Context, email, password string) (user *model.User, created bool, err error)
}

type authService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
	denyList   auth.TokenDenyList
	bcryptCost int
	// dummyHash is compared on the unknown-email path so both login failures cost one bcrypt check.
	dummyHash []byte
}

// NewAuthService creates a new authentication service.
func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService, denyList auth.TokenDenyList, bcryptCost int) AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = DefaultBcryptCost
	}
	// Only fails for passwords over 72 bytes.
	dummyHash, _ := bcrypt.GenerateFromPassword([]byte("storefront-unknown-account"), bcryptCost)
	return &authService{
		userRepo:   userRepo,
		jwtService: jwtService,
		denyList:   denyList,
		bcryptCost: bcryptCost,
		dummyHash:  dummyHash,
	}
}

// Register creates a user with role "user" and a bcrypt password hash.
func (s *authService) Register(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email & password required", apperrors.ErrInvalidInput)
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, apperrors.ErrEmailTaken
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration of the same email.
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperrors.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Login verifies credentials and returns a signed access token. Unknown emails and
// wrong passwords produce the same error.
func (s *authService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("%w: email & password required", apperrors.ErrInvalidInput)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return "", nil, apperrors.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperrors.ErrInvalidCredentials
	}

	token, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("generate access token: %w", err)
	}

	return token, user, nil
}

// Logout revokes the presented token until it would have expired.
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return apperrors.ErrUnauthorized
	}
	if s.denyList == nil {
		return nil
	}
	if err := s.denyList.Revoke(ctx, claims.ID, claims.RemainingTTL(time.Now())); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// CurrentUser loads the account named by the token's subject.
func (s *authService) CurrentUser(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	if claims == nil {
		return nil, apperrors.ErrUnauthorized
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, apperrors.ErrUnauthorized
	}
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return user, nil
}

func (s *authService) EnsureAdmin(ctx context.Context, email, password string) (*model.User, bool, error) {
	if email == "" || password == "" {
		return nil, false, fmt.Errorf("%w: email & password required", apperrors.ErrInvalidInput)
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("check user existence: %w", err)
	}

	if existing != nil {
		if err := s.userRepo.UpdateRole(ctx, existing.ID, model.RoleAdmin); err != nil {
			return nil, false, fmt.Errorf("promote user %d: %w", existing.ID, err)
		}
		if err := s.userRepo.UpdatePasswordHash(ctx, existing.ID, hash); err != nil {
			return nil, false, fmt.Errorf("reset password for user %d: %w", existing.ID, err)
		}
		existing.Role = model.RoleAdmin
		existing.PasswordHash = hash
		return existing, false, nil
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	return user, true, nil
}

func (s *authService) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", apperrors.ErrInvalidInput)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}
