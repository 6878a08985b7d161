package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openfantasy/leagueserver/internal/config"
	"github.com/openfantasy/leagueserver/internal/model"
	"github.com/openfantasy/leagueserver/internal/repository"
	"github.com/openfantasy/leagueserver/pkg/apperror"
	"github.com/openfantasy/leagueserver/pkg/storage"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// LoginFields is the resolved login identifier: exactly one of Email or
// Username is populated.
type LoginFields struct {
	Email    string
	Username string
}

// ResolveLoginFields classifies a user-supplied identifier as an email or a
// username and normalizes it. Pure pre-request transform: it never touches
// the database.
func ResolveLoginFields(identifier string) (LoginFields, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return LoginFields{}, apperror.Validation("email or username is required")
	}

	if strings.Contains(trimmed, "@") {
		return LoginFields{Email: strings.ToLower(trimmed)}, nil
	}

	if !usernamePattern.MatchString(trimmed) {
		return LoginFields{}, apperror.Validation("username must be 3-30 characters of letters, digits or underscore")
	}

	return LoginFields{Username: trimmed}, nil
}

type RegisterInput struct {
	Username string  `json:"username" form:"username" binding:"required,min=3,max=30"`
	Email    string  `json:"email" form:"email" binding:"required,email"`
	Password string  `json:"password" form:"password" binding:"required,min=8"`
	TeamName string  `json:"team_name" form:"team_name" binding:"required,max=100"`
	Bio      *string `json:"bio" form:"bio"`
}

// AvatarFile is an avatar image uploaded during registration.
type AvatarFile struct {
	Reader   io.Reader
	FileName string
}

type LoginInput struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type AuthResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	User        *model.User `json:"user"`
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput, avatar *AvatarFile) (*AuthResponse, error)
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
}

type authService struct {
	repo         repository.UserRepository
	imageStorage storage.ImageStorage
	secret       string
	tokenTTL     time.Duration
	defaultRole  string
}

func NewAuthService(repo repository.UserRepository, imageStorage storage.ImageStorage, cfg *config.Config) AuthService {
	ttl := time.Hour
	if cfg.JWTTTLMinutes > 0 {
		ttl = time.Duration(cfg.JWTTTLMinutes) * time.Minute
	}

	return &authService{
		repo:         repo,
		imageStorage: imageStorage,
		secret:       cfg.JWTSecret,
		tokenTTL:     ttl,
		defaultRole:  "manager",
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput, avatar *AvatarFile) (*AuthResponse, error) {
	if !usernamePattern.MatchString(input.Username) {
		return nil, apperror.Validation("username must be 3-30 characters of letters, digits or underscore")
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))

	if err := s.ensureUserUnique(ctx, email, input.Username); err != nil {
		return nil, err
	}

	role, err := s.repo.FindRoleByName(ctx, s.defaultRole)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("role %s not found", s.defaultRole)
		}
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Upload avatar (if any) after the business validations passed.
	var avatarURL *string
	if avatar != nil && avatar.Reader != nil && s.imageStorage != nil {
		url, err := s.imageStorage.UploadImage(ctx, avatar.Reader, "avatars", avatar.FileName)
		if err != nil {
			return nil, err
		}
		avatarURL = &url
	}

	roleID := role.ID
	user := &model.User{
		Username:     input.Username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		RoleID:       &roleID,
		AvatarURL:    avatarURL,
	}

	profile := &model.Profile{
		TeamName: strings.TrimSpace(input.TeamName),
		Bio:      normalizeOptional(input.Bio),
	}

	// Every manager gets a wallet from day one.
	wallet := &model.Wallet{}

	if err := s.repo.Create(ctx, user, profile, wallet); err != nil {
		return nil, err
	}

	createdUser, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	return s.buildAuthResponse(createdUser)
}

// Login resolves the identifier, looks the user up on the matching column and
// verifies the password. Any mismatch maps to the same generic error so the
// response never reveals which accounts exist.
func (s *authService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	fields, err := ResolveLoginFields(input.Identifier)
	if err != nil {
		return nil, err
	}

	var user *model.User
	if fields.Email != "" {
		user, err = s.repo.FindByEmail(ctx, fields.Email)
	} else {
		user, err = s.repo.FindByUsername(ctx, fields.Username)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	return s.buildAuthResponse(user)
}

func (s *authService) buildAuthResponse(user *model.User) (*AuthResponse, error) {
	token, expiresAt, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = ""

	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresAt,
		User:        user,
	}, nil
}

func (s *authService) generateToken(user *model.User) (string, int64, error) {
	expiresAt := time.Now().Add(s.tokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", 0, err
	}

	return signed, expiresAt.Unix(), nil
}

func (s *authService) ensureUserUnique(ctx context.Context, email, username string) error {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return apperror.Validation("email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return apperror.Validation("username already taken")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}

	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}

	result := trimmed
	return &result
}
