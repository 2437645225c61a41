package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"sendflow/internal/apperrors"
	"sendflow/internal/models"
	"sendflow/internal/store"
)

const recipientSearchLimit = 10

type UserService struct {
	profiles store.ProfileStore
	logger   zerolog.Logger
}

func NewUserService(profiles store.ProfileStore, logger zerolog.Logger) *UserService {
	return &UserService{
		profiles: profiles,
		logger:   logger,
	}
}

func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	if req.Email == "" || req.Phone == "" || req.Password == "" || req.FullName == "" {
		return nil, apperrors.ErrMissingFields
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing password")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := s.profiles.CreateProfile(ctx, &models.User{
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hashedPassword),
		Role:         models.RoleUser,
		Country:      strings.ToUpper(strings.TrimSpace(req.Country)),
	})
	if errors.Is(err, store.ErrDuplicateProfile) {
		return nil, apperrors.ErrUserExists
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating user")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("user_id", user.ID).Str("email", user.Email).Str("role", string(user.Role)).Msg("User registered successfully")
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, req *models.LoginRequest) (*models.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	user, err := s.profiles.GetProfileByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Error querying user")
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn().Str("email", req.Email).Msg("Failed authentication attempt")
		return nil, apperrors.ErrInvalidCredentials
	}

	s.logger.Info().Int("user_id", user.ID).Str("email", user.Email).Msg("User authenticated successfully")
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Msg("Error fetching user")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return user, nil
}

// VerifyPassword re-authenticates a signed-in user.
func (s *UserService) VerifyPassword(ctx context.Context, userID int, password string) error {
	if password == "" {
		return apperrors.ErrInvalidCredentials
	}
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Int("user_id", userID).Msg("Failed re-authentication attempt")
		return apperrors.ErrInvalidCredentials
	}
	return nil
}

// FindRecipient searches the directory by phone or email fragment. The caller
// is never part of the result.
func (s *UserService) FindRecipient(ctx context.Context, session models.Session, term string) ([]models.Recipient, error) {
	term = strings.TrimSpace(term)
	if len(term) < 3 {
		return []models.Recipient{}, nil
	}

	users, err := s.profiles.SearchProfiles(ctx, term, session.UserID, recipientSearchLimit)
	if err != nil {
		s.logger.Error().Err(err).Int("user_id", session.UserID).Msg("Error searching recipients")
		return nil, fmt.Errorf("failed to search recipients: %w", err)
	}

	recipients := make([]models.Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, u.AsRecipient())
	}
	return recipients, nil
}

func (s *UserService) UpdateUserRole(ctx context.Context, admin models.Session, userID int, newRole models.Role) error {
	if admin.Role != models.RoleAdmin {
		return apperrors.ErrForbidden
	}
	if !newRole.Valid() {
		return errors.New("invalid role")
	}
	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return err
	}

	if err := s.profiles.UpdateRole(ctx, userID, newRole); err != nil {
		s.logger.Error().Err(err).Int("user_id", userID).Str("new_role", string(newRole)).Msg("Error updating user role")
		return fmt.Errorf("failed to update user role: %w", err)
	}

	s.logger.Info().Int("user_id", userID).Str("new_role", string(newRole)).Int("admin_id", admin.UserID).Msg("User role updated")
	return nil
}
