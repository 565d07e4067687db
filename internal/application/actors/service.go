package actors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"
	"greencoin-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = apperror.New(apperror.KindUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")

// Service registers and looks up actors. Identity is a stub: bcrypt hashes and a Redis session.
type Service struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

type RegisterInput struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Role         string `json:"role"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.Actor, error) {
	username := strings.TrimSpace(strings.ToLower(in.Username))
	name := strings.TrimSpace(in.Name)
	switch {
	case !validation.IsValidUsername(username):
		return nil, apperror.Validation("Username must be 3-32 letters, digits, dots, dashes or underscores")
	case !validation.IsValidPassword(in.Password):
		return nil, apperror.Validation("Password must be at least 8 characters with a letter and a number")
	case !validation.IsValidName(name):
		return nil, apperror.Validation("Name is required and contains invalid characters")
	case !constants.IsValidRole(in.Role):
		return nil, apperror.Validation("Role must be one of producer, buyer, auditor, regulator")
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.Actor{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return nil, apperror.New(apperror.KindConflict, "USERNAME_TAKEN", "Username already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), 10)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	actor := &domain.Actor{
		Username:     username,
		PasswordHash: string(hash),
		Name:         name,
		Organization: strings.TrimSpace(in.Organization),
		Role:         in.Role,
	}
	if err := s.DB.WithContext(ctx).Create(actor).Error; err != nil {
		return nil, fmt.Errorf("create actor: %w", err)
	}
	s.Log.Info().Str("actor_id", actor.ActorID.String()).Str("role", actor.Role).Msg("actor registered")
	return actor, nil
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.Actor, error) {
	if username == "" || password == "" {
		return nil, apperror.Validation("Username and password are required")
	}
	var actor domain.Actor
	err := s.DB.WithContext(ctx).Where("username = ?", strings.ToLower(strings.TrimSpace(username))).First(&actor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find actor: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(actor.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &actor, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Actor, error) {
	return Load(s.DB.WithContext(ctx), id)
}

// List returns actors of role ("" for all) ordered by name.
func (s *Service) List(ctx context.Context, role string) ([]domain.Actor, error) {
	var out []domain.Actor
	q := s.DB.WithContext(ctx).Order("name ASC")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	return out, nil
}

// SetBlacklisted flips the compliance flag. Existing records of the actor are not touched.
func (s *Service) SetBlacklisted(ctx context.Context, id uuid.UUID, blacklisted bool) (*domain.Actor, error) {
	res := s.DB.WithContext(ctx).Model(&domain.Actor{}).Where("actor_id = ?", id).Update("blacklisted", blacklisted)
	if res.Error != nil {
		return nil, fmt.Errorf("update blacklist flag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.NotFound("Actor")
	}
	s.Log.Warn().Str("actor_id", id.String()).Bool("blacklisted", blacklisted).Msg("actor compliance flag changed")
	return s.Get(ctx, id)
}

// Load reads an actor within db (may be a transaction).
func Load(db *gorm.DB, id uuid.UUID) (*domain.Actor, error) {
	if id == uuid.Nil {
		return nil, apperror.Validation("actor id is required")
	}
	var actor domain.Actor
	err := db.Where("actor_id = ?", id).First(&actor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Actor")
	}
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	return &actor, nil
}

// LoadActive loads an actor that is not blacklisted and holds one of roles (any role when empty).
func LoadActive(db *gorm.DB, id uuid.UUID, roles ...string) (*domain.Actor, error) {
	actor, err := Load(db, id)
	if err != nil {
		return nil, err
	}
	if actor.Blacklisted {
		return nil, apperror.ErrNotAuthorized()
	}
	if len(roles) == 0 {
		return actor, nil
	}
	for _, r := range roles {
		if actor.Role == r {
			return actor, nil
		}
	}
	return nil, apperror.ErrNotAuthorized()
}
