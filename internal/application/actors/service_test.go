package actors

import (
	"context"
	"testing"

	"greencoin-backend/internal/infrastructure/database/dbtest"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupActors(t *testing.T) *Service {
	return &Service{DB: dbtest.Open(t)}
}

func TestRegister_And_Authenticate(t *testing.T) {
	s := setupActors(t)
	ctx := context.Background()

	a, err := s.Register(ctx, RegisterInput{Username: "Plant_7", Password: "hydrogen99", Name: "Plant Seven", Organization: "H2 Co", Role: constants.Producer})
	require.NoError(t, err)
	assert.Equal(t, "plant_7", a.Username)
	assert.NotEqual(t, "hydrogen99", a.PasswordHash)

	got, err := s.Authenticate(ctx, "plant_7", "hydrogen99")
	require.NoError(t, err)
	assert.Equal(t, a.ActorID, got.ActorID)

	_, err = s.Authenticate(ctx, "plant_7", "wrongpass1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody", "hydrogen99")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Rejects(t *testing.T) {
	s := setupActors(t)
	ctx := context.Background()

	_, err := s.Register(ctx, RegisterInput{Username: "buyer1", Password: "hydrogen99", Name: "B", Role: "admin"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = s.Register(ctx, RegisterInput{Username: "buyer1", Password: "short", Name: "B", Role: constants.Buyer})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = s.Register(ctx, RegisterInput{Username: "buyer1", Password: "hydrogen99", Name: "B", Role: constants.Buyer})
	require.NoError(t, err)
	_, err = s.Register(ctx, RegisterInput{Username: "BUYER1", Password: "hydrogen99", Name: "B", Role: constants.Buyer})
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestSetBlacklisted_LoadActive(t *testing.T) {
	s := setupActors(t)
	ctx := context.Background()
	a, err := s.Register(ctx, RegisterInput{Username: "buyer2", Password: "hydrogen99", Name: "Buyer Two", Role: constants.Buyer})
	require.NoError(t, err)

	_, err = LoadActive(s.DB, a.ActorID, constants.Buyer)
	require.NoError(t, err)
	_, err = LoadActive(s.DB, a.ActorID, constants.Producer)
	assert.ErrorIs(t, err, apperror.ErrNotAuthorized())

	updated, err := s.SetBlacklisted(ctx, a.ActorID, true)
	require.NoError(t, err)
	assert.True(t, updated.Blacklisted)
	_, err = LoadActive(s.DB, a.ActorID)
	assert.ErrorIs(t, err, apperror.ErrNotAuthorized())

	_, err = s.SetBlacklisted(ctx, uuid.New(), true)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}
