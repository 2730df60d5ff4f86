package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/starledger/starbot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPromoCodeRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPromoCodeRepository(db)
	ctx := context.Background()

	promo, err := repo.Create(ctx, &model.PromoCode{
		Code:          "WELCOME10",
		Amount:        10,
		UsesRemaining: 5,
		Active:        true,
	})
	require.NoError(t, err)
	assert.False(t, promo.CreatedAt.IsZero())

	_, err = repo.Create(ctx, &model.PromoCode{
		Code:          "WELCOME10",
		Amount:        20,
		UsesRemaining: 1,
		Active:        true,
	})
	assert.ErrorIs(t, err, ErrPromoExists)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: promo_codes.code")))
	assert.True(t, isUniqueViolation(errors.New(`duplicate key value violates unique constraint "promo_codes_pkey"`)))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
}

func TestPromoCodeRepository_LookupActive(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPromoCodeRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.PromoCode{
		Code:          "SPRING",
		Amount:        3,
		UsesRemaining: 2,
		Active:        true,
	})
	require.NoError(t, err)

	promo, err := repo.LookupActive(ctx, "SPRING")
	require.NoError(t, err)
	assert.Equal(t, 3.0, promo.Amount)

	_, err = repo.LookupActive(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrPromoNotFound)

	t.Run("filters inactive and exhausted codes", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.PromoCode{
			Code:          "PAUSED",
			Amount:        3,
			UsesRemaining: 2,
			Active:        false,
		})
		require.NoError(t, err)

		_, err = repo.LookupActive(ctx, "PAUSED")
		assert.ErrorIs(t, err, ErrPromoNotFound)

		_, err = repo.Create(ctx, &model.PromoCode{
			Code:          "SPENT",
			Amount:        3,
			UsesRemaining: 0,
			Active:        true,
		})
		require.NoError(t, err)

		_, err = repo.LookupActive(ctx, "SPENT")
		assert.ErrorIs(t, err, ErrPromoNotFound)
	})
}

func TestPromoCodeRepository_StoresExplicitInactive(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPromoCodeRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.PromoCode{
		Code:          "OFF",
		Amount:        2,
		UsesRemaining: 3,
		Active:        false,
	})
	require.NoError(t, err)

	promos, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, promos, 1)
	assert.False(t, promos[0].Active)
}

func TestPromoCodeRepository_Redeem(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPromoCodeRepository(db)
	ctx := context.Background()

	t.Run("decrements uses", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.PromoCode{
			Code:          "MULTI",
			Amount:        5,
			UsesRemaining: 3,
			Active:        true,
		})
		require.NoError(t, err)

		promo, err := repo.Redeem(ctx, "MULTI")
		require.NoError(t, err)
		assert.Equal(t, int64(2), promo.UsesRemaining)
		assert.True(t, promo.Active)
	})

	t.Run("last use deactivates", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.PromoCode{
			Code:          "LAST",
			Amount:        5,
			UsesRemaining: 1,
			Active:        true,
		})
		require.NoError(t, err)

		promo, err := repo.Redeem(ctx, "LAST")
		require.NoError(t, err)
		assert.Equal(t, int64(0), promo.UsesRemaining)
		assert.False(t, promo.Active)

		_, err = repo.Redeem(ctx, "LAST")
		assert.ErrorIs(t, err, ErrPromoNotFound)
	})

	t.Run("inactive code", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.PromoCode{
			Code:          "DEAD",
			Amount:        5,
			UsesRemaining: 4,
			Active:        false,
		})
		require.NoError(t, err)

		_, err = repo.Redeem(ctx, "DEAD")
		assert.ErrorIs(t, err, ErrPromoNotFound)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := repo.Redeem(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrPromoNotFound)
	})
}

func TestPromoCodeRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPromoCodeRepository(db)
	ctx := context.Background()

	codes := []string{"A", "B", "C"}
	for _, c := range codes {
		_, err := repo.Create(ctx, &model.PromoCode{Code: c, Amount: 1, UsesRemaining: 1, Active: true})
		require.NoError(t, err)
	}

	got, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
