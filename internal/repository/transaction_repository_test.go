package repository

import (
	"context"
	"testing"
	"time"

	"github.com/starledger/starbot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	sender := int64(2)
	created, err := repo.Create(ctx, &model.Transaction{
		ReceiverID: 1,
		SenderID:   &sender,
		Amount:     8.5,
		Kind:       model.KindReferral,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestTransactionRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	entries := []*model.Transaction{
		{ReceiverID: 1, Amount: 8.5, Kind: model.KindReferral, CreatedAt: time.Now().Add(-3 * time.Hour)},
		{ReceiverID: 1, Amount: 0.5, Kind: model.KindDailyBonus, CreatedAt: time.Now().Add(-2 * time.Hour)},
		{ReceiverID: 1, Amount: -25, Kind: model.KindWithdrawal, CreatedAt: time.Now().Add(-time.Hour)},
		{ReceiverID: 2, Amount: 10, Kind: model.KindPromo, CreatedAt: time.Now()},
	}
	for _, e := range entries {
		_, err := repo.Create(ctx, e)
		require.NoError(t, err)
	}

	t.Run("per receiver, newest first", func(t *testing.T) {
		receiver := int64(1)
		got, err := repo.List(ctx, TransactionFilter{ReceiverID: &receiver})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, model.KindWithdrawal, got[0].Kind)
		assert.Equal(t, model.KindReferral, got[2].Kind)
	})

	t.Run("by kind", func(t *testing.T) {
		kind := model.KindPromo
		got, err := repo.List(ctx, TransactionFilter{Kind: &kind})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2), got[0].ReceiverID)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := repo.List(ctx, TransactionFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestTransactionRepository_SumFor(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	entries := []*model.Transaction{
		{ReceiverID: 1, Amount: 8.5, Kind: model.KindReferral},
		{ReceiverID: 1, Amount: 0.5, Kind: model.KindDailyBonus},
		{ReceiverID: 1, Amount: -5, Kind: model.KindAdminRevoke},
		{ReceiverID: 2, Amount: 100, Kind: model.KindAdminGrant},
	}
	for _, e := range entries {
		_, err := repo.Create(ctx, e)
		require.NoError(t, err)
	}

	sum, err := repo.SumFor(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, sum, 1e-9)

	sum, err = repo.SumFor(ctx, 999)
	require.NoError(t, err)
	assert.InDelta(t, 0, sum, 1e-9)
}
