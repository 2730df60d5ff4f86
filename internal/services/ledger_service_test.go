package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_RegisterAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account once", func(t *testing.T) {
		f := setupLedger(t)

		account, created, err := f.service.RegisterAccount(ctx, 100, "alice", nil)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "alice", account.Username)
		assert.Equal(t, 0.0, account.Balance)

		_, created, err = f.service.RegisterAccount(ctx, 100, "alice", nil)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("credits referrer", func(t *testing.T) {
		f := setupLedger(t)

		_, _, err := f.service.RegisterAccount(ctx, 1, "ref", nil)
		require.NoError(t, err)

		f.notifier.On("Notify", mock.Anything, int64(1), mock.AnythingOfType("string")).Return(nil)

		referrer := int64(1)
		_, created, err := f.service.RegisterAccount(ctx, 2, "joiner", &referrer)
		require.NoError(t, err)
		assert.True(t, created)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 8.5, balance, 1e-9)

		history, err := f.service.History(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, model.KindReferral, history[0].Kind)
		assert.InDelta(t, 8.5, history[0].Amount, 1e-9)
		require.NotNil(t, history[0].SenderID)
		assert.Equal(t, int64(2), *history[0].SenderID)

		f.notifier.AssertExpectations(t)
	})

	t.Run("self referral skipped", func(t *testing.T) {
		f := setupLedger(t)

		referrer := int64(5)
		account, created, err := f.service.RegisterAccount(ctx, 5, "selfie", &referrer)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Nil(t, account.ReferrerID)
		assert.Equal(t, 0.0, account.Balance)
	})

	t.Run("unknown referrer skipped", func(t *testing.T) {
		f := setupLedger(t)

		referrer := int64(999)
		account, created, err := f.service.RegisterAccount(ctx, 6, "orphan", &referrer)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Nil(t, account.ReferrerID)
	})

	t.Run("notify failure does not fail registration", func(t *testing.T) {
		f := setupLedger(t)

		_, _, err := f.service.RegisterAccount(ctx, 1, "ref", nil)
		require.NoError(t, err)

		f.notifier.On("Notify", mock.Anything, int64(1), mock.AnythingOfType("string")).
			Return(errors.New("blocked by user"))

		referrer := int64(1)
		_, _, err = f.service.RegisterAccount(ctx, 2, "joiner", &referrer)
		require.NoError(t, err)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 8.5, balance, 1e-9)
	})
}

func TestLedgerService_ClaimDailyBonus(t *testing.T) {
	ctx := context.Background()

	t.Run("first claim", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		amount, err := f.service.ClaimDailyBonus(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, amount, 1e-9)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, balance, 1e-9)

		history, err := f.service.History(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, model.KindDailyBonus, history[0].Kind)
	})

	t.Run("second claim too soon", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		_, err = f.service.ClaimDailyBonus(ctx, 1)
		require.NoError(t, err)

		_, err = f.service.ClaimDailyBonus(ctx, 1)
		assert.ErrorIs(t, err, ErrBonusTooSoon)

		var cooldown *BonusCooldownError
		require.ErrorAs(t, err, &cooldown)
		assert.Greater(t, cooldown.Remaining, time.Duration(0))
		assert.LessOrEqual(t, cooldown.Remaining, 24*time.Hour)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, balance, 1e-9)
	})

	t.Run("claim after interval", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		_, err = f.service.ClaimDailyBonus(ctx, 1)
		require.NoError(t, err)

		f.service.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

		_, err = f.service.ClaimDailyBonus(ctx, 1)
		require.NoError(t, err)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, balance, 1e-9)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := setupLedger(t)
		_, err := f.service.ClaimDailyBonus(ctx, 999)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	// A reader racing with a concurrent claim can see last_bonus_at before
	// that claim commits. The gate must only trust the locked in-transaction
	// read, so even a repository whose plain Get always reports the bonus as
	// unclaimed cannot double-apply it.
	t.Run("cooldown holds against stale reads", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		stale := &staleGetAccounts{AccountRepository: f.accounts}
		service := NewLedgerService(stale, f.txns, f.promos, f.notifier, f.payout, RewardConfig{}, nil)

		_, err = service.ClaimDailyBonus(ctx, 1)
		require.NoError(t, err)

		_, err = service.ClaimDailyBonus(ctx, 1)
		assert.ErrorIs(t, err, ErrBonusTooSoon)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, balance, 1e-9)

		history, err := service.History(ctx, 1, 10)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

// staleGetAccounts serves plain Get from a view where no bonus was ever
// claimed, mimicking a read that raced with a concurrent claim.
type staleGetAccounts struct {
	*repository.AccountRepository
}

func (r *staleGetAccounts) Get(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := r.AccountRepository.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	account.LastBonusAt = nil
	return account, nil
}

func TestLedgerService_RedeemPromo(t *testing.T) {
	ctx := context.Background()

	t.Run("redeems and credits", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		_, err = f.service.CreatePromo(ctx, "WELCOME10", 10, 2)
		require.NoError(t, err)

		promo, err := f.service.RedeemPromo(ctx, 1, "  welcome10 ")
		require.NoError(t, err)
		assert.Equal(t, int64(1), promo.UsesRemaining)
		assert.True(t, promo.Active)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 10, balance, 1e-9)

		history, err := f.service.History(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, model.KindPromo, history[0].Kind)
		assert.Equal(t, "WELCOME10", history[0].Reference)
	})

	t.Run("last use deactivates", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)
		_, _, err = f.service.RegisterAccount(ctx, 2, "v", nil)
		require.NoError(t, err)

		_, err = f.service.CreatePromo(ctx, "SOLO", 5, 1)
		require.NoError(t, err)

		_, err = f.service.RedeemPromo(ctx, 1, "SOLO")
		require.NoError(t, err)

		_, err = f.service.RedeemPromo(ctx, 2, "SOLO")
		assert.ErrorIs(t, err, ErrPromoNotFound)

		balance, err := f.accounts.GetBalance(ctx, 2)
		require.NoError(t, err)
		assert.InDelta(t, 0, balance, 1e-9)
	})

	t.Run("unknown code", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		_, err = f.service.RedeemPromo(ctx, 1, "NOPE")
		assert.ErrorIs(t, err, ErrPromoNotFound)
	})
}

func TestLedgerService_Withdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid denomination", func(t *testing.T) {
		f := setupLedger(t)
		_, err := f.service.Withdraw(ctx, 1, 33)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		f.notifier.On("Notify", mock.Anything, int64(1), mock.AnythingOfType("string")).Return(nil)
		err = f.service.Grant(ctx, 9, 1, 10)
		require.NoError(t, err)

		_, err = f.service.Withdraw(ctx, 1, 25)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 10, balance, 1e-9)

		history, err := f.service.History(ctx, 1, 10)
		require.NoError(t, err)
		assert.Len(t, history, 1) // only the grant
	})

	t.Run("successful withdrawal", func(t *testing.T) {
		f := setupLedger(t, 77)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		f.notifier.On("Notify", mock.Anything, int64(1), mock.AnythingOfType("string")).Return(nil)
		err = f.service.Grant(ctx, 9, 1, 100)
		require.NoError(t, err)

		f.payout.On("SubmitWithdrawal", mock.Anything, mock.AnythingOfType("model.WithdrawalRequest")).Return(nil)
		f.notifier.On("Notify", mock.Anything, int64(77), mock.AnythingOfType("string")).Return(nil)

		receipt, err := f.service.Withdraw(ctx, 1, 50)
		require.NoError(t, err)
		assert.InDelta(t, -50, receipt.Amount, 1e-9)
		assert.Equal(t, model.KindWithdrawal, receipt.Kind)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 50, balance, 1e-9)

		f.payout.AssertExpectations(t)
		f.notifier.AssertExpectations(t)
	})

	t.Run("payout desk failure tolerated", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		f.notifier.On("Notify", mock.Anything, int64(1), mock.AnythingOfType("string")).Return(nil)
		err = f.service.Grant(ctx, 9, 1, 25)
		require.NoError(t, err)

		f.payout.On("SubmitWithdrawal", mock.Anything, mock.Anything).Return(errors.New("desk down"))

		_, err = f.service.Withdraw(ctx, 1, 25)
		require.NoError(t, err)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0, balance, 1e-9)
	})
}

func TestLedgerService_AdminAdjustments(t *testing.T) {
	ctx := context.Background()

	t.Run("grant and revoke", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		f.notifier.On("Notify", mock.Anything, int64(1), mock.AnythingOfType("string")).Return(nil)
		err = f.service.Grant(ctx, 9, 1, 30)
		require.NoError(t, err)

		err = f.service.Revoke(ctx, 9, 1, 12.5)
		require.NoError(t, err)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 17.5, balance, 1e-9)

		history, err := f.service.History(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, model.KindAdminRevoke, history[0].Kind)
		assert.InDelta(t, -12.5, history[0].Amount, 1e-9)
	})

	t.Run("revoke more than balance", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		f.notifier.On("Notify", mock.Anything, int64(1), mock.AnythingOfType("string")).Return(nil)
		err = f.service.Grant(ctx, 9, 1, 5)
		require.NoError(t, err)

		err = f.service.Revoke(ctx, 9, 1, 10)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 5, balance, 1e-9)
	})

	t.Run("invalid amounts", func(t *testing.T) {
		f := setupLedger(t)
		assert.ErrorIs(t, f.service.Grant(ctx, 9, 1, -1), ErrInvalidAmount)
		assert.ErrorIs(t, f.service.Revoke(ctx, 9, 1, 0), ErrInvalidAmount)
	})

	t.Run("reset balance", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		f.notifier.On("Notify", mock.Anything, int64(1), mock.AnythingOfType("string")).Return(nil)
		err = f.service.Grant(ctx, 9, 1, 42)
		require.NoError(t, err)

		prior, err := f.service.ResetBalance(ctx, 9, 1)
		require.NoError(t, err)
		assert.InDelta(t, 42, prior, 1e-9)

		balance, err := f.accounts.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0, balance, 1e-9)

		history, err := f.service.History(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, model.KindAdminReset, history[0].Kind)
		assert.InDelta(t, -42, history[0].Amount, 1e-9)
	})

	t.Run("nil notifier tolerated", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		service := NewLedgerService(f.accounts, f.txns, f.promos, nil, f.payout, RewardConfig{}, nil)

		require.NoError(t, service.Grant(ctx, 9, 1, 3))
		require.NoError(t, service.Revoke(ctx, 9, 1, 1))

		prior, err := service.ResetBalance(ctx, 9, 1)
		require.NoError(t, err)
		assert.InDelta(t, 2, prior, 1e-9)
	})

	t.Run("reset empty account writes no entry", func(t *testing.T) {
		f := setupLedger(t)
		_, _, err := f.service.RegisterAccount(ctx, 1, "u", nil)
		require.NoError(t, err)

		prior, err := f.service.ResetBalance(ctx, 9, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0, prior, 1e-9)

		history, err := f.service.History(ctx, 1, 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestLedgerService_Reconcile(t *testing.T) {
	ctx := context.Background()
	f := setupLedger(t)

	_, _, err := f.service.RegisterAccount(ctx, 1, "ref", nil)
	require.NoError(t, err)

	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.payout.On("SubmitWithdrawal", mock.Anything, mock.Anything).Return(nil)

	referrer := int64(1)
	_, _, err = f.service.RegisterAccount(ctx, 2, "joiner", &referrer)
	require.NoError(t, err)

	_, err = f.service.ClaimDailyBonus(ctx, 1)
	require.NoError(t, err)

	err = f.service.Grant(ctx, 9, 1, 50)
	require.NoError(t, err)

	_, err = f.service.Withdraw(ctx, 1, 25)
	require.NoError(t, err)

	balance, sum, err := f.service.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, balance, sum, 1e-9)
	assert.InDelta(t, 34.0, balance, 1e-9) // 8.5 + 0.5 + 50 - 25
}

func TestLedgerService_CreatePromo(t *testing.T) {
	ctx := context.Background()
	f := setupLedger(t)

	promo, err := f.service.CreatePromo(ctx, " spring ", 3, 5)
	require.NoError(t, err)
	assert.Equal(t, "SPRING", promo.Code)

	_, err = f.service.CreatePromo(ctx, "SPRING", 4, 1)
	assert.ErrorIs(t, err, ErrPromoExists)

	_, err = f.service.CreatePromo(ctx, "", 3, 5)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.service.CreatePromo(ctx, "X", -1, 5)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.service.CreatePromo(ctx, "X", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerService_Profile(t *testing.T) {
	ctx := context.Background()
	f := setupLedger(t)

	_, _, err := f.service.RegisterAccount(ctx, 1, "ref", nil)
	require.NoError(t, err)

	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	referrer := int64(1)
	for id := int64(2); id <= 4; id++ {
		_, _, err = f.service.RegisterAccount(ctx, id, "joiner", &referrer)
		require.NoError(t, err)
	}

	profile, err := f.service.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), profile.Referrals)
	assert.InDelta(t, 25.5, profile.Account.Balance, 1e-9)

	_, err = f.service.Profile(ctx, 999)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLedgerService_IsAdmin(t *testing.T) {
	f := setupLedger(t, 10, 20)
	assert.True(t, f.service.IsAdmin(10))
	assert.True(t, f.service.IsAdmin(20))
	assert.False(t, f.service.IsAdmin(30))
}
