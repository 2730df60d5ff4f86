package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrConcurrentUpdate   = errors.New("concurrent update detected")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

type AccountRepository struct {
	*pg.DB
}

func NewAccountRepository(db *pg.DB) *AccountRepository {
	return &AccountRepository{
		db,
	}
}

func (r *AccountRepository) Get(ctx context.Context, userID int64) (*model.Account, error) {
	var entity AccountEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return toAccountModel(&entity), nil
}

// GetForUpdate reads the account under a row lock. Must run inside
// WithinTransaction so the lock holds until commit.
func (r *AccountRepository) GetForUpdate(ctx context.Context, userID int64) (*model.Account, error) {
	var entity AccountEntity
	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return toAccountModel(&entity), nil
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	var entity AccountEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("username = ?", username).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return toAccountModel(&entity), nil
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) (*model.Account, error) {
	entity := toAccountEntity(account)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toAccountModel(entity), nil
}

// AdjustBalance applies a signed delta to the account balance with automatic
// retry. A negative delta that would take the balance below zero fails with
// ErrInsufficientFunds and leaves the balance untouched.
func (r *AccountRepository) AdjustBalance(ctx context.Context, userID int64, delta float64) error {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := r.adjustBalanceAttempt(ctx, userID, delta)

		if err == nil {
			return nil
		}

		// Don't retry on permanent errors
		if errors.Is(err, ErrAccountNotFound) ||
			errors.Is(err, ErrInsufficientFunds) {
			return err
		}

		// Retry on transient errors
		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *AccountRepository) adjustBalanceAttempt(ctx context.Context, userID int64, delta float64) error {
	var entity AccountEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if entity.Balance+delta < 0 {
		return ErrInsufficientFunds
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", delta))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}

// ResetBalance zeroes the balance and returns the amount that was wiped.
func (r *AccountRepository) ResetBalance(ctx context.Context, userID int64) (float64, error) {
	var entity AccountEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Where("user_id = ?", userID).
		Update("balance", 0)

	if result.Error != nil {
		return 0, result.Error
	}

	return entity.Balance, nil
}

func (r *AccountRepository) GetBalance(ctx context.Context, userID int64) (float64, error) {
	var entity AccountEntity
	err := r.Read(ctx).WithContext(ctx).
		Select("balance").
		Where("user_id = ?", userID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	return entity.Balance, nil
}

func (r *AccountRepository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Where("user_id = ?", userID).
		Update("banned", banned)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *AccountRepository) SetLastBonusAt(ctx context.Context, userID int64, at time.Time) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Where("user_id = ?", userID).
		Update("last_bonus_at", at)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *AccountRepository) CountReferrals(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Where("referrer_id = ?", userID).
		Count(&count).
		Error

	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *AccountRepository) TopReferrers(ctx context.Context, limit int) ([]*model.ReferrerRank, error) {
	var rows []*model.ReferrerRank
	err := r.Read(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Select("accounts.user_id, accounts.username, COUNT(referred.user_id) AS referrals").
		Joins("JOIN accounts AS referred ON referred.referrer_id = accounts.user_id").
		Group("accounts.user_id, accounts.username").
		Order("referrals DESC").
		Limit(limit).
		Scan(&rows).
		Error

	if err != nil {
		return nil, err
	}

	return rows, nil
}

// ListActiveIDs returns the chat ids of every account that is not banned.
// Used to fan out broadcasts.
func (r *AccountRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Where("banned = ?", false).
		Order("user_id ASC").
		Pluck("user_id", &ids).
		Error

	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *AccountRepository) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats

	err := r.Read(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Count(&stats.TotalAccounts).
		Error
	if err != nil {
		return nil, err
	}

	var total *float64
	err = r.Read(ctx).WithContext(ctx).
		Model(&AccountEntity{}).
		Select("SUM(balance)").
		Scan(&total).
		Error
	if err != nil {
		return nil, err
	}
	if total != nil {
		stats.TotalBalance = *total
	}

	err = r.Read(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("created_at > ?", time.Now().Add(-24*time.Hour)).
		Count(&stats.Transactions24h).
		Error
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
