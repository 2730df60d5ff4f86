package repository

import (
	"context"
	"time"

	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/pkg/pg"
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

type TransactionFilter struct {
	ReceiverID *int64
	Kind       *model.TransactionKind
	Limit      int
	Offset     int
}

// List returns ledger entries newest first.
func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*model.Transaction, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{})

	if filter.ReceiverID != nil {
		q = q.Where("receiver_id = ?", *filter.ReceiverID)
	}
	if filter.Kind != nil {
		q = q.Where("kind = ?", string(*filter.Kind))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var entities []*TransactionEntity
	if err := q.Order("created_at DESC, id DESC").Find(&entities).Error; err != nil {
		return nil, err
	}

	return toTransactionModels(entities), nil
}

// SumFor returns the signed sum of all entries credited to the account. With
// every balance change writing a matching entry, this reconciles against the
// stored balance.
func (r *TransactionRepository) SumFor(ctx context.Context, receiverID int64) (float64, error) {
	var sum *float64
	err := r.Read(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Select("SUM(amount)").
		Where("receiver_id = ?", receiverID).
		Scan(&sum).
		Error

	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}

	return *sum, nil
}
