package repository

import (
	"time"

	"github.com/starledger/starbot/internal/model"
)

type TransactionEntity struct {
	ID         int64     `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	ReceiverID int64     `db:"receiver_id" gorm:"column:receiver_id;not null;index"`
	SenderID   *int64    `db:"sender_id"   gorm:"column:sender_id;index"`
	Amount     float64   `db:"amount"      gorm:"column:amount;not null"`
	Kind       string    `db:"kind"        gorm:"column:kind;not null"`
	Reference  string    `db:"reference"   gorm:"column:reference;not null;default:''"`
	CreatedAt  time.Time `db:"created_at"  gorm:"column:created_at;not null;index"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:         m.ID,
		ReceiverID: m.ReceiverID,
		SenderID:   m.SenderID,
		Amount:     m.Amount,
		Kind:       string(m.Kind),
		Reference:  m.Reference,
		CreatedAt:  m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:         e.ID,
		ReceiverID: e.ReceiverID,
		SenderID:   e.SenderID,
		Amount:     e.Amount,
		Kind:       model.TransactionKind(e.Kind),
		Reference:  e.Reference,
		CreatedAt:  e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
