package repository

import (
	"time"

	"github.com/starledger/starbot/internal/model"
)

type PromoCodeEntity struct {
	Code          string    `db:"code"           gorm:"primaryKey;column:code"`
	Amount        float64   `db:"amount"         gorm:"column:amount;not null"`
	UsesRemaining int64     `db:"uses_remaining" gorm:"column:uses_remaining;not null"`
	Active        bool      `db:"active"         gorm:"column:active;not null"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;not null"`
}

func (PromoCodeEntity) TableName() string {
	return "promo_codes"
}

func toPromoCodeEntity(m *model.PromoCode) *PromoCodeEntity {
	if m == nil {
		return nil
	}
	return &PromoCodeEntity{
		Code:          m.Code,
		Amount:        m.Amount,
		UsesRemaining: m.UsesRemaining,
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
	}
}

func toPromoCodeModel(e *PromoCodeEntity) *model.PromoCode {
	if e == nil {
		return nil
	}
	return &model.PromoCode{
		Code:          e.Code,
		Amount:        e.Amount,
		UsesRemaining: e.UsesRemaining,
		Active:        e.Active,
		CreatedAt:     e.CreatedAt,
	}
}
