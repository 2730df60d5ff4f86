package repository

import (
	"time"

	"github.com/starledger/starbot/internal/model"
)

type AccountEntity struct {
	UserID       int64      `db:"user_id"       gorm:"primaryKey;column:user_id"`
	Username     string     `db:"username"      gorm:"column:username;not null;default:''"`
	Balance      float64    `db:"balance"       gorm:"column:balance;not null;default:0"`
	ReferrerID   *int64     `db:"referrer_id"   gorm:"column:referrer_id;index"`
	RegisteredAt time.Time  `db:"registered_at" gorm:"column:registered_at;not null"`
	LastBonusAt  *time.Time `db:"last_bonus_at" gorm:"column:last_bonus_at"`
	Banned       bool       `db:"banned"        gorm:"column:banned;not null;default:false"`
}

func (AccountEntity) TableName() string {
	return "accounts"
}

func toAccountEntity(m *model.Account) *AccountEntity {
	if m == nil {
		return nil
	}
	return &AccountEntity{
		UserID:       m.UserID,
		Username:     m.Username,
		Balance:      m.Balance,
		ReferrerID:   m.ReferrerID,
		RegisteredAt: m.RegisteredAt,
		LastBonusAt:  m.LastBonusAt,
		Banned:       m.Banned,
	}
}

func toAccountModel(e *AccountEntity) *model.Account {
	if e == nil {
		return nil
	}
	return &model.Account{
		UserID:       e.UserID,
		Username:     e.Username,
		Balance:      e.Balance,
		ReferrerID:   e.ReferrerID,
		RegisteredAt: e.RegisteredAt,
		LastBonusAt:  e.LastBonusAt,
		Banned:       e.Banned,
	}
}

func toAccountModels(entities []*AccountEntity) []*model.Account {
	if entities == nil {
		return nil
	}
	models := make([]*model.Account, len(entities))
	for i, e := range entities {
		models[i] = toAccountModel(e)
	}
	return models
}
