package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrPromoNotFound = errors.New("promo code not found")
	ErrPromoExists   = errors.New("promo code already exists")
)

type PromoCodeRepository struct {
	*pg.DB
}

func NewPromoCodeRepository(db *pg.DB) *PromoCodeRepository {
	return &PromoCodeRepository{
		db,
	}
}

func (r *PromoCodeRepository) Create(ctx context.Context, promo *model.PromoCode) (*model.PromoCode, error) {
	entity := toPromoCodeEntity(promo)
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}

	err := r.WithinTransaction(ctx, func(txCtx context.Context) error {
		var existing PromoCodeEntity
		err := r.Write(txCtx).WithContext(txCtx).
			Where("code = ?", entity.Code).
			First(&existing).
			Error

		if err == nil {
			return ErrPromoExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// The check above can race with a concurrent insert of the same
		// code, so the constraint error is translated as well.
		if err := r.Write(txCtx).WithContext(txCtx).Create(entity).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrPromoExists
			}
			return err
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return toPromoCodeModel(entity), nil
}

// LookupActive returns the code only while it can still be redeemed.
// Inactive or exhausted codes report ErrPromoNotFound, same as unknown ones.
func (r *PromoCodeRepository) LookupActive(ctx context.Context, code string) (*model.PromoCode, error) {
	var entity PromoCodeEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("code = ? AND active = ? AND uses_remaining > 0", code, true).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromoNotFound
		}
		return nil, err
	}

	return toPromoCodeModel(&entity), nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// Redeem consumes one use of an active code. The decrement and the
// deactivation of the last use happen in a single conditional UPDATE, so two
// concurrent redemptions of a one-use code cannot both succeed.
func (r *PromoCodeRepository) Redeem(ctx context.Context, code string) (*model.PromoCode, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&PromoCodeEntity{}).
		Where("code = ? AND active = ? AND uses_remaining > 0", code, true).
		Updates(map[string]interface{}{
			"uses_remaining": gorm.Expr("uses_remaining - 1"),
			"active":         gorm.Expr("uses_remaining - 1 > 0"),
		})

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		return nil, ErrPromoNotFound
	}

	var entity PromoCodeEntity
	err := r.Write(ctx).WithContext(ctx).
		Where("code = ?", code).
		First(&entity).
		Error
	if err != nil {
		return nil, err
	}

	return toPromoCodeModel(&entity), nil
}

func (r *PromoCodeRepository) List(ctx context.Context) ([]*model.PromoCode, error) {
	var entities []*PromoCodeEntity
	err := r.Read(ctx).WithContext(ctx).
		Order("created_at DESC").
		Find(&entities).
		Error

	if err != nil {
		return nil, err
	}

	models := make([]*model.PromoCode, len(entities))
	for i, e := range entities {
		models[i] = toPromoCodeModel(e)
	}
	return models, nil
}
