package bot

import (
	"testing"
	"time"

	"github.com/starledger/starbot/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "8.5", formatAmount(8.5))
	assert.Equal(t, "25", formatAmount(25))
	assert.Equal(t, "0.5", formatAmount(0.5))
	assert.Equal(t, "-50", formatAmount(-50))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "23h 59m", formatDuration(23*time.Hour+59*time.Minute))
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "1h 0m", formatDuration(time.Hour))
}

func TestRenderHistory(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got := renderHistory("📜 Your last transactions:", nil)
		assert.Contains(t, got, "No transactions yet")
	})

	t.Run("signed amounts", func(t *testing.T) {
		txns := []*model.Transaction{
			{ID: 2, Amount: -25, Kind: model.KindWithdrawal, CreatedAt: time.Now()},
			{ID: 1, Amount: 8.5, Kind: model.KindReferral, CreatedAt: time.Now()},
		}
		got := renderHistory("title", txns)
		assert.Contains(t, got, "#2  -25 ⭐  Withdrawal")
		assert.Contains(t, got, "#1  +8.5 ⭐  Referral reward")
	})

	t.Run("promo reference shown", func(t *testing.T) {
		txns := []*model.Transaction{
			{ID: 3, Amount: 10, Kind: model.KindPromo, Reference: "WELCOME10", CreatedAt: time.Now()},
		}
		got := renderHistory("title", txns)
		assert.Contains(t, got, "(WELCOME10)")
	})
}

func TestRenderProfile(t *testing.T) {
	p := &model.Profile{
		Account: &model.Account{
			UserID:       42,
			Balance:      17.5,
			RegisteredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		Referrals: 3,
	}
	got := renderProfile(p)
	assert.Contains(t, got, "ID: 42")
	assert.Contains(t, got, "Balance: 17.5 stars")
	assert.Contains(t, got, "Friends invited: 3")
	assert.Contains(t, got, "01.03.2026")
}

func TestRenderPromoList(t *testing.T) {
	promos := []*model.PromoCode{
		{Code: "WELCOME10", Amount: 10, UsesRemaining: 5, Active: true},
		{Code: "DEAD", Amount: 3, UsesRemaining: 0, Active: false},
	}
	got := renderPromoList(promos)
	assert.Contains(t, got, "WELCOME10 — 10 ⭐, 5 uses left (active)")
	assert.Contains(t, got, "DEAD — 3 ⭐, 0 uses left (exhausted)")
}
