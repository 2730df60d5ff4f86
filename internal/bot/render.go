package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starledger/starbot/internal/model"
)

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func kindLabel(kind model.TransactionKind) string {
	switch kind {
	case model.KindReferral:
		return "Referral reward"
	case model.KindDailyBonus:
		return "Daily bonus"
	case model.KindPromo:
		return "Promo code"
	case model.KindAdminGrant:
		return "Granted by admin"
	case model.KindAdminRevoke:
		return "Revoked by admin"
	case model.KindAdminReset:
		return "Balance reset"
	case model.KindWithdrawal:
		return "Withdrawal"
	default:
		return string(kind)
	}
}

func renderProfile(p *model.Profile) string {
	return fmt.Sprintf(
		"⭐ Your profile\n\nID: %d\nBalance: %s stars\nFriends invited: %d\nMember since: %s",
		p.Account.UserID,
		formatAmount(p.Account.Balance),
		p.Referrals,
		p.Account.RegisteredAt.Format("02.01.2006"),
	)
}

func renderHistory(title string, txns []*model.Transaction) string {
	if len(txns) == 0 {
		return title + "\n\nNo transactions yet."
	}

	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	for _, txn := range txns {
		sign := "+"
		if txn.Amount < 0 {
			sign = ""
		}
		sb.WriteString(fmt.Sprintf("\n#%d  %s%s ⭐  %s  %s",
			txn.ID, sign, formatAmount(txn.Amount), kindLabel(txn.Kind), txn.CreatedAt.Format("02.01 15:04")))
		if txn.Reference != "" {
			sb.WriteString(" (" + txn.Reference + ")")
		}
	}
	return sb.String()
}

func renderStats(s *model.Stats) string {
	return fmt.Sprintf(
		"📊 Stats\n\nAccounts: %d\nTotal stars in circulation: %s\nTransactions in last 24h: %d",
		s.TotalAccounts,
		formatAmount(s.TotalBalance),
		s.Transactions24h,
	)
}

func renderTopReferrers(ranks []*model.ReferrerRank) string {
	if len(ranks) == 0 {
		return "🏆 Top referrers\n\nNobody has invited anyone yet."
	}

	var sb strings.Builder
	sb.WriteString("🏆 Top referrers\n")
	for i, r := range ranks {
		name := r.Username
		if name == "" {
			name = strconv.FormatInt(r.UserID, 10)
		}
		sb.WriteString(fmt.Sprintf("\n%d. @%s — %d invited", i+1, name, r.Referrals))
	}
	return sb.String()
}

func renderAccountCard(account *model.Account, referrals int64) string {
	status := "active"
	if account.Banned {
		status = "banned"
	}
	return fmt.Sprintf(
		"👤 @%s\n\nID: %d\nBalance: %s stars\nReferrals: %d\nStatus: %s\nRegistered: %s",
		account.Username,
		account.UserID,
		formatAmount(account.Balance),
		referrals,
		status,
		account.RegisteredAt.Format("02.01.2006"),
	)
}

func renderPromoList(promos []*model.PromoCode) string {
	if len(promos) == 0 {
		return "🗂 Promo codes\n\nNo codes created yet."
	}

	var sb strings.Builder
	sb.WriteString("🗂 Promo codes\n")
	for _, p := range promos {
		state := "active"
		if !p.Active {
			state = "exhausted"
		}
		sb.WriteString(fmt.Sprintf("\n%s — %s ⭐, %d uses left (%s)",
			p.Code, formatAmount(p.Amount), p.UsesRemaining, state))
	}
	return sb.String()
}
