package bot

import (
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	cbProfile        = "profile"
	cbDailyBonus     = "daily_bonus"
	cbEnterPromo     = "enter_promo"
	cbReferral       = "referral"
	cbWithdraw       = "withdraw"
	cbWithdrawAmount = "withdraw:"
	cbHistory        = "history"
	cbMainMenu       = "main_menu"

	cbAdminMenu        = "adm:menu"
	cbAdminStats       = "adm:stats"
	cbAdminTop         = "adm:top"
	cbAdminLedger      = "adm:ledger"
	cbAdminPromos      = "adm:promos"
	cbAdminSearch      = "adm:search"
	cbAdminBroadcast   = "adm:broadcast"
	cbAdminCreatePromo = "adm:newpromo"
	cbAdminGrant       = "adm:grant:"
	cbAdminRevoke      = "adm:revoke:"
	cbAdminReset       = "adm:reset:"
	cbAdminBan         = "adm:ban:"
	cbAdminHistory     = "adm:history:"
)

func mainMenuKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("⭐ Profile").WithCallbackData(cbProfile),
			tu.InlineKeyboardButton("🎁 Daily bonus").WithCallbackData(cbDailyBonus),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🎟 Promo code").WithCallbackData(cbEnterPromo),
			tu.InlineKeyboardButton("🤝 Invite friends").WithCallbackData(cbReferral),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("💸 Withdraw").WithCallbackData(cbWithdraw),
			tu.InlineKeyboardButton("📜 History").WithCallbackData(cbHistory),
		),
	)
}

func backKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("« Back").WithCallbackData(cbMainMenu),
		),
	)
}

func withdrawKeyboard(options []float64) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(options)+1)
	for _, opt := range options {
		label := fmt.Sprintf("%s ⭐", formatAmount(opt))
		data := fmt.Sprintf("%s%s", cbWithdrawAmount, formatAmount(opt))
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(label).WithCallbackData(data),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("« Back").WithCallbackData(cbMainMenu),
	))
	return tu.InlineKeyboard(rows...)
}

func adminMenuKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📊 Stats").WithCallbackData(cbAdminStats),
			tu.InlineKeyboardButton("🏆 Top referrers").WithCallbackData(cbAdminTop),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🔎 Find user").WithCallbackData(cbAdminSearch),
			tu.InlineKeyboardButton("📜 Recent ledger").WithCallbackData(cbAdminLedger),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📣 Broadcast").WithCallbackData(cbAdminBroadcast),
			tu.InlineKeyboardButton("🎟 New promo").WithCallbackData(cbAdminCreatePromo),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🗂 Promo codes").WithCallbackData(cbAdminPromos),
		),
	)
}

func adminUserKeyboard(userID int64, banned bool) *telego.InlineKeyboardMarkup {
	banLabel := "🚫 Ban"
	if banned {
		banLabel = "✅ Unban"
	}
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("➕ Grant").WithCallbackData(fmt.Sprintf("%s%d", cbAdminGrant, userID)),
			tu.InlineKeyboardButton("➖ Revoke").WithCallbackData(fmt.Sprintf("%s%d", cbAdminRevoke, userID)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("♻️ Reset balance").WithCallbackData(fmt.Sprintf("%s%d", cbAdminReset, userID)),
			tu.InlineKeyboardButton(banLabel).WithCallbackData(fmt.Sprintf("%s%d", cbAdminBan, userID)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📜 History").WithCallbackData(fmt.Sprintf("%s%d", cbAdminHistory, userID)),
			tu.InlineKeyboardButton("« Menu").WithCallbackData(cbAdminMenu),
		),
	)
}
