package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/internal/services"
	"github.com/starledger/starbot/internal/session"
	"github.com/starledger/starbot/pkg/logger"
)

// admin guards an admin interaction. Non-admins get no reply at all, so the
// panel stays invisible to regular users.
func (b *Bot) admin(userID int64) bool {
	return b.ledger.IsAdmin(userID)
}

func (b *Bot) handleAdminMenu(ctx *th.Context, update telego.Update) error {
	userID := update.Message.From.ID
	if !b.admin(userID) {
		return nil
	}

	b.sendWithKeyboard(ctx, userID, "🛠 Admin panel:", adminMenuKeyboard())
	return nil
}

func (b *Bot) handleAdminMenuCallback(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	_ = b.sessions.Clear(userID)
	b.sendWithKeyboard(ctx, userID, "🛠 Admin panel:", adminMenuKeyboard())
	return nil
}

func (b *Bot) handleAdminStats(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	stats, err := b.ledger.Stats(ctx.Context())
	if err != nil {
		logger.Error("stats failed", "error", err)
		b.send(ctx, userID, "Failed to load stats.")
		return nil
	}

	b.send(ctx, userID, renderStats(stats))
	return nil
}

func (b *Bot) handleAdminTop(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	top, err := b.ledger.TopReferrers(ctx.Context(), 10)
	if err != nil {
		logger.Error("top referrers failed", "error", err)
		b.send(ctx, userID, "Failed to load top referrers.")
		return nil
	}

	b.send(ctx, userID, renderTopReferrers(top))
	return nil
}

func (b *Bot) handleAdminLedger(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	txns, err := b.ledger.AllHistory(ctx.Context(), 20)
	if err != nil {
		logger.Error("ledger listing failed", "error", err)
		b.send(ctx, userID, "Failed to load the ledger.")
		return nil
	}

	b.send(ctx, userID, renderHistory("📜 Recent ledger entries:", txns))
	return nil
}

func (b *Bot) handleAdminPromos(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	promos, err := b.ledger.ListPromos(ctx.Context())
	if err != nil {
		logger.Error("promo listing failed", "error", err)
		b.send(ctx, userID, "Failed to load promo codes.")
		return nil
	}

	b.send(ctx, userID, renderPromoList(promos))
	return nil
}

func (b *Bot) handleAdminSearchPrompt(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	_ = b.sessions.Set(userID, session.State{Step: session.StepAdminSearch})
	b.send(ctx, userID, "🔎 Send a user id or @username:")
	return nil
}

func (b *Bot) handleAdminBroadcastPrompt(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	_ = b.sessions.Set(userID, session.State{Step: session.StepAdminBroadcast})
	b.send(ctx, userID, "📣 Send the broadcast text:")
	return nil
}

func (b *Bot) handleAdminCreatePromoPrompt(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	_ = b.sessions.Set(userID, session.State{Step: session.StepAdminCreatePromo})
	b.send(ctx, userID, "🎟 Send the new code as: CODE AMOUNT USES\nExample: WELCOME10 10 100")
	return nil
}

func (b *Bot) handleAdminGrantPrompt(ctx *th.Context, update telego.Update) error {
	return b.adminAmountPrompt(ctx, update, cbAdminGrant, session.StepAdminGrant, "➕ How many stars to grant?")
}

func (b *Bot) handleAdminRevokePrompt(ctx *th.Context, update telego.Update) error {
	return b.adminAmountPrompt(ctx, update, cbAdminRevoke, session.StepAdminRevoke, "➖ How many stars to revoke?")
}

func (b *Bot) adminAmountPrompt(ctx *th.Context, update telego.Update, prefix string, step session.Step, prompt string) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	targetID, err := strconv.ParseInt(strings.TrimPrefix(update.CallbackQuery.Data, prefix), 10, 64)
	if err != nil {
		return nil
	}

	_ = b.sessions.Set(userID, session.State{Step: step, TargetID: targetID})
	b.send(ctx, userID, prompt)
	return nil
}

func (b *Bot) handleAdminReset(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	targetID, err := strconv.ParseInt(strings.TrimPrefix(update.CallbackQuery.Data, cbAdminReset), 10, 64)
	if err != nil {
		return nil
	}

	prior, err := b.ledger.ResetBalance(ctx.Context(), userID, targetID)
	if err != nil {
		logger.Error("balance reset failed", "target", targetID, "error", err)
		b.send(ctx, userID, "Reset failed.")
		return nil
	}

	b.send(ctx, userID, fmt.Sprintf("♻️ Balance of %d reset to 0 (was %s).", targetID, formatAmount(prior)))
	return nil
}

func (b *Bot) handleAdminBan(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	targetID, err := strconv.ParseInt(strings.TrimPrefix(update.CallbackQuery.Data, cbAdminBan), 10, 64)
	if err != nil {
		return nil
	}

	account, err := b.ledger.Account(ctx.Context(), targetID)
	if err != nil {
		b.send(ctx, userID, "User not found.")
		return nil
	}

	if err := b.ledger.SetBanned(ctx.Context(), targetID, !account.Banned); err != nil {
		logger.Error("ban toggle failed", "target", targetID, "error", err)
		b.send(ctx, userID, "Ban toggle failed.")
		return nil
	}

	if account.Banned {
		b.send(ctx, userID, fmt.Sprintf("✅ User %d unbanned.", targetID))
	} else {
		b.send(ctx, userID, fmt.Sprintf("🚫 User %d banned.", targetID))
	}
	return nil
}

func (b *Bot) handleAdminUserHistory(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)
	if !b.admin(userID) {
		return nil
	}

	targetID, err := strconv.ParseInt(strings.TrimPrefix(update.CallbackQuery.Data, cbAdminHistory), 10, 64)
	if err != nil {
		return nil
	}

	txns, err := b.ledger.History(ctx.Context(), targetID, 20)
	if err != nil {
		logger.Error("history failed", "target", targetID, "error", err)
		b.send(ctx, userID, "Failed to load history.")
		return nil
	}

	b.send(ctx, userID, renderHistory(fmt.Sprintf("📜 Transactions of %d:", targetID), txns))
	return nil
}

func (b *Bot) finishAdminSearch(ctx *th.Context, userID int64, query string) {
	if !b.admin(userID) {
		return
	}

	var account *model.Account
	var err error
	if id, perr := strconv.ParseInt(query, 10, 64); perr == nil {
		account, err = b.ledger.Account(ctx.Context(), id)
	} else {
		account, err = b.ledger.FindByUsername(ctx.Context(), query)
	}

	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			b.send(ctx, userID, "❌ No such user.")
			return
		}
		logger.Error("user search failed", "query", query, "error", err)
		b.send(ctx, userID, "Search failed.")
		return
	}

	profile, err := b.ledger.Profile(ctx.Context(), account.UserID)
	referrals := int64(0)
	if err == nil {
		referrals = profile.Referrals
	}

	b.sendWithKeyboard(ctx, userID, renderAccountCard(account, referrals), adminUserKeyboard(account.UserID, account.Banned))
}

func (b *Bot) finishAdminGrant(ctx *th.Context, userID, targetID int64, text string) {
	if !b.admin(userID) {
		return
	}

	amount, err := strconv.ParseFloat(text, 64)
	if err != nil || amount <= 0 {
		b.send(ctx, userID, "❌ Enter a positive number.")
		return
	}

	if err := b.ledger.Grant(ctx.Context(), userID, targetID, amount); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			b.send(ctx, userID, "❌ No such user.")
			return
		}
		logger.Error("grant failed", "target", targetID, "error", err)
		b.send(ctx, userID, "Grant failed.")
		return
	}

	b.send(ctx, userID, fmt.Sprintf("➕ Granted %s stars to %d.", formatAmount(amount), targetID))
}

func (b *Bot) finishAdminRevoke(ctx *th.Context, userID, targetID int64, text string) {
	if !b.admin(userID) {
		return
	}

	amount, err := strconv.ParseFloat(text, 64)
	if err != nil || amount <= 0 {
		b.send(ctx, userID, "❌ Enter a positive number.")
		return
	}

	if err := b.ledger.Revoke(ctx.Context(), userID, targetID, amount); err != nil {
		switch {
		case errors.Is(err, services.ErrAccountNotFound):
			b.send(ctx, userID, "❌ No such user.")
		case errors.Is(err, services.ErrInsufficientFunds):
			b.send(ctx, userID, "❌ The user holds fewer stars than that.")
		default:
			logger.Error("revoke failed", "target", targetID, "error", err)
			b.send(ctx, userID, "Revoke failed.")
		}
		return
	}

	b.send(ctx, userID, fmt.Sprintf("➖ Revoked %s stars from %d.", formatAmount(amount), targetID))
}

func (b *Bot) finishAdminBroadcast(ctx *th.Context, userID int64, text string) {
	if !b.admin(userID) {
		return
	}
	if text == "" {
		b.send(ctx, userID, "❌ The broadcast text is empty.")
		return
	}

	_, total, err := b.broadcast.Broadcast(ctx.Context(), userID, text)
	if err != nil {
		logger.Error("broadcast failed", "admin", userID, "error", err)
		b.send(ctx, userID, "Broadcast failed.")
		return
	}

	b.send(ctx, userID, fmt.Sprintf("📣 Broadcast queued for %d users. You'll get a summary when it finishes.", total))
}

func (b *Bot) finishAdminCreatePromo(ctx *th.Context, userID int64, text string) {
	if !b.admin(userID) {
		return
	}

	parts := strings.Fields(text)
	if len(parts) != 3 {
		b.send(ctx, userID, "❌ Use the format: CODE AMOUNT USES")
		return
	}

	amount, err1 := strconv.ParseFloat(parts[1], 64)
	uses, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		b.send(ctx, userID, "❌ Use the format: CODE AMOUNT USES")
		return
	}

	promo, err := b.ledger.CreatePromo(ctx.Context(), parts[0], amount, uses)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPromoExists):
			b.send(ctx, userID, "❌ This code already exists.")
		case errors.Is(err, services.ErrInvalidAmount):
			b.send(ctx, userID, "❌ Amount and uses must be positive.")
		default:
			logger.Error("promo creation failed", "error", err)
			b.send(ctx, userID, "Promo creation failed.")
		}
		return
	}

	b.send(ctx, userID, fmt.Sprintf("🎟 Code %s created: %s stars, %d uses.",
		promo.Code, formatAmount(promo.Amount), promo.UsesRemaining))
}
