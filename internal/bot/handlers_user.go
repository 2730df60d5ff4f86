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

func (b *Bot) handleStart(ctx *th.Context, update telego.Update) error {
	message := update.Message
	userID := message.From.ID

	var referrerID *int64
	if parts := strings.Split(message.Text, " "); len(parts) > 1 {
		if id, err := strconv.ParseInt(parts[1], 10, 64); err == nil && id > 0 {
			referrerID = &id
		}
	}

	account, created, err := b.ledger.RegisterAccount(ctx.Context(), userID, message.From.Username, referrerID)
	if err != nil {
		logger.Error("registration failed", "user", userID, "error", err)
		b.send(ctx, userID, "Something went wrong, please try again later.")
		return nil
	}

	if account.Banned {
		b.send(ctx, userID, "Your account is blocked.")
		return nil
	}

	greeting := fmt.Sprintf("Welcome back, %s! ⭐", message.From.FirstName)
	if created {
		greeting = fmt.Sprintf("Hi, %s! 👋\n\nEarn stars by inviting friends, claiming the daily bonus and redeeming promo codes.", message.From.FirstName)
	}

	b.sendWithKeyboard(ctx, userID, greeting, mainMenuKeyboard())
	return nil
}

// account loads the caller's account and stops the interaction for banned or
// unknown users.
func (b *Bot) account(ctx *th.Context, userID int64) (*model.Account, bool) {
	account, err := b.ledger.Account(ctx.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			b.send(ctx, userID, "Please press /start first.")
		} else {
			logger.Error("account lookup failed", "user", userID, "error", err)
			b.send(ctx, userID, "Something went wrong, please try again later.")
		}
		return nil, false
	}
	if account.Banned {
		b.send(ctx, userID, "Your account is blocked.")
		return nil, false
	}
	return account, true
}

func (b *Bot) handleMainMenu(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)

	if _, ok := b.account(ctx, userID); !ok {
		return nil
	}

	_ = b.sessions.Clear(userID)
	b.sendWithKeyboard(ctx, userID, "Main menu:", mainMenuKeyboard())
	return nil
}

func (b *Bot) handleProfile(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)

	if _, ok := b.account(ctx, userID); !ok {
		return nil
	}

	profile, err := b.ledger.Profile(ctx.Context(), userID)
	if err != nil {
		logger.Error("profile failed", "user", userID, "error", err)
		b.send(ctx, userID, "Something went wrong, please try again later.")
		return nil
	}

	b.sendWithKeyboard(ctx, userID, renderProfile(profile), backKeyboard())
	return nil
}

func (b *Bot) handleDailyBonus(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)

	if _, ok := b.account(ctx, userID); !ok {
		return nil
	}

	amount, err := b.ledger.ClaimDailyBonus(ctx.Context(), userID)
	if err != nil {
		var cooldown *services.BonusCooldownError
		if errors.As(err, &cooldown) {
			b.sendWithKeyboard(ctx, userID,
				fmt.Sprintf("⏳ Too soon! Next bonus in %s.", formatDuration(cooldown.Remaining)),
				backKeyboard())
			return nil
		}
		logger.Error("daily bonus failed", "user", userID, "error", err)
		b.send(ctx, userID, "Something went wrong, please try again later.")
		return nil
	}

	b.sendWithKeyboard(ctx, userID,
		fmt.Sprintf("🎁 You received %s stars! Come back tomorrow.", formatAmount(amount)),
		backKeyboard())
	return nil
}

func (b *Bot) handlePromoPrompt(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)

	if _, ok := b.account(ctx, userID); !ok {
		return nil
	}

	if err := b.sessions.Set(userID, session.State{Step: session.StepEnterPromo}); err != nil {
		logger.Error("session set failed", "user", userID, "error", err)
	}
	b.send(ctx, userID, "🎟 Enter your promo code:")
	return nil
}

func (b *Bot) handleReferralLink(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)

	if _, ok := b.account(ctx, userID); !ok {
		return nil
	}

	profile, err := b.ledger.Profile(ctx.Context(), userID)
	if err != nil {
		logger.Error("profile failed", "user", userID, "error", err)
		b.send(ctx, userID, "Something went wrong, please try again later.")
		return nil
	}

	link := fmt.Sprintf("https://t.me/%s?start=%d", b.username, userID)
	text := fmt.Sprintf(
		"🤝 Invite friends and earn stars!\n\nFriends invited: %d\n\nYour link:\n%s",
		profile.Referrals, link)
	b.sendWithKeyboard(ctx, userID, text, backKeyboard())
	return nil
}

func (b *Bot) handleWithdrawMenu(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)

	account, ok := b.account(ctx, userID)
	if !ok {
		return nil
	}

	text := fmt.Sprintf("💸 Your balance: %s stars.\nChoose an amount to withdraw:", formatAmount(account.Balance))
	b.sendWithKeyboard(ctx, userID, text, withdrawKeyboard(b.ledger.WithdrawalOptions()))
	return nil
}

func (b *Bot) handleWithdrawAmount(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)

	if _, ok := b.account(ctx, userID); !ok {
		return nil
	}

	raw := strings.TrimPrefix(update.CallbackQuery.Data, cbWithdrawAmount)
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		b.send(ctx, userID, "Unknown withdrawal amount.")
		return nil
	}

	receipt, err := b.ledger.Withdraw(ctx.Context(), userID, amount)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientFunds):
			b.sendWithKeyboard(ctx, userID, "❌ Not enough stars for this amount.", backKeyboard())
		case errors.Is(err, services.ErrInvalidAmount):
			b.sendWithKeyboard(ctx, userID, "Unknown withdrawal amount.", backKeyboard())
		default:
			logger.Error("withdrawal failed", "user", userID, "error", err)
			b.send(ctx, userID, "Something went wrong, please try again later.")
		}
		return nil
	}

	b.sendWithKeyboard(ctx, userID,
		fmt.Sprintf("✅ Withdrawal accepted!\n\nReceipt #%d for %s stars.\nOur team will process it shortly.",
			receipt.ID, formatAmount(-receipt.Amount)),
		backKeyboard())
	return nil
}

func (b *Bot) handleHistory(ctx *th.Context, update telego.Update) error {
	userID := update.CallbackQuery.From.ID
	defer b.answerCallback(ctx, update.CallbackQuery.ID)

	if _, ok := b.account(ctx, userID); !ok {
		return nil
	}

	txns, err := b.ledger.History(ctx.Context(), userID, 15)
	if err != nil {
		logger.Error("history failed", "user", userID, "error", err)
		b.send(ctx, userID, "Something went wrong, please try again later.")
		return nil
	}

	b.sendWithKeyboard(ctx, userID, renderHistory("📜 Your last transactions:", txns), backKeyboard())
	return nil
}

// handleTextInput routes free-form messages by the chat's dialog step.
func (b *Bot) handleTextInput(ctx *th.Context, update telego.Update) error {
	userID := update.Message.From.ID
	text := strings.TrimSpace(update.Message.Text)

	state, ok, err := b.sessions.Get(userID)
	if err != nil {
		logger.Error("session get failed", "user", userID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	switch state.Step {
	case session.StepEnterPromo:
		b.finishPromoEntry(ctx, userID, text)
	case session.StepAdminSearch:
		b.finishAdminSearch(ctx, userID, text)
	case session.StepAdminGrant:
		b.finishAdminGrant(ctx, userID, state.TargetID, text)
	case session.StepAdminRevoke:
		b.finishAdminRevoke(ctx, userID, state.TargetID, text)
	case session.StepAdminBroadcast:
		b.finishAdminBroadcast(ctx, userID, text)
	case session.StepAdminCreatePromo:
		b.finishAdminCreatePromo(ctx, userID, text)
	default:
		return nil
	}

	_ = b.sessions.Clear(userID)
	return nil
}

func (b *Bot) finishPromoEntry(ctx *th.Context, userID int64, code string) {
	if _, ok := b.account(ctx, userID); !ok {
		return
	}

	promo, err := b.ledger.RedeemPromo(ctx.Context(), userID, code)
	if err != nil {
		if errors.Is(err, services.ErrPromoNotFound) {
			b.sendWithKeyboard(ctx, userID, "❌ This code doesn't exist or has run out.", backKeyboard())
			return
		}
		logger.Error("promo redemption failed", "user", userID, "error", err)
		b.send(ctx, userID, "Something went wrong, please try again later.")
		return
	}

	b.sendWithKeyboard(ctx, userID,
		fmt.Sprintf("🎉 Code accepted! You received %s stars.", formatAmount(promo.Amount)),
		backKeyboard())
}
