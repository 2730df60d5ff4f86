package bot

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/starledger/starbot/internal/services"
	"github.com/starledger/starbot/internal/session"
	"github.com/starledger/starbot/pkg/logger"
)

// Broadcaster queues an announcement for every active account.
type Broadcaster interface {
	Broadcast(ctx context.Context, adminID int64, text string) (string, int64, error)
}

// Bot is the Telegram front end. All balance semantics live in the ledger
// service; handlers only parse input, drive dialogs and render replies.
type Bot struct {
	instance  *telego.Bot
	ledger    *services.LedgerService
	broadcast Broadcaster
	sessions  *session.Store
	handler   *th.BotHandler
	username  string
}

func New(token string, ledger *services.LedgerService, broadcast Broadcaster, sessions *session.Store) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		instance:  tgBot,
		ledger:    ledger,
		broadcast: broadcast,
		sessions:  sessions,
	}, nil
}

// Start registers the handlers and blocks processing updates until Stop.
func (b *Bot) Start(ctx context.Context) error {
	if me, err := b.instance.GetMe(ctx); err == nil {
		b.username = me.Username
	}

	updates, err := b.instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.instance, updates)
	if err != nil {
		return fmt.Errorf("create bot handler: %w", err)
	}
	b.handler = handler

	handler.Handle(b.handleStart, th.CommandEqual("start"))
	handler.Handle(b.handleAdminMenu, th.CommandEqual("admin"))

	handler.Handle(b.handleProfile, th.CallbackDataEqual(cbProfile))
	handler.Handle(b.handleDailyBonus, th.CallbackDataEqual(cbDailyBonus))
	handler.Handle(b.handlePromoPrompt, th.CallbackDataEqual(cbEnterPromo))
	handler.Handle(b.handleReferralLink, th.CallbackDataEqual(cbReferral))
	handler.Handle(b.handleWithdrawMenu, th.CallbackDataEqual(cbWithdraw))
	handler.Handle(b.handleWithdrawAmount, th.CallbackDataPrefix(cbWithdrawAmount))
	handler.Handle(b.handleHistory, th.CallbackDataEqual(cbHistory))
	handler.Handle(b.handleMainMenu, th.CallbackDataEqual(cbMainMenu))

	handler.Handle(b.handleAdminMenuCallback, th.CallbackDataEqual(cbAdminMenu))
	handler.Handle(b.handleAdminStats, th.CallbackDataEqual(cbAdminStats))
	handler.Handle(b.handleAdminTop, th.CallbackDataEqual(cbAdminTop))
	handler.Handle(b.handleAdminLedger, th.CallbackDataEqual(cbAdminLedger))
	handler.Handle(b.handleAdminPromos, th.CallbackDataEqual(cbAdminPromos))
	handler.Handle(b.handleAdminSearchPrompt, th.CallbackDataEqual(cbAdminSearch))
	handler.Handle(b.handleAdminBroadcastPrompt, th.CallbackDataEqual(cbAdminBroadcast))
	handler.Handle(b.handleAdminCreatePromoPrompt, th.CallbackDataEqual(cbAdminCreatePromo))
	handler.Handle(b.handleAdminGrantPrompt, th.CallbackDataPrefix(cbAdminGrant))
	handler.Handle(b.handleAdminRevokePrompt, th.CallbackDataPrefix(cbAdminRevoke))
	handler.Handle(b.handleAdminReset, th.CallbackDataPrefix(cbAdminReset))
	handler.Handle(b.handleAdminBan, th.CallbackDataPrefix(cbAdminBan))
	handler.Handle(b.handleAdminUserHistory, th.CallbackDataPrefix(cbAdminHistory))

	handler.Handle(b.handleTextInput, th.AnyMessageWithText())

	logger.Info("bot started", "username", b.username)
	return handler.Start()
}

func (b *Bot) Stop() {
	if b.handler != nil {
		_ = b.handler.Stop()
	}
}

// Notify implements services.Notifier.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	_, err := b.instance.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	return err
}

func (b *Bot) send(ctx *th.Context, chatID int64, text string) {
	_, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), text))
	if err != nil {
		logger.Warn("send failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) sendWithKeyboard(ctx *th.Context, chatID int64, text string, keyboard *telego.InlineKeyboardMarkup) {
	_, err := ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(chatID), text).WithReplyMarkup(keyboard))
	if err != nil {
		logger.Warn("send failed", "chat", chatID, "error", err)
	}
}

func (b *Bot) answerCallback(ctx *th.Context, callbackID string) {
	_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callbackID))
}
