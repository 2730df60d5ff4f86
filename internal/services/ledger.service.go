package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starledger/starbot/internal/model"
	"github.com/starledger/starbot/internal/repository"
	"github.com/starledger/starbot/pkg/logger"
	"github.com/starledger/starbot/pkg/prom"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPromoNotFound     = errors.New("promo code not found or exhausted")
	ErrPromoExists       = errors.New("promo code already exists")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrBonusTooSoon      = errors.New("daily bonus not available yet")
	ErrBanned            = errors.New("account is banned")
)

// BonusCooldownError reports how long until the next daily bonus unlocks.
// errors.Is(err, ErrBonusTooSoon) matches it.
type BonusCooldownError struct {
	Remaining time.Duration
}

func (e *BonusCooldownError) Error() string {
	return fmt.Sprintf("daily bonus available in %s", e.Remaining.Round(time.Minute))
}

func (e *BonusCooldownError) Is(target error) bool {
	return target == ErrBonusTooSoon
}

type AccountRepository interface {
	Get(ctx context.Context, userID int64) (*model.Account, error)
	GetForUpdate(ctx context.Context, userID int64) (*model.Account, error)
	FindByUsername(ctx context.Context, username string) (*model.Account, error)
	Create(ctx context.Context, account *model.Account) (*model.Account, error)
	AdjustBalance(ctx context.Context, userID int64, delta float64) error
	ResetBalance(ctx context.Context, userID int64) (float64, error)
	SetBanned(ctx context.Context, userID int64, banned bool) error
	SetLastBonusAt(ctx context.Context, userID int64, at time.Time) error
	CountReferrals(ctx context.Context, userID int64) (int64, error)
	TopReferrers(ctx context.Context, limit int) ([]*model.ReferrerRank, error)
	Stats(ctx context.Context) (*model.Stats, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	List(ctx context.Context, filter repository.TransactionFilter) ([]*model.Transaction, error)
	SumFor(ctx context.Context, receiverID int64) (float64, error)
}

type PromoRepository interface {
	Create(ctx context.Context, promo *model.PromoCode) (*model.PromoCode, error)
	LookupActive(ctx context.Context, code string) (*model.PromoCode, error)
	Redeem(ctx context.Context, code string) (*model.PromoCode, error)
	List(ctx context.Context) ([]*model.PromoCode, error)
}

// Notifier delivers out-of-band messages (referral rewards, withdrawal
// receipts). Deliveries are best-effort: a failed notification never rolls
// back the ledger write it follows.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// PayoutGateway hands accepted withdrawals over to the payout desk.
type PayoutGateway interface {
	SubmitWithdrawal(ctx context.Context, req model.WithdrawalRequest) error
}

// RewardConfig carries the reward constants. Zero values are replaced with
// the defaults the bot has always used.
type RewardConfig struct {
	ReferralReward    float64
	DailyBonus        float64
	BonusInterval     time.Duration
	WithdrawalOptions []float64
}

func (c RewardConfig) withDefaults() RewardConfig {
	if c.ReferralReward == 0 {
		c.ReferralReward = 8.5
	}
	if c.DailyBonus == 0 {
		c.DailyBonus = 0.5
	}
	if c.BonusInterval == 0 {
		c.BonusInterval = 24 * time.Hour
	}
	if len(c.WithdrawalOptions) == 0 {
		c.WithdrawalOptions = []float64{25, 50, 100, 300}
	}
	return c
}

type LedgerService struct {
	accountRepo AccountRepository
	txnRepo     TransactionRepository
	promoRepo   PromoRepository
	notifier    Notifier
	payout      PayoutGateway
	rewards     RewardConfig
	adminIDs    []int64
	now         func() time.Time
}

func NewLedgerService(
	accountRepo AccountRepository,
	txnRepo TransactionRepository,
	promoRepo PromoRepository,
	notifier Notifier,
	payout PayoutGateway,
	rewards RewardConfig,
	adminIDs []int64,
) *LedgerService {
	return &LedgerService{
		accountRepo: accountRepo,
		txnRepo:     txnRepo,
		promoRepo:   promoRepo,
		notifier:    notifier,
		payout:      payout,
		rewards:     rewards.withDefaults(),
		adminIDs:    adminIDs,
		now:         time.Now,
	}
}

// RegisterAccount creates the account on first contact and credits the
// referrer. The created flag reports whether this call did the creation.
// Self-referrals and unknown referrers are skipped without error.
func (s *LedgerService) RegisterAccount(ctx context.Context, userID int64, username string, referrerID *int64) (*model.Account, bool, error) {
	if existing, err := s.accountRepo.Get(ctx, userID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, false, err
	}

	if referrerID != nil {
		if *referrerID == userID {
			referrerID = nil
		} else if _, err := s.accountRepo.Get(ctx, *referrerID); err != nil {
			if !errors.Is(err, repository.ErrAccountNotFound) {
				return nil, false, err
			}
			referrerID = nil
		}
	}

	account := &model.Account{
		UserID:       userID,
		Username:     username,
		ReferrerID:   referrerID,
		RegisteredAt: s.now(),
	}

	err := s.accountRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		created, err := s.accountRepo.Create(ctx, account)
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		account = created

		if referrerID == nil {
			return nil
		}

		if err := s.accountRepo.AdjustBalance(ctx, *referrerID, s.rewards.ReferralReward); err != nil {
			return fmt.Errorf("credit referrer: %w", err)
		}

		_, err = s.txnRepo.Create(ctx, &model.Transaction{
			ReceiverID: *referrerID,
			SenderID:   &userID,
			Amount:     s.rewards.ReferralReward,
			Kind:       model.KindReferral,
		})
		return err
	})
	if err != nil {
		prom.ObserveOperation("register", prom.OutcomeError)
		return nil, false, err
	}

	if referrerID != nil && s.notifier != nil {
		text := fmt.Sprintf("You earned %.1f stars! A new user joined with your link.", s.rewards.ReferralReward)
		if err := s.notifier.Notify(ctx, *referrerID, text); err != nil {
			logger.Warn("referral notify failed", "referrer", *referrerID, "error", err)
		}
	}

	prom.ObserveOperation("register", prom.OutcomeOK)
	return account, true, nil
}

// ClaimDailyBonus credits the daily bonus once per rolling interval. The
// cooldown check runs inside the transaction under the account's row lock,
// so two concurrent claims cannot both pass the gate.
func (s *LedgerService) ClaimDailyBonus(ctx context.Context, userID int64) (float64, error) {
	claimedAt := s.now()

	err := s.accountRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		account, err := s.accountRepo.GetForUpdate(ctx, userID)
		if err != nil {
			return mapAccountErr(err)
		}

		if account.LastBonusAt != nil {
			elapsed := claimedAt.Sub(*account.LastBonusAt)
			if elapsed < s.rewards.BonusInterval {
				return &BonusCooldownError{Remaining: s.rewards.BonusInterval - elapsed}
			}
		}

		if err := s.accountRepo.AdjustBalance(ctx, userID, s.rewards.DailyBonus); err != nil {
			return err
		}
		if err := s.accountRepo.SetLastBonusAt(ctx, userID, claimedAt); err != nil {
			return err
		}
		_, err = s.txnRepo.Create(ctx, &model.Transaction{
			ReceiverID: userID,
			Amount:     s.rewards.DailyBonus,
			Kind:       model.KindDailyBonus,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBonusTooSoon) {
			prom.ObserveOperation("daily_bonus", prom.OutcomeRejected)
		} else {
			prom.ObserveOperation("daily_bonus", prom.OutcomeError)
		}
		return 0, err
	}

	prom.ObserveOperation("daily_bonus", prom.OutcomeOK)
	return s.rewards.DailyBonus, nil
}

// RedeemPromo consumes one use of the code and credits its amount. Input is
// trimmed and uppercased before lookup.
func (s *LedgerService) RedeemPromo(ctx context.Context, userID int64, code string) (*model.PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrPromoNotFound
	}

	if _, err := s.accountRepo.Get(ctx, userID); err != nil {
		return nil, mapAccountErr(err)
	}

	// Cheap read-only filter; Redeem's conditional decrement stays the
	// authority for concurrent last-use redemptions.
	if _, err := s.promoRepo.LookupActive(ctx, code); err != nil {
		if errors.Is(err, repository.ErrPromoNotFound) {
			prom.ObserveOperation("promo", prom.OutcomeRejected)
			return nil, ErrPromoNotFound
		}
		return nil, err
	}

	var promo *model.PromoCode
	err := s.accountRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		redeemed, err := s.promoRepo.Redeem(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrPromoNotFound) {
				return ErrPromoNotFound
			}
			return err
		}
		promo = redeemed

		if err := s.accountRepo.AdjustBalance(ctx, userID, promo.Amount); err != nil {
			return err
		}

		_, err = s.txnRepo.Create(ctx, &model.Transaction{
			ReceiverID: userID,
			Amount:     promo.Amount,
			Kind:       model.KindPromo,
			Reference:  code,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrPromoNotFound) {
			prom.ObserveOperation("promo", prom.OutcomeRejected)
		} else {
			prom.ObserveOperation("promo", prom.OutcomeError)
		}
		return nil, err
	}

	prom.ObserveOperation("promo", prom.OutcomeOK)
	return promo, nil
}

// Withdraw debits one of the fixed denominations and records the receipt.
// The payout desk submission and admin notifications are best-effort.
func (s *LedgerService) Withdraw(ctx context.Context, userID int64, amount float64) (*model.Transaction, error) {
	if !s.isWithdrawalOption(amount) {
		return nil, ErrInvalidAmount
	}

	account, err := s.accountRepo.Get(ctx, userID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	var receipt *model.Transaction
	err = s.accountRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.accountRepo.AdjustBalance(ctx, userID, -amount); err != nil {
			if errors.Is(err, repository.ErrInsufficientFunds) {
				return ErrInsufficientFunds
			}
			return err
		}

		txn, err := s.txnRepo.Create(ctx, &model.Transaction{
			ReceiverID: userID,
			Amount:     -amount,
			Kind:       model.KindWithdrawal,
		})
		if err != nil {
			return err
		}
		receipt = txn
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			prom.ObserveOperation("withdrawal", prom.OutcomeRejected)
		} else {
			prom.ObserveOperation("withdrawal", prom.OutcomeError)
		}
		return nil, err
	}

	if s.payout != nil {
		req := model.WithdrawalRequest{
			RequestID: fmt.Sprintf("wd-%d", receipt.ID),
			UserID:    userID,
			Username:  account.Username,
			Amount:    amount,
		}
		if err := s.payout.SubmitWithdrawal(ctx, req); err != nil {
			logger.Error("payout desk submission failed", "request", req.RequestID, "error", err)
		}
	}

	s.notifyAdmins(ctx, fmt.Sprintf("Withdrawal request #%d: @%s (%d) for %.0f stars.", receipt.ID, account.Username, userID, amount))

	prom.ObserveOperation("withdrawal", prom.OutcomeOK)
	return receipt, nil
}

// Grant credits stars to an account on an admin's behalf.
func (s *LedgerService) Grant(ctx context.Context, adminID, userID int64, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.adminAdjust(ctx, adminID, userID, amount, model.KindAdminGrant, "grant")
}

// Revoke removes stars from an account. Fails with ErrInsufficientFunds if
// the account holds less than the amount.
func (s *LedgerService) Revoke(ctx context.Context, adminID, userID int64, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.adminAdjust(ctx, adminID, userID, -amount, model.KindAdminRevoke, "revoke")
}

func (s *LedgerService) adminAdjust(ctx context.Context, adminID, userID int64, delta float64, kind model.TransactionKind, op string) error {
	err := s.accountRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.accountRepo.AdjustBalance(ctx, userID, delta); err != nil {
			if errors.Is(err, repository.ErrInsufficientFunds) {
				return ErrInsufficientFunds
			}
			return mapAccountErr(err)
		}
		_, err := s.txnRepo.Create(ctx, &model.Transaction{
			ReceiverID: userID,
			SenderID:   &adminID,
			Amount:     delta,
			Kind:       kind,
		})
		return err
	})
	if err != nil {
		prom.ObserveOperation(op, prom.OutcomeError)
		return err
	}

	prom.ObserveOperation(op, prom.OutcomeOK)
	s.notifyAdjusted(ctx, userID, delta)
	return nil
}

// notifyAdjusted tells the affected user about an admin balance change.
// Delivery failures never surface to the admin action.
func (s *LedgerService) notifyAdjusted(ctx context.Context, userID int64, delta float64) {
	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf("⭐ %.1f stars were added to your balance.", delta)
	if delta < 0 {
		text = fmt.Sprintf("⭐ %.1f stars were removed from your balance.", -delta)
	}
	if err := s.notifier.Notify(ctx, userID, text); err != nil {
		logger.Warn("adjustment notify failed", "user", userID, "error", err)
	}
}

// ResetBalance zeroes the account and records the wiped amount as a single
// debit. Resetting an already empty account writes no ledger entry.
func (s *LedgerService) ResetBalance(ctx context.Context, adminID, userID int64) (float64, error) {
	var prior float64
	err := s.accountRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		wiped, err := s.accountRepo.ResetBalance(ctx, userID)
		if err != nil {
			return mapAccountErr(err)
		}
		prior = wiped

		if wiped == 0 {
			return nil
		}

		_, err = s.txnRepo.Create(ctx, &model.Transaction{
			ReceiverID: userID,
			SenderID:   &adminID,
			Amount:     -wiped,
			Kind:       model.KindAdminReset,
		})
		return err
	})
	if err != nil {
		prom.ObserveOperation("reset", prom.OutcomeError)
		return 0, err
	}

	prom.ObserveOperation("reset", prom.OutcomeOK)
	if prior != 0 {
		s.notifyAdjusted(ctx, userID, -prior)
	}
	return prior, nil
}

func (s *LedgerService) SetBanned(ctx context.Context, userID int64, banned bool) error {
	if err := s.accountRepo.SetBanned(ctx, userID, banned); err != nil {
		return mapAccountErr(err)
	}
	return nil
}

// CreatePromo registers a new code. The code is trimmed and uppercased.
func (s *LedgerService) CreatePromo(ctx context.Context, code string, amount float64, uses int64) (*model.PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || amount <= 0 || uses <= 0 {
		return nil, ErrInvalidAmount
	}

	promo, err := s.promoRepo.Create(ctx, &model.PromoCode{
		Code:          code,
		Amount:        amount,
		UsesRemaining: uses,
		Active:        true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrPromoExists) {
			return nil, ErrPromoExists
		}
		return nil, err
	}

	return promo, nil
}

func (s *LedgerService) ListPromos(ctx context.Context) ([]*model.PromoCode, error) {
	return s.promoRepo.List(ctx)
}

func (s *LedgerService) Profile(ctx context.Context, userID int64) (*model.Profile, error) {
	account, err := s.accountRepo.Get(ctx, userID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	referrals, err := s.accountRepo.CountReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.Profile{
		Account:   account,
		Referrals: referrals,
	}, nil
}

func (s *LedgerService) Account(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := s.accountRepo.Get(ctx, userID)
	if err != nil {
		return nil, mapAccountErr(err)
	}
	return account, nil
}

func (s *LedgerService) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	account, err := s.accountRepo.FindByUsername(ctx, strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if err != nil {
		return nil, mapAccountErr(err)
	}
	return account, nil
}

// History returns the account's ledger entries, newest first.
func (s *LedgerService) History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	return s.txnRepo.List(ctx, repository.TransactionFilter{
		ReceiverID: &userID,
		Limit:      limit,
	})
}

// AllHistory returns recent entries across every account.
func (s *LedgerService) AllHistory(ctx context.Context, limit int) ([]*model.Transaction, error) {
	return s.txnRepo.List(ctx, repository.TransactionFilter{Limit: limit})
}

func (s *LedgerService) TopReferrers(ctx context.Context, limit int) ([]*model.ReferrerRank, error) {
	return s.accountRepo.TopReferrers(ctx, limit)
}

func (s *LedgerService) Stats(ctx context.Context) (*model.Stats, error) {
	return s.accountRepo.Stats(ctx)
}

// Reconcile compares the stored balance against the ledger sum.
func (s *LedgerService) Reconcile(ctx context.Context, userID int64) (balance, ledgerSum float64, err error) {
	account, err := s.accountRepo.Get(ctx, userID)
	if err != nil {
		return 0, 0, mapAccountErr(err)
	}

	sum, err := s.txnRepo.SumFor(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	return account.Balance, sum, nil
}

func (s *LedgerService) IsAdmin(userID int64) bool {
	for _, id := range s.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *LedgerService) WithdrawalOptions() []float64 {
	return s.rewards.WithdrawalOptions
}

func (s *LedgerService) isWithdrawalOption(amount float64) bool {
	for _, opt := range s.rewards.WithdrawalOptions {
		if opt == amount {
			return true
		}
	}
	return false
}

func (s *LedgerService) notifyAdmins(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	for _, id := range s.adminIDs {
		if err := s.notifier.Notify(ctx, id, text); err != nil {
			logger.Warn("admin notify failed", "admin", id, "error", err)
		}
	}
}

func mapAccountErr(err error) error {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return err
}
