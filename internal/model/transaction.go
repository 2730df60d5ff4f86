package model

import "time"

// TransactionKind labels the ledger entry with the operation that produced it.
type TransactionKind string

const (
	KindReferral    TransactionKind = "referral"
	KindDailyBonus  TransactionKind = "daily_bonus"
	KindPromo       TransactionKind = "promo"
	KindAdminGrant  TransactionKind = "admin_grant"
	KindAdminRevoke TransactionKind = "admin_revoke"
	KindAdminReset  TransactionKind = "admin_reset"
	KindWithdrawal  TransactionKind = "withdrawal"
)

// Transaction is an append-only ledger entry. Amount is signed: credits are
// positive, debits negative, so summing amounts per receiver reconciles the
// account balance.
type Transaction struct {
	ID         int64           `json:"id"`
	ReceiverID int64           `json:"receiver_id"`
	SenderID   *int64          `json:"sender_id,omitempty"`
	Amount     float64         `json:"amount"`
	Kind       TransactionKind `json:"kind"`
	Reference  string          `json:"reference,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
