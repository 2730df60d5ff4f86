package model

import "time"

type Account struct {
	UserID       int64      `json:"user_id"`
	Username     string     `json:"username"`
	Balance      float64    `json:"balance"`
	ReferrerID   *int64     `json:"referrer_id,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastBonusAt  *time.Time `json:"last_bonus_at,omitempty"`
	Banned       bool       `json:"banned"`
}

// Profile is an account plus the derived counters shown to the user.
type Profile struct {
	Account   *Account `json:"account"`
	Referrals int64    `json:"referrals"`
}

// ReferrerRank is one row of the referrer leaderboard.
type ReferrerRank struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Referrals int64  `json:"referrals"`
}

// Stats is the aggregate snapshot rendered in the admin panel.
type Stats struct {
	TotalAccounts   int64   `json:"total_accounts"`
	TotalBalance    float64 `json:"total_balance"`
	Transactions24h int64   `json:"transactions_24h"`
}
