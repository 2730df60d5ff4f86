package model

// WithdrawalRequest is the payload submitted to the payout desk after a
// withdrawal has been debited from the ledger.
type WithdrawalRequest struct {
	RequestID string  `json:"request_id"`
	UserID    int64   `json:"user_id"`
	Username  string  `json:"username"`
	Amount    float64 `json:"amount"`
}
