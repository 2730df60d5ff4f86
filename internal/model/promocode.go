package model

import "time"

type PromoCode struct {
	Code          string    `json:"code"`
	Amount        float64   `json:"amount"`
	UsesRemaining int64     `json:"uses_remaining"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}
