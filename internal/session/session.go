package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/starledger/starbot/pkg/redis"
)

// Step names the input the bot is waiting for from a chat.
type Step string

const (
	StepEnterPromo       Step = "enter_promo"
	StepAdminSearch      Step = "admin_search"
	StepAdminGrant       Step = "admin_grant"
	StepAdminRevoke      Step = "admin_revoke"
	StepAdminBroadcast   Step = "admin_broadcast"
	StepAdminCreatePromo Step = "admin_create_promo"
)

// State is the per-chat dialog state. TargetID carries the account an admin
// flow operates on between steps.
type State struct {
	Step     Step  `json:"step"`
	TargetID int64 `json:"target_id,omitempty"`
}

// Store keeps dialog state in Redis so a restart does not strand users
// mid-flow. Entries expire after the configured TTL.
type Store struct {
	adapter redis.RedisAdapter
	ttl     time.Duration
}

func NewStore(adapter redis.RedisAdapter, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &Store{
		adapter: adapter,
		ttl:     ttl,
	}
}

func (s *Store) Set(chatID int64, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.adapter.Set(s.key(chatID), data, s.ttl)
}

// Get returns the chat's state, or ok=false when no dialog is in progress.
func (s *Store) Get(chatID int64) (State, bool, error) {
	data, err := s.adapter.Get(s.key(chatID))
	if err != nil {
		if err == redis.NilError {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, err
	}
	return state, true, nil
}

func (s *Store) Clear(chatID int64) error {
	return s.adapter.Del(s.key(chatID))
}

func (s *Store) key(chatID int64) string {
	return fmt.Sprintf("session:%d", chatID)
}
