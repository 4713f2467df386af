package domain

import "time"

// Alert is a spike notification emitted for one (symbol, period) pair.
type Alert struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Period    Period    `json:"period"`
	Change    float64   `json:"change"`
	Message   string    `json:"message"`
	Forced    bool      `json:"forced"`
	CreatedAt time.Time `json:"created_at"`
}

// StateEntry is one cell of the notification state.
type StateEntry struct {
	Symbol       string  `json:"symbol"`
	Period       Period  `json:"period"`
	LastNotified float64 `json:"last_notified"`
}

// Subscriber is a chat that receives scheduled alerts.
type Subscriber struct {
	ChatID    int64     `json:"chat_id"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
