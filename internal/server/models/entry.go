package models

import "time"

// Entry is a persisted journal entry. For Mixed submissions Content holds
// the residual text only; PasswordOnly submissions are never persisted.
type Entry struct {
	ID        string
	UserID    string
	Content   string
	CreatedAt time.Time
}
