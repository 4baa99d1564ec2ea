package model

import "time"

// User is the Telegram account that owns tasks and recurring definitions.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChatID is the private chat used for notifications.
func (u User) ChatID() int64 {
	return u.TelegramID
}
