package domain

import "time"

type User struct {
	ID            string
	Username      string
	PreferredName string
	PasswordHash  string // argon2id PHC string, empty for guests
	Guest         bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
