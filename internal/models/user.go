package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Operator     bool      `json:"operator"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}
