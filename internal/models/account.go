package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformAccountID owns platform-funded QA tasks and benchmark injections.
var PlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Account is a buyer login.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
