package models

import (
	"time"
)

// Access token issued to the user on register or login
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}
