package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceViewToken — capability-токен для клиентской ссылки на инвойс.
// Хранится только sha256-дайджест секрета, сырой токен отдаётся
// вызывающему ровно один раз при создании.
type InvoiceViewToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	InvoiceID uuid.UUID  `json:"invoice_id" db:"invoice_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
