package domain

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// InvoiceSnapshot — содержимое одной версии инвойса. После создания
// версии снапшот не меняется, правки черновика порождают новую версию.
type InvoiceSnapshot struct {
	CustomerName   string        `json:"customer_name"`
	CustomerEmail  string        `json:"customer_email"`
	BillingAddress string        `json:"billing_address"`
	InvoiceNumber  string        `json:"invoice_number"`
	Currency       string        `json:"currency"`
	DueDate        string        `json:"due_date"`
	Items          []InvoiceItem `json:"items"`
	Memo           string        `json:"memo,omitempty"`
}

type InvoiceVersion struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	InvoiceID       uuid.UUID       `json:"invoice_id" db:"invoice_id"`
	VersionNumber   int             `json:"version_number" db:"version_number"`
	Snapshot        InvoiceSnapshot `json:"snapshot" db:"-"`
	Subtotal        float64         `json:"subtotal" db:"subtotal"`
	Tax             float64         `json:"tax" db:"tax"`
	Total           float64         `json:"total" db:"total"`
	CreatedByUserID string          `json:"created_by_user_id" db:"created_by_user_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
