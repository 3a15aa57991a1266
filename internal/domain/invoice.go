package domain

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	StatusDraft  InvoiceStatus = "DRAFT"
	StatusIssued InvoiceStatus = "ISSUED"
	StatusSent   InvoiceStatus = "SENT"
	StatusViewed InvoiceStatus = "VIEWED"
	StatusPaid   InvoiceStatus = "PAID"
	StatusVoid   InvoiceStatus = "VOID"
)

// Invoice — корневая запись инвойса. Все чтения и записи фильтруются
// по tenant_id, содержимое позиций живёт в InvoiceVersion.
type Invoice struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	TenantID         string        `json:"tenant_id" db:"tenant_id"`
	CustomerID       string        `json:"customer_id" db:"customer_id"`
	InvoiceNumber    string        `json:"invoice_number" db:"invoice_number"`
	Currency         string        `json:"currency" db:"currency"`
	Status           InvoiceStatus `json:"status" db:"status"`
	IssuedAt         *time.Time    `json:"issued_at,omitempty" db:"issued_at"`
	DueDate          time.Time     `json:"due_date" db:"due_date"`
	TotalAmount      float64       `json:"total_amount" db:"total_amount"`
	CurrentVersionID *uuid.UUID    `json:"current_version_id,omitempty" db:"current_version_id"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}
