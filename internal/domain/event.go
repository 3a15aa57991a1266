package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorInternal ActorType = "INTERNAL"
	ActorCustomer ActorType = "CUSTOMER"
	ActorSystem   ActorType = "SYSTEM"
)

type EventType string

const (
	EventDraftCreated     EventType = "DRAFT_CREATED"
	EventDraftUpdated     EventType = "DRAFT_UPDATED"
	EventInvoiceIssued    EventType = "INVOICE_ISSUED"
	EventViewTokenCreated EventType = "VIEW_TOKEN_CREATED"
	EventDeliverySent     EventType = "DELIVERY_SENT"
	EventInvoiceViewed    EventType = "INVOICE_VIEWED"
	EventInvoicePaid      EventType = "INVOICE_PAID"
	EventPDFGenerated     EventType = "PDF_GENERATED"
)

// Event — запись аудит-лога. Лог append-only: события никогда не
// редактируются и не удаляются, единственное чтение — выборка по инвойсу.
type Event struct {
	ID        int64                  `json:"id" db:"id"`
	InvoiceID uuid.UUID              `json:"invoice_id" db:"invoice_id"`
	ActorType ActorType              `json:"actor_type" db:"actor_type"`
	ActorID   string                 `json:"actor_id,omitempty" db:"actor_id"`
	EventType EventType              `json:"event_type" db:"event_type"`
	Payload   map[string]interface{} `json:"payload" db:"-"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
