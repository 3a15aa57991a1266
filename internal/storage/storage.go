// Package storage определяет контракт хранения для жизненного цикла
// инвойсов. Контракт не привязан к конкретной технологии; движок
// выполняет последовательность чтение-проверка-запись через эти методы.
//
// Ожидания к продакшен-реализации: операции над одним инвойсом должны
// сериализоваться (транзакция или блокировка строки на всю
// последовательность чтение-проверка-запись), иначе параллельные правки
// черновика могут породить расходящиеся номера версий. Запись события
// аудита следует за мутацией состояния; допускается at-least-once.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"factura/internal/domain"
)

// InvoiceUpdate — частичное обновление инвойса. nil-поля не трогаются.
type InvoiceUpdate struct {
	Status           *domain.InvoiceStatus
	IssuedAt         *time.Time
	TotalAmount      *float64
	CurrentVersionID *uuid.UUID
}

type VersionInsert struct {
	InvoiceID       uuid.UUID
	VersionNumber   int
	Snapshot        domain.InvoiceSnapshot
	Subtotal        float64
	Tax             float64
	Total           float64
	CreatedByUserID string
}

type EventInsert struct {
	InvoiceID uuid.UUID
	ActorType domain.ActorType
	ActorID   string
	EventType domain.EventType
	Payload   map[string]interface{}
}

type TokenInsert struct {
	InvoiceID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

type Storage interface {
	// CreateInvoice сохраняет новый инвойс и заполняет его ID.
	CreateInvoice(ctx context.Context, invoice *domain.Invoice) error

	// FindInvoiceByID возвращает (nil, nil), если инвойс не существует
	// или принадлежит другому тенанту. Несовпадение тенанта — это не
	// ошибка, а отсутствие.
	FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID, tenantID string) (*domain.Invoice, error)

	// GetInvoiceByID — выборка без фильтра по тенанту. Вызывается только
	// на клиентском пути после успешной проверки capability-токена.
	GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error)

	// UpdateInvoice применяет частичное обновление в рамках тенанта и
	// возвращает итоговую запись, либо (nil, nil) при отсутствии.
	UpdateInvoice(ctx context.Context, invoiceID uuid.UUID, tenantID string, patch InvoiceUpdate) (*domain.Invoice, error)

	// CreateVersion всегда добавляет новую версию, никогда не перезаписывает.
	CreateVersion(ctx context.Context, input VersionInsert) (*domain.InvoiceVersion, error)

	// GetCurrentVersion резолвит версию по current_version_id инвойса,
	// (nil, nil) если указатель пуст.
	GetCurrentVersion(ctx context.Context, invoiceID uuid.UUID) (*domain.InvoiceVersion, error)

	// GetLatestVersionNumber возвращает 0 для инвойса без версий.
	GetLatestVersionNumber(ctx context.Context, invoiceID uuid.UUID) (int, error)

	CreateEvent(ctx context.Context, input EventInsert) error
	ListEvents(ctx context.Context, invoiceID uuid.UUID) ([]domain.Event, error)

	CreateViewToken(ctx context.Context, input TokenInsert) (*domain.InvoiceViewToken, error)

	// FindActiveTokens возвращает токены без отметки used_at. Срок
	// действия хранилище не проверяет — это делает движок при верификации.
	FindActiveTokens(ctx context.Context, invoiceID uuid.UUID) ([]domain.InvoiceViewToken, error)

	MarkTokenUsed(ctx context.Context, tokenID uuid.UUID) error
}
