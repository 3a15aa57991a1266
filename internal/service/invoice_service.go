package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"factura/internal/domain"
	"factura/internal/storage"
)

// Допустимое расхождение между денормализованным итогом инвойса и итогом
// текущей версии. Защита от рассинхронизации хранилища и движка.
const totalEpsilon = 0.001

// InvoiceService — движок жизненного цикла инвойса. Все переходы статуса
// проходят через него; хранилище передаётся явно при конструировании.
type InvoiceService struct {
	store storage.Storage
	locks *invoiceLocker
}

func NewInvoiceService(store storage.Storage) *InvoiceService {
	return &InvoiceService{
		store: store,
		locks: newInvoiceLocker(),
	}
}

type CreateDraftInput struct {
	TenantID        string
	CustomerID      string
	InvoiceNumber   string
	Currency        string
	DueDate         time.Time
	Snapshot        domain.InvoiceSnapshot
	CreatedByUserID string
}

// CreateDraft создаёт инвойс в статусе DRAFT вместе с версией #1.
func (s *InvoiceService) CreateDraft(ctx context.Context, input CreateDraftInput) (*domain.Invoice, error) {
	totals := CalculateTotals(input.Snapshot)

	invoice := &domain.Invoice{
		TenantID:      input.TenantID,
		CustomerID:    input.CustomerID,
		InvoiceNumber: input.InvoiceNumber,
		Currency:      input.Currency,
		Status:        domain.StatusDraft,
		DueDate:       input.DueDate,
		TotalAmount:   totals.Total,
	}
	if err := s.store.CreateInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	version, err := s.store.CreateVersion(ctx, storage.VersionInsert{
		InvoiceID:       invoice.ID,
		VersionNumber:   1,
		Snapshot:        input.Snapshot,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Total:           totals.Total,
		CreatedByUserID: input.CreatedByUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create version: %w", err)
	}

	// Привязываем указатель на актуальную версию
	updated, err := s.store.UpdateInvoice(ctx, invoice.ID, input.TenantID, storage.InvoiceUpdate{
		CurrentVersionID: &version.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to link current version: %w", err)
	}

	if err := s.store.CreateEvent(ctx, storage.EventInsert{
		InvoiceID: invoice.ID,
		ActorType: domain.ActorInternal,
		ActorID:   input.CreatedByUserID,
		EventType: domain.EventDraftCreated,
		Payload:   map[string]interface{}{"version_number": 1},
	}); err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	return updated, nil
}

// UpdateDraft пересчитывает суммы и создаёт следующую версию. Разрешено
// только для черновиков.
func (s *InvoiceService) UpdateDraft(ctx context.Context, tenantID string, invoiceID uuid.UUID, snapshot domain.InvoiceSnapshot, updatedByUserID string) (*domain.Invoice, error) {
	unlock := s.locks.lock(invoiceID)
	defer unlock()

	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.NewNotFound("invoice not found")
	}
	if invoice.Status != domain.StatusDraft {
		return nil, domain.NewConflict("only draft invoices can be edited")
	}

	totals := CalculateTotals(snapshot)

	latest, err := s.store.GetLatestVersionNumber(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version number: %w", err)
	}
	nextVersion := latest + 1

	version, err := s.store.CreateVersion(ctx, storage.VersionInsert{
		InvoiceID:       invoiceID,
		VersionNumber:   nextVersion,
		Snapshot:        snapshot,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Total:           totals.Total,
		CreatedByUserID: updatedByUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create version: %w", err)
	}

	updated, err := s.store.UpdateInvoice(ctx, invoiceID, tenantID, storage.InvoiceUpdate{
		CurrentVersionID: &version.ID,
		TotalAmount:      &totals.Total,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}
	if updated == nil {
		return nil, domain.NewInternal("invoice disappeared during update")
	}

	if err := s.store.CreateEvent(ctx, storage.EventInsert{
		InvoiceID: invoiceID,
		ActorType: domain.ActorInternal,
		ActorID:   updatedByUserID,
		EventType: domain.EventDraftUpdated,
		Payload:   map[string]interface{}{"version_number": nextVersion},
	}); err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	return updated, nil
}

// Issue переводит черновик в ISSUED, фиксирует issued_at и замораживает
// содержимое: после выпуска новые версии не создаются.
func (s *InvoiceService) Issue(ctx context.Context, tenantID string, invoiceID uuid.UUID, userID string) error {
	unlock := s.locks.lock(invoiceID)
	defer unlock()

	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return domain.NewNotFound("invoice not found")
	}
	if invoice.Status != domain.StatusDraft {
		return domain.NewConflict("only draft invoices can be issued")
	}

	version, err := s.store.GetCurrentVersion(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if version == nil {
		// Указатель на версию обязан существовать — это баг хранилища
		return domain.NewInternal("current version missing")
	}
	if math.Abs(version.Total-invoice.TotalAmount) > totalEpsilon {
		return domain.NewConflict("invoice total does not match current version")
	}

	issuedAt := time.Now()
	status := domain.StatusIssued
	if _, err := s.store.UpdateInvoice(ctx, invoiceID, tenantID, storage.InvoiceUpdate{
		Status:   &status,
		IssuedAt: &issuedAt,
	}); err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	if err := s.store.CreateEvent(ctx, storage.EventInsert{
		InvoiceID: invoiceID,
		ActorType: domain.ActorInternal,
		ActorID:   userID,
		EventType: domain.EventInvoiceIssued,
		Payload: map[string]interface{}{
			"issued_at":  issuedAt.Format(time.RFC3339),
			"version_id": version.ID.String(),
		},
	}); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}

// MarkSent фиксирует доставку клиенту. Переход разрешён только из
// ISSUED; повторный вызов на SENT — no-op без дублирования события.
func (s *InvoiceService) MarkSent(ctx context.Context, tenantID string, invoiceID uuid.UUID, actorID string, payload map[string]interface{}) error {
	unlock := s.locks.lock(invoiceID)
	defer unlock()

	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return domain.NewNotFound("invoice not found")
	}
	if invoice.Status == domain.StatusSent {
		return nil
	}
	if invoice.Status != domain.StatusIssued {
		return domain.NewConflict("only issued invoices can be marked sent")
	}

	status := domain.StatusSent
	if _, err := s.store.UpdateInvoice(ctx, invoiceID, tenantID, storage.InvoiceUpdate{Status: &status}); err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	if payload == nil {
		payload = map[string]interface{}{}
	}
	if err := s.store.CreateEvent(ctx, storage.EventInsert{
		InvoiceID: invoiceID,
		ActorType: domain.ActorInternal,
		ActorID:   actorID,
		EventType: domain.EventDeliverySent,
		Payload:   payload,
	}); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}

// MarkViewed идемпотентен: если инвойс уже просмотрен или оплачен,
// повторного события не будет.
func (s *InvoiceService) MarkViewed(ctx context.Context, tenantID string, invoiceID uuid.UUID, actorID string) error {
	unlock := s.locks.lock(invoiceID)
	defer unlock()

	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return domain.NewNotFound("invoice not found")
	}
	if invoice.Status == domain.StatusViewed || invoice.Status == domain.StatusPaid {
		return nil
	}

	status := domain.StatusViewed
	if _, err := s.store.UpdateInvoice(ctx, invoiceID, tenantID, storage.InvoiceUpdate{Status: &status}); err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	if err := s.store.CreateEvent(ctx, storage.EventInsert{
		InvoiceID: invoiceID,
		ActorType: domain.ActorCustomer,
		ActorID:   actorID,
		EventType: domain.EventInvoiceViewed,
		Payload:   map[string]interface{}{},
	}); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}

// MarkPaid идемпотентен: no-op, если инвойс уже оплачен.
func (s *InvoiceService) MarkPaid(ctx context.Context, tenantID string, invoiceID uuid.UUID, actorID string) error {
	unlock := s.locks.lock(invoiceID)
	defer unlock()

	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return domain.NewNotFound("invoice not found")
	}
	if invoice.Status == domain.StatusPaid {
		return nil
	}

	status := domain.StatusPaid
	if _, err := s.store.UpdateInvoice(ctx, invoiceID, tenantID, storage.InvoiceUpdate{Status: &status}); err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	if err := s.store.CreateEvent(ctx, storage.EventInsert{
		InvoiceID: invoiceID,
		ActorType: domain.ActorSystem,
		ActorID:   actorID,
		EventType: domain.EventInvoicePaid,
		Payload:   map[string]interface{}{},
	}); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}

func (s *InvoiceService) Get(ctx context.Context, tenantID string, invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.NewNotFound("invoice not found")
	}
	return invoice, nil
}

// ListEvents возвращает аудит-лог инвойса в порядке добавления.
func (s *InvoiceService) ListEvents(ctx context.Context, tenantID string, invoiceID uuid.UUID) ([]domain.Event, error) {
	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.NewNotFound("invoice not found")
	}
	return s.store.ListEvents(ctx, invoiceID)
}

// CurrentSnapshot отдаёт содержимое актуальной версии для экспорта.
func (s *InvoiceService) CurrentSnapshot(ctx context.Context, tenantID string, invoiceID uuid.UUID) (*domain.InvoiceSnapshot, error) {
	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.NewNotFound("invoice not found")
	}

	version, err := s.store.GetCurrentVersion(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	if version == nil {
		return nil, domain.NewNotFound("invoice has no snapshot")
	}
	return &version.Snapshot, nil
}

// RecordPDFGenerated добавляет событие экспорта PDF в аудит-лог.
func (s *InvoiceService) RecordPDFGenerated(ctx context.Context, invoiceID uuid.UUID, actorType domain.ActorType, actorID string) error {
	return s.store.CreateEvent(ctx, storage.EventInsert{
		InvoiceID: invoiceID,
		ActorType: actorType,
		ActorID:   actorID,
		EventType: domain.EventPDFGenerated,
		Payload:   map[string]interface{}{},
	})
}
