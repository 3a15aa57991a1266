package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"factura/internal/domain"
)

// MemoryStorage — эталонная in-memory реализация контракта. Используется
// в тестах как оракул корректности: тенантная изоляция и append-only
// семантика версий воспроизводятся честно, без упрощений.
type MemoryStorage struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]domain.Invoice
	versions map[uuid.UUID][]domain.InvoiceVersion
	tokens   map[uuid.UUID][]domain.InvoiceViewToken
	events   []domain.Event
	eventSeq int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		invoices: make(map[uuid.UUID]domain.Invoice),
		versions: make(map[uuid.UUID][]domain.InvoiceVersion),
		tokens:   make(map[uuid.UUID][]domain.InvoiceViewToken),
	}
}

func (s *MemoryStorage) CreateInvoice(ctx context.Context, invoice *domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice.ID = uuid.New()
	now := time.Now()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	s.invoices[invoice.ID] = *invoice
	return nil
}

func (s *MemoryStorage) FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID, tenantID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.TenantID != tenantID {
		return nil, nil
	}
	out := inv
	return &out, nil
}

func (s *MemoryStorage) GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, nil
	}
	out := inv
	return &out, nil
}

func (s *MemoryStorage) UpdateInvoice(ctx context.Context, invoiceID uuid.UUID, tenantID string, patch InvoiceUpdate) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.TenantID != tenantID {
		return nil, nil
	}

	if patch.Status != nil {
		inv.Status = *patch.Status
	}
	if patch.IssuedAt != nil {
		issuedAt := *patch.IssuedAt
		inv.IssuedAt = &issuedAt
	}
	if patch.TotalAmount != nil {
		inv.TotalAmount = *patch.TotalAmount
	}
	if patch.CurrentVersionID != nil {
		versionID := *patch.CurrentVersionID
		inv.CurrentVersionID = &versionID
	}
	inv.UpdatedAt = time.Now()

	s.invoices[invoiceID] = inv
	out := inv
	return &out, nil
}

func (s *MemoryStorage) CreateVersion(ctx context.Context, input VersionInsert) (*domain.InvoiceVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := domain.InvoiceVersion{
		ID:              uuid.New(),
		InvoiceID:       input.InvoiceID,
		VersionNumber:   input.VersionNumber,
		Snapshot:        input.Snapshot,
		Subtotal:        input.Subtotal,
		Tax:             input.Tax,
		Total:           input.Total,
		CreatedByUserID: input.CreatedByUserID,
		CreatedAt:       time.Now(),
	}
	s.versions[input.InvoiceID] = append(s.versions[input.InvoiceID], version)
	out := version
	return &out, nil
}

func (s *MemoryStorage) GetCurrentVersion(ctx context.Context, invoiceID uuid.UUID) (*domain.InvoiceVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.CurrentVersionID == nil {
		return nil, nil
	}
	for _, v := range s.versions[invoiceID] {
		if v.ID == *inv.CurrentVersionID {
			out := v
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStorage) GetLatestVersionNumber(ctx context.Context, invoiceID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := 0
	for _, v := range s.versions[invoiceID] {
		if v.VersionNumber > latest {
			latest = v.VersionNumber
		}
	}
	return latest, nil
}

func (s *MemoryStorage) CreateEvent(ctx context.Context, input EventInsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventSeq++
	payload := make(map[string]interface{}, len(input.Payload))
	for k, v := range input.Payload {
		payload[k] = v
	}
	s.events = append(s.events, domain.Event{
		ID:        s.eventSeq,
		InvoiceID: input.InvoiceID,
		ActorType: input.ActorType,
		ActorID:   input.ActorID,
		EventType: input.EventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemoryStorage) ListEvents(ctx context.Context, invoiceID uuid.UUID) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, e := range s.events {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStorage) CreateViewToken(ctx context.Context, input TokenInsert) (*domain.InvoiceViewToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := domain.InvoiceViewToken{
		ID:        uuid.New(),
		InvoiceID: input.InvoiceID,
		TokenHash: input.TokenHash,
		ExpiresAt: input.ExpiresAt,
		CreatedAt: time.Now(),
	}
	s.tokens[input.InvoiceID] = append(s.tokens[input.InvoiceID], token)
	out := token
	return &out, nil
}

func (s *MemoryStorage) FindActiveTokens(ctx context.Context, invoiceID uuid.UUID) ([]domain.InvoiceViewToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.InvoiceViewToken
	for _, t := range s.tokens[invoiceID] {
		if t.UsedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStorage) MarkTokenUsed(ctx context.Context, tokenID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for invoiceID, list := range s.tokens {
		for i, t := range list {
			if t.ID == tokenID && t.UsedAt == nil {
				list[i].UsedAt = &now
				s.tokens[invoiceID] = list
				return nil
			}
		}
	}
	return nil
}
