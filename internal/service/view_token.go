package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"factura/internal/domain"
	"factura/internal/storage"
)

const defaultTokenTTL = 7 * 24 * time.Hour

type ViewTokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateViewToken выпускает capability-токен клиентской ссылки. Хранится
// только дайджест; сырой секрет возвращается ровно один раз и никогда не
// попадает в аудит-лог. ttlSeconds <= 0 даёт уже истёкший токен.
func (s *InvoiceService) CreateViewToken(ctx context.Context, tenantID string, invoiceID uuid.UUID, userID string, ttlSeconds *int64) (*ViewTokenResult, error) {
	invoice, err := s.store.FindInvoiceByID(ctx, invoiceID, tenantID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.NewNotFound("invoice not found")
	}

	switch invoice.Status {
	case domain.StatusIssued, domain.StatusSent, domain.StatusViewed, domain.StatusPaid:
	default:
		return nil, domain.NewConflict("invoice must be issued before sharing")
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	ttl := defaultTokenTTL
	if ttlSeconds != nil {
		ttl = time.Duration(*ttlSeconds) * time.Second
	}
	expiresAt := time.Now().Add(ttl)

	row, err := s.store.CreateViewToken(ctx, storage.TokenInsert{
		InvoiceID: invoiceID,
		TokenHash: hashToken(token),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create view token: %w", err)
	}

	if err := s.store.CreateEvent(ctx, storage.EventInsert{
		InvoiceID: invoiceID,
		ActorType: domain.ActorInternal,
		ActorID:   userID,
		EventType: domain.EventViewTokenCreated,
		Payload: map[string]interface{}{
			"token_id":   row.ID.String(),
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	return &ViewTokenResult{Token: token, ExpiresAt: expiresAt}, nil
}

// VerifyViewToken сравнивает дайджест предъявленного токена с активными
// токенами инвойса. Сравнение дайджестов фиксированной длины выполняется
// за константное время, чтобы не раскрывать частичные совпадения по
// таймингу. Отсутствие совпадения — штатный результат (nil, nil), а не
// доменная ошибка.
func (s *InvoiceService) VerifyViewToken(ctx context.Context, invoiceID uuid.UUID, token string) (*domain.InvoiceViewToken, error) {
	active, err := s.store.FindActiveTokens(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}

	incoming := sha256.Sum256([]byte(token))
	now := time.Now()

	for i := range active {
		row := &active[i]
		if row.ExpiresAt.Before(now) {
			continue
		}
		stored, err := hex.DecodeString(row.TokenHash)
		if err != nil {
			continue
		}
		if len(stored) == len(incoming) && subtle.ConstantTimeCompare(stored, incoming[:]) == 1 {
			return row, nil
		}
	}
	return nil, nil
}

// RecordCustomerView — клиентский путь просмотра: верификация токена,
// затем идемпотентная отметка VIEWED от имени клиента.
func (s *InvoiceService) RecordCustomerView(ctx context.Context, invoiceID uuid.UUID, token string, actorID string) error {
	row, err := s.VerifyViewToken(ctx, invoiceID, token)
	if err != nil {
		return err
	}
	if row == nil {
		return domain.NewNotFound("invoice not found")
	}

	invoice, err := s.store.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return domain.NewNotFound("invoice not found")
	}

	return s.MarkViewed(ctx, invoice.TenantID, invoiceID, actorID)
}

// CustomerSnapshot отдаёт снапшот актуальной версии по токену.
func (s *InvoiceService) CustomerSnapshot(ctx context.Context, invoiceID uuid.UUID, token string) (*domain.InvoiceSnapshot, error) {
	row, err := s.VerifyViewToken(ctx, invoiceID, token)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.NewNotFound("invoice not found")
	}

	version, err := s.store.GetCurrentVersion(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	if version == nil {
		return nil, domain.NewNotFound("invoice not found")
	}
	return &version.Snapshot, nil
}
