package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"factura/internal/domain"
	"factura/internal/storage"
)

// InvoiceRepository — продакшен-реализация контракта хранения поверх
// PostgreSQL. Снапшоты версий и payload событий лежат в JSONB.
type InvoiceRepository struct {
	db *sqlx.DB
}

func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) CreateInvoice(ctx context.Context, invoice *domain.Invoice) error {
	invoice.ID = uuid.New()

	query := `
        INSERT INTO invoices (
            id, tenant_id, customer_id, invoice_number, currency,
            status, issued_at, due_date, total_amount, current_version_id
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        ) RETURNING created_at, updated_at`

	return r.db.QueryRowContext(
		ctx,
		query,
		invoice.ID,
		invoice.TenantID,
		invoice.CustomerID,
		invoice.InvoiceNumber,
		invoice.Currency,
		invoice.Status,
		invoice.IssuedAt,
		invoice.DueDate,
		invoice.TotalAmount,
		invoice.CurrentVersionID,
	).Scan(&invoice.CreatedAt, &invoice.UpdatedAt)
}

func (r *InvoiceRepository) FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID, tenantID string) (*domain.Invoice, error) {
	query := `SELECT * FROM invoices WHERE id = $1 AND tenant_id = $2`

	var invoice domain.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, invoiceID, tenantID); err != nil {
		if err == sql.ErrNoRows {
			// Чужой тенант неотличим от отсутствия — это не ошибка
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return &invoice, nil
}

func (r *InvoiceRepository) GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT * FROM invoices WHERE id = $1`

	var invoice domain.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, invoiceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return &invoice, nil
}

func (r *InvoiceRepository) UpdateInvoice(ctx context.Context, invoiceID uuid.UUID, tenantID string, patch storage.InvoiceUpdate) (*domain.Invoice, error) {
	// nil-поля не трогают колонки за счёт COALESCE
	query := `
        UPDATE invoices SET
            status = COALESCE($3, status),
            issued_at = COALESCE($4, issued_at),
            total_amount = COALESCE($5, total_amount),
            current_version_id = COALESCE($6, current_version_id),
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $1 AND tenant_id = $2
        RETURNING *`

	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}

	var invoice domain.Invoice
	err := r.db.GetContext(ctx, &invoice, query,
		invoiceID, tenantID, status, patch.IssuedAt, patch.TotalAmount, patch.CurrentVersionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}

	return &invoice, nil
}

// invoiceVersionRow — строка invoice_versions с сырым JSONB снапшота.
type invoiceVersionRow struct {
	domain.InvoiceVersion
	SnapshotJSON []byte `db:"snapshot_json"`
}

func (row *invoiceVersionRow) toVersion() (*domain.InvoiceVersion, error) {
	version := row.InvoiceVersion
	if err := json.Unmarshal(row.SnapshotJSON, &version.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &version, nil
}

func (r *InvoiceRepository) CreateVersion(ctx context.Context, input storage.VersionInsert) (*domain.InvoiceVersion, error) {
	snapshotJSON, err := json.Marshal(input.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	version := domain.InvoiceVersion{
		ID:              uuid.New(),
		InvoiceID:       input.InvoiceID,
		VersionNumber:   input.VersionNumber,
		Snapshot:        input.Snapshot,
		Subtotal:        input.Subtotal,
		Tax:             input.Tax,
		Total:           input.Total,
		CreatedByUserID: input.CreatedByUserID,
	}

	query := `
        INSERT INTO invoice_versions (
            id, invoice_id, version_number, snapshot_json,
            subtotal, tax, total, created_by_user_id
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8
        ) RETURNING created_at`

	err = r.db.QueryRowContext(
		ctx,
		query,
		version.ID,
		version.InvoiceID,
		version.VersionNumber,
		snapshotJSON,
		version.Subtotal,
		version.Tax,
		version.Total,
		version.CreatedByUserID,
	).Scan(&version.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create version: %w", err)
	}

	return &version, nil
}

func (r *InvoiceRepository) GetCurrentVersion(ctx context.Context, invoiceID uuid.UUID) (*domain.InvoiceVersion, error) {
	query := `
        SELECT v.* FROM invoice_versions v
        JOIN invoices i ON i.current_version_id = v.id
        WHERE i.id = $1`

	var row invoiceVersionRow
	if err := r.db.GetContext(ctx, &row, query, invoiceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}

	return row.toVersion()
}

func (r *InvoiceRepository) GetLatestVersionNumber(ctx context.Context, invoiceID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(MAX(version_number), 0) FROM invoice_versions WHERE invoice_id = $1`

	var latest int
	if err := r.db.GetContext(ctx, &latest, query, invoiceID); err != nil {
		return 0, fmt.Errorf("failed to get latest version number: %w", err)
	}

	return latest, nil
}

func (r *InvoiceRepository) CreateEvent(ctx context.Context, input storage.EventInsert) error {
	payload := input.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
        INSERT INTO invoice_events (invoice_id, actor_type, actor_id, event_type, payload_json)
        VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.ExecContext(ctx, query, input.InvoiceID, input.ActorType, input.ActorID, input.EventType, payloadJSON); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

type eventRow struct {
	domain.Event
	PayloadJSON []byte `db:"payload_json"`
}

func (r *InvoiceRepository) ListEvents(ctx context.Context, invoiceID uuid.UUID) ([]domain.Event, error) {
	query := `SELECT * FROM invoice_events WHERE invoice_id = $1 ORDER BY id`

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		event := row.Event
		if err := json.Unmarshal(row.PayloadJSON, &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		events = append(events, event)
	}

	return events, nil
}

func (r *InvoiceRepository) CreateViewToken(ctx context.Context, input storage.TokenInsert) (*domain.InvoiceViewToken, error) {
	token := domain.InvoiceViewToken{
		ID:        uuid.New(),
		InvoiceID: input.InvoiceID,
		TokenHash: input.TokenHash,
		ExpiresAt: input.ExpiresAt,
	}

	query := `
        INSERT INTO invoice_view_tokens (id, invoice_id, token_hash, expires_at)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, token.ID, token.InvoiceID, token.TokenHash, token.ExpiresAt).
		Scan(&token.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create view token: %w", err)
	}

	return &token, nil
}

func (r *InvoiceRepository) FindActiveTokens(ctx context.Context, invoiceID uuid.UUID) ([]domain.InvoiceViewToken, error) {
	// Срок действия здесь не фильтруем: его проверяет движок при верификации
	query := `SELECT * FROM invoice_view_tokens WHERE invoice_id = $1 AND used_at IS NULL`

	var tokens []domain.InvoiceViewToken
	if err := r.db.SelectContext(ctx, &tokens, query, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}

	return tokens, nil
}

func (r *InvoiceRepository) MarkTokenUsed(ctx context.Context, tokenID uuid.UUID) error {
	query := `UPDATE invoice_view_tokens SET used_at = CURRENT_TIMESTAMP WHERE id = $1 AND used_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, tokenID); err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}

	return nil
}

// DeleteExpiredTokens — фоновая уборка истёкших токенов. Верификация
// проверяет срок действия лениво и от уборки не зависит.
func (r *InvoiceRepository) DeleteExpiredTokens(ctx context.Context) error {
	query := `DELETE FROM invoice_view_tokens WHERE expires_at < CURRENT_TIMESTAMP`
	_, err := r.db.ExecContext(ctx, query)
	return err
}
