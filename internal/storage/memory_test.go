package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factura/internal/domain"
)

func newTestInvoice(tenantID string) *domain.Invoice {
	return &domain.Invoice{
		TenantID:      tenantID,
		CustomerID:    "c1",
		InvoiceNumber: "INV-1",
		Currency:      "JPY",
		Status:        domain.StatusDraft,
		DueDate:       time.Now().Add(30 * 24 * time.Hour),
		TotalAmount:   11000,
	}
}

func TestCreateInvoiceAssignsID(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	invoice := newTestInvoice("t1")
	require.NoError(t, store.CreateInvoice(ctx, invoice))

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", invoice.ID.String())
	assert.False(t, invoice.CreatedAt.IsZero())

	found, err := store.FindInvoiceByID(ctx, invoice.ID, "t1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, invoice.ID, found.ID)
}

func TestFindInvoiceTenantScoped(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	invoice := newTestInvoice("t1")
	require.NoError(t, store.CreateInvoice(ctx, invoice))

	found, err := store.FindInvoiceByID(ctx, invoice.ID, "t2")
	require.NoError(t, err)
	assert.Nil(t, found)

	// GetInvoiceByID намеренно без тенантного фильтра
	unscoped, err := store.GetInvoiceByID(ctx, invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, unscoped)
	assert.Equal(t, "t1", unscoped.TenantID)
}

func TestUpdateInvoicePartialPatch(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	invoice := newTestInvoice("t1")
	require.NoError(t, store.CreateInvoice(ctx, invoice))

	issued := domain.StatusIssued
	issuedAt := time.Now()
	updated, err := store.UpdateInvoice(ctx, invoice.ID, "t1", InvoiceUpdate{
		Status:   &issued,
		IssuedAt: &issuedAt,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, domain.StatusIssued, updated.Status)
	require.NotNil(t, updated.IssuedAt)
	// Неуказанные поля не трогаются
	assert.Equal(t, 11000.0, updated.TotalAmount)
	assert.Equal(t, "INV-1", updated.InvoiceNumber)

	// Чужой тенант не может обновить
	missing, err := store.UpdateInvoice(ctx, invoice.ID, "t2", InvoiceUpdate{Status: &issued})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestVersionsAppendOnly(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	invoice := newTestInvoice("t1")
	require.NoError(t, store.CreateInvoice(ctx, invoice))

	latest, err := store.GetLatestVersionNumber(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, latest)

	snapshot := domain.InvoiceSnapshot{InvoiceNumber: "INV-1", Currency: "JPY"}
	v1, err := store.CreateVersion(ctx, VersionInsert{
		InvoiceID:       invoice.ID,
		VersionNumber:   1,
		Snapshot:        snapshot,
		Subtotal:        10000,
		Tax:             1000,
		Total:           11000,
		CreatedByUserID: "u1",
	})
	require.NoError(t, err)

	v2, err := store.CreateVersion(ctx, VersionInsert{
		InvoiceID:       invoice.ID,
		VersionNumber:   2,
		Snapshot:        snapshot,
		Subtotal:        12500,
		Tax:             1250,
		Total:           13750,
		CreatedByUserID: "u1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, v1.ID, v2.ID)

	latest, err = store.GetLatestVersionNumber(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	// Текущей версии нет, пока указатель не выставлен
	current, err := store.GetCurrentVersion(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Nil(t, current)

	_, err = store.UpdateInvoice(ctx, invoice.ID, "t1", InvoiceUpdate{CurrentVersionID: &v2.ID})
	require.NoError(t, err)

	current, err = store.GetCurrentVersion(ctx, invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, v2.ID, current.ID)
	assert.Equal(t, 13750.0, current.Total)
}

func TestEventsOrderedPerInvoice(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	first := newTestInvoice("t1")
	require.NoError(t, store.CreateInvoice(ctx, first))
	second := newTestInvoice("t1")
	require.NoError(t, store.CreateInvoice(ctx, second))

	require.NoError(t, store.CreateEvent(ctx, EventInsert{
		InvoiceID: first.ID,
		ActorType: domain.ActorInternal,
		ActorID:   "u1",
		EventType: domain.EventDraftCreated,
	}))
	require.NoError(t, store.CreateEvent(ctx, EventInsert{
		InvoiceID: second.ID,
		ActorType: domain.ActorInternal,
		ActorID:   "u1",
		EventType: domain.EventDraftCreated,
	}))
	require.NoError(t, store.CreateEvent(ctx, EventInsert{
		InvoiceID: first.ID,
		ActorType: domain.ActorInternal,
		ActorID:   "u1",
		EventType: domain.EventInvoiceIssued,
	}))

	events, err := store.ListEvents(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventDraftCreated, events[0].EventType)
	assert.Equal(t, domain.EventInvoiceIssued, events[1].EventType)
	assert.Less(t, events[0].ID, events[1].ID)
}

func TestFindActiveTokensExcludesUsed(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	invoice := newTestInvoice("t1")
	require.NoError(t, store.CreateInvoice(ctx, invoice))

	tokenA, err := store.CreateViewToken(ctx, TokenInsert{
		InvoiceID: invoice.ID,
		TokenHash: "aaaa",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = store.CreateViewToken(ctx, TokenInsert{
		InvoiceID: invoice.ID,
		TokenHash: "bbbb",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	active, err := store.FindActiveTokens(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, store.MarkTokenUsed(ctx, tokenA.ID))

	active, err = store.FindActiveTokens(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "bbbb", active[0].TokenHash)
}
