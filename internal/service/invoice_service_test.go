package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factura/internal/domain"
	"factura/internal/storage"
)

func testSnapshot() domain.InvoiceSnapshot {
	return domain.InvoiceSnapshot{
		CustomerName:   "ACME",
		CustomerEmail:  "billing@acme.com",
		BillingAddress: "Tokyo",
		InvoiceNumber:  "INV-1",
		Currency:       "JPY",
		DueDate:        "2026-09-30",
		Items: []domain.InvoiceItem{
			{Description: "Hosting", Quantity: 2, UnitPrice: 5000},
		},
	}
}

func newTestService(t *testing.T) (*InvoiceService, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	return NewInvoiceService(store), store
}

func createTestDraft(t *testing.T, svc *InvoiceService, tenantID string) *domain.Invoice {
	t.Helper()
	invoice, err := svc.CreateDraft(context.Background(), CreateDraftInput{
		TenantID:        tenantID,
		CustomerID:      "c1",
		InvoiceNumber:   "INV-1",
		Currency:        "JPY",
		DueDate:         time.Now().Add(30 * 24 * time.Hour),
		Snapshot:        testSnapshot(),
		CreatedByUserID: "u1",
	})
	require.NoError(t, err)
	return invoice
}

func countEvents(t *testing.T, store *storage.MemoryStorage, invoiceID uuid.UUID, eventType domain.EventType) int {
	t.Helper()
	events, err := store.ListEvents(context.Background(), invoiceID)
	require.NoError(t, err)
	count := 0
	for _, e := range events {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}

func TestCreateDraft(t *testing.T) {
	svc, store := newTestService(t)

	invoice := createTestDraft(t, svc, "t1")

	assert.Equal(t, domain.StatusDraft, invoice.Status)
	assert.Equal(t, 11000.0, invoice.TotalAmount)
	assert.Nil(t, invoice.IssuedAt)
	require.NotNil(t, invoice.CurrentVersionID)

	version, err := store.GetCurrentVersion(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, 1, version.VersionNumber)
	assert.Equal(t, 10000.0, version.Subtotal)
	assert.Equal(t, 1000.0, version.Tax)
	assert.Equal(t, 11000.0, version.Total)

	assert.Equal(t, 1, countEvents(t, store, invoice.ID, domain.EventDraftCreated))
}

func TestUpdateDraftCreatesSequentialVersions(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")

	snapshot := testSnapshot()
	snapshot.Items = append(snapshot.Items, domain.InvoiceItem{Description: "Support", Quantity: 1, UnitPrice: 2500})

	updated, err := svc.UpdateDraft(ctx, "t1", invoice.ID, snapshot, "u2")
	require.NoError(t, err)
	assert.Equal(t, 13750.0, updated.TotalAmount)

	updated, err = svc.UpdateDraft(ctx, "t1", invoice.ID, snapshot, "u2")
	require.NoError(t, err)

	latest, err := store.GetLatestVersionNumber(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, latest)

	version, err := store.GetCurrentVersion(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, version.VersionNumber)
	assert.Equal(t, updated.TotalAmount, version.Total)

	assert.Equal(t, 2, countEvents(t, store, invoice.ID, domain.EventDraftUpdated))
}

func TestUpdateDraftNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateDraft(context.Background(), "t1", uuid.New(), testSnapshot(), "u1")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestUpdateAfterIssueFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))

	_, err := svc.UpdateDraft(ctx, "t1", invoice.ID, testSnapshot(), "u1")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.Contains(t, err.Error(), "draft")
}

func TestIssue(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	before, err := store.GetCurrentVersion(ctx, invoice.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))

	issued, err := svc.Get(ctx, "t1", invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, issued.Status)
	require.NotNil(t, issued.IssuedAt)

	// Выпуск не создаёт новую версию
	after, err := store.GetCurrentVersion(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)

	latest, err := store.GetLatestVersionNumber(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)

	assert.Equal(t, 1, countEvents(t, store, invoice.ID, domain.EventInvoiceIssued))
}

func TestIssueTwiceFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))

	err := svc.Issue(ctx, "t1", invoice.ID, "u1")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestIssueTotalMismatchFails(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")

	// Ломаем денормализованный итог в обход движка
	wrong := 999.0
	_, err := store.UpdateInvoice(ctx, invoice.ID, "t1", storage.InvoiceUpdate{TotalAmount: &wrong})
	require.NoError(t, err)

	err = svc.Issue(ctx, "t1", invoice.ID, "u1")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestMarkSentRequiresIssued(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")

	err := svc.MarkSent(ctx, "t1", invoice.ID, "u1", nil)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestMarkSentIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))

	require.NoError(t, svc.MarkSent(ctx, "t1", invoice.ID, "u1", map[string]interface{}{"provider_message_id": "m-1"}))
	require.NoError(t, svc.MarkSent(ctx, "t1", invoice.ID, "u1", map[string]interface{}{"provider_message_id": "m-2"}))

	sent, err := svc.Get(ctx, "t1", invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	assert.Equal(t, 1, countEvents(t, store, invoice.ID, domain.EventDeliverySent))
}

func TestMarkViewedIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))

	require.NoError(t, svc.MarkViewed(ctx, "t1", invoice.ID, ""))
	require.NoError(t, svc.MarkViewed(ctx, "t1", invoice.ID, ""))

	viewed, err := svc.Get(ctx, "t1", invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusViewed, viewed.Status)
	assert.Equal(t, 1, countEvents(t, store, invoice.ID, domain.EventInvoiceViewed))
}

func TestMarkPaidIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))

	require.NoError(t, svc.MarkPaid(ctx, "t1", invoice.ID, "gateway"))
	require.NoError(t, svc.MarkPaid(ctx, "t1", invoice.ID, "gateway"))

	paid, err := svc.Get(ctx, "t1", invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, 1, countEvents(t, store, invoice.ID, domain.EventInvoicePaid))
}

func TestMarkViewedAfterPaidKeepsPaid(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))
	require.NoError(t, svc.MarkPaid(ctx, "t1", invoice.ID, ""))

	require.NoError(t, svc.MarkViewed(ctx, "t1", invoice.ID, ""))

	paid, err := svc.Get(ctx, "t1", invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, 0, countEvents(t, store, invoice.ID, domain.EventInvoiceViewed))
}

func TestCrossTenantIsolation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")

	found, err := store.FindInvoiceByID(ctx, invoice.ID, "t2")
	require.NoError(t, err)
	assert.Nil(t, found)

	_, err = svc.Get(ctx, "t2", invoice.ID)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))

	_, err = svc.UpdateDraft(ctx, "t2", invoice.ID, testSnapshot(), "intruder")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestListEvents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))

	events, err := svc.ListEvents(ctx, "t1", invoice.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventDraftCreated, events[0].EventType)
	assert.Equal(t, domain.EventInvoiceIssued, events[1].EventType)

	_, err = svc.ListEvents(ctx, "t2", invoice.ID)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

// Сквозной сценарий: черновик 2×5000 хостинга, выпуск, токены, просмотр.
func TestLifecycleScenario(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	invoice := createTestDraft(t, svc, "t1")
	assert.Equal(t, 11000.0, invoice.TotalAmount)

	require.NoError(t, svc.Issue(ctx, "t1", invoice.ID, "u1"))
	issued, err := svc.Get(ctx, "t1", invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, issued.Status)
	require.NotNil(t, issued.IssuedAt)

	shortTTL := int64(60)
	active, err := svc.CreateViewToken(ctx, "t1", invoice.ID, "u1", &shortTTL)
	require.NoError(t, err)
	row, err := svc.VerifyViewToken(ctx, invoice.ID, active.Token)
	require.NoError(t, err)
	require.NotNil(t, row)

	negativeTTL := int64(-1)
	expired, err := svc.CreateViewToken(ctx, "t1", invoice.ID, "u1", &negativeTTL)
	require.NoError(t, err)
	row, err = svc.VerifyViewToken(ctx, invoice.ID, expired.Token)
	require.NoError(t, err)
	assert.Nil(t, row)

	require.NoError(t, svc.MarkViewed(ctx, "t1", invoice.ID, ""))
	require.NoError(t, svc.MarkViewed(ctx, "t1", invoice.ID, ""))

	viewed, err := svc.Get(ctx, "t1", invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusViewed, viewed.Status)
	assert.Equal(t, 1, countEvents(t, store, invoice.ID, domain.EventInvoiceViewed))
}
