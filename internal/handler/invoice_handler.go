package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"factura/internal/auth"
	"factura/internal/domain"
	"factura/internal/email"
	"factura/internal/pdf"
	"factura/internal/service"
)

type InvoiceHandler struct {
	invoiceService *service.InvoiceService
	emailProvider  email.Provider
	baseURL        string
}

func NewInvoiceHandler(invoiceService *service.InvoiceService, emailProvider email.Provider, baseURL string) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		emailProvider:  emailProvider,
		baseURL:        baseURL,
	}
}

type createInvoiceRequest struct {
	CustomerID    string                 `json:"customer_id"`
	InvoiceNumber string                 `json:"invoice_number"`
	Currency      string                 `json:"currency"`
	DueDate       time.Time              `json:"due_date"`
	Snapshot      domain.InvoiceSnapshot `json:"snapshot"`
}

type updateInvoiceRequest struct {
	Snapshot domain.InvoiceSnapshot `json:"snapshot"`
}

func invoiceIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid invoice ID: %w", err)
	}
	return id, nil
}

func (h *InvoiceHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r)
	if err != nil {
		log.Printf("[CreateInvoice] Authentication failed: %v", err)
		writeError(w, err)
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[CreateInvoice] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.CustomerID == "" || req.InvoiceNumber == "" || len(req.Currency) != 3 {
		http.Error(w, "customer_id, invoice_number and 3-letter currency are required", http.StatusBadRequest)
		return
	}

	invoice, err := h.invoiceService.CreateDraft(r.Context(), service.CreateDraftInput{
		TenantID:        session.TenantID,
		CustomerID:      req.CustomerID,
		InvoiceNumber:   req.InvoiceNumber,
		Currency:        req.Currency,
		DueDate:         req.DueDate,
		Snapshot:        req.Snapshot,
		CreatedByUserID: session.UserID,
	})
	if err != nil {
		log.Printf("[CreateInvoice] Failed to create draft: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[CreateInvoice] Created draft invoice %s for tenant %s", invoice.ID, session.TenantID)
	writeJSON(w, http.StatusCreated, invoice)
}

func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	invoiceID, err := invoiceIDParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	invoice, err := h.invoiceService.Get(r.Context(), session.TenantID, invoiceID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invoice)
}

func (h *InvoiceHandler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	invoiceID, err := invoiceIDParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req updateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[UpdateInvoice] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	invoice, err := h.invoiceService.UpdateDraft(r.Context(), session.TenantID, invoiceID, req.Snapshot, session.UserID)
	if err != nil {
		log.Printf("[UpdateInvoice] Failed to update draft %s: %v", invoiceID, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invoice)
}

func (h *InvoiceHandler) IssueInvoice(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	invoiceID, err := invoiceIDParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.invoiceService.Issue(r.Context(), session.TenantID, invoiceID, session.UserID); err != nil {
		log.Printf("[IssueInvoice] Failed to issue %s: %v", invoiceID, err)
		writeError(w, err)
		return
	}

	log.Printf("[IssueInvoice] Issued invoice %s", invoiceID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SendInvoice выпускает токен просмотра, отправляет клиенту ссылку и
// отмечает инвойс как SENT. Сырой токен живёт только в письме.
func (h *InvoiceHandler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	invoiceID, err := invoiceIDParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	invoice, err := h.invoiceService.Get(r.Context(), session.TenantID, invoiceID)
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := h.invoiceService.CurrentSnapshot(r.Context(), session.TenantID, invoiceID)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.invoiceService.CreateViewToken(r.Context(), session.TenantID, invoiceID, session.UserID, nil)
	if err != nil {
		log.Printf("[SendInvoice] Failed to create view token for %s: %v", invoiceID, err)
		writeError(w, err)
		return
	}

	link := fmt.Sprintf("%s/i/%s?t=%s", h.baseURL, invoice.ID, token.Token)
	result, err := h.emailProvider.Send(r.Context(), email.Message{
		To:      snapshot.CustomerEmail,
		Subject: fmt.Sprintf("Invoice %s", invoice.InvoiceNumber),
		Text:    link,
	})
	if err != nil {
		log.Printf("[SendInvoice] Delivery failed for %s: %v", invoiceID, err)
		writeError(w, fmt.Errorf("failed to send invoice: %w", err))
		return
	}

	// В событие попадает только message id провайдера, ссылка с токеном — нет
	if err := h.invoiceService.MarkSent(r.Context(), session.TenantID, invoiceID, session.UserID, map[string]interface{}{
		"link_preview":        "redacted",
		"provider_message_id": result.MessageID,
	}); err != nil {
		log.Printf("[SendInvoice] Failed to mark sent %s: %v", invoiceID, err)
		writeError(w, err)
		return
	}

	log.Printf("[SendInvoice] Sent invoice %s to customer", invoiceID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *InvoiceHandler) GetInvoiceEvents(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	invoiceID, err := invoiceIDParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.invoiceService.ListEvents(r.Context(), session.TenantID, invoiceID)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *InvoiceHandler) GetInvoicePdf(w http.ResponseWriter, r *http.Request) {
	session, err := auth.RequireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	invoiceID, err := invoiceIDParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snapshot, err := h.invoiceService.CurrentSnapshot(r.Context(), session.TenantID, invoiceID)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := pdf.Generate(*snapshot)
	if err != nil {
		log.Printf("[GetInvoicePdf] Failed to render pdf for %s: %v", invoiceID, err)
		writeError(w, err)
		return
	}

	if err := h.invoiceService.RecordPDFGenerated(r.Context(), invoiceID, domain.ActorInternal, session.UserID); err != nil {
		log.Printf("[GetInvoicePdf] Failed to record pdf event for %s: %v", invoiceID, err)
		// PDF уже отрендерен, ошибку аудита не превращаем в отказ
	}

	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(data)
}
