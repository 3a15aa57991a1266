package handler

import (
	"log"
	"net"
	"net/http"

	"factura/internal/domain"
	"factura/internal/pdf"
	"factura/internal/ratelimit"
	"factura/internal/service"
)

// ViewHandler обслуживает публичные клиентские маршруты. Сессии здесь
// нет: доступ даёт только валидный capability-токен из ссылки.
type ViewHandler struct {
	invoiceService *service.InvoiceService
	limiter        *ratelimit.Limiter
}

func NewViewHandler(invoiceService *service.InvoiceService, limiter *ratelimit.Limiter) *ViewHandler {
	return &ViewHandler{invoiceService: invoiceService, limiter: limiter}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *ViewHandler) ViewInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow("view:" + clientIP(r)) {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	invoiceID, err := invoiceIDParam(r, "invoiceId")
	if err != nil {
		// Невалидный ID неотличим от несуществующего инвойса
		writeError(w, domain.NewNotFound("invoice not found"))
		return
	}

	token := r.URL.Query().Get("t")
	if token == "" {
		writeError(w, domain.NewNotFound("invoice not found"))
		return
	}

	if err := h.invoiceService.RecordCustomerView(r.Context(), invoiceID, token, ""); err != nil {
		if !domain.IsNotFound(err) {
			log.Printf("[ViewInvoice] Failed to record view for %s: %v", invoiceID, err)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ViewHandler) GetInvoicePdf(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow("view:" + clientIP(r)) {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	invoiceID, err := invoiceIDParam(r, "invoiceId")
	if err != nil {
		writeError(w, domain.NewNotFound("invoice not found"))
		return
	}

	token := r.URL.Query().Get("t")
	if token == "" {
		writeError(w, domain.NewNotFound("invoice not found"))
		return
	}

	snapshot, err := h.invoiceService.CustomerSnapshot(r.Context(), invoiceID, token)
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

	if err := h.invoiceService.RecordPDFGenerated(r.Context(), invoiceID, domain.ActorCustomer, ""); err != nil {
		log.Printf("[GetInvoicePdf] Failed to record pdf event for %s: %v", invoiceID, err)
	}

	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(data)
}
