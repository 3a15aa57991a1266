package pdf

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"factura/internal/domain"
)

// Generate рендерит снапшот инвойса в PDF. Чистая функция от содержимого
// снапшота: никакого обращения к хранилищу или состоянию инвойса.
func Generate(snapshot domain.InvoiceSnapshot) ([]byte, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 20)
	doc.Cell(0, 12, fmt.Sprintf("Invoice %s", snapshot.InvoiceNumber))
	doc.Ln(16)

	doc.SetFont("Helvetica", "", 12)
	doc.Cell(0, 8, fmt.Sprintf("Customer: %s", snapshot.CustomerName))
	doc.Ln(8)
	doc.Cell(0, 8, fmt.Sprintf("Email: %s", snapshot.CustomerEmail))
	doc.Ln(8)
	doc.Cell(0, 8, fmt.Sprintf("Billing address: %s", snapshot.BillingAddress))
	doc.Ln(8)
	doc.Cell(0, 8, fmt.Sprintf("Due: %s", snapshot.DueDate))
	doc.Ln(12)

	for _, item := range snapshot.Items {
		doc.Cell(0, 8, fmt.Sprintf("%s x %v @ %v %s", item.Description, item.Quantity, item.UnitPrice, snapshot.Currency))
		doc.Ln(8)
	}

	if snapshot.Memo != "" {
		doc.Ln(4)
		doc.Cell(0, 8, fmt.Sprintf("Memo: %s", snapshot.Memo))
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
