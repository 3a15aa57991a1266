package service

import (
	"github.com/shopspring/decimal"

	"factura/internal/domain"
)

var taxRate = decimal.NewFromInt(10).Div(decimal.NewFromInt(100))

type Totals struct {
	Subtotal float64
	Tax      float64
	Total    float64
}

// CalculateTotals считает суммы по позициям снапшота. Вся арифметика
// идёт через decimal, округление до центов — half away from zero, так
// что результат воспроизводим бит-в-бит для одинакового входа.
func CalculateTotals(snapshot domain.InvoiceSnapshot) Totals {
	subtotal := decimal.Zero
	for _, item := range snapshot.Items {
		quantity := decimal.NewFromFloat(item.Quantity)
		unitPrice := decimal.NewFromFloat(item.UnitPrice)
		subtotal = subtotal.Add(quantity.Mul(unitPrice))
	}

	tax := subtotal.Mul(taxRate).Round(2)
	total := subtotal.Add(tax).Round(2)

	subtotalF, _ := subtotal.Float64()
	taxF, _ := tax.Float64()
	totalF, _ := total.Float64()
	return Totals{Subtotal: subtotalF, Tax: taxF, Total: totalF}
}
