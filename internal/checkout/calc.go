// Package checkout implements the purchase step state machine that drives a
// BNPL purchase from wallet verification through final asset release.
package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	downPaymentRate  = decimal.RequireFromString("0.25")
	installmentCount = decimal.NewFromInt(3)
)

// Calculations is the payment plan derived from an asset price: a 25% down
// payment and three equal installments covering the remainder, the last of
// which releases the asset.
type Calculations struct {
	TotalAmount        decimal.Decimal `json:"total_amount"`
	DownPaymentAmount  decimal.Decimal `json:"down_payment_amount"`
	InstallmentAmount  decimal.Decimal `json:"installment_amount"`
	FinalPaymentAmount decimal.Decimal `json:"final_payment_amount"`
}

// CalculatePayments derives the payment plan for a positive asset price.
func CalculatePayments(price decimal.Decimal) (Calculations, error) {
	if !price.IsPositive() {
		return Calculations{}, fmt.Errorf("asset price must be positive, got %s", price)
	}

	down := price.Mul(downPaymentRate)
	installment := price.Sub(down).Div(installmentCount)

	return Calculations{
		TotalAmount:        price,
		DownPaymentAmount:  down,
		InstallmentAmount:  installment,
		FinalPaymentAmount: installment,
	}, nil
}
