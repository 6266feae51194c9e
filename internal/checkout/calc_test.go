package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatePayments(t *testing.T) {
	t.Run("400 splits into 100 down and three 100 installments", func(t *testing.T) {
		calc, err := CalculatePayments(decimal.RequireFromString("400.00"))
		require.NoError(t, err)

		assert.True(t, calc.DownPaymentAmount.Equal(decimal.NewFromInt(100)), "down payment: %s", calc.DownPaymentAmount)
		assert.True(t, calc.InstallmentAmount.Equal(decimal.NewFromInt(100)), "installment: %s", calc.InstallmentAmount)
		assert.True(t, calc.FinalPaymentAmount.Equal(calc.InstallmentAmount))
	})

	t.Run("down payment plus three installments covers the price", func(t *testing.T) {
		for _, price := range []string{"400.00", "250.00", "1200.00", "99.99", "0.01"} {
			p := decimal.RequireFromString(price)
			calc, err := CalculatePayments(p)
			require.NoError(t, err)

			sum := calc.DownPaymentAmount.Add(calc.InstallmentAmount.Mul(decimal.NewFromInt(3)))
			diff := sum.Sub(p).Abs()
			assert.True(t, diff.LessThan(decimal.RequireFromString("0.000001")),
				"price %s: sum %s drifts by %s", price, sum, diff)
		}
	})

	t.Run("down payment is a quarter of the price", func(t *testing.T) {
		calc, err := CalculatePayments(decimal.RequireFromString("800.00"))
		require.NoError(t, err)
		assert.True(t, calc.DownPaymentAmount.Equal(decimal.NewFromInt(200)))
	})

	t.Run("rejects zero and negative prices", func(t *testing.T) {
		_, err := CalculatePayments(decimal.Zero)
		assert.Error(t, err)

		_, err = CalculatePayments(decimal.NewFromInt(-5))
		assert.Error(t, err)
	})
}
