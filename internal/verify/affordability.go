package verify

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"fanpay/internal/store"
)

// AffordabilityResult is the outcome of an affordability assessment.
type AffordabilityResult struct {
	CanAfford        bool            `json:"can_afford"`
	MonthlyIncome    decimal.Decimal `json:"monthly_income"`
	MonthlyExpenses  decimal.Decimal `json:"monthly_expenses"`
	DisposableIncome decimal.Decimal `json:"disposable_income"`
	CreditScore      int             `json:"credit_score"`
	RecommendedLimit decimal.Decimal `json:"recommended_limit"`
}

// AffordabilityService assesses whether a wallet can afford a purchase. The
// sandbox profile is derived from the address so assessments are repeatable.
type AffordabilityService struct {
	store  store.Store
	logger *slog.Logger
}

// NewAffordabilityService creates the affordability assessment service.
func NewAffordabilityService(s store.Store, logger *slog.Logger) *AffordabilityService {
	return &AffordabilityService{store: s, logger: logger}
}

// Assess evaluates a wallet's finances against a purchase amount and records
// the verdict on the user when one exists.
func (s *AffordabilityService) Assess(ctx context.Context, walletAddress string, amount decimal.Decimal) AffordabilityResult {
	seed := addressSeed(walletAddress)

	income := decimal.NewFromInt(2500 + seed%2500)
	expenses := income.Mul(decimal.RequireFromString("0.65")).Round(2)
	disposable := income.Sub(expenses)
	creditScore := int(650 + seed%200)

	canAfford := amount.LessThan(disposable.Mul(decimal.RequireFromString("2.5")))

	limit := income.Mul(decimal.RequireFromString("0.35")).Round(2)
	cap := decimal.NewFromInt(4000)
	if limit.GreaterThan(cap) {
		limit = cap
	}

	result := AffordabilityResult{
		CanAfford:        canAfford,
		MonthlyIncome:    income,
		MonthlyExpenses:  expenses,
		DisposableIncome: disposable,
		CreditScore:      creditScore,
		RecommendedLimit: limit,
	}

	status := "verified"
	if !canAfford {
		status = "failed"
	}
	if user, err := s.store.GetUserByWallet(ctx, walletAddress); err == nil {
		if _, err := s.store.UpdateUserVerification(ctx, walletAddress, user.KYCStatus, &status); err != nil {
			s.logger.Error("failed to record affordability verdict", "address", walletAddress, "error", err)
		}
	}

	return result
}
