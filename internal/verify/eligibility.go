package verify

import "fmt"

// Eligibility thresholds for wallet verification.
const (
	MinTransactionCount = 5
	MinAccountAgeDays   = 15
)

// EligibilityResult is the outcome of evaluating a wallet's on-chain history
// against the eligibility rules.
type EligibilityResult struct {
	IsEligible       bool     `json:"is_eligible"`
	TransactionCount int      `json:"transaction_count"`
	AccountAge       int      `json:"account_age"`
	IsBlacklisted    bool     `json:"is_blacklisted"`
	Details          []string `json:"details"`
}

// Evaluate applies the eligibility rules to a wallet's activity figures.
// Every failing rule contributes a detail line; an eligible wallet gets a
// single confirmation line.
func Evaluate(transactionCount, accountAgeDays int, blacklisted bool) EligibilityResult {
	result := EligibilityResult{
		TransactionCount: transactionCount,
		AccountAge:       accountAgeDays,
		IsBlacklisted:    blacklisted,
	}

	if transactionCount < MinTransactionCount {
		result.Details = append(result.Details,
			fmt.Sprintf("Insufficient transactions: %d/%d required", transactionCount, MinTransactionCount))
	}
	if accountAgeDays < MinAccountAgeDays {
		result.Details = append(result.Details,
			fmt.Sprintf("Account too new: %d days old, %d+ required", accountAgeDays, MinAccountAgeDays))
	}
	if blacklisted {
		result.Details = append(result.Details, "Wallet address is blacklisted")
	}

	if len(result.Details) == 0 {
		result.IsEligible = true
		result.Details = []string{"Wallet meets all eligibility requirements"}
	}
	return result
}
