package checkout

// StepID identifies a step in the fixed purchase template.
type StepID int

const (
	StepWalletVerification StepID = iota + 1
	StepKYC
	StepAffordability
	StepDownPayment
	StepInstallments
	StepYield
	StepFinalRelease

	StepCount = int(StepFinalRelease)
)

// StepStatus is the lifecycle status of a single step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Step is one entry in the purchase step template.
type Step struct {
	ID          StepID     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Optional    bool       `json:"optional"`
}

// newSteps instantiates the fixed seven-step template.
func newSteps() []Step {
	return []Step{
		{
			ID:          StepWalletVerification,
			Title:       "Wallet Verification",
			Description: "Verify wallet eligibility (5+ transactions, 15+ days old)",
			Status:      StepPending,
		},
		{
			ID:          StepKYC,
			Title:       "Identity Verification (KYC)",
			Description: "Stripe Identity verification for compliance",
			Status:      StepPending,
		},
		{
			ID:          StepAffordability,
			Title:       "Affordability Check",
			Description: "TrueLayer Open Banking verification",
			Status:      StepPending,
		},
		{
			ID:          StepDownPayment,
			Title:       "Down Payment (25%)",
			Description: "Pay 25% now to secure your purchase",
			Status:      StepPending,
		},
		{
			ID:          StepInstallments,
			Title:       "Installment Payments",
			Description: "Two equal payments over 60 days",
			Status:      StepPending,
		},
		{
			ID:          StepYield,
			Title:       "Yield Generation",
			Description: "Stake CHZ to potentially reduce your final payment",
			Status:      StepPending,
			Optional:    true,
		},
		{
			ID:          StepFinalRelease,
			Title:       "Final Payment & Asset Release*",
			Description: "Asset transferred to your wallet after final payment (*NFTs and Fan Tokens only)",
			Status:      StepPending,
		},
	}
}
