package checkout

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"fanpay/internal/store"
)

// Flow owns the canonical state of one purchase attempt: the step template,
// the selected asset and its payment plan, and the denormalized verification
// statuses. CurrentStep only ever moves forward; failed steps stay retryable
// in place.
type Flow struct {
	mu sync.Mutex

	currentStep         StepID
	steps               []Step
	selectedAsset       *store.Asset
	calculations        *Calculations
	kycStatus           string
	affordabilityStatus string
	yieldEnabled        bool
	stakedAmount        decimal.Decimal
	estimatedYield      decimal.Decimal
}

// Snapshot is a point-in-time copy of the flow state.
type Snapshot struct {
	CurrentStep         StepID          `json:"current_step"`
	Steps               []Step          `json:"steps"`
	SelectedAsset       *store.Asset    `json:"selected_asset,omitempty"`
	Calculations        *Calculations   `json:"calculations,omitempty"`
	KYCStatus           string          `json:"kyc_status"`
	AffordabilityStatus string          `json:"affordability_status"`
	YieldEnabled        bool            `json:"yield_enabled"`
	StakedAmount        decimal.Decimal `json:"staked_amount"`
	EstimatedYield      decimal.Decimal `json:"estimated_yield"`
}

// NewFlow creates a flow at the start of the step template.
func NewFlow() *Flow {
	return &Flow{
		currentStep:         StepWalletVerification,
		steps:               newSteps(),
		kycStatus:           "pending",
		affordabilityStatus: "not_checked",
		stakedAmount:        decimal.Zero,
		estimatedYield:      decimal.Zero,
	}
}

// Reset restores the flow to the pristine template. Idempotent.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.currentStep = StepWalletVerification
	f.steps = newSteps()
	f.selectedAsset = nil
	f.calculations = nil
	f.kycStatus = "pending"
	f.affordabilityStatus = "not_checked"
	f.yieldEnabled = false
	f.stakedAmount = decimal.Zero
	f.estimatedYield = decimal.Zero
}

// SelectAsset sets the asset being purchased and recomputes the payment plan.
func (f *Flow) SelectAsset(asset *store.Asset) error {
	if asset == nil {
		return fmt.Errorf("no asset selected")
	}
	calc, err := CalculatePayments(asset.Price)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	a := *asset
	f.selectedAsset = &a
	f.calculations = &calc
	return nil
}

// UpdateStepStatus sets the named step's status. Completing a step advances
// CurrentStep to min(id+1, StepCount); a failure never moves it.
func (f *Flow) UpdateStepStatus(id StepID, status StepStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateStepLocked(id, status)
}

func (f *Flow) updateStepLocked(id StepID, status StepStatus) error {
	idx := int(id) - 1
	if idx < 0 || idx >= len(f.steps) {
		return fmt.Errorf("unknown step id %d", id)
	}

	f.steps[idx].Status = status

	if status == StepCompleted {
		next := id + 1
		if int(next) > StepCount {
			next = StepID(StepCount)
		}
		if next > f.currentStep {
			f.currentStep = next
		}
	}
	return nil
}

// begin transitions a step to in_progress after checking the ordering
// invariant: the preceding step must not itself be in_progress.
func (f *Flow) begin(id StepID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := int(id) - 1
	if idx < 0 || idx >= len(f.steps) {
		return fmt.Errorf("unknown step id %d", id)
	}
	if idx > 0 && f.steps[idx-1].Status == StepInProgress {
		return fmt.Errorf("step %d cannot start while step %d is in progress", id, id-1)
	}

	return f.updateStepLocked(id, StepInProgress)
}

// CurrentStep returns the 1-based index of the active step.
func (f *Flow) CurrentStep() StepID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentStep
}

// StepStatus returns the status of the given step.
func (f *Flow) StepStatus(id StepID) (StepStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := int(id) - 1
	if idx < 0 || idx >= len(f.steps) {
		return "", fmt.Errorf("unknown step id %d", id)
	}
	return f.steps[idx].Status, nil
}

// Calculations returns the current payment plan, or nil before an asset is
// selected.
func (f *Flow) Calculations() *Calculations {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calculations == nil {
		return nil
	}
	c := *f.calculations
	return &c
}

// SelectedAsset returns the asset being purchased, or nil.
func (f *Flow) SelectedAsset() *store.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectedAsset == nil {
		return nil
	}
	a := *f.selectedAsset
	return &a
}

// Snapshot returns a copy of the full flow state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := Snapshot{
		CurrentStep:         f.currentStep,
		Steps:               make([]Step, len(f.steps)),
		KYCStatus:           f.kycStatus,
		AffordabilityStatus: f.affordabilityStatus,
		YieldEnabled:        f.yieldEnabled,
		StakedAmount:        f.stakedAmount,
		EstimatedYield:      f.estimatedYield,
	}
	copy(snap.Steps, f.steps)

	if f.selectedAsset != nil {
		a := *f.selectedAsset
		snap.SelectedAsset = &a
	}
	if f.calculations != nil {
		c := *f.calculations
		snap.Calculations = &c
	}
	return snap
}

func (f *Flow) setKYCStatus(status string) {
	f.mu.Lock()
	f.kycStatus = status
	f.mu.Unlock()
}

func (f *Flow) setAffordabilityStatus(status string) {
	f.mu.Lock()
	f.affordabilityStatus = status
	f.mu.Unlock()
}

func (f *Flow) setYield(staked, estimated decimal.Decimal) {
	f.mu.Lock()
	f.yieldEnabled = true
	f.stakedAmount = staked
	f.estimatedYield = estimated
	f.mu.Unlock()
}
