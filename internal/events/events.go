// Package events defines the checkout domain events and their publishing contract.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"fanpay/internal/common/nats"
)

// NATS subjects for checkout events
const (
	SubjectPurchaseCreated  = "checkout.purchase.created"
	SubjectPaymentCompleted = "checkout.payment.completed"
	SubjectStakingStaked    = "checkout.staking.staked"
	SubjectWalletVerified   = "wallet.verified"
)

// EventType identifies the type of checkout event.
type EventType string

const (
	EventPurchaseCreated  EventType = "checkout.purchase.created"
	EventPaymentCompleted EventType = "checkout.payment.completed"
	EventStakingStaked    EventType = "checkout.staking.staked"
	EventWalletVerified   EventType = "wallet.verified"
)

// Envelope wraps all events with common metadata.
type Envelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope creates a new event envelope.
func NewEnvelope(eventType EventType, correlationID string, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            ulid.Make().String(),
		Type:          eventType,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Data:          jsonData,
	}, nil
}

// DecodeData decodes the event data into a struct.
func (e *Envelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher publishes checkout events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, subject string, envelope *Envelope) error
}

// NATSPublisher publishes events through a NATS connection.
type NATSPublisher struct {
	client *nats.Client
}

// NewNATSPublisher creates a publisher backed by the given NATS client.
func NewNATSPublisher(client *nats.Client) *NATSPublisher {
	return &NATSPublisher{client: client}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, envelope *Envelope) error {
	return p.client.PublishJSON(ctx, subject, envelope)
}

// NoopPublisher drops all events; used when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that logs and discards events.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *NoopPublisher) Publish(ctx context.Context, subject string, envelope *Envelope) error {
	if p.logger != nil {
		p.logger.Debug("event dropped (no broker)", "subject", subject, "type", envelope.Type)
	}
	return nil
}

// PurchaseCreatedEvent is published when a down payment succeeds and a
// purchase record is persisted.
type PurchaseCreatedEvent struct {
	PurchaseID        string          `json:"purchase_id"`
	WalletAddress     string          `json:"wallet_address"`
	AssetID           int64           `json:"asset_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	DownPaymentAmount decimal.Decimal `json:"down_payment_amount"`
	PaymentMethod     string          `json:"payment_method"`
	TransactionHash   string          `json:"transaction_hash,omitempty"`
}

// PaymentCompletedEvent is published when an installment or final payment completes.
type PaymentCompletedEvent struct {
	PaymentID       string          `json:"payment_id"`
	PurchaseID      string          `json:"purchase_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentType     string          `json:"payment_type"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	PaidAt          time.Time       `json:"paid_at"`
}

// StakingStakedEvent is published when tokens are staked for yield generation.
type StakingStakedEvent struct {
	PurchaseID      string          `json:"purchase_id"`
	StakedAmount    decimal.Decimal `json:"staked_amount"`
	EstimatedAPY    decimal.Decimal `json:"estimated_apy"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
}

// WalletVerifiedEvent is published when a wallet passes the eligibility check.
type WalletVerifiedEvent struct {
	WalletAddress    string `json:"wallet_address"`
	TransactionCount int    `json:"transaction_count"`
	AccountAge       int    `json:"account_age"`
	IsEligible       bool   `json:"is_eligible"`
}
