/**
 * @description
 * This file defines the events the banking service publishes to the message broker.
 * Each struct is the JSON payload written to the outbox in the same transaction as
 * the state change it describes.
 *
 * @notes
 * - Consumers should treat unknown fields as forward-compatible additions.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventsExchange is the topic exchange every banking event is published to.
const EventsExchange = "banking_events"

const (
	RoutingAccountRegistered     = "account.registered"
	RoutingLedgerEntryRecorded   = "ledger.entry_recorded"
	RoutingProfileUpdateSubmit   = "profile_update.submitted"
	RoutingProfileUpdateResolved = "profile_update.resolved"
	RoutingKYCSubmitted          = "kyc.submitted"
	RoutingKYCResolved           = "kyc.resolved"
)

type AccountRegisteredEvent struct {
	AccountID     uuid.UUID   `json:"account_id"`
	AccountNumber string      `json:"account_number"`
	AccountType   AccountType `json:"account_type"`
	CreatedBy     string      `json:"created_by"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

type LedgerEntryRecordedEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Direction     Direction       `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type ProfileUpdateSubmittedEvent struct {
	BatchID    uuid.UUID      `json:"batch_id"`
	AccountID  uuid.UUID      `json:"account_id"`
	Fields     []AccountField `json:"fields"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type RequestResolvedEvent struct {
	RequestID  uuid.UUID     `json:"request_id"`
	AccountID  uuid.UUID     `json:"account_id"`
	Status     RequestStatus `json:"status"`
	ResolvedBy uuid.UUID     `json:"resolved_by"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type KYCSubmittedEvent struct {
	RequestID  uuid.UUID `json:"request_id"`
	AccountID  uuid.UUID `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
