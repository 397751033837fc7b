/**
 * @description
 * This file defines the two approval workflows: per-field profile update requests
 * and KYC document submissions. Both share the same three-state lifecycle.
 *
 * @notes
 * - pending -> approved | rejected; terminal states never change again.
 */
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state shared by update and KYC requests.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// KYCNotSubmitted is reported on a profile when the account has no KYC request at all.
const KYCNotSubmitted = "not_submitted"

// Action is an admin decision on a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction accepts "approve" or "reject", case-insensitively.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", NewValidationError("action", "Invalid action")
}

// Target is the status a request moves to when this action is applied.
func (a Action) Target() RequestStatus {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// RequestKind names one of the two admin review queues.
type RequestKind string

const (
	KindUpdate RequestKind = "update"
	KindKYC    RequestKind = "kyc"
)

// FieldUpdateRequest proposes a new value for one profile field.
// Requests submitted together share a BatchID.
type FieldUpdateRequest struct {
	ID            uuid.UUID     `json:"id"`
	BatchID       uuid.UUID     `json:"batch_id"`
	AccountID     uuid.UUID     `json:"user_id"`
	AccountNumber string        `json:"account_number,omitempty"`
	Field         AccountField  `json:"field"`
	OldValue      string        `json:"old_value"`
	NewValue      string        `json:"new_value"`
	Status        RequestStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy    *uuid.UUID    `json:"resolved_by,omitempty"`
}

// KYCRequest references the three documents a customer uploaded for verification.
type KYCRequest struct {
	ID            uuid.UUID     `json:"id"`
	AccountID     uuid.UUID     `json:"user_id"`
	AccountNumber string        `json:"account_number,omitempty"`
	IDDocumentRef string        `json:"id_document"`
	PhotoRef      string        `json:"photo"`
	SignatureRef  string        `json:"signature"`
	Status        RequestStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy    *uuid.UUID    `json:"resolved_by,omitempty"`
}

// DocumentKind names one of the KYC uploads.
type DocumentKind string

const (
	DocumentID        DocumentKind = "id_document"
	DocumentPhoto     DocumentKind = "photo"
	DocumentSignature DocumentKind = "signature"
)

// DocumentKinds lists the uploads a KYC submission requires, in form order.
func DocumentKinds() []DocumentKind {
	return []DocumentKind{DocumentID, DocumentPhoto, DocumentSignature}
}

// Ref returns the stored blob reference for a document kind.
func (k *KYCRequest) Ref(kind DocumentKind) (string, bool) {
	switch kind {
	case DocumentID:
		return k.IDDocumentRef, true
	case DocumentPhoto:
		return k.PhotoRef, true
	case DocumentSignature:
		return k.SignatureRef, true
	}
	return "", false
}
