/**
 * @description
 * This file implements the profile update workflow. A customer proposes new
 * values for self-service fields; each changed field becomes one pending request
 * and an admin approves or rejects each request individually.
 *
 * @notes
 * - One submission (batch) may be pending per account at a time. The account row
 *   lock serializes submissions; the exclusion constraint is the storage guard.
 * - Approving re-validates the value and may fail on a uniqueness clash, in which
 *   case the request stays pending.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/google/uuid"
)

var (
	errUpdatePending = domain.NewConflictError("You already have a pending update request. Please wait for admin approval or rejection.")
	errNoChanges     = domain.NewError(domain.ErrNoChange, "No changes detected. Please modify at least one field.")
)

// UpdateRequestService handles profile update submissions and their resolution.
type UpdateRequestService struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewUpdateRequestService(s store.Store, logger *slog.Logger) *UpdateRequestService {
	return &UpdateRequestService{store: s, logger: logger, now: time.Now}
}

// Submit records one pending request per field whose proposed value differs
// from the current one.
func (s *UpdateRequestService) Submit(ctx context.Context, accountID uuid.UUID, proposed map[string]string) ([]domain.FieldUpdateRequest, error) {
	values := make(map[domain.AccountField]string, len(proposed))
	for name, raw := range proposed {
		field, err := domain.ParseSelfServiceField(name)
		if err != nil {
			return nil, err
		}
		value := field.Normalize(raw)
		if err := field.Validate(value); err != nil {
			return nil, err
		}
		values[field] = value
	}

	var created []domain.FieldUpdateRequest
	err := s.store.InTx(ctx, func(q store.Queries) error {
		account, err := q.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		pending, err := q.HasPendingUpdateRequest(ctx, accountID)
		if err != nil {
			return err
		}
		if pending {
			return errUpdatePending
		}

		batchID := uuid.New()
		var fields []domain.AccountField
		for _, field := range domain.SelfServiceFields() {
			value, ok := values[field]
			if !ok {
				continue
			}
			current := field.Get(account)
			if value == current {
				continue
			}
			req := domain.FieldUpdateRequest{
				BatchID:   batchID,
				AccountID: accountID,
				Field:     field,
				OldValue:  current,
				NewValue:  value,
			}
			if err := q.InsertUpdateRequest(ctx, &req); err != nil {
				return err
			}
			req.AccountNumber = account.AccountNumber
			created = append(created, req)
			fields = append(fields, field)
		}
		if len(created) == 0 {
			return errNoChanges
		}

		return q.EnqueueEvent(ctx, domain.EventsExchange, domain.RoutingProfileUpdateSubmit, domain.ProfileUpdateSubmittedEvent{
			BatchID:    batchID,
			AccountID:  accountID,
			Fields:     fields,
			OccurredAt: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile update submitted", "account_id", accountID, "fields", len(created))
	return created, nil
}

// ListPending returns pending requests, oldest first.
func (s *UpdateRequestService) ListPending(ctx context.Context) ([]domain.FieldUpdateRequest, error) {
	return s.store.ListPendingUpdateRequests(ctx)
}

// Resolve approves or rejects one pending request. Approval writes the new
// value to the account in the same transaction.
func (s *UpdateRequestService) Resolve(ctx context.Context, requestID uuid.UUID, action domain.Action, adminID uuid.UUID) (*domain.FieldUpdateRequest, error) {
	var resolved *domain.FieldUpdateRequest
	err := s.store.InTx(ctx, func(q store.Queries) error {
		req, err := q.LockUpdateRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.StatusPending {
			return store.ErrRequestNotFound
		}

		if action == domain.ActionApprove {
			account, err := q.LockAccount(ctx, req.AccountID)
			if err != nil {
				return err
			}
			if err := req.Field.Apply(account, req.NewValue); err != nil {
				return err
			}
			if err := q.UpdateAccount(ctx, account); err != nil {
				return err
			}
		}

		at := s.now().UTC()
		status := action.Target()
		if err := q.ResolveUpdateRequest(ctx, req.ID, status, adminID, at); err != nil {
			return err
		}
		req.Status = status
		req.ResolvedAt = &at
		req.ResolvedBy = &adminID
		resolved = req

		return q.EnqueueEvent(ctx, domain.EventsExchange, domain.RoutingProfileUpdateResolved, domain.RequestResolvedEvent{
			RequestID:  req.ID,
			AccountID:  req.AccountID,
			Status:     status,
			ResolvedBy: adminID,
			OccurredAt: at,
		})
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrValidation) {
			s.logger.Error("failed to resolve update request", "request_id", requestID, "error", err)
		}
		return nil, err
	}

	s.logger.Info("profile update resolved", "request_id", requestID, "status", resolved.Status, "admin_id", adminID)
	return resolved, nil
}
