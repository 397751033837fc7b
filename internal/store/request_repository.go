/**
 * @description
 * This file implements persistence for the two approval queues: field update
 * requests and KYC requests.
 *
 * @notes
 * - Resolve* statements repeat the status = 'pending' guard so a request can only
 *   leave the pending state once, even if a caller forgot to lock it first.
 * - At most one pending update batch per account is enforced by the
 *   update_requests_one_pending exclusion constraint; at most one pending or
 *   approved KYC request per account by kyc_requests_one_active_idx.
 */
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const updateRequestColumns = `r.id, r.batch_id, r.account_id, a.account_number, r.field, r.old_value,
	r.new_value, r.status, r.created_at, r.resolved_at, r.resolved_by`

func scanUpdateRequest(row pgx.Row) (*domain.FieldUpdateRequest, error) {
	var r domain.FieldUpdateRequest
	err := row.Scan(&r.ID, &r.BatchID, &r.AccountID, &r.AccountNumber, &r.Field, &r.OldValue,
		&r.NewValue, &r.Status, &r.CreatedAt, &r.ResolvedAt, &r.ResolvedBy)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) HasPendingUpdateRequest(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var pending bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM field_update_requests WHERE account_id = $1 AND status = 'pending')`,
		accountID,
	).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("check pending update requests: %w", err)
	}
	return pending, nil
}

func (q *queries) InsertUpdateRequest(ctx context.Context, req *domain.FieldUpdateRequest) error {
	query := `
		INSERT INTO field_update_requests (batch_id, account_id, field, old_value, new_value, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, status, created_at
	`
	err := q.db.QueryRow(ctx, query,
		req.BatchID,
		req.AccountID,
		string(req.Field),
		req.OldValue,
		req.NewValue,
	).Scan(&req.ID, &req.Status, &req.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("insert update request: %w", err))
	}
	return nil
}

func (q *queries) LockUpdateRequest(ctx context.Context, id uuid.UUID) (*domain.FieldUpdateRequest, error) {
	query := `SELECT ` + updateRequestColumns + `
		FROM field_update_requests r
		JOIN accounts a ON a.id = r.account_id
		WHERE r.id = $1
		FOR UPDATE OF r`
	req, err := scanUpdateRequest(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("lock update request: %w", err)
	}
	return req, nil
}

func (q *queries) ResolveUpdateRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, adminID uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE field_update_requests
		SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), at, adminID)
	if err != nil {
		return fmt.Errorf("resolve update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// ListPendingUpdateRequests returns every pending request, oldest first.
func (q *queries) ListPendingUpdateRequests(ctx context.Context) ([]domain.FieldUpdateRequest, error) {
	query := `SELECT ` + updateRequestColumns + `
		FROM field_update_requests r
		JOIN accounts a ON a.id = r.account_id
		WHERE r.status = 'pending'
		ORDER BY r.created_at, r.id`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending update requests: %w", err)
	}
	defer rows.Close()

	requests := []domain.FieldUpdateRequest{}
	for rows.Next() {
		req, err := scanUpdateRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

const kycRequestColumns = `k.id, k.account_id, a.account_number, k.id_document_ref, k.photo_ref,
	k.signature_ref, k.status, k.created_at, k.resolved_at, k.resolved_by`

func scanKYCRequest(row pgx.Row) (*domain.KYCRequest, error) {
	var k domain.KYCRequest
	err := row.Scan(&k.ID, &k.AccountID, &k.AccountNumber, &k.IDDocumentRef, &k.PhotoRef,
		&k.SignatureRef, &k.Status, &k.CreatedAt, &k.ResolvedAt, &k.ResolvedBy)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (q *queries) getKYCRequest(ctx context.Context, where string, arg any) (*domain.KYCRequest, error) {
	query := `SELECT ` + kycRequestColumns + `
		FROM kyc_requests k
		JOIN accounts a ON a.id = k.account_id
		WHERE ` + where
	req, err := scanKYCRequest(q.db.QueryRow(ctx, query, arg))
	if err != nil {
		if noRows(err) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("select kyc request: %w", err)
	}
	return req, nil
}

func (q *queries) FindActiveKYCRequest(ctx context.Context, accountID uuid.UUID) (*domain.KYCRequest, error) {
	return q.getKYCRequest(ctx, `k.account_id = $1 AND k.status IN ('pending', 'approved') LIMIT 1`, accountID)
}

func (q *queries) LatestKYCRequest(ctx context.Context, accountID uuid.UUID) (*domain.KYCRequest, error) {
	return q.getKYCRequest(ctx, `k.account_id = $1 ORDER BY k.created_at DESC, k.id DESC LIMIT 1`, accountID)
}

func (q *queries) GetKYCRequest(ctx context.Context, id uuid.UUID) (*domain.KYCRequest, error) {
	return q.getKYCRequest(ctx, `k.id = $1`, id)
}

func (q *queries) LockKYCRequest(ctx context.Context, id uuid.UUID) (*domain.KYCRequest, error) {
	return q.getKYCRequest(ctx, `k.id = $1 FOR UPDATE OF k`, id)
}

func (q *queries) KYCDocumentRefs(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT ref
		FROM kyc_requests k,
			unnest(ARRAY[k.id_document_ref, k.photo_ref, k.signature_ref]) AS ref
		WHERE k.account_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("select kyc document refs: %w", err)
	}
	refs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan kyc document refs: %w", err)
	}
	return refs, nil
}

func (q *queries) InsertKYCRequest(ctx context.Context, req *domain.KYCRequest) error {
	query := `
		INSERT INTO kyc_requests (account_id, id_document_ref, photo_ref, signature_ref, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, status, created_at
	`
	err := q.db.QueryRow(ctx, query,
		req.AccountID,
		req.IDDocumentRef,
		req.PhotoRef,
		req.SignatureRef,
	).Scan(&req.ID, &req.Status, &req.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("insert kyc request: %w", err))
	}
	return nil
}

func (q *queries) ResolveKYCRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, adminID uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE kyc_requests
		SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), at, adminID)
	if err != nil {
		return fmt.Errorf("resolve kyc request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// ListPendingKYCRequests returns every pending request, oldest first.
func (q *queries) ListPendingKYCRequests(ctx context.Context) ([]domain.KYCRequest, error) {
	query := `SELECT ` + kycRequestColumns + `
		FROM kyc_requests k
		JOIN accounts a ON a.id = k.account_id
		WHERE k.status = 'pending'
		ORDER BY k.created_at, k.id`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending kyc requests: %w", err)
	}
	defer rows.Close()

	requests := []domain.KYCRequest{}
	for rows.Next() {
		req, err := scanKYCRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}
