/**
 * @description
 * This file implements the KYC workflow: a customer uploads an identity
 * document, a photo and a signature; an admin approves or rejects the request.
 *
 * @notes
 * - Documents are written to the blob store before the database transaction.
 *   If the transaction fails, the blobs are deleted again on a best-effort basis.
 * - A pending request blocks resubmission (conflict); an approved one blocks it
 *   for good (already verified). A rejected request allows a new submission.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/avsbank/banking-service/pkg/blobstore"
	"github.com/google/uuid"
)

var allowedDocumentExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".pdf": true}

var (
	errKYCPending  = domain.NewConflictError("You already have a pending KYC request")
	errKYCVerified = domain.NewError(domain.ErrAlreadyVerified, "Your KYC is already verified")
)

// BlobStore persists uploaded documents and returns an opaque reference.
type BlobStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// Document is one uploaded file.
type Document struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// KYCService handles KYC submissions and their resolution.
type KYCService struct {
	store    store.Store
	blobs    BlobStore
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

func NewKYCService(s store.Store, blobs BlobStore, maxBytes int64, logger *slog.Logger) *KYCService {
	return &KYCService{store: s, blobs: blobs, maxBytes: maxBytes, logger: logger, now: time.Now}
}

// MaxDocumentBytes is the size limit for a single uploaded document.
func (s *KYCService) MaxDocumentBytes() int64 { return s.maxBytes }

func (s *KYCService) validateDocuments(docs map[domain.DocumentKind]*Document) error {
	var missing []string
	for _, kind := range domain.DocumentKinds() {
		if doc := docs[kind]; doc == nil || doc.Content == nil || doc.Filename == "" {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		return domain.NewValidationError(missing[0], "Missing files: "+strings.Join(missing, ", "))
	}
	for _, kind := range domain.DocumentKinds() {
		doc := docs[kind]
		ext := strings.ToLower(filepath.Ext(doc.Filename))
		if !allowedDocumentExtensions[ext] {
			return domain.NewValidationError(string(kind), "Only JPG, JPEG and PDF files are allowed")
		}
		if doc.Size <= 0 {
			return domain.NewValidationError(string(kind), "File is empty")
		}
		if doc.Size > s.maxBytes {
			return domain.NewValidationError(string(kind), fmt.Sprintf("File exceeds the %d MB limit", s.maxBytes>>20))
		}
	}
	return nil
}

func checkKYCEligibility(ctx context.Context, q store.KYCRequestQueries, accountID uuid.UUID) error {
	active, err := q.FindActiveKYCRequest(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if active.Status == domain.StatusApproved {
		return errKYCVerified
	}
	return errKYCPending
}

// Submit stores the three documents and records a pending KYC request.
func (s *KYCService) Submit(ctx context.Context, accountID uuid.UUID, docs map[domain.DocumentKind]*Document) (*domain.KYCRequest, error) {
	if err := s.validateDocuments(docs); err != nil {
		return nil, err
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	// Cheap pre-check so obviously ineligible submissions never touch the blob store.
	if err := checkKYCEligibility(ctx, s.store, accountID); err != nil {
		return nil, err
	}

	refs := make(map[domain.DocumentKind]string, len(docs))
	var saved []string
	for _, kind := range domain.DocumentKinds() {
		doc := docs[kind]
		name := fmt.Sprintf("%s_%s%s", kind, uuid.NewString(), strings.ToLower(filepath.Ext(doc.Filename)))
		ref, err := s.blobs.Save(ctx, name, io.LimitReader(doc.Content, s.maxBytes))
		if err != nil {
			s.discard(saved)
			return nil, fmt.Errorf("store %s: %w", kind, err)
		}
		refs[kind] = ref
		saved = append(saved, ref)
	}

	req := &domain.KYCRequest{
		AccountID:     accountID,
		IDDocumentRef: refs[domain.DocumentID],
		PhotoRef:      refs[domain.DocumentPhoto],
		SignatureRef:  refs[domain.DocumentSignature],
	}
	err := s.store.InTx(ctx, func(q store.Queries) error {
		account, err := q.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := checkKYCEligibility(ctx, q, accountID); err != nil {
			return err
		}
		if err := q.InsertKYCRequest(ctx, req); err != nil {
			return err
		}
		req.AccountNumber = account.AccountNumber
		return q.EnqueueEvent(ctx, domain.EventsExchange, domain.RoutingKYCSubmitted, domain.KYCSubmittedEvent{
			RequestID:  req.ID,
			AccountID:  accountID,
			OccurredAt: req.CreatedAt,
		})
	})
	if err != nil {
		s.discard(saved)
		return nil, err
	}

	s.logger.Info("kyc request submitted", "account_id", accountID, "request_id", req.ID)
	return req, nil
}

// discard deletes stored documents on a best-effort basis. Failures are logged
// so orphaned files can be found later.
func (s *KYCService) discard(refs []string) {
	for _, ref := range refs {
		if err := s.blobs.Delete(context.Background(), ref); err != nil {
			s.logger.Warn("orphaned kyc document", "ref", ref, "error", err)
		}
	}
}

// ListPending returns pending KYC requests, oldest first.
func (s *KYCService) ListPending(ctx context.Context) ([]domain.KYCRequest, error) {
	return s.store.ListPendingKYCRequests(ctx)
}

// Resolve approves or rejects one pending KYC request.
func (s *KYCService) Resolve(ctx context.Context, requestID uuid.UUID, action domain.Action, adminID uuid.UUID) (*domain.KYCRequest, error) {
	var resolved *domain.KYCRequest
	err := s.store.InTx(ctx, func(q store.Queries) error {
		req, err := q.LockKYCRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.StatusPending {
			return store.ErrRequestNotFound
		}

		at := s.now().UTC()
		status := action.Target()
		if err := q.ResolveKYCRequest(ctx, req.ID, status, adminID, at); err != nil {
			return err
		}
		req.Status = status
		req.ResolvedAt = &at
		req.ResolvedBy = &adminID
		resolved = req

		return q.EnqueueEvent(ctx, domain.EventsExchange, domain.RoutingKYCResolved, domain.RequestResolvedEvent{
			RequestID:  req.ID,
			AccountID:  req.AccountID,
			Status:     status,
			ResolvedBy: adminID,
			OccurredAt: at,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("kyc request resolved", "request_id", requestID, "status", resolved.Status, "admin_id", adminID)
	return resolved, nil
}

// OpenDocument streams one stored document of a KYC request.
func (s *KYCService) OpenDocument(ctx context.Context, requestID uuid.UUID, kind domain.DocumentKind) (io.ReadCloser, string, error) {
	req, err := s.store.GetKYCRequest(ctx, requestID)
	if err != nil {
		return nil, "", err
	}
	ref, ok := req.Ref(kind)
	if !ok {
		return nil, "", domain.NewValidationError("kind", "Unknown document kind")
	}
	rc, err := s.blobs.Open(ctx, ref)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, "", domain.NewNotFoundError("Document not found")
		}
		return nil, "", err
	}
	return rc, ref, nil
}
