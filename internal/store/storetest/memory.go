// Package storetest provides an in-memory store.Store for service and handler tests.
// It honours the same constraints as the PostgreSQL schema: unique account fields,
// non-negative balances, one pending update batch and one active KYC request per
// account. Transactions are serialized by a single mutex and roll back by
// discarding a copy of the state.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is an outbox entry recorded by EnqueueEvent.
type Event struct {
	Exchange   string
	RoutingKey string
	Payload    json.RawMessage
}

type state struct {
	accounts     map[uuid.UUID]*domain.Account
	nextNumber   int64
	transactions []domain.TransactionRecord
	updates      []*domain.FieldUpdateRequest
	kyc          []*domain.KYCRequest
	admins       map[uuid.UUID]*domain.Admin
	events       []Event
	clock        time.Time
}

func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[uuid.UUID]*domain.Account, len(s.accounts)),
		nextNumber:   s.nextNumber,
		transactions: append([]domain.TransactionRecord(nil), s.transactions...),
		admins:       make(map[uuid.UUID]*domain.Admin, len(s.admins)),
		events:       append([]Event(nil), s.events...),
		clock:        s.clock,
	}
	for id, a := range s.accounts {
		c.accounts[id] = copyAccount(a)
	}
	for _, r := range s.updates {
		cp := *r
		c.updates = append(c.updates, &cp)
	}
	for _, k := range s.kyc {
		cp := *k
		c.kyc = append(c.kyc, &cp)
	}
	for id, a := range s.admins {
		cp := *a
		c.admins[id] = &cp
	}
	return c
}

// tick returns a strictly increasing timestamp so ordering by time is stable.
func (s *state) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// Memory is an in-memory store.Store.
type Memory struct {
	*memQueries
	mu    sync.Mutex
	state *state
}

var _ store.Store = (*Memory)(nil)

// NewMemory returns an empty store. Account numbers start at AVS1001.
func NewMemory() *Memory {
	m := &Memory{
		state: &state{
			accounts:   map[uuid.UUID]*domain.Account{},
			admins:     map[uuid.UUID]*domain.Admin{},
			nextNumber: 1001,
			clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	m.memQueries = &memQueries{m: m}
	return m
}

// InTx runs fn against a copy of the state and publishes the copy only if fn succeeds.
func (m *Memory) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(&memQueries{m: m, tx: working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

// Events returns the committed outbox entries in enqueue order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.state.events...)
}

// EventsWithKey returns the committed outbox entries for one routing key.
func (m *Memory) EventsWithKey(routingKey string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.RoutingKey == routingKey {
			out = append(out, e)
		}
	}
	return out
}

// memQueries runs against the open transaction state when tx is set, and
// otherwise takes the store lock for the duration of one call.
type memQueries struct {
	m  *Memory
	tx *state
}

func (q *memQueries) acquire(ctx context.Context) (*state, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if q.tx != nil {
		return q.tx, func() {}, nil
	}
	q.m.mu.Lock()
	return q.m.state, q.m.mu.Unlock, nil
}

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	if a.Email != nil {
		email := *a.Email
		cp.Email = &email
	}
	return &cp
}

func emailOf(a *domain.Account) string {
	if a.Email == nil {
		return ""
	}
	return *a.Email
}

// checkUnique mirrors the accounts_*_key constraints.
func checkUnique(s *state, a *domain.Account) error {
	for _, other := range s.accounts {
		if other.ID == a.ID {
			continue
		}
		var constraint string
		switch {
		case other.Phone == a.Phone:
			constraint = "accounts_phone_key"
		case a.Email != nil && emailOf(other) == *a.Email:
			constraint = "accounts_email_key"
		case other.Aadhaar == a.Aadhaar:
			constraint = "accounts_aadhaar_key"
		case other.PAN == a.PAN:
			constraint = "accounts_pan_key"
		default:
			continue
		}
		de, _ := store.ConstraintError(constraint)
		return de
	}
	return nil
}

func (q *memQueries) CreateAccount(ctx context.Context, account *domain.Account) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := checkUnique(s, account); err != nil {
		return err
	}
	if account.Balance.IsNegative() {
		de, _ := store.ConstraintError("accounts_balance_non_negative")
		return de
	}
	account.ID = uuid.New()
	account.AccountNumber = fmt.Sprintf("AVS%d", s.nextNumber)
	s.nextNumber++
	account.CreatedAt = s.tick()
	account.UpdatedAt = account.CreatedAt
	if account.Role == "" {
		account.Role = domain.RoleUser
	}
	s.accounts[account.ID] = copyAccount(account)
	return nil
}

func (q *memQueries) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (q *memQueries) LockAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return q.GetAccount(ctx, id)
}

func (q *memQueries) FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	for _, a := range s.accounts {
		if a.Phone == phone {
			return copyAccount(a), nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (q *memQueries) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *copyAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *memQueries) UpdateAccount(ctx context.Context, account *domain.Account) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	current, ok := s.accounts[account.ID]
	if !ok {
		return store.ErrAccountNotFound
	}
	if err := checkUnique(s, account); err != nil {
		return err
	}
	next := copyAccount(account)
	next.Balance = current.Balance
	next.AccountNumber = current.AccountNumber
	next.PasswordHash = current.PasswordHash
	next.Role = current.Role
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.tick()
	account.UpdatedAt = next.UpdatedAt
	s.accounts[account.ID] = next
	return nil
}

func (q *memQueries) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	a, ok := s.accounts[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	if balance.IsNegative() {
		de, _ := store.ConstraintError("accounts_balance_non_negative")
		return de
	}
	a.Balance = balance
	a.UpdatedAt = s.tick()
	return nil
}

func (q *memQueries) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.accounts[id]; !ok {
		return store.ErrAccountNotFound
	}
	delete(s.accounts, id)

	txs := s.transactions[:0]
	for _, t := range s.transactions {
		if t.AccountID != id {
			txs = append(txs, t)
		}
	}
	s.transactions = txs

	var updates []*domain.FieldUpdateRequest
	for _, r := range s.updates {
		if r.AccountID != id {
			updates = append(updates, r)
		}
	}
	s.updates = updates

	var kyc []*domain.KYCRequest
	for _, k := range s.kyc {
		if k.AccountID != id {
			kyc = append(kyc, k)
		}
	}
	s.kyc = kyc
	return nil
}

func (q *memQueries) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	stats := &domain.DashboardStats{
		TotalBalance:         decimal.Zero,
		GenderBreakdown:      map[string]int64{},
		AccountTypeBreakdown: map[string]int64{},
	}
	for _, a := range s.accounts {
		stats.TotalUsers++
		stats.TotalBalance = stats.TotalBalance.Add(a.Balance)
		stats.GenderBreakdown[a.Gender]++
		stats.AccountTypeBreakdown[string(a.AccountType)]++
	}
	return stats, nil
}

func (q *memQueries) InsertTransaction(ctx context.Context, record *domain.TransactionRecord) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.accounts[record.AccountID]; !ok {
		return store.ErrAccountNotFound
	}
	record.ID = uuid.New()
	record.CreatedAt = s.tick()
	s.transactions = append(s.transactions, *record)
	return nil
}

func (q *memQueries) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := []domain.TransactionRecord{}
	for i := len(s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.transactions[i].AccountID == accountID {
			out = append(out, s.transactions[i])
		}
	}
	return out, nil
}

func (q *memQueries) HasPendingUpdateRequest(ctx context.Context, accountID uuid.UUID) (bool, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	for _, r := range s.updates {
		if r.AccountID == accountID && r.Status == domain.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) InsertUpdateRequest(ctx context.Context, req *domain.FieldUpdateRequest) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	a, ok := s.accounts[req.AccountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	for _, r := range s.updates {
		if r.AccountID == req.AccountID && r.Status == domain.StatusPending && r.BatchID != req.BatchID {
			de, _ := store.ConstraintError("update_requests_one_pending")
			return de
		}
	}
	req.ID = uuid.New()
	req.Status = domain.StatusPending
	req.CreatedAt = s.tick()
	req.AccountNumber = a.AccountNumber
	cp := *req
	s.updates = append(s.updates, &cp)
	return nil
}

func (q *memQueries) findUpdate(s *state, id uuid.UUID) (*domain.FieldUpdateRequest, error) {
	for _, r := range s.updates {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, store.ErrRequestNotFound
}

func (q *memQueries) LockUpdateRequest(ctx context.Context, id uuid.UUID) (*domain.FieldUpdateRequest, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	r, err := q.findUpdate(s, id)
	if err != nil {
		return nil, err
	}
	cp := *r
	return &cp, nil
}

func (q *memQueries) ResolveUpdateRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, adminID uuid.UUID, at time.Time) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	r, err := q.findUpdate(s, id)
	if err != nil || r.Status != domain.StatusPending {
		return store.ErrRequestNotFound
	}
	r.Status = status
	r.ResolvedAt = &at
	r.ResolvedBy = &adminID
	return nil
}

func (q *memQueries) ListPendingUpdateRequests(ctx context.Context) ([]domain.FieldUpdateRequest, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := []domain.FieldUpdateRequest{}
	for _, r := range s.updates {
		if r.Status == domain.StatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (q *memQueries) findKYC(s *state, match func(*domain.KYCRequest) bool) (*domain.KYCRequest, error) {
	for i := len(s.kyc) - 1; i >= 0; i-- {
		if match(s.kyc[i]) {
			cp := *s.kyc[i]
			return &cp, nil
		}
	}
	return nil, store.ErrRequestNotFound
}

func (q *memQueries) FindActiveKYCRequest(ctx context.Context, accountID uuid.UUID) (*domain.KYCRequest, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return q.findKYC(s, func(k *domain.KYCRequest) bool {
		return k.AccountID == accountID && (k.Status == domain.StatusPending || k.Status == domain.StatusApproved)
	})
}

func (q *memQueries) KYCDocumentRefs(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var refs []string
	for _, k := range s.kyc {
		if k.AccountID == accountID {
			refs = append(refs, k.IDDocumentRef, k.PhotoRef, k.SignatureRef)
		}
	}
	return refs, nil
}

func (q *memQueries) LatestKYCRequest(ctx context.Context, accountID uuid.UUID) (*domain.KYCRequest, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return q.findKYC(s, func(k *domain.KYCRequest) bool { return k.AccountID == accountID })
}

func (q *memQueries) GetKYCRequest(ctx context.Context, id uuid.UUID) (*domain.KYCRequest, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return q.findKYC(s, func(k *domain.KYCRequest) bool { return k.ID == id })
}

func (q *memQueries) LockKYCRequest(ctx context.Context, id uuid.UUID) (*domain.KYCRequest, error) {
	return q.GetKYCRequest(ctx, id)
}

func (q *memQueries) InsertKYCRequest(ctx context.Context, req *domain.KYCRequest) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	a, ok := s.accounts[req.AccountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	for _, k := range s.kyc {
		if k.AccountID == req.AccountID && (k.Status == domain.StatusPending || k.Status == domain.StatusApproved) {
			de, _ := store.ConstraintError("kyc_requests_one_active_idx")
			return de
		}
	}
	req.ID = uuid.New()
	req.Status = domain.StatusPending
	req.CreatedAt = s.tick()
	req.AccountNumber = a.AccountNumber
	cp := *req
	s.kyc = append(s.kyc, &cp)
	return nil
}

func (q *memQueries) ResolveKYCRequest(ctx context.Context, id uuid.UUID, status domain.RequestStatus, adminID uuid.UUID, at time.Time) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, k := range s.kyc {
		if k.ID == id && k.Status == domain.StatusPending {
			k.Status = status
			k.ResolvedAt = &at
			k.ResolvedBy = &adminID
			return nil
		}
	}
	return store.ErrRequestNotFound
}

func (q *memQueries) ListPendingKYCRequests(ctx context.Context) ([]domain.KYCRequest, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out := []domain.KYCRequest{}
	for _, k := range s.kyc {
		if k.Status == domain.StatusPending {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (q *memQueries) CreateAdmin(ctx context.Context, admin *domain.Admin) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, a := range s.admins {
		if a.Username == admin.Username {
			de, _ := store.ConstraintError("admins_username_key")
			return de
		}
	}
	admin.ID = uuid.New()
	admin.CreatedAt = s.tick()
	cp := *admin
	s.admins[admin.ID] = &cp
	return nil
}

func (q *memQueries) FindAdminByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	for _, a := range s.admins {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrAdminNotFound
}

func (q *memQueries) GetAdmin(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	a, ok := s.admins[id]
	if !ok {
		return nil, store.ErrAdminNotFound
	}
	cp := *a
	return &cp, nil
}

func (q *memQueries) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	s, release, err := q.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.events = append(s.events, Event{Exchange: exchange, RoutingKey: routingKey, Payload: blob})
	return nil
}
