package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/avsbank/banking-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestDepositAndWithdraw(t *testing.T) {
	env := newTestEnv(t)
	account := mustRegister(t, env, registerInput(1))
	ctx := context.Background()

	deposit, err := env.ledger.Deposit(ctx, account.ID, dec("500.25"))
	if err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}
	if !deposit.BalanceAfter.Equal(dec("500.25")) || deposit.Direction != domain.Credit {
		t.Fatalf("unexpected deposit record: %+v", deposit)
	}

	withdrawal, err := env.ledger.Withdraw(ctx, account.ID, dec("200"))
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	if !withdrawal.BalanceAfter.Equal(dec("300.25")) || withdrawal.Description != "Withdrawal" {
		t.Fatalf("unexpected withdrawal record: %+v", withdrawal)
	}
	if !balanceOf(t, env, account.ID).Equal(dec("300.25")) {
		t.Fatalf("expected stored balance 300.25, got %s", balanceOf(t, env, account.ID))
	}
	if got := len(env.store.EventsWithKey(domain.RoutingLedgerEntryRecorded)); got != 2 {
		t.Fatalf("expected two ledger events, got %d", got)
	}
}

func TestWithdrawInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	in := registerInput(2)
	in.InitialDeposit = dec("100")
	account := mustRegister(t, env, in)
	ctx := context.Background()
	eventsBefore := len(env.store.Events())

	_, err := env.ledger.Withdraw(ctx, account.ID, dec("100.01"))
	expectKind(t, err, domain.ErrInsufficientFunds)

	if !balanceOf(t, env, account.ID).Equal(dec("100")) {
		t.Fatalf("expected balance to stay 100, got %s", balanceOf(t, env, account.ID))
	}
	history, _ := env.ledger.History(ctx, account.ID, 0)
	if len(history) != 1 {
		t.Fatalf("expected only the opening entry, got %d", len(history))
	}
	if got := len(env.store.Events()); got != eventsBefore {
		t.Fatalf("expected no new events, got %d more", got-eventsBefore)
	}

	if _, err := env.ledger.Withdraw(ctx, account.ID, dec("100")); err != nil {
		t.Fatalf("withdrawing the full balance should succeed: %v", err)
	}
	if !balanceOf(t, env, account.ID).IsZero() {
		t.Fatalf("expected zero balance, got %s", balanceOf(t, env, account.ID))
	}
}

func TestLedgerRejectsInvalidAmounts(t *testing.T) {
	env := newTestEnv(t)
	account := mustRegister(t, env, registerInput(3))

	for _, amount := range []string{"0", "-5", "1.234", "10000000000000"} {
		t.Run(amount, func(t *testing.T) {
			_, err := env.ledger.Deposit(context.Background(), account.ID, dec(amount))
			expectKind(t, err, domain.ErrValidation)
		})
	}
}

func TestLedgerUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.Deposit(context.Background(), uuid.New(), dec("1"))
	expectKind(t, err, domain.ErrNotFound)

	_, err = env.ledger.History(context.Background(), uuid.New(), 5)
	expectKind(t, err, domain.ErrNotFound)
}

func TestBalanceMatchesLedgerAndNeverNegative(t *testing.T) {
	env := newTestEnv(t)
	account := mustRegister(t, env, registerInput(4))
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	expected := decimal.Zero
	for i := 0; i < 200; i++ {
		amount := decimal.New(int64(rng.Intn(50000)+1), -2)
		if rng.Intn(2) == 0 {
			if _, err := env.ledger.Deposit(ctx, account.ID, amount); err != nil {
				t.Fatalf("Deposit returned error: %v", err)
			}
			expected = expected.Add(amount)
			continue
		}
		_, err := env.ledger.Withdraw(ctx, account.ID, amount)
		if amount.GreaterThan(expected) {
			expectKind(t, err, domain.ErrInsufficientFunds)
			continue
		}
		if err != nil {
			t.Fatalf("Withdraw returned error: %v", err)
		}
		expected = expected.Sub(amount)
	}

	balance := balanceOf(t, env, account.ID)
	if !balance.Equal(expected) {
		t.Fatalf("expected balance %s, got %s", expected, balance)
	}
	if balance.IsNegative() {
		t.Fatalf("balance went negative: %s", balance)
	}

	history, err := env.ledger.History(ctx, account.ID, MaxHistoryLimit)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if !history[0].BalanceAfter.Equal(balance) {
		t.Fatalf("newest entry balance %s does not match account balance %s", history[0].BalanceAfter, balance)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	in := registerInput(5)
	in.InitialDeposit = dec("1000")
	account := mustRegister(t, env, in)

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Withdraw(context.Background(), account.ID, dec("100"))
			if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected 10 successful withdrawals, got %d", succeeded)
	}
	if !balanceOf(t, env, account.ID).IsZero() {
		t.Fatalf("expected zero balance, got %s", balanceOf(t, env, account.ID))
	}
}

func TestHistoryLimit(t *testing.T) {
	env := newTestEnv(t)
	account := mustRegister(t, env, registerInput(6))
	ctx := context.Background()
	for i := 1; i <= 15; i++ {
		if _, err := env.ledger.Deposit(ctx, account.ID, decimal.NewFromInt(int64(i))); err != nil {
			t.Fatalf("Deposit returned error: %v", err)
		}
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultHistoryLimit},
		{-3, DefaultHistoryLimit},
		{3, 3},
		{500, 15},
	}
	for _, tt := range tests {
		history, err := env.ledger.History(ctx, account.ID, tt.limit)
		if err != nil {
			t.Fatalf("History(%d) returned error: %v", tt.limit, err)
		}
		if len(history) != tt.want {
			t.Fatalf("History(%d): expected %d entries, got %d", tt.limit, tt.want, len(history))
		}
		if !history[0].Amount.Equal(decimal.NewFromInt(15)) {
			t.Fatalf("History(%d): expected newest entry first, got amount %s", tt.limit, history[0].Amount)
		}
	}
}
