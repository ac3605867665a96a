package vault

import (
	"errors"
	"math/big"
	"testing"
)

func TestSetCapacity(t *testing.T) {
	env := newTestVault(t, 1000, 500)
	env.bank.set(refAsset, alice, 800)
	if err := env.vault.Deposit(alice, big.NewInt(800)); err != nil {
		t.Fatalf("setup deposit: %v", err)
	}

	// Lowering capacity to or below committed funds must fail and must not
	// mutate the stored capacity.
	for _, bad := range []int64{800, 700, 0} {
		err := env.vault.SetCapacity(superID, big.NewInt(bad))
		if !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("capacity %d: expected invalid capacity, got %v", bad, err)
		}
		if got := env.vault.Capacity(); got.Int64() != 1000 {
			t.Fatalf("capacity %d: mutated capacity to %s", bad, got)
		}
	}

	if err := env.vault.SetCapacity(superID, big.NewInt(5000)); err != nil {
		t.Fatalf("set capacity returned error: %v", err)
	}
	if got := env.vault.Capacity(); got.Int64() != 5000 {
		t.Fatalf("expected capacity 5000, got %s", got)
	}
}

func TestSetCapacityRequiresAdmin(t *testing.T) {
	env := newTestVault(t, 1000, 500)
	if err := env.vault.SetCapacity(alice, big.NewInt(5000)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if got := env.vault.Capacity(); got.Int64() != 1000 {
		t.Fatalf("unauthorized call mutated capacity: %s", got)
	}
}

func TestSetWithdrawalCeiling(t *testing.T) {
	env := newTestVault(t, 1000, 500)

	if err := env.vault.SetWithdrawalCeiling(superID, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for zero ceiling, got %v", err)
	}
	if err := env.vault.SetWithdrawalCeiling(alice, big.NewInt(100)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	if err := env.vault.SetWithdrawalCeiling(superID, big.NewInt(750)); err != nil {
		t.Fatalf("set ceiling returned error: %v", err)
	}
	if got := env.vault.WithdrawalCeiling(); got.Int64() != 750 {
		t.Fatalf("expected ceiling 750, got %s", got)
	}
}

func TestGrantRevokeAdmin(t *testing.T) {
	env := newTestVault(t, 1000, 500)

	// Ordinary admins cannot mutate the role set, only the super-admin can.
	if err := env.vault.GrantAdmin(alice, bob); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	env.access.admins[alice] = struct{}{}
	if err := env.vault.GrantAdmin(alice, bob); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("admin must not grant admin, got %v", err)
	}

	if err := env.vault.GrantAdmin(superID, bob); err != nil {
		t.Fatalf("grant returned error: %v", err)
	}
	if err := env.vault.SetWithdrawalCeiling(bob, big.NewInt(321)); err != nil {
		t.Fatalf("granted admin rejected: %v", err)
	}

	if err := env.vault.RevokeAdmin(superID, bob); err != nil {
		t.Fatalf("revoke returned error: %v", err)
	}
	if err := env.vault.SetWithdrawalCeiling(bob, big.NewInt(111)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("revoked admin still authorized: %v", err)
	}

	if err := env.vault.GrantAdmin(superID, ZeroAddress); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestAdminNotificationsEmitted(t *testing.T) {
	env := newTestVault(t, 1000, 500)
	if err := env.vault.SetCapacity(superID, big.NewInt(4000)); err != nil {
		t.Fatalf("set capacity: %v", err)
	}
	if err := env.vault.GrantAdmin(superID, bob); err != nil {
		t.Fatalf("grant: %v", err)
	}

	kinds := make([]string, 0, len(env.notifier.events))
	for _, ev := range env.notifier.events {
		kinds = append(kinds, ev.kind)
	}
	if len(kinds) != 2 || kinds[0] != "capacity" || kinds[1] != "granted" {
		t.Fatalf("unexpected notifications: %v", kinds)
	}
	if env.notifier.events[0].value.Int64() != 4000 {
		t.Fatalf("unexpected capacity value: %s", env.notifier.events[0].value)
	}
	if env.notifier.events[1].identity != bob {
		t.Fatalf("unexpected granted identity: %s", env.notifier.events[1].identity)
	}
}

func TestGuardBlocksConcurrentMutation(t *testing.T) {
	env := newTestVault(t, 1000, 500)
	env.bank.set(refAsset, alice, 500)

	release := make(chan struct{})
	entered := make(chan struct{})
	env.bank.onTransferFrom = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- env.vault.Deposit(alice, big.NewInt(100)) }()
	<-entered

	// A second mutating call while one is in flight is rejected, not queued.
	if err := env.vault.Withdraw(alice, big.NewInt(10)); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("outer deposit returned error: %v", err)
	}
}
